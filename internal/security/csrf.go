package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pgi/internal/common"
)

// CSRF protects the session-cookie flows using the double-submit technique:
// unsafe requests must echo the CSRF cookie in a header of the same name.
type CSRF struct {
	Header   string
	Secure   bool
	SameSite http.SameSite
	// Exempt skips the check for requests that carry no session cookie, for
	// example server-to-server order creation.
	Exempt func(*http.Request) bool
}

func (c CSRF) name() string {
	if name := strings.TrimSpace(c.Header); name != "" {
		return name
	}
	return "X-CSRF-Token"
}

// Issue handles GET /csrf. It sets a readable CSRF cookie and returns the token.
func (c CSRF) Issue(w http.ResponseWriter, _ *http.Request) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	sameSite := c.SameSite
	if sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		Secure:   c.Secure,
		SameSite: sameSite,
	})
	common.Data(w, http.StatusOK, map[string]string{"token": token})
}

// Middleware enforces that non-idempotent requests include a CSRF token header matching a cookie.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := c.name()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions || method == http.MethodTrace {
			next.ServeHTTP(w, r)
			return
		}
		if c.Exempt != nil && c.Exempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF", "missing csrf token", nil)
			return
		}

		cookie, err := r.Cookie(headerName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF", "missing csrf cookie", nil)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF", "invalid csrf token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithoutCookie exempts requests that do not present the named cookie.
func WithoutCookie(name string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		_, err := r.Cookie(name)
		return err != nil
	}
}
