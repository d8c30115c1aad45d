package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transport carries the session identifier between client and server.
type Transport interface {
	// CurrentID returns the identifier presented by the client, if any.
	CurrentID(ctx context.Context) (string, bool)
	// Allocate issues a brand new identifier.
	Allocate(ctx context.Context) (string, error)
	// Regenerate replaces the current identifier, carrying stored state over.
	Regenerate(ctx context.Context) (string, error)
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
	TTL      time.Duration
}

// CookieTransport is a per-request Transport backed by an HttpOnly cookie.
type CookieTransport struct {
	w     http.ResponseWriter
	store Store
	cfg   CookieConfig
	id    string
	newID func() string
}

// NewCookieTransport reads the session cookie from r. Values that are not
// server-issued identifiers are ignored.
func NewCookieTransport(w http.ResponseWriter, r *http.Request, store Store, cfg CookieConfig) *CookieTransport {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "pgi_session"
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == http.SameSiteDefaultMode {
		cfg.SameSite = http.SameSiteLaxMode
	}
	t := &CookieTransport{w: w, store: store, cfg: cfg, newID: uuid.NewString}
	if r != nil {
		if c, err := r.Cookie(cfg.Name); err == nil {
			if parsed, err := uuid.Parse(strings.TrimSpace(c.Value)); err == nil {
				t.id = parsed.String()
			}
		}
	}
	return t
}

// ID reads the session identifier from r without touching the response.
func ID(r *http.Request, cookieName string) string {
	if r == nil {
		return ""
	}
	if strings.TrimSpace(cookieName) == "" {
		cookieName = "pgi_session"
	}
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	parsed, err := uuid.Parse(strings.TrimSpace(c.Value))
	if err != nil {
		return ""
	}
	return parsed.String()
}

func (t *CookieTransport) CurrentID(_ context.Context) (string, bool) {
	return t.id, t.id != ""
}

func (t *CookieTransport) Allocate(_ context.Context) (string, error) {
	t.id = t.newID()
	t.write()
	return t.id, nil
}

func (t *CookieTransport) Regenerate(ctx context.Context) (string, error) {
	old := t.id
	next := t.newID()
	if old != "" && t.store != nil {
		if err := t.store.Move(ctx, old, next); err != nil {
			return "", err
		}
	}
	t.id = next
	t.write()
	return next, nil
}

func (t *CookieTransport) write() {
	if t.w == nil {
		return
	}
	cookie := &http.Cookie{
		Name:     t.cfg.Name,
		Value:    t.id,
		Path:     t.cfg.Path,
		Domain:   t.cfg.Domain,
		HttpOnly: true,
		Secure:   t.cfg.Secure,
		SameSite: t.cfg.SameSite,
	}
	if t.cfg.TTL > 0 {
		cookie.MaxAge = int(t.cfg.TTL.Seconds())
	}
	http.SetCookie(t.w, cookie)
}
