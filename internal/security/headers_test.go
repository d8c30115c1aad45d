package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serveHeaders(h Headers, req *http.Request) http.Header {
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Result().Header
}

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://pay.example.com/api/v1/payments/authorization", nil)
	req.TLS = &tls.ConnectionState{}

	headers := serveHeaders(Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}, req)
	require.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", headers.Get("Cache-Control"))
	require.Equal(t, "no-cache", headers.Get("Pragma"))
	require.Equal(t, "max-age=31536000; includeSubDomains", headers.Get("Strict-Transport-Security"))
}

func TestHeadersHSTSBehindProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://pay.example.com/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")

	require.Empty(t, serveHeaders(Headers{Enable: true, EnableHSTS: true}, req).Get("Strict-Transport-Security"))
	require.Equal(t, "max-age=600", serveHeaders(Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600, TrustForwardedProto: true}, req).Get("Strict-Transport-Security"))
}

func TestHeadersMiddlewareDisabled(t *testing.T) {
	headers := serveHeaders(Headers{EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "http://pay.example.com", nil))
	require.Empty(t, headers.Get("X-Content-Type-Options"))
	require.Empty(t, headers.Get("Cache-Control"))
}
