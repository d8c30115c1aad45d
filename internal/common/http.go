package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the client address for rate limiting and logs. Forwarded
// headers must already be resolved into RemoteAddr by the RealIP middleware.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
