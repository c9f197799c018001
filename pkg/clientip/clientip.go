package clientip

import (
	"net"
	"net/http"
	"strings"
)

// TrustForwarded makes RealClientIP honour the first X-Forwarded-For entry.
// Enable only behind a proxy that overwrites the header.
var TrustForwarded bool

// RealClientIP returns the client IP from the request. Without
// TrustForwarded it uses r.RemoteAddr only.
func RealClientIP(r *http.Request) string {
	if TrustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if net.ParseIP(first) != nil {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}
