package http

import (
	"net"
	"net/http"
	"strings"
)

// ExtractClientIP returns the client IP for audit records and session metadata.
// X-Forwarded-For and X-Real-IP are consulted first (first valid entry wins),
// falling back to RemoteAddr. IPv6 loopback is normalized for readability.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			ip := strings.TrimSpace(part)
			if net.ParseIP(ip) != nil {
				return normalizeIP(ip)
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return normalizeIP(xri)
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return normalizeIP(host)
	}
	if r.RemoteAddr != "" {
		return normalizeIP(r.RemoteAddr)
	}
	return "unknown"
}

func normalizeIP(ip string) string {
	if ip == "::1" || ip == "0:0:0:0:0:0:0:1" {
		return "127.0.0.1"
	}
	return ip
}

// UserAgent returns the request's User-Agent header, truncated to a storable
// length.
func UserAgent(r *http.Request) string {
	ua := r.Header.Get("User-Agent")
	if len(ua) > 255 {
		ua = ua[:255]
	}
	return ua
}
