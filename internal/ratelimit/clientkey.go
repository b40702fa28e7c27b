package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the shared bucket for requests without a usable identity.
const UnknownClient = "unknown"

// ClientKeyFunc derives the rate-limit key for a request. How a client is
// identified depends on the deployment (direct, behind a proxy, ...), so the
// server takes it as a dependency.
type ClientKeyFunc func(r *http.Request) string

// ForwardedFor keys on the first entry of header (e.g. X-Forwarded-For).
// The header is client controlled unless a trusted proxy overwrites it.
func ForwardedFor(header string) ClientKeyFunc {
	if strings.TrimSpace(header) == "" {
		header = "X-Forwarded-For"
	}
	return func(r *http.Request) string {
		v := r.Header.Get(header)
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
		return UnknownClient
	}
}

// RemoteAddr keys on the TCP peer address.
func RemoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if host == "" {
		return UnknownClient
	}
	return host
}
