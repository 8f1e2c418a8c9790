// Package metadata copies per-request facts that audit rows and logs need
// onto the request context.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"regflow/pkg/requestcontext"
)

// ClientMetadata must run after chi's RequestID middleware.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))
		ctx = requestcontext.WithClientIP(ctx, ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP prefers the left-most X-Forwarded-For hop, then X-Real-IP, then
// the socket peer. Header values that do not parse as an address are skipped.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := parseAddr(first); ok {
			return ip
		}
	}
	if ip, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip, ok := parseAddr(host); ok {
		return ip
	}
	return ""
}

func parseAddr(raw string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
