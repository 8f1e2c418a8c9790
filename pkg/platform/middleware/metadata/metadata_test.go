package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regflow/pkg/requestcontext"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain uses first hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.2:443", want: "203.0.113.7"},
		{name: "garbage forwarded header falls through", headers: map[string]string{"X-Forwarded-For": "not-an-ip", "X-Real-IP": "198.51.100.4"}, remote: "10.0.0.2:443", want: "198.51.100.4"},
		{name: "socket peer", remote: "192.0.2.10:5123", want: "192.0.2.10"},
		{name: "ipv6 peer", remote: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{name: "mapped ipv4", headers: map[string]string{"X-Real-IP": "::ffff:192.0.2.1"}, want: "192.0.2.1"},
		{name: "nothing usable", remote: "pipe", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	var requestID, clientIP string
	h := chimw.RequestID(ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = requestcontext.RequestID(r.Context())
		clientIP = requestcontext.ClientIP(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-42")
	req.RemoteAddr = "192.0.2.55:1000"
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "req-42", requestID)
	assert.Equal(t, "192.0.2.55", clientIP)
}
