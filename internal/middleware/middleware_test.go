package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimit_Allow(t *testing.T) {
	iprl := NewIPRateLimitWith(time.Hour, 2)

	assert.True(t, iprl.Allow("10.0.0.1"))
	assert.True(t, iprl.Allow("10.0.0.1"))
	assert.False(t, iprl.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, iprl.Allow("10.0.0.2"), "limits are per IP")
	assert.Equal(t, 2, iprl.Len())
}

func TestIPRateLimit_Cleanup(t *testing.T) {
	iprl := NewIPRateLimit()
	iprl.Allow("10.0.0.1")

	iprl.cleanup(time.Now(), time.Hour)
	assert.Equal(t, 1, iprl.Len())

	iprl.cleanup(time.Now().Add(2*time.Hour), time.Hour)
	assert.Equal(t, 0, iprl.Len())
}

func TestIPRateLimit_Handler(t *testing.T) {
	iprl := NewIPRateLimitWith(time.Hour, 1)
	h := iprl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name string
		want int
	}{
		{name: "first request passes", want: http.StatusNoContent},
		{name: "second request limited", want: http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/board", nil)
			req.RemoteAddr = "192.0.2.7:5555"
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "ipv4", remoteAddr: "192.0.2.7:5555", want: "192.0.2.7"},
		{name: "ipv6", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "no port", remoteAddr: "192.0.2.7", want: "192.0.2.7"},
		{name: "forwarding header ignored", remoteAddr: "192.0.2.7:1", forwarded: "203.0.113.9", want: "192.0.2.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestLimits_Update(t *testing.T) {
	limits := NewLimits(DefaultRateLimit())
	assert.True(t, limits.Get().ValidateMessageSize(4096))
	assert.False(t, limits.Get().ValidateMessageSize(4097))

	rl := limits.Get()
	rl.MaxMessageSize = 10
	limits.Update(rl)

	assert.False(t, limits.Get().ValidateMessageSize(11))
	assert.Equal(t, 10, limits.Get().MaxMessageSize)
}
