package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRemoteIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{name: "host port", remoteAddr: "10.0.0.7:51234", want: "10.0.0.7"},
		{name: "bare host", remoteAddr: "10.0.0.7", want: "10.0.0.7"},
		{name: "proxy ignored", remoteAddr: "10.0.0.7:1", forwarded: "203.0.113.9", want: "10.0.0.7"},
		{name: "proxy trusted", remoteAddr: "10.0.0.7:1", forwarded: "203.0.113.9, 10.0.0.1", trustProxy: true, want: "203.0.113.9"},
		{name: "ipv6", remoteAddr: "[::1]:8080", want: "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/signin", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := remoteIP(r, tt.trustProxy); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
