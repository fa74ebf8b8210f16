package server_test

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zimlet-labs/nextcloud-gateway/internal/server"
)

func TestNewTrustedProxies(t *testing.T) {
	tp := server.NewTrustedProxies([]string{"10.0.0.0/8", "192.0.2.5", "not-a-cidr"})

	tests := []struct {
		ip      string
		trusted bool
	}{
		{"10.1.2.3", true},
		{"192.0.2.5", true},
		{"192.0.2.6", false},
		{"203.0.113.1", false},
	}

	for _, tc := range tests {
		if got := tp.IsTrusted(net.ParseIP(tc.ip)); got != tc.trusted {
			t.Errorf("IsTrusted(%s) = %v, want %v", tc.ip, got, tc.trusted)
		}
	}
}

func TestClientIP(t *testing.T) {
	tp := server.NewTrustedProxies([]string{"10.0.0.0/8"})

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.9:1234",
			want:       "203.0.113.9",
		},
		{
			name:       "untrusted peer forwarding header ignored",
			remoteAddr: "203.0.113.9:1234",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "203.0.113.9",
		},
		{
			name:       "trusted proxy honors forwarded for",
			remoteAddr: "10.0.0.2:1234",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"},
			want:       "198.51.100.1",
		},
		{
			name:       "trusted proxy honors real ip",
			remoteAddr: "10.0.0.2:1234",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7"},
			want:       "198.51.100.7",
		},
		{
			name:       "trusted proxy without headers",
			remoteAddr: "10.0.0.2:1234",
			want:       "10.0.0.2",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := tp.ClientIPString(r); got != tc.want {
				t.Fatalf("ClientIPString = %q, want %q", got, tc.want)
			}
		})
	}
}
