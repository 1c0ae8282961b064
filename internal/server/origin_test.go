package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func originRequest(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginPolicy(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"empty list is permissive", nil, "https://anywhere.example", true},
		{"wildcard is permissive", []string{"*"}, "https://anywhere.example", true},
		{"listed origin allowed", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"matching is case-insensitive", []string{"https://App.Example.com"}, "https://app.EXAMPLE.com", true},
		{"unlisted origin blocked", []string{"https://app.example.com"}, "https://evil.example", false},
		{"unparseable origin blocked", []string{"https://app.example.com"}, "::not-an-origin::", false},
		{"missing origin header allowed", []string{"https://app.example.com"}, "", true},
		{"all-invalid config is permissive", []string{"%%%", ""}, "https://anywhere.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, log)
			require.Equal(t, tt.want, policy.check(originRequest(tt.origin)))
		})
	}
}
