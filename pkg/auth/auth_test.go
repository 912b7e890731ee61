package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/signalgrid-dev/signalgrid/pkg/server"
)

func TestStaticTokens(t *testing.T) {
	fn := StaticTokens(map[string]string{
		"tok-alice": "alice",
		"tok-bob":   "bob",
	})

	tests := []struct {
		name     string
		header   string
		url      string
		wantUser string
		wantErr  bool
	}{
		{"bearer header", "Bearer tok-alice", "/ws", "alice", false},
		{"case-insensitive scheme", "bearer tok-bob", "/ws", "bob", false},
		{"query fallback", "", "/ws?token=tok-alice", "alice", false},
		{"header wins over query", "Bearer tok-bob", "/ws?token=tok-alice", "bob", false},
		{"missing token", "", "/ws", "", true},
		{"unknown token", "Bearer nope", "/ws", "", true},
		{"empty bearer", "Bearer ", "/ws", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			user, err := fn(r)
			if tt.wantErr {
				if !errors.Is(err, server.ErrAuthenticationFailed) {
					t.Errorf("error = %v, want ErrAuthenticationFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if user != tt.wantUser {
				t.Errorf("user = %q, want %q", user, tt.wantUser)
			}
		})
	}
}
