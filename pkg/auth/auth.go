// Package auth provides ready-made authentication collaborators for the
// realtime server. The server only ever sees the AuthFunc boundary; real
// deployments plug in their session layer here.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/signalgrid-dev/signalgrid/pkg/server"
)

// StaticTokens builds an AuthFunc from a fixed token → user id map. The
// token is read from the Authorization bearer header, falling back to the
// "token" query parameter for browser WebSocket clients that cannot set
// headers.
func StaticTokens(tokens map[string]string) server.AuthFunc {
	return func(r *http.Request) (string, error) {
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			return "", fmt.Errorf("%w: missing token", server.ErrAuthenticationFailed)
		}

		for candidate, userID := range tokens {
			if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
				return userID, nil
			}
		}
		return "", fmt.Errorf("%w: unknown token", server.ErrAuthenticationFailed)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
