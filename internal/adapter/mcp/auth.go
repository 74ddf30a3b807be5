package mcp

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// HeaderAPIKey is accepted as an alternative to a bearer Authorization header.
const HeaderAPIKey = "X-API-Key"

// AuthMiddleware wraps an http.Handler and requires apiKey either as a
// Bearer token or in the X-API-Key header. An empty apiKey disables auth.
func AuthMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(HeaderAPIKey)
		if token == "" {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			token = strings.TrimPrefix(auth, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
