package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/edvin/dealersites/internal/api/response"
)

type contextKey string

// APIKeyHashKey holds the sha256 hex digest of the caller's key.
const APIKeyHashKey contextKey = "api_key_hash"

// HashAPIKey returns the digest stored in API_KEYS for a raw key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Auth returns a middleware that accepts a bearer key whose sha256 digest is
// one of hashes. Browsers cannot set headers on websocket upgrades, so those
// may pass the key as the token query parameter instead.
func Auth(hashes []string) func(http.Handler) http.Handler {
	allowed := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		allowed = append(allowed, []byte(strings.ToLower(strings.TrimSpace(h))))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" && isWebSocketUpgrade(r) {
				key = r.URL.Query().Get("token")
			}
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			hash := []byte(HashAPIKey(key))
			ok := false
			for _, a := range allowed {
				if subtle.ConstantTimeCompare(hash, a) == 1 {
					ok = true
				}
			}
			if !ok {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyHashKey, string(hash))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
