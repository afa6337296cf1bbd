package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const CallerKey contextKey = "caller"

// HeaderAPIKey is accepted as an alternative to Authorization, for webhook
// senders that can only set a static custom header.
const HeaderAPIKey = "X-API-Key"

// APIKeyAuth validates the API key from the Authorization header. validKeys
// maps caller name to key; the matched caller is stored in the context.
func APIKeyAuth(validKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, ok := presentedKey(r)
			if !ok {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			caller := matchCaller(validKeys, apiKey)
			if caller == "" {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// presentedKey reads "Bearer <key>", a bare "<key>", or X-API-Key.
func presentedKey(r *http.Request) (string, bool) {
	if v := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); v != "" {
		return v, true
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	key := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return key, key != ""
}

// matchCaller compares against every key so timing does not leak which
// caller matched.
func matchCaller(validKeys map[string]string, apiKey string) string {
	caller := ""
	for name, key := range validKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			caller = name
		}
	}
	return caller
}

// GetCallerFromContext extracts the authenticated caller name
func GetCallerFromContext(ctx context.Context) string {
	if caller, ok := ctx.Value(CallerKey).(string); ok {
		return caller
	}
	return ""
}
