package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// requireAccessKey rejects requests that do not present the configured
// access key. The check is skipped when no key hash is configured.
func (h *Handler) requireAccessKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.AccessKeyHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := accessKeyFromRequest(r)
		if key == "" {
			slog.Warn("access key missing", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(h.config.AccessKeyHash), []byte(key)); err != nil {
			slog.Warn("access key rejected", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accessKeyFromRequest reads a bearer token, falling back to the "key"
// query parameter since browsers cannot set headers on WebSocket requests.
func accessKeyFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("key")
}
