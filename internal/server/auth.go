package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"tickler/internal/logger"
)

type AuthConfig struct {
	// JWTSecret enables HS256 bearer auth when set.
	JWTSecret string
}

func (c AuthConfig) enabled() bool { return c.JWTSecret != "" }

// newAuthMiddleware guards the API with bearer tokens. Health and the
// OpenAPI document stay public.
func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	public := map[string]bool{
		basePath + "/health": true,
	}
	return func(next http.Handler) http.Handler {
		if !cfg.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] || strings.HasPrefix(r.URL.Path, "/openapi") || strings.HasPrefix(r.URL.Path, "/docs") {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "authentication required")
				return
			}
			_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				return []byte(cfg.JWTSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil {
				logger.Debug("rejected bearer token", "error", err)
				writeUnauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": apiErrorBody{Code: "unauthorized", Message: msg}})
}
