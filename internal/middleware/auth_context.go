package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const tokenHeader = "X-API-Token"

// ServiceToken exige el token de servicio en el header X-API-Token.
// - Si token == "" => modo dev: todos los requests pasan.
// - /health queda siempre fuera del control.
func ServiceToken(token string) func(http.Handler) http.Handler {
	token = strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			got := strings.TrimSpace(r.Header.Get(tokenHeader))
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"data":null,"error":{"code":"UNAUTHORIZED","message":"invalid or missing service token"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
