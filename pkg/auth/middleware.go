package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// APIKeyHeader is the alternative to a Bearer Authorization header.
const APIKeyHeader = "X-API-Key"

// ExtractToken returns the Bearer token, else the X-API-Key header.
func ExtractToken(r *http.Request) string {
	return tokenFromHeader(r.Header)
}

func tokenFromHeader(h http.Header) string {
	if token, ok := strings.CutPrefix(h.Get("Authorization"), "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	return strings.TrimSpace(h.Get(APIKeyHeader))
}

// Middleware rejects requests without a valid key. The authenticated caller
// is stored in the request context. A nil authenticator disables the check.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if a == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token := ExtractToken(r); token != "" {
				ctx = WithToken(ctx, token)
			}

			user, err := a.Authenticate(ctx)
			if err != nil {
				if !errors.Is(err, ErrNoCredentials) {
					slog.Debug("rejected api key", "path", r.URL.Path, "remote", r.RemoteAddr)
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="bi-proxy"`)
				writeUnauthorized(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserContext(ctx, user)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
