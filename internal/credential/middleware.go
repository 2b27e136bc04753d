package credential

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/brokkr-io/brokkr/internal/httpserver"
)

// Middleware authenticates every request by its Authorization: Bearer <pak>
// header (spec §6) and stores the resolved Principal in the request
// context. Requests without a valid PAK are rejected with 401.
func Middleware(store *Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			plaintext := strings.TrimSpace(authHeader[len("Bearer "):])

			principal, err := store.Verify(r.Context(), plaintext)
			if err != nil {
				logger.Warn("pak authentication failed", "error", err)
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid credential")
				return
			}

			ctx := NewContext(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireType rejects requests whose resolved Principal is not of one of
// the allowed types, implementing the per-principal scoping spec §6
// requires (e.g. only admins may create generators).
func RequireType(types ...PrincipalType) func(http.Handler) http.Handler {
	allowed := make(map[PrincipalType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := FromContext(r.Context())
			if p == nil || !allowed[p.Type] {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "principal not entitled to this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
