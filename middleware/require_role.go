package middleware

import (
	"net/http"

	"github.com/markjoyeuxcom/tokenforge"
)

// RequireRole returns middleware that validates the bearer token like
// [Guard] and additionally requires the principal's role claim to equal
// role. A valid token with the wrong role answers 403, not 401.
func RequireRole(engine *tokenforge.Engine, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || principal.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
		return guarded
	}
}
