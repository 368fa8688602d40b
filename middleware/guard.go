package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/markjoyeuxcom/tokenforge"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal a guard stored for the current
// request, if any.
func PrincipalFromContext(ctx context.Context) (*tokenforge.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*tokenforge.Principal)
	return p, ok
}

// Guard returns middleware that validates the bearer access token on every
// request. Expired, revoked, malformed, and forged tokens all answer with a
// plain 401; the distinction stays inside the engine's telemetry.
func Guard(engine *tokenforge.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := engine.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
