package middleware

import (
	"net/http"
	"strings"

	"github.com/soaringjerry/Pollen/internal/identity"
)

// TokenParser turns a bearer token into the caller identity.
type TokenParser interface {
	Parse(tok string) (identity.Identity, error)
}

// WithAuth attaches the caller identity to the context if an Authorization
// header is present and valid. Requests without one pass through untouched.
func WithAuth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if strings.HasPrefix(h, "Bearer ") {
				tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
				if id, err := parser.Parse(tok); err == nil {
					next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.FromContext(r.Context()); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
