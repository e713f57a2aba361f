package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/muratovtemurbek/healthhub-uz/internal/auth"
	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/http/response"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

type ctxKey string

const ctxUser ctxKey = "user"

// RequireAuth resolves the bearer token to a live account and stores it on
// the request context.
func RequireAuth(svc auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "invalid authorization header")
				return
			}
			raw := strings.TrimPrefix(authz, "Bearer ")

			u, err := svc.Authenticate(r.Context(), raw)
			if err != nil {
				response.Unauthorized(w, "invalid authorization token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxUser, u)
			ctx = context.WithValue(ctx, logger.UserIDKey, u.ID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a subtree to the given roles. Must run after RequireAuth.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := CurrentUser(r)
			if u == nil {
				response.Unauthorized(w, "authentication required")
				return
			}
			for _, role := range roles {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.WriteError(w, http.StatusForbidden, "insufficient role", "not_authorized")
		})
	}
}

func CurrentUser(r *http.Request) *domain.User {
	v := r.Context().Value(ctxUser)
	if v == nil {
		return nil
	}
	return v.(*domain.User)
}
