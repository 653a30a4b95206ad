package middleware

import (
	"context"
	"net/http"

	"kixikila/internal/logging"
)

// RoleLookup reads the current role from the profile row.
type RoleLookup interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

type Authorizer interface {
	Allowed(role, object, action string) (bool, error)
}

// RequireAdmin guards a route with the RBAC policy. The role comes from the
// database on every request so a demotion takes effect before the token
// expires.
func RequireAdmin(roles RoleLookup, authorizer Authorizer, object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			role, err := roles.GetRole(r.Context(), userID)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("load role")
				writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
				return
			}
			allowed, err := authorizer.Allowed(role, object, action)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("enforce policy")
				writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
				return
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "forbidden", "admin privileges required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
