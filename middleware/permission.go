package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authcore/permission"
)

// PermissionChecker answers capability checks. *authcore.Engine implements it.
type PermissionChecker interface {
	HasPermission(ctx context.Context, role, resource, action string, scope permission.Scope) bool
}

// RequirePermission must run behind Guard. It checks the token's role against
// the live permission resolver, not the permission names embedded in the
// token, and answers 403 on denial.
func RequirePermission(checker PermissionChecker, resource, action string, scope permission.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if checker == nil || !checker.HasPermission(r.Context(), claims.Role, resource, action, scope) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
