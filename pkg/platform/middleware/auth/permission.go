package auth

import (
	"context"
	"log/slog"
	"net/http"

	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/httputil"
	"regflow/pkg/requestcontext"
)

// Authorizer answers whether a user holds a named permission.
type Authorizer interface {
	Authorize(ctx context.Context, userID id.UserID, permission string) bool
}

// DeniedFunc is told about every rejected request, e.g. to write an audit event.
type DeniedFunc func(ctx context.Context, userID id.UserID, permission string)

// RequirePermission must run after RequireAuth. Requests from users without
// the permission get 403.
func RequirePermission(authz Authorizer, permission string, logger *slog.Logger, onDenied DeniedFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := requestcontext.UserID(ctx)
			if userID.IsNil() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !authz.Authorize(ctx, userID, permission) {
				logger.WarnContext(ctx, "permission denied",
					"request_id", requestcontext.RequestID(ctx),
					"user_id", userID.String(),
					"permission", permission,
				)
				if onDenied != nil {
					onDenied(ctx, userID, permission)
				}
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "missing permission "+permission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
