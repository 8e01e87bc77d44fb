package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
	"nymreg/pkg/platform/httputil"
	"nymreg/pkg/requestcontext"
)

// TokenClaims is what the auth middleware needs from a validated token.
type TokenClaims struct {
	Account id.Account
	Admin   bool
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's account (and admin flag) in the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err.Error(),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx = requestcontext.WithAccount(ctx, claims.Account)
			ctx = requestcontext.WithAdmin(ctx, claims.Admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin is applied after RequireAuth on administrator routes.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.IsAdmin(ctx) {
				logger.WarnContext(ctx, "forbidden - administrator token required",
					"request_id", requestcontext.RequestID(ctx),
					"account", requestcontext.Account(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "administrator only"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
