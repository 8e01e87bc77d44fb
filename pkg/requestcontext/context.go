// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services and handlers read them without pulling
// in net/http. Tests inject values directly:
//
//	ctx = requestcontext.WithAccount(ctx, acct)
//	ctx = requestcontext.WithRequestID(ctx, "req-1")
package requestcontext

import (
	"context"
	"time"

	id "nymreg/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	accountKey     struct{}
	adminKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Account returns the authenticated caller account, or the zero Account when
// the request carries no identity.
func Account(ctx context.Context) id.Account {
	if acct, ok := ctx.Value(accountKey{}).(id.Account); ok {
		return acct
	}
	return id.Account{}
}

func WithAccount(ctx context.Context, acct id.Account) context.Context {
	return context.WithValue(ctx, accountKey{}, acct)
}

// IsAdmin reports whether the auth middleware verified an administrator token
// for this request.
func IsAdmin(ctx context.Context) bool {
	admin, ok := ctx.Value(adminKey{}).(bool)
	return ok && admin
}

func WithAdmin(ctx context.Context, admin bool) context.Context {
	return context.WithValue(ctx, adminKey{}, admin)
}

// RequestID returns the correlation ID assigned by middleware, or "" when
// absent (background work, tests).
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped clock, falling back to time.Now. Tests pin it
// with WithTime for deterministic timestamps.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
