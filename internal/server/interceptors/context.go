package interceptors

import (
	"context"

	accountdomain "health-portal/backend/internal/account/domain"
)

type contextKey struct{ name string }

var accountKey = contextKey{"account"}

// WithAccount returns a context carrying the authenticated account.
// Handlers read it via AccountFromContext.
func WithAccount(ctx context.Context, a accountdomain.PublicAccount) context.Context {
	return context.WithValue(ctx, accountKey, a)
}

// AccountFromContext returns the authenticated account and true if set; otherwise the zero value, false.
func AccountFromContext(ctx context.Context) (accountdomain.PublicAccount, bool) {
	a, ok := ctx.Value(accountKey).(accountdomain.PublicAccount)
	return a, ok
}

// AccountID returns the authenticated account id, or "" when the request is anonymous.
func AccountID(ctx context.Context) string {
	a, _ := AccountFromContext(ctx)
	return a.ID
}
