package auth

import "context"

type accountContextKey struct{}

// ContextWithAccount attaches the authenticated account to the context.
func ContextWithAccount(ctx context.Context, acct *Account) context.Context {
	if acct == nil {
		return ctx
	}
	return context.WithValue(ctx, accountContextKey{}, acct)
}

// AccountFromContext extracts the authenticated account from the context.
func AccountFromContext(ctx context.Context) (*Account, bool) {
	if ctx == nil {
		return nil, false
	}
	acct, ok := ctx.Value(accountContextKey{}).(*Account)
	if !ok || acct == nil {
		return nil, false
	}
	return acct, true
}

// UsernameFromContext returns the authenticated username if present.
func UsernameFromContext(ctx context.Context) (string, bool) {
	acct, ok := AccountFromContext(ctx)
	if !ok {
		return "", false
	}
	return acct.Username, true
}
