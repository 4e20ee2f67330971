// Package identity carries the authenticated caller on a context.Context so that
// ledgers and the upstream client can scope data per user without a gin dependency.
package identity

import (
	"context"
	"errors"
)

type ctxKey struct{}

var ErrMissing = errors.New("no authenticated principal in context")

// Principal is the caller on whose behalf upstream requests are made.
type Principal struct {
	IdentityID int64
	Token      string
	Roles      []string
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Require returns the principal or ErrMissing.
func Require(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok || p.IdentityID == 0 {
		return Principal{}, ErrMissing
	}
	return p, nil
}
