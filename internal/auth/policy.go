// Package auth decides whether a terminal may open a session.
package auth

import "context"

// Policy verifies the identity a terminal presents in its handshake.
type Policy interface {
	Verify(ctx context.Context, identity, secret string) (bool, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, identity, secret string) (bool, error)

func (f PolicyFunc) Verify(ctx context.Context, identity, secret string) (bool, error) {
	return f(ctx, identity, secret)
}

// AllowAll accepts every identity.
type AllowAll struct{}

func (AllowAll) Verify(context.Context, string, string) (bool, error) { return true, nil }

// AllowList accepts only the listed identities.
type AllowList map[string]struct{}

func NewAllowList(ids ...string) AllowList {
	l := make(AllowList, len(ids))
	for _, id := range ids {
		l[id] = struct{}{}
	}
	return l
}

func (l AllowList) Verify(_ context.Context, identity, _ string) (bool, error) {
	_, ok := l[identity]
	return ok, nil
}
