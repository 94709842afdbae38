package auth

import (
	"context"
	"sort"
)

// Identity is the caller resolved for a single request. It is never
// persisted; events reference it through their created_by column.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
	Groups      []string
	Permissions map[string]struct{}
}

// HasPermission reports whether the identity may perform the action
// identified by key.
func (id Identity) HasPermission(key string) bool {
	_, ok := id.Permissions[key]
	return ok
}

// PermissionList returns the permission tokens in sorted order, for
// stable API responses.
func (id Identity) PermissionList() []string {
	out := make([]string, 0, len(id.Permissions))
	for p := range id.Permissions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type identityContextKey struct{}

// ContextWithIdentity attaches the resolved identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the identity placed by the middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}
