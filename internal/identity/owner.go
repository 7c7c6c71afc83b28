package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
)

// OwnerKey identifies a cart owner: a signed-in user or an anonymous guest
// token. Both kinds go through the same pipeline; guests simply carry an
// opaque token instead of a user id.
type OwnerKey struct {
	Kind enums.OwnerKind
	ID   string
}

// NewOwnerKey validates and builds an owner key.
func NewOwnerKey(kind enums.OwnerKind, id string) (OwnerKey, error) {
	if !kind.IsValid() {
		return OwnerKey{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid owner kind %q", kind))
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return OwnerKey{}, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	return OwnerKey{Kind: kind, ID: id}, nil
}

// String renders the key in kind:id form for logging and cache scopes.
func (k OwnerKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// IsZero reports whether the key carries no identity.
func (k OwnerKey) IsZero() bool {
	return k.Kind == "" && k.ID == ""
}

type contextKey struct{}

// WithOwner stores the owner key on the request context.
func WithOwner(ctx context.Context, key OwnerKey) context.Context {
	return context.WithValue(ctx, contextKey{}, key)
}

// OwnerFromContext pulls the owner key resolved by middleware.
func OwnerFromContext(ctx context.Context) (OwnerKey, bool) {
	key, ok := ctx.Value(contextKey{}).(OwnerKey)
	if !ok || key.IsZero() {
		return OwnerKey{}, false
	}
	return key, true
}
