package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shoplight/shoplight-backend/api/responses"
	"github.com/shoplight/shoplight-backend/internal/identity"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/logger"
)

const (
	userIDHeader     = "X-User-Id"
	guestTokenHeader = "X-Guest-Token"
)

// ResolveOwner attaches the cart owner to the request context. A user id
// header wins over a guest token; a request carrying neither is issued a
// fresh guest token via the response header, so anonymous shoppers can start
// a cart on their very first call.
func ResolveOwner(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var owner identity.OwnerKey
			if userID := r.Header.Get(userIDHeader); userID != "" {
				key, err := identity.NewOwnerKey(enums.OwnerKindUser, userID)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
					return
				}
				owner = key
			} else if token := r.Header.Get(guestTokenHeader); token != "" {
				key, err := identity.NewOwnerKey(enums.OwnerKindGuest, token)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid guest token"))
					return
				}
				owner = key
			} else {
				token := uuid.NewString()
				w.Header().Set(guestTokenHeader, token)
				owner = identity.OwnerKey{Kind: enums.OwnerKindGuest, ID: token}
			}

			ctx = identity.WithOwner(ctx, owner)
			if logg != nil {
				ctx = logg.WithOwner(ctx, string(owner.Kind), owner.ID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
