// Package authz holds the single rule deciding who may see and act on an order.
// Both the history endpoint and the realtime join path call Authorize.
package authz

import (
	"errors"

	"github.com/npezzotti/go-ordersupport/internal/types"
)

var ErrNotAuthorized = errors.New("not authorized")

// CanAccessOrder reports whether p may view or act on o.
func CanAccessOrder(p types.Principal, o types.Order) bool {
	if p.IsAdmin {
		return true
	}
	return o.UserId != nil && *o.UserId == p.Id
}

// Authorize returns ErrNotAuthorized when p may not access o.
func Authorize(p types.Principal, o types.Order) error {
	if !CanAccessOrder(p, o) {
		return ErrNotAuthorized
	}
	return nil
}
