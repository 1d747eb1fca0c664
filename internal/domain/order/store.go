package order

import (
	"context"
	"errors"
)

// ErrVersionConflict signals a concurrent modification to the same order.
// Callers should re-read and re-evaluate their intent rather than blindly
// replaying the same target status.
var ErrVersionConflict = errors.New("order was modified concurrently")

// Store persists orders. Save must reject writes whose Version does not
// match the stored row and return ErrVersionConflict, so that two racing
// transitions on the same order are linearized.
type Store interface {
	Get(ctx context.Context, id string) (*Order, error)
	Create(ctx context.Context, o *Order) error
	Save(ctx context.Context, o *Order) error
	ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error)
	ListByFarmer(ctx context.Context, farmerID string) ([]*Order, error)
	ListAll(ctx context.Context) ([]*Order, error)
}
