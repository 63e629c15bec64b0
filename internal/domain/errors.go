package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidMovement marks a malformed ledger append. The record is
// rejected and never stored.
var ErrInvalidMovement = errors.New("invalid movement")

// ErrStorage marks a transient persistence failure. Callers retry a
// bounded number of times under the append's idempotency key before
// surfacing it.
var ErrStorage = errors.New("storage failure")

// ErrNotFound is returned for lookups of unknown entities.
var ErrNotFound = errors.New("not found")

// InsufficientStockError is terminal for a reserve call: the order stays
// pending and no partial holds survive.
type InsufficientStockError struct {
	ProductID   string
	WarehouseID string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError is a state-machine guard violation. No mutation
// is applied when it is returned.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

// DriftError reports divergence between the cached projection and a full
// ledger replay. It is logged and forces a rebuild; it is never repaired
// by guessing.
type DriftError struct {
	WarehouseID string
	ProductID   string
	Cached      StockLevel
	Replayed    StockLevel
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("projection drift for (%s, %s): cached on_hand=%d reserved=%d, replayed on_hand=%d reserved=%d",
		e.WarehouseID, e.ProductID,
		e.Cached.OnHand, e.Cached.Reserved,
		e.Replayed.OnHand, e.Replayed.Reserved)
}
