package domain

// MovementKind classifies a single ledger entry.
type MovementKind string

const (
	MovementInbound     MovementKind = "inbound"
	MovementOutbound    MovementKind = "outbound"
	MovementTransferOut MovementKind = "transfer_out"
	MovementTransferIn  MovementKind = "transfer_in"
	MovementHold        MovementKind = "reservation_hold"
	MovementRelease     MovementKind = "reservation_release"
	MovementAdjustment  MovementKind = "adjustment"
)

// Reference kinds for the entity that caused a movement.
const (
	RefOrder         = "order"
	RefPurchaseOrder = "purchase_order"
	RefTransfer      = "transfer"
	RefManual        = "manual"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementInbound, MovementOutbound, MovementTransferOut,
		MovementTransferIn, MovementHold, MovementRelease, MovementAdjustment:
		return true
	}
	return false
}

// AffectsOnHand reports whether the movement's delta settles into on-hand
// stock. Reservation holds/releases only earmark stock; they never touch
// the on-hand count themselves.
func (k MovementKind) AffectsOnHand() bool {
	switch k {
	case MovementInbound, MovementOutbound, MovementTransferOut,
		MovementTransferIn, MovementAdjustment:
		return true
	}
	return false
}

func (k MovementKind) AffectsReserved() bool {
	return k == MovementHold || k == MovementRelease
}

// RequiresReference reports whether the kind must carry a causing entity.
// Only free-form adjustments may stand alone (the actor is still recorded).
func (k MovementKind) RequiresReference() bool {
	return k != MovementAdjustment
}

// MovementRecord is one immutable ledger entry. Corrections are new
// compensating records; there is no update or delete path.
type MovementRecord struct {
	Seq         int64        `db:"seq" json:"seq"`
	WarehouseID string       `db:"warehouse_id" json:"warehouse_id"`
	ProductID   string       `db:"product_id" json:"product_id"`
	Delta       int          `db:"delta" json:"delta"` // signed; positive grows the tracked quantity
	Kind        MovementKind `db:"kind" json:"kind"`
	RefKind     string       `db:"ref_kind" json:"ref_kind"`
	RefID       string       `db:"ref_id" json:"ref_id"`
	Actor       string       `db:"actor" json:"actor"`
	IdemKey     string       `db:"idem_key" json:"idem_key"`
	CreatedAt   string       `db:"created_at" json:"created_at"`
}

// StockLevel is the cached projection for one (warehouse, product) pair.
// It is disposable: a full ledger replay reproduces it exactly.
type StockLevel struct {
	WarehouseID string `db:"warehouse_id" json:"warehouse_id"`
	ProductID   string `db:"product_id" json:"product_id"`
	OnHand      int    `db:"on_hand" json:"on_hand"`
	Reserved    int    `db:"reserved" json:"reserved"`
	Available   int    `db:"available" json:"available"` // on_hand - reserved, computed in queries
	UpdatedAt   string `db:"updated_at" json:"updated_at"`
}

// ProductStock is the read-side aggregate across all warehouses.
// It is always computed, never stored.
type ProductStock struct {
	ProductID string `db:"product_id" json:"product_id"`
	OnHand    int    `db:"on_hand" json:"on_hand"`
	Reserved  int    `db:"reserved" json:"reserved"`
	Available int    `db:"available" json:"available"`
}
