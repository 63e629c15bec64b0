package domain

// Product carries catalog display data. It is never a stock authority:
// any quantity shown for a product is a projection over warehouse stock.
type Product struct {
	ID        string  `db:"id"`
	SKU       string  `db:"sku"`
	OrgID     string  `db:"org_id"`
	Title     string  `db:"title"`
	Price     float64 `db:"price"`
	Rating    float64 `db:"rating"`
	Active    bool    `db:"active"`
	CreatedAt string  `db:"created_at"`
	UpdatedAt string  `db:"updated_at"`
}

// Warehouse is a physical stock location. Stock always lives against a
// (warehouse, product) pair; there is no location-less stock.
type Warehouse struct {
	ID        string `db:"id"`
	OrgID     string `db:"org_id"`
	Name      string `db:"name"`
	Active    bool   `db:"active"`
	CreatedAt string `db:"created_at"`
}

// AuditEntry is a write-once record of one mutation, captured in the same
// transaction as the mutation itself.
type AuditEntry struct {
	Seq           int64  `db:"seq" json:"seq"`
	Actor         string `db:"actor" json:"actor"`
	EntityType    string `db:"entity_type" json:"entity_type"`
	EntityID      string `db:"entity_id" json:"entity_id"`
	Op            string `db:"op" json:"op"`
	Before        string `db:"before" json:"before"` // JSON snapshot, "" when the entity is new
	After         string `db:"after" json:"after"`
	CorrelationID string `db:"correlation_id" json:"correlation_id"`
	CreatedAt     string `db:"created_at" json:"created_at"`
}

// Audited entity types.
const (
	EntityMovement = "movement"
	EntityOrder    = "order"
	EntityPayment  = "payment"
)
