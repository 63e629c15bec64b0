package domain

// OrderStatus is the main lifecycle axis of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// CanTransition reports whether moving to next is a legal status change.
// Completed and cancelled are terminal.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderProcessing || next == OrderCancelled
	case OrderProcessing:
		return next == OrderCompleted || next == OrderCancelled
	}
	return false
}

// PaymentStatus tracks the payment axis of an order, orthogonal to status.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// ShippingStatus tracks the shipping axis. Transitions are monotonic.
type ShippingStatus string

const (
	ShippingUnshipped ShippingStatus = "unshipped"
	ShippingInTransit ShippingStatus = "in_transit"
	ShippingDelivered ShippingStatus = "delivered"
	ShippingReturned  ShippingStatus = "returned"
)

func (s ShippingStatus) rank() int {
	switch s {
	case ShippingUnshipped:
		return 0
	case ShippingInTransit:
		return 1
	case ShippingDelivered:
		return 2
	case ShippingReturned:
		return 3
	}
	return -1
}

// CanAdvance rejects backward or repeated shipping transitions.
func (s ShippingStatus) CanAdvance(next ShippingStatus) bool {
	return s.rank() >= 0 && next.rank() > s.rank()
}

// Order is a purchase submitted by the intake boundary with prices already
// resolved. Total must equal subtotal + tax + shipping - discount.
type Order struct {
	ID             string         `db:"id" json:"id"`
	Number         string         `db:"number" json:"number"`
	CustomerID     string         `db:"customer_id" json:"customer_id"`
	OrgID          string         `db:"org_id" json:"org_id"`
	Subtotal       float64        `db:"subtotal" json:"subtotal"`
	Tax            float64        `db:"tax" json:"tax"`
	Shipping       float64        `db:"shipping" json:"shipping"`
	Discount       float64        `db:"discount" json:"discount"`
	Total          float64        `db:"total" json:"total"`
	Status         OrderStatus    `db:"status" json:"status"`
	PaymentStatus  PaymentStatus  `db:"payment_status" json:"payment_status"`
	ShippingStatus ShippingStatus `db:"shipping_status" json:"shipping_status"`
	WarehouseID    string         `db:"warehouse_id" json:"warehouse_id,omitempty"` // optional pinned warehouse
	CreatedAt      string         `db:"created_at" json:"created_at"`
	UpdatedAt      string         `db:"updated_at" json:"updated_at,omitempty"`

	Items []OrderItem `db:"-" json:"items"`
}

// TotalsConsistent checks the monetary invariant within a cent.
func (o *Order) TotalsConsistent() bool {
	want := o.Subtotal + o.Tax + o.Shipping - o.Discount
	diff := o.Total - want
	return diff < 0.005 && diff > -0.005
}

// OrderItem is one line of an order. WarehouseID is empty until a
// reservation resolves the line to a concrete warehouse.
type OrderItem struct {
	OrderID     string  `db:"order_id" json:"order_id"`
	ProductID   string  `db:"product_id" json:"product_id"`
	Qty         int     `db:"qty" json:"qty"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
	Discount    float64 `db:"discount" json:"discount"`
	LineTotal   float64 `db:"line_total" json:"line_total"`
	WarehouseID string  `db:"warehouse_id" json:"warehouse_id,omitempty"`
}

// Payment states for individual payment attempts. An order may carry many
// attempts; at most one is completed at a time for the current total.
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStateCompleted PaymentState = "completed"
	PaymentStateRefunded  PaymentState = "refunded"
	PaymentStateFailed    PaymentState = "failed"
)

type Payment struct {
	ID        string       `db:"id" json:"id"`
	OrderID   string       `db:"order_id" json:"order_id"`
	Amount    float64      `db:"amount" json:"amount"`
	Method    string       `db:"method" json:"method"`
	Status    PaymentState `db:"status" json:"status"`
	CreatedAt string       `db:"created_at" json:"created_at"`
}
