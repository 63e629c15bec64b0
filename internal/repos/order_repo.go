package repos

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"stockledger/internal/domain"
)

type OrderRepo struct{ db *sqlx.DB }

func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{db: db} }

// InsertTx writes an order header and its items in one go.
func (r *OrderRepo) InsertTx(tx *sqlx.Tx, o *domain.Order) error {
	_, err := tx.Exec(`
		INSERT INTO orders(id, number, customer_id, org_id, subtotal, tax, shipping, discount, total,
		                   status, payment_status, shipping_status, warehouse_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.Number, o.CustomerID, o.OrgID, o.Subtotal, o.Tax, o.Shipping, o.Discount, o.Total,
		o.Status, o.PaymentStatus, o.ShippingStatus, o.WarehouseID)
	if err != nil {
		return err
	}
	for i := range o.Items {
		it := &o.Items[i]
		if _, err := tx.Exec(`
			INSERT INTO order_items(order_id, product_id, qty, unit_price, discount, line_total, warehouse_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, o.ID, it.ProductID, it.Qty, it.UnitPrice, it.Discount, it.LineTotal, it.WarehouseID); err != nil {
			return err
		}
	}
	return nil
}

func (r *OrderRepo) Get(id string) (*domain.Order, error) {
	var o domain.Order
	err := r.db.Get(&o, `
		SELECT id, number, customer_id, org_id, subtotal, tax, shipping, discount, total,
		       status, payment_status, shipping_status, warehouse_id,
		       COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at
		FROM orders WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.db.Select(&o.Items, `
		SELECT order_id, product_id, qty, unit_price, discount, line_total, warehouse_id
		FROM order_items WHERE order_id = ?
		ORDER BY product_id
	`, id); err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateStateTx persists the three lifecycle axes at once.
func (r *OrderRepo) UpdateStateTx(tx *sqlx.Tx, id string, st domain.OrderStatus, pay domain.PaymentStatus, ship domain.ShippingStatus) error {
	_, err := tx.Exec(`
		UPDATE orders
		SET status = ?, payment_status = ?, shipping_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, st, pay, ship, id)
	return err
}

// SetItemWarehouseTx pins a line item to the warehouse its reservation
// landed on.
// MarkPaidTx flips a pending, unpaid order to processing/paid. The
// condition is the whole point: when two payments race for the same
// order, exactly one update matches and the loser gets a clean
// transition error instead of a second completed payment.
func (r *OrderRepo) MarkPaidTx(tx *sqlx.Tx, id string) error {
	res, err := tx.Exec(`
		UPDATE orders
		SET status = ?, payment_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ? AND payment_status = ?
	`, domain.OrderProcessing, domain.PaymentPaid, id, domain.OrderPending, domain.PaymentUnpaid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.InvalidTransitionError{Entity: "payment", From: string(domain.PaymentPaid), To: "completed"}
	}
	return nil
}

func (r *OrderRepo) SetItemWarehouseTx(tx *sqlx.Tx, orderID, productID, warehouseID string) error {
	_, err := tx.Exec(`
		UPDATE order_items SET warehouse_id = ?
		WHERE order_id = ? AND product_id = ?
	`, warehouseID, orderID, productID)
	return err
}

type OrderSummary struct {
	ID            string  `db:"id" json:"id"`
	Number        string  `db:"number" json:"number"`
	CustomerID    string  `db:"customer_id" json:"customer_id"`
	Total         float64 `db:"total" json:"total"`
	Status        string  `db:"status" json:"status"`
	PaymentStatus string  `db:"payment_status" json:"payment_status"`
	CreatedAt     string  `db:"created_at" json:"created_at"`
}

func (r *OrderRepo) ListLatest(limit int) ([]OrderSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []OrderSummary
	err := r.db.Select(&out, `
		SELECT id, number, customer_id, total, status, payment_status,
		       COALESCE(created_at,'') AS created_at
		FROM orders
		ORDER BY datetime(created_at) DESC
		LIMIT ?
	`, limit)
	return out, err
}

// ---------- payments ----------

// InsertPaymentTx records a payment attempt. Gateway retries may race on
// the same payment id; the upsert lets them converge on one row.
func (r *OrderRepo) InsertPaymentTx(tx *sqlx.Tx, p *domain.Payment) error {
	_, err := tx.Exec(`
		INSERT INTO payments(id, order_id, amount, method, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status
	`, p.ID, p.OrderID, p.Amount, p.Method, p.Status)
	return err
}

func (r *OrderRepo) GetPayment(id string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.Get(&p, `
		SELECT id, order_id, amount, method, status, COALESCE(created_at,'') AS created_at
		FROM payments WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *OrderRepo) PaymentsFor(orderID string) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.db.Select(&out, `
		SELECT id, order_id, amount, method, status, COALESCE(created_at,'') AS created_at
		FROM payments WHERE order_id = ?
		ORDER BY datetime(created_at)
	`, orderID)
	return out, err
}

func (r *OrderRepo) UpdatePaymentStatusTx(tx *sqlx.Tx, id string, st domain.PaymentState) error {
	_, err := tx.Exec(`UPDATE payments SET status = ? WHERE id = ?`, st, id)
	return err
}
