package repos

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stockledger/internal/domain"
)

// StockRepo maintains the projection cache. All writes happen inside the
// same transaction as the ledger append they derive from.
type StockRepo struct{ db *sqlx.DB }

func NewStockRepo(db *sqlx.DB) *StockRepo { return &StockRepo{db: db} }

// Get returns the cached projection for a pair. A missing row reads as
// zero stock, not an error.
func (r *StockRepo) Get(warehouseID, productID string) (domain.StockLevel, error) {
	var lvl domain.StockLevel
	err := r.db.Get(&lvl, `
		SELECT warehouse_id, product_id, on_hand, reserved,
		       on_hand - reserved AS available, COALESCE(updated_at,'') AS updated_at
		FROM stock_levels
		WHERE warehouse_id = ? AND product_id = ?
	`, warehouseID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockLevel{WarehouseID: warehouseID, ProductID: productID}, nil
	}
	return lvl, err
}

// ApplyTx applies one movement to the cached projection. Guards are
// enforced in the UPDATE itself so a concurrent writer can never drive
// available below zero.
func (r *StockRepo) ApplyTx(tx *sqlx.Tx, m *domain.MovementRecord) error {
	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO stock_levels(warehouse_id, product_id, on_hand, reserved, updated_at)
		VALUES (?, ?, 0, 0, CURRENT_TIMESTAMP)
	`, m.WarehouseID, m.ProductID); err != nil {
		return err
	}

	switch {
	case m.Kind == domain.MovementHold:
		qty := m.Delta
		res, err := tx.Exec(`
			UPDATE stock_levels
			SET reserved = reserved + ?, updated_at = CURRENT_TIMESTAMP
			WHERE warehouse_id = ? AND product_id = ? AND on_hand - reserved >= ?
		`, qty, m.WarehouseID, m.ProductID, qty)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			lvl, gerr := r.getTx(tx, m.WarehouseID, m.ProductID)
			if gerr != nil {
				return gerr
			}
			return &domain.InsufficientStockError{
				ProductID:   m.ProductID,
				WarehouseID: m.WarehouseID,
				Requested:   qty,
				Available:   lvl.OnHand - lvl.Reserved,
			}
		}
		return nil

	case m.Kind == domain.MovementRelease:
		qty := -m.Delta
		res, err := tx.Exec(`
			UPDATE stock_levels
			SET reserved = reserved - ?, updated_at = CURRENT_TIMESTAMP
			WHERE warehouse_id = ? AND product_id = ? AND reserved >= ?
		`, qty, m.WarehouseID, m.ProductID, qty)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: release of %d exceeds reserved stock for (%s, %s)",
				domain.ErrInvalidMovement, qty, m.WarehouseID, m.ProductID)
		}
		return nil

	case m.Kind.AffectsOnHand():
		// Negative deltas may not eat into reserved stock or go below zero.
		res, err := tx.Exec(`
			UPDATE stock_levels
			SET on_hand = on_hand + ?, updated_at = CURRENT_TIMESTAMP
			WHERE warehouse_id = ? AND product_id = ? AND on_hand + ? >= reserved
		`, m.Delta, m.WarehouseID, m.ProductID, m.Delta)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			lvl, gerr := r.getTx(tx, m.WarehouseID, m.ProductID)
			if gerr != nil {
				return gerr
			}
			return &domain.InsufficientStockError{
				ProductID:   m.ProductID,
				WarehouseID: m.WarehouseID,
				Requested:   -m.Delta,
				Available:   lvl.OnHand - lvl.Reserved,
			}
		}
		return nil
	}

	return fmt.Errorf("%w: kind %q has no projection rule", domain.ErrInvalidMovement, m.Kind)
}

// ReplaceTx overwrites a cached projection row. Only rebuilds use it.
func (r *StockRepo) ReplaceTx(tx *sqlx.Tx, lvl domain.StockLevel) error {
	_, err := tx.Exec(`
		INSERT INTO stock_levels(warehouse_id, product_id, on_hand, reserved, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(warehouse_id, product_id) DO UPDATE SET
		  on_hand = excluded.on_hand,
		  reserved = excluded.reserved,
		  updated_at = excluded.updated_at
	`, lvl.WarehouseID, lvl.ProductID, lvl.OnHand, lvl.Reserved)
	return err
}

func (r *StockRepo) getTx(tx *sqlx.Tx, warehouseID, productID string) (domain.StockLevel, error) {
	var lvl domain.StockLevel
	err := tx.Get(&lvl, `
		SELECT warehouse_id, product_id, on_hand, reserved,
		       on_hand - reserved AS available, COALESCE(updated_at,'') AS updated_at
		FROM stock_levels
		WHERE warehouse_id = ? AND product_id = ?
	`, warehouseID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockLevel{WarehouseID: warehouseID, ProductID: productID}, nil
	}
	return lvl, err
}

// StockRow is the per-pair view used by the admin dashboard.
type StockRow struct {
	WarehouseID string `db:"warehouse_id" json:"warehouse_id"`
	Warehouse   string `db:"warehouse" json:"warehouse"`
	ProductID   string `db:"product_id" json:"product_id"`
	Title       string `db:"title" json:"title"`
	SKU         string `db:"sku" json:"sku"`
	OnHand      int    `db:"on_hand" json:"on_hand"`
	Reserved    int    `db:"reserved" json:"reserved"`
	Available   int    `db:"available" json:"available"`
}

func (r *StockRepo) ListAll() ([]StockRow, error) {
	var rows []StockRow
	err := r.db.Select(&rows, `
		SELECT s.warehouse_id, w.name AS warehouse, s.product_id, p.title, p.sku,
		       s.on_hand, s.reserved, s.on_hand - s.reserved AS available
		FROM stock_levels s
		JOIN warehouses w ON w.id = s.warehouse_id
		JOIN products p ON p.id = s.product_id
		ORDER BY p.title, w.name
	`)
	return rows, err
}

// ListLow returns pairs whose available stock is at or below threshold.
func (r *StockRepo) ListLow(threshold int) ([]StockRow, error) {
	var rows []StockRow
	err := r.db.Select(&rows, `
		SELECT s.warehouse_id, w.name AS warehouse, s.product_id, p.title, p.sku,
		       s.on_hand, s.reserved, s.on_hand - s.reserved AS available
		FROM stock_levels s
		JOIN warehouses w ON w.id = s.warehouse_id
		JOIN products p ON p.id = s.product_id
		WHERE s.on_hand - s.reserved <= ?
		ORDER BY available, p.title
	`, threshold)
	return rows, err
}

// AggregateForProduct sums the projection across all warehouses. The
// product-level figure is only ever computed this way.
func (r *StockRepo) AggregateForProduct(productID string) (domain.ProductStock, error) {
	var agg domain.ProductStock
	err := r.db.Get(&agg, `
		SELECT ? AS product_id,
		       COALESCE(SUM(on_hand), 0) AS on_hand,
		       COALESCE(SUM(reserved), 0) AS reserved,
		       COALESCE(SUM(on_hand - reserved), 0) AS available
		FROM stock_levels
		WHERE product_id = ?
	`, productID, productID)
	return agg, err
}

// Pairs lists every (warehouse, product) pair present in the cache.
func (r *StockRepo) Pairs() ([]domain.StockLevel, error) {
	var rows []domain.StockLevel
	err := r.db.Select(&rows, `
		SELECT warehouse_id, product_id, on_hand, reserved,
		       on_hand - reserved AS available, COALESCE(updated_at,'') AS updated_at
		FROM stock_levels
		ORDER BY warehouse_id, product_id
	`)
	return rows, err
}
