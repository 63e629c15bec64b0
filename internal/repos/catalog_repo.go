package repos

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"stockledger/internal/domain"
)

// CatalogRepo reads products and warehouses. Catalog management itself
// lives outside this service; the engine only needs existence checks and
// display rows.
type CatalogRepo struct{ db *sqlx.DB }

func NewCatalogRepo(db *sqlx.DB) *CatalogRepo { return &CatalogRepo{db: db} }

func (r *CatalogRepo) ProductExists(id string) (bool, error) {
	var n int
	err := r.db.Get(&n, `SELECT COUNT(*) FROM products WHERE id = ? AND active = 1`, id)
	return n > 0, err
}

func (r *CatalogRepo) WarehouseExists(id string) (bool, error) {
	var n int
	err := r.db.Get(&n, `SELECT COUNT(*) FROM warehouses WHERE id = ? AND active = 1`, id)
	return n > 0, err
}

func (r *CatalogRepo) GetProduct(id string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.Get(&p, `
		SELECT id, sku, org_id, title, price, rating, active,
		       COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at
		FROM products WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *CatalogRepo) ListWarehouses() ([]domain.Warehouse, error) {
	var out []domain.Warehouse
	err := r.db.Select(&out, `
		SELECT id, org_id, name, active, COALESCE(created_at,'') AS created_at
		FROM warehouses
		WHERE active = 1
		ORDER BY name
	`)
	return out, err
}
