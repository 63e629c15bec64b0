package repos

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"stockledger/internal/domain"
)

// LedgerRepo persists movement records. Append is the only write path;
// there are deliberately no update or delete methods.
type LedgerRepo struct{ db *sqlx.DB }

func NewLedgerRepo(db *sqlx.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// InsertTx appends a movement inside tx. If a record with the same
// idempotency key already exists the insert is a no-op and the existing
// sequence id is returned with inserted=false.
func (r *LedgerRepo) InsertTx(tx *sqlx.Tx, m *domain.MovementRecord) (seq int64, inserted bool, err error) {
	res, err := tx.Exec(`
		INSERT INTO movements(warehouse_id, product_id, delta, kind, ref_kind, ref_id, actor, idem_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idem_key) DO NOTHING
	`, m.WarehouseID, m.ProductID, m.Delta, m.Kind, m.RefKind, m.RefID, m.Actor, m.IdemKey)
	if err != nil {
		return 0, false, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if err := tx.Get(&seq, `SELECT seq FROM movements WHERE idem_key = ?`, m.IdemKey); err != nil {
			return 0, false, err
		}
		return seq, false, nil
	}
	seq, err = res.LastInsertId()
	return seq, true, err
}

// ListFor returns movements for a pair in append order, starting after
// sinceSeq. Callers page through with the last seq they saw, which makes
// the sequence restartable.
func (r *LedgerRepo) ListFor(warehouseID, productID string, sinceSeq int64, limit int) ([]domain.MovementRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	var out []domain.MovementRecord
	err := r.db.Select(&out, `
		SELECT seq, warehouse_id, product_id, delta, kind, ref_kind, ref_id, actor, idem_key, created_at
		FROM movements
		WHERE warehouse_id = ? AND product_id = ? AND seq > ?
		ORDER BY seq
		LIMIT ?
	`, warehouseID, productID, sinceSeq, limit)
	return out, err
}

// ListRecent returns the newest movements, optionally filtered by pair.
func (r *LedgerRepo) ListRecent(warehouseID, productID string, limit int) ([]domain.MovementRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT seq, warehouse_id, product_id, delta, kind, ref_kind, ref_id, actor, idem_key, created_at FROM movements`
	var conds []string
	var args []any
	if warehouseID != "" {
		conds = append(conds, "warehouse_id = ?")
		args = append(args, warehouseID)
	}
	if productID != "" {
		conds = append(conds, "product_id = ?")
		args = append(args, productID)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	var out []domain.MovementRecord
	err := r.db.Select(&out, q, args...)
	return out, err
}

// ListByRef returns all movements caused by one entity (e.g. an order),
// in append order.
func (r *LedgerRepo) ListByRef(refKind, refID string) ([]domain.MovementRecord, error) {
	var out []domain.MovementRecord
	err := r.db.Select(&out, `
		SELECT seq, warehouse_id, product_id, delta, kind, ref_kind, ref_id, actor, idem_key, created_at
		FROM movements
		WHERE ref_kind = ? AND ref_id = ?
		ORDER BY seq
	`, refKind, refID)
	return out, err
}

// MaxSeq returns the highest sequence id, 0 for an empty ledger. Rebuilds
// use it to bound a replay against concurrent appends.
func (r *LedgerRepo) MaxSeq() (int64, error) {
	var seq sql.NullInt64
	if err := r.db.Get(&seq, `SELECT MAX(seq) FROM movements`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return seq.Int64, nil
}
