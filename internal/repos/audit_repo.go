package repos

import (
	"github.com/jmoiron/sqlx"

	"stockledger/internal/domain"
)

// AuditRepo writes the compliance trail. Inserts only ever happen inside
// the transaction of the mutation they describe; a failed audit write
// rolls the mutation back with it.
type AuditRepo struct{ db *sqlx.DB }

func NewAuditRepo(db *sqlx.DB) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) InsertTx(tx *sqlx.Tx, e *domain.AuditEntry) error {
	_, err := tx.Exec(`
		INSERT INTO audit_log(actor, entity_type, entity_id, op, before, after, correlation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Actor, e.EntityType, e.EntityID, e.Op, e.Before, e.After, e.CorrelationID)
	return err
}

// EntriesFor pages through the trail for one entity in write order.
// Restart with the last seq seen.
func (r *AuditRepo) EntriesFor(entityType, entityID string, sinceSeq int64, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []domain.AuditEntry
	err := r.db.Select(&out, `
		SELECT seq, actor, entity_type, entity_id, op, before, after, correlation_id,
		       COALESCE(created_at,'') AS created_at
		FROM audit_log
		WHERE entity_type = ? AND entity_id = ? AND seq > ?
		ORDER BY seq
		LIMIT ?
	`, entityType, entityID, sinceSeq, limit)
	return out, err
}
