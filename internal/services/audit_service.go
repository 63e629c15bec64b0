package services

import (
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"stockledger/internal/domain"
	"stockledger/internal/repos"
)

// AuditService records before/after snapshots of every mutation. RecordTx
// is always called inside the mutation's own transaction: if the audit
// write fails the whole mutation rolls back with it.
type AuditService struct {
	Aud *repos.AuditRepo
}

func NewAuditService(aud *repos.AuditRepo) *AuditService {
	return &AuditService{Aud: aud}
}

// RecordTx snapshots before and after as JSON. Pass nil for before when
// the entity is new.
func (s *AuditService) RecordTx(tx *sqlx.Tx, actor, entityType, entityID, op string, before, after any, correlationID string) error {
	return s.Aud.InsertTx(tx, &domain.AuditEntry{
		Actor:         actor,
		EntityType:    entityType,
		EntityID:      entityID,
		Op:            op,
		Before:        snapshot(before),
		After:         snapshot(after),
		CorrelationID: correlationID,
	})
}

// EntriesFor is the read surface for compliance queries. Restartable:
// pass the last seq seen to resume.
func (s *AuditService) EntriesFor(entityType, entityID string, sinceSeq int64, limit int) ([]domain.AuditEntry, error) {
	return s.Aud.EntriesFor(entityType, entityID, sinceSeq, limit)
}

func snapshot(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
