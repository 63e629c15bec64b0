package services

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"stockledger/internal/domain"
	"stockledger/internal/repos"
)

// LedgerService owns the append path. Every append lands together with
// its projection update and audit entry in one transaction; rejected
// records are never stored.
type LedgerService struct {
	db      *sqlx.DB
	Ledger  *repos.LedgerRepo
	Stock   *repos.StockRepo
	Catalog *repos.CatalogRepo
	Audit   *AuditService
	log     *zap.Logger
}

func NewLedgerService(db *sqlx.DB, ledger *repos.LedgerRepo, stock *repos.StockRepo, catalog *repos.CatalogRepo, audit *AuditService, log *zap.Logger) *LedgerService {
	return &LedgerService{db: db, Ledger: ledger, Stock: stock, Catalog: catalog, Audit: audit, log: log}
}

// Validate rejects malformed records before anything is written. Runs
// outside the transaction: only plain reads.
func (s *LedgerService) Validate(m *domain.MovementRecord) error {
	if m.Delta == 0 {
		return fmt.Errorf("%w: zero quantity delta", domain.ErrInvalidMovement)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidMovement, m.Kind)
	}
	if m.Kind.RequiresReference() && (m.RefKind == "" || m.RefID == "") {
		return fmt.Errorf("%w: kind %q requires a reference", domain.ErrInvalidMovement, m.Kind)
	}
	ok, err := s.Catalog.WarehouseExists(m.WarehouseID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown warehouse %q", domain.ErrInvalidMovement, m.WarehouseID)
	}
	ok, err = s.Catalog.ProductExists(m.ProductID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown product %q", domain.ErrInvalidMovement, m.ProductID)
	}
	return nil
}

// AppendTx appends a validated record inside the caller's transaction.
// A duplicate idempotency key is a no-op returning the existing seq: the
// projection and audit trail were already written the first time.
func (s *LedgerService) AppendTx(tx *sqlx.Tx, m *domain.MovementRecord) (int64, bool, error) {
	seq, inserted, err := s.Ledger.InsertTx(tx, m)
	if err != nil {
		return 0, false, err
	}
	if !inserted {
		return seq, false, nil
	}
	m.Seq = seq
	if err := s.Stock.ApplyTx(tx, m); err != nil {
		return 0, false, err
	}
	if err := s.Audit.RecordTx(tx, m.Actor, domain.EntityMovement,
		strconv.FormatInt(seq, 10), "append", nil, m, m.IdemKey); err != nil {
		return 0, false, err
	}
	return seq, true, nil
}

// Append validates and appends a single movement, retrying transient
// storage failures under the record's idempotency key.
func (s *LedgerService) Append(m *domain.MovementRecord) (int64, error) {
	if err := s.Validate(m); err != nil {
		return 0, err
	}
	if m.IdemKey == "" {
		m.IdemKey = uuid.NewString()
	}
	var seq int64
	err := retryTx(s.db, func(tx *sqlx.Tx) error {
		sq, _, err := s.AppendTx(tx, m)
		seq = sq
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("movement appended",
		zap.Int64("seq", seq),
		zap.String("warehouse", m.WarehouseID),
		zap.String("product", m.ProductID),
		zap.String("kind", string(m.Kind)),
		zap.Int("delta", m.Delta))
	return seq, nil
}

// Transfer moves stock between warehouses as a linked pair of movements
// sharing one transfer reference, committed atomically.
func (s *LedgerService) Transfer(fromWH, toWH, productID string, qty int, actor string) (string, error) {
	if qty <= 0 {
		return "", fmt.Errorf("%w: transfer quantity must be positive", domain.ErrInvalidMovement)
	}
	if fromWH == toWH {
		return "", fmt.Errorf("%w: transfer within one warehouse", domain.ErrInvalidMovement)
	}
	transferID := "tr-" + uuid.NewString()
	out := &domain.MovementRecord{
		WarehouseID: fromWH, ProductID: productID, Delta: -qty,
		Kind: domain.MovementTransferOut, RefKind: domain.RefTransfer, RefID: transferID,
		Actor: actor, IdemKey: "transfer:" + transferID + ":out",
	}
	in := &domain.MovementRecord{
		WarehouseID: toWH, ProductID: productID, Delta: qty,
		Kind: domain.MovementTransferIn, RefKind: domain.RefTransfer, RefID: transferID,
		Actor: actor, IdemKey: "transfer:" + transferID + ":in",
	}
	if err := s.Validate(out); err != nil {
		return "", err
	}
	if err := s.Validate(in); err != nil {
		return "", err
	}
	err := retryTx(s.db, func(tx *sqlx.Tx) error {
		if _, _, err := s.AppendTx(tx, out); err != nil {
			return err
		}
		_, _, err := s.AppendTx(tx, in)
		return err
	})
	if err != nil {
		return "", err
	}
	s.log.Info("stock transferred",
		zap.String("transfer", transferID),
		zap.String("from", fromWH), zap.String("to", toWH),
		zap.String("product", productID), zap.Int("qty", qty))
	return transferID, nil
}

// ListFor exposes the ledger in append order for replay and audit.
func (s *LedgerService) ListFor(warehouseID, productID string, sinceSeq int64, limit int) ([]domain.MovementRecord, error) {
	return s.Ledger.ListFor(warehouseID, productID, sinceSeq, limit)
}

func (s *LedgerService) ListRecent(warehouseID, productID string, limit int) ([]domain.MovementRecord, error) {
	return s.Ledger.ListRecent(warehouseID, productID, limit)
}

// ListByRef returns every movement a single entity caused, in append
// order.
func (s *LedgerService) ListByRef(refKind, refID string) ([]domain.MovementRecord, error) {
	return s.Ledger.ListByRef(refKind, refID)
}
