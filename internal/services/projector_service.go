package services

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"stockledger/internal/domain"
	"stockledger/internal/repos"
)

// ProjectorService answers stock queries from the cached projection and
// can rebuild any pair from a full ledger replay. The cache is
// disposable; the ledger is the only authority.
type ProjectorService struct {
	db     *sqlx.DB
	Ledger *repos.LedgerRepo
	Stock  *repos.StockRepo
	log    *zap.Logger
}

func NewProjectorService(db *sqlx.DB, ledger *repos.LedgerRepo, stock *repos.StockRepo, log *zap.Logger) *ProjectorService {
	return &ProjectorService{db: db, Ledger: ledger, Stock: stock, log: log}
}

func (s *ProjectorService) CurrentStock(warehouseID, productID string) (domain.StockLevel, error) {
	return s.Stock.Get(warehouseID, productID)
}

// ProductStock sums the projection across all warehouses.
func (s *ProjectorService) ProductStock(productID string) (domain.ProductStock, error) {
	return s.Stock.AggregateForProduct(productID)
}

func (s *ProjectorService) LowStock(threshold int) ([]repos.StockRow, error) {
	return s.Stock.ListLow(threshold)
}

func (s *ProjectorService) AllStock() ([]repos.StockRow, error) {
	return s.Stock.ListAll()
}

// Replay recomputes a pair's level purely from the ledger. The replay is
// bounded by the max sequence id at start, so it reads a consistent
// snapshot even while appends continue.
func (s *ProjectorService) Replay(warehouseID, productID string) (domain.StockLevel, error) {
	bound, err := s.Ledger.MaxSeq()
	if err != nil {
		return domain.StockLevel{}, err
	}
	lvl := domain.StockLevel{WarehouseID: warehouseID, ProductID: productID}
	const page = 200
	var since int64
	for {
		batch, err := s.Ledger.ListFor(warehouseID, productID, since, page)
		if err != nil {
			return domain.StockLevel{}, err
		}
		done := len(batch) < page
		for _, m := range batch {
			if m.Seq > bound {
				done = true
				break
			}
			if m.Kind.AffectsOnHand() {
				lvl.OnHand += m.Delta
			}
			if m.Kind.AffectsReserved() {
				lvl.Reserved += m.Delta
			}
			since = m.Seq
		}
		if done {
			break
		}
	}
	lvl.Available = lvl.OnHand - lvl.Reserved
	return lvl, nil
}

// Rebuild replaces the cached row with a fresh replay. Used on recovery
// and whenever drift is detected.
func (s *ProjectorService) Rebuild(warehouseID, productID string) (domain.StockLevel, error) {
	lvl, err := s.Replay(warehouseID, productID)
	if err != nil {
		return domain.StockLevel{}, err
	}
	err = retryTx(s.db, func(tx *sqlx.Tx) error {
		return s.Stock.ReplaceTx(tx, lvl)
	})
	if err != nil {
		return domain.StockLevel{}, err
	}
	s.log.Warn("projection rebuilt",
		zap.String("warehouse", warehouseID),
		zap.String("product", productID),
		zap.Int("on_hand", lvl.OnHand),
		zap.Int("reserved", lvl.Reserved))
	return lvl, nil
}

// Verify compares the incremental cache against a full replay. A mismatch
// is reported as drift and forces a rebuild; the cached value is never
// patched by guessing.
func (s *ProjectorService) Verify(warehouseID, productID string) error {
	cached, err := s.Stock.Get(warehouseID, productID)
	if err != nil {
		return err
	}
	replayed, err := s.Replay(warehouseID, productID)
	if err != nil {
		return err
	}
	if cached.OnHand == replayed.OnHand && cached.Reserved == replayed.Reserved {
		return nil
	}
	drift := &domain.DriftError{
		WarehouseID: warehouseID,
		ProductID:   productID,
		Cached:      cached,
		Replayed:    replayed,
	}
	s.log.Error("projection drift detected", zap.Error(drift))
	if _, rerr := s.Rebuild(warehouseID, productID); rerr != nil {
		s.log.Error("drift rebuild failed", zap.Error(rerr))
	}
	return drift
}

// VerifyAll checks every cached pair and returns the drifts found.
func (s *ProjectorService) VerifyAll() ([]error, error) {
	pairs, err := s.Stock.Pairs()
	if err != nil {
		return nil, err
	}
	var drifts []error
	for _, p := range pairs {
		if verr := s.Verify(p.WarehouseID, p.ProductID); verr != nil {
			drifts = append(drifts, verr)
		}
	}
	return drifts, nil
}
