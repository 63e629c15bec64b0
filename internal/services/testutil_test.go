package services_test

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"stockledger/internal/domain"
	"stockledger/internal/repos"
	"stockledger/internal/services"
)

type testEnv struct {
	db          *sqlx.DB
	ledger      *services.LedgerService
	projector   *services.ProjectorService
	fulfillment *services.FulfillmentService
	audit       *services.AuditService
	orders      *repos.OrderRepo
	ledgerRepo  *repos.LedgerRepo
	stockRepo   *repos.StockRepo
}

// newEnv opens a file-backed test database (goroutines share it safely,
// unlike :memory: with a connection pool) and wires the full service
// stack over it.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := repos.EnsureSchema(db); err != nil {
		t.Fatal(err)
	}

	fixtures := `
	INSERT INTO warehouses(id, org_id, name) VALUES
	  ('wh-1','org-t','Warehouse One'),
	  ('wh-2','org-t','Warehouse Two');
	INSERT INTO products(id, sku, org_id, title, price) VALUES
	  ('prd-a','SKU-A','org-t','Widget A',10.00),
	  ('prd-b','SKU-B','org-t','Widget B',25.00);
	`
	if _, err := db.Exec(fixtures); err != nil {
		t.Fatal(err)
	}

	ledgerRepo := repos.NewLedgerRepo(db)
	stockRepo := repos.NewStockRepo(db)
	orderRepo := repos.NewOrderRepo(db)
	auditRepo := repos.NewAuditRepo(db)
	catalogRepo := repos.NewCatalogRepo(db)

	logger := zap.NewNop()
	auditSvc := services.NewAuditService(auditRepo)
	ledgerSvc := services.NewLedgerService(db, ledgerRepo, stockRepo, catalogRepo, auditSvc, logger)
	projector := services.NewProjectorService(db, ledgerRepo, stockRepo, logger)
	fulfillment := services.NewFulfillmentService(db, orderRepo, catalogRepo, ledgerSvc, auditSvc, logger)

	return &testEnv{
		db:          db,
		ledger:      ledgerSvc,
		projector:   projector,
		fulfillment: fulfillment,
		audit:       auditSvc,
		orders:      orderRepo,
		ledgerRepo:  ledgerRepo,
		stockRepo:   stockRepo,
	}
}

// stockIn appends an inbound movement so tests start from known levels.
func (e *testEnv) stockIn(t *testing.T, warehouseID, productID string, qty int) {
	t.Helper()
	_, err := e.ledger.Append(&domain.MovementRecord{
		WarehouseID: warehouseID,
		ProductID:   productID,
		Delta:       qty,
		Kind:        domain.MovementInbound,
		RefKind:     domain.RefPurchaseOrder,
		RefID:       "po-test",
		Actor:       "test",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) level(t *testing.T, warehouseID, productID string) domain.StockLevel {
	t.Helper()
	lvl, err := e.projector.CurrentStock(warehouseID, productID)
	if err != nil {
		t.Fatal(err)
	}
	return lvl
}

// makeOrder builds a single-item order. Caller-resolved prices, like the
// real intake boundary.
func makeOrder(productID string, qty int, unitPrice float64) *domain.Order {
	line := float64(qty) * unitPrice
	return &domain.Order{
		CustomerID: "cust-1",
		OrgID:      "org-t",
		Subtotal:   line,
		Total:      line,
		Items: []domain.OrderItem{
			{ProductID: productID, Qty: qty, UnitPrice: unitPrice, LineTotal: line},
		},
	}
}
