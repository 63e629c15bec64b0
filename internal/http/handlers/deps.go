package handlers

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"stockledger/internal/repos"
	"stockledger/internal/services"
)

type Deps struct {
	StockHandler    *StockHandler
	MovementHandler *MovementHandler
	OrderHandler    *OrderHandler
	AuditHandler    *AuditHandler
	AdminHandler    *AdminHandler
}

func NewDeps(db *sqlx.DB, logger *zap.Logger) *Deps {
	ledgerRepo := repos.NewLedgerRepo(db)
	stockRepo := repos.NewStockRepo(db)
	orderRepo := repos.NewOrderRepo(db)
	auditRepo := repos.NewAuditRepo(db)
	catalogRepo := repos.NewCatalogRepo(db)

	auditSvc := services.NewAuditService(auditRepo)
	ledgerSvc := services.NewLedgerService(db, ledgerRepo, stockRepo, catalogRepo, auditSvc, logger)
	projector := services.NewProjectorService(db, ledgerRepo, stockRepo, logger)
	fulfillment := services.NewFulfillmentService(db, orderRepo, catalogRepo, ledgerSvc, auditSvc, logger)

	return &Deps{
		StockHandler:    &StockHandler{Projector: projector, Catalog: catalogRepo},
		MovementHandler: &MovementHandler{Ledger: ledgerSvc},
		OrderHandler:    &OrderHandler{Fulfillment: fulfillment},
		AuditHandler:    &AuditHandler{Audit: auditSvc},
		AdminHandler:    &AdminHandler{Projector: projector, Fulfillment: fulfillment},
	}
}
