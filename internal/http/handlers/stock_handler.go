package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	applog "stockledger/internal/log"
	"stockledger/internal/repos"
	"stockledger/internal/services"
	"stockledger/internal/validate"
)

type StockHandler struct {
	Projector *services.ProjectorService
	Catalog   *repos.CatalogRepo
	// LowDefault is the threshold used when the low-stock query carries
	// none. Zero falls back to 5.
	LowDefault int
}

// GET /api/v1/stock?warehouse=&product=
func (h *StockHandler) Current(c *fiber.Ctx) error {
	wh, ok := validate.ID(c.Query("warehouse"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid warehouse"})
	}
	prod, ok := validate.ID(c.Query("product"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid product"})
	}
	lvl, err := h.Projector.CurrentStock(wh, prod)
	if err != nil {
		return fail(c, "stock.current", err)
	}
	return c.JSON(fiber.Map{
		"warehouse_id": lvl.WarehouseID,
		"product_id":   lvl.ProductID,
		"on_hand":      lvl.OnHand,
		"reserved":     lvl.Reserved,
		"available":    lvl.OnHand - lvl.Reserved,
	})
}

// GET /api/v1/stock/product/:id — aggregate across warehouses, always
// computed, never stored.
func (h *StockHandler) ProductAggregate(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}
	p, err := h.Catalog.GetProduct(id)
	if err != nil {
		return fail(c, "stock.aggregate", err)
	}
	agg, err := h.Projector.ProductStock(id)
	if err != nil {
		return fail(c, "stock.aggregate", err)
	}
	return c.JSON(fiber.Map{
		"product_id": agg.ProductID,
		"sku":        p.SKU,
		"title":      p.Title,
		"on_hand":    agg.OnHand,
		"reserved":   agg.Reserved,
		"available":  agg.Available,
	})
}

// GET /api/v1/stock/low?threshold=
func (h *StockHandler) Low(c *fiber.Ctx) error {
	threshold := h.LowDefault
	if threshold == 0 {
		threshold = 5
	}
	if t := c.Query("threshold"); t != "" {
		n, err := strconv.Atoi(t)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid threshold"})
		}
		threshold = n
	}
	rows, err := h.Projector.LowStock(threshold)
	if err != nil {
		return fail(c, "stock.low", err)
	}
	return c.JSON(fiber.Map{"threshold": threshold, "rows": rows})
}

// POST /api/v1/stock/verify — drift check over every cached pair.
// Drifted pairs are rebuilt and reported, never silently patched.
func (h *StockHandler) Verify(c *fiber.Ctx) error {
	drifts, err := h.Projector.VerifyAll()
	if err != nil {
		return fail(c, "stock.verify", err)
	}
	msgs := make([]string, len(drifts))
	for i, d := range drifts {
		msgs[i] = d.Error()
	}
	applog.Audit(c, "stock.verify", map[string]any{"drifts": len(drifts)})
	return c.JSON(fiber.Map{"checked": true, "drifts": msgs})
}
