package handlers

import (
	"github.com/gofiber/fiber/v2"

	"stockledger/internal/domain"
	applog "stockledger/internal/log"
	"stockledger/internal/services"
	"stockledger/internal/validate"
)

type MovementHandler struct {
	Ledger *services.LedgerService
}

// GET /api/v1/movements?warehouse=&product=&since=&limit=
func (h *MovementHandler) List(c *fiber.Ctx) error {
	wh := c.Query("warehouse")
	prod := c.Query("product")
	since, ok := validate.Seq(c.Query("since"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid since cursor"})
	}
	limit := 100
	if q := c.Query("limit"); q != "" {
		n, ok := validate.Qty(q)
		if !ok || n > 500 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid limit"})
		}
		limit = n
	}

	if wh != "" && prod != "" && since > 0 {
		out, err := h.Ledger.ListFor(wh, prod, since, limit)
		if err != nil {
			return fail(c, "movements.list", err)
		}
		return c.JSON(fiber.Map{"movements": out})
	}
	out, err := h.Ledger.ListRecent(wh, prod, limit)
	if err != nil {
		return fail(c, "movements.list", err)
	}
	return c.JSON(fiber.Map{"movements": out})
}

type appendMovementRequest struct {
	WarehouseID string `json:"warehouse_id"`
	ProductID   string `json:"product_id"`
	Delta       int    `json:"delta"`
	Kind        string `json:"kind"`
	RefKind     string `json:"ref_kind"`
	RefID       string `json:"ref_id"`
}

// POST /api/v1/movements — manual stock intake or correction. Order-driven
// movements never come through here; the fulfillment flow owns those.
func (h *MovementHandler) Append(c *fiber.Ctx) error {
	var req appendMovementRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	kind := domain.MovementKind(req.Kind)
	if kind != domain.MovementInbound && kind != domain.MovementAdjustment {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "kind must be inbound or adjustment"})
	}
	if req.Delta == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "delta must be non-zero"})
	}

	refKind, refID := req.RefKind, req.RefID
	if kind == domain.MovementInbound && refKind == "" {
		refKind, refID = domain.RefManual, actor(c)
	}
	m := &domain.MovementRecord{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Delta:       req.Delta,
		Kind:        kind,
		RefKind:     refKind,
		RefID:       refID,
		Actor:       actor(c),
	}
	seq, err := h.Ledger.Append(m)
	if err != nil {
		return fail(c, "movements.append", err)
	}
	applog.Audit(c, "movements.append", map[string]any{
		"seq": seq, "warehouse": m.WarehouseID, "product": m.ProductID,
		"kind": string(m.Kind), "delta": m.Delta,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"seq": seq})
}

type transferRequest struct {
	FromWarehouseID string `json:"from_warehouse_id"`
	ToWarehouseID   string `json:"to_warehouse_id"`
	ProductID       string `json:"product_id"`
	Qty             int    `json:"qty"`
}

// POST /api/v1/transfers — linked transfer-out/transfer-in pair.
func (h *MovementHandler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	transferID, err := h.Ledger.Transfer(req.FromWarehouseID, req.ToWarehouseID, req.ProductID, req.Qty, actor(c))
	if err != nil {
		return fail(c, "movements.transfer", err)
	}
	applog.Audit(c, "movements.transfer", map[string]any{
		"transfer": transferID, "from": req.FromWarehouseID, "to": req.ToWarehouseID,
		"product": req.ProductID, "qty": req.Qty,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"transfer_id": transferID})
}
