package handlers

import (
	"github.com/gofiber/fiber/v2"

	"stockledger/internal/domain"
	applog "stockledger/internal/log"
	"stockledger/internal/services"
	"stockledger/internal/validate"
)

type OrderHandler struct {
	Fulfillment *services.FulfillmentService
}

type orderItemRequest struct {
	ProductID  string   `json:"product_id"`
	Qty        int      `json:"qty"`
	UnitPrice  float64  `json:"unit_price"`
	Discount   float64  `json:"discount"`
	LineTotal  float64  `json:"line_total"`
	Warehouses []string `json:"warehouses"` // allocator preference order
}

type createOrderRequest struct {
	CustomerID  string             `json:"customer_id"`
	OrgID       string             `json:"org_id"`
	WarehouseID string             `json:"warehouse_id"`
	Subtotal    float64            `json:"subtotal"`
	Tax         float64            `json:"tax"`
	Shipping    float64            `json:"shipping"`
	Discount    float64            `json:"discount"`
	Total       float64            `json:"total"`
	Items       []orderItemRequest `json:"items"`
}

// POST /api/v1/orders — intake plus reservation. On insufficient stock
// the order is persisted pending with no holds, and the shortfall is
// reported to the caller.
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if len(req.Items) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order has no items"})
	}

	o := &domain.Order{
		CustomerID:  req.CustomerID,
		OrgID:       req.OrgID,
		WarehouseID: req.WarehouseID,
		Subtotal:    req.Subtotal,
		Tax:         req.Tax,
		Shipping:    req.Shipping,
		Discount:    req.Discount,
		Total:       req.Total,
	}
	candidates := make(map[string][]string, len(req.Items))
	for _, it := range req.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID: it.ProductID,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			Discount:  it.Discount,
			LineTotal: it.LineTotal,
		})
		if len(it.Warehouses) > 0 {
			candidates[it.ProductID] = it.Warehouses
		}
	}

	act, corr := actor(c), correlationID(c)
	if err := h.Fulfillment.Intake(o, act, corr); err != nil {
		applog.Security(c, "order.intake.reject", map[string]any{"error": err.Error()})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.Fulfillment.Reserve(c.Context(), o.ID, candidates, act, corr); err != nil {
		applog.Info(c, "order.reserve.fail", map[string]any{"order_id": o.ID, "error": err.Error()})
		return fail(c, "order.reserve", err)
	}

	applog.Audit(c, "order.create", map[string]any{"order_id": o.ID, "number": o.Number, "total": o.Total})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id": o.ID,
		"number":   o.Number,
		"status":   o.Status,
	})
}

// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	o, err := h.Fulfillment.Get(id)
	if err != nil {
		return fail(c, "order.get", err)
	}
	return c.JSON(o)
}

type confirmPaymentRequest struct {
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
}

// POST /api/v1/orders/:id/payment — called by the payment gateway once
// funds are captured. Safe to call repeatedly with the same payment id.
func (h *OrderHandler) ConfirmPayment(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	var req confirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	p := &domain.Payment{ID: req.PaymentID, Amount: req.Amount, Method: req.Method}
	if err := h.Fulfillment.ConfirmPayment(c.Context(), id, p, actor(c), correlationID(c)); err != nil {
		return fail(c, "order.payment", err)
	}
	applog.Audit(c, "order.payment", map[string]any{"order_id": id, "payment_id": p.ID, "amount": p.Amount})
	return c.JSON(fiber.Map{"ok": true})
}

// POST /api/v1/orders/:id/cancel
func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	if err := h.Fulfillment.Cancel(c.Context(), id, actor(c), correlationID(c)); err != nil {
		return fail(c, "order.cancel", err)
	}
	applog.Audit(c, "order.cancel", map[string]any{"order_id": id})
	return c.JSON(fiber.Map{"ok": true})
}

type shipmentRequest struct {
	Status string `json:"status"`
}

// POST /api/v1/orders/:id/shipment
func (h *OrderHandler) AdvanceShipment(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	var req shipmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	next := domain.ShippingStatus(req.Status)
	switch next {
	case domain.ShippingInTransit, domain.ShippingDelivered, domain.ShippingReturned:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid shipping status"})
	}
	if err := h.Fulfillment.AdvanceShipment(id, next, actor(c), correlationID(c)); err != nil {
		return fail(c, "order.ship", err)
	}
	applog.Audit(c, "order.ship", map[string]any{"order_id": id, "status": req.Status})
	return c.JSON(fiber.Map{"ok": true})
}
