package handlers

import (
	"github.com/gofiber/fiber/v2"

	"stockledger/internal/services"
	"stockledger/internal/validate"
)

type AuditHandler struct {
	Audit *services.AuditService
}

// GET /api/v1/audit?entityType=&entityId=&since= — compliance read
// surface. Resume with the last seq returned.
func (h *AuditHandler) Entries(c *fiber.Ctx) error {
	etype := c.Query("entityType")
	if etype == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing entityType"})
	}
	eid, ok := validate.ID(c.Query("entityId"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid entityId"})
	}
	since, ok := validate.Seq(c.Query("since"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid since cursor"})
	}
	entries, err := h.Audit.EntriesFor(etype, eid, since, 100)
	if err != nil {
		return fail(c, "audit.entries", err)
	}
	var next int64
	if len(entries) > 0 {
		next = entries[len(entries)-1].Seq
	}
	return c.JSON(fiber.Map{"entries": entries, "next_since": next})
}
