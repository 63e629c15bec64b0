package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"stockledger/internal/domain"
	applog "stockledger/internal/log"
	"stockledger/internal/validate"
)

// fail maps domain errors onto HTTP statuses. Business rejections carry
// their detail; anything unexpected is logged and hidden behind a 500.
func fail(c *fiber.Ctx, action string, err error) error {
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     "insufficient_stock",
			"product":   insufficient.ProductID,
			"warehouse": insufficient.WarehouseID,
			"requested": insufficient.Requested,
			"available": insufficient.Available,
		})
	}
	var transition *domain.InvalidTransitionError
	if errors.As(err, &transition) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  "invalid_transition",
			"entity": transition.Entity,
			"from":   transition.From,
			"to":     transition.To,
		})
	}
	if errors.Is(err, domain.ErrInvalidMovement) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if errors.Is(err, domain.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	if errors.Is(err, domain.ErrStorage) {
		applog.Error(c, action, err, nil)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "storage unavailable, retry later"})
	}
	applog.Error(c, action, err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

// actor reads the acting identity for mutations; defaults keep manual
// curl sessions usable. Malformed identities fall back rather than fail:
// the header is attribution, not authentication.
func actor(c *fiber.Ctx) string {
	if a, ok := validate.Actor(c.Get("X-Actor")); ok {
		return a
	}
	return "api"
}

func correlationID(c *fiber.Ctx) string {
	if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
		return rid
	}
	return ""
}
