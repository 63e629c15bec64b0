package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "stockledger/internal/log"
	"stockledger/internal/services"
)

type AdminHandler struct {
	Projector   *services.ProjectorService
	Fulfillment *services.FulfillmentService
}

// GET /admin — stock levels and recent orders on one page.
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	rows, err := h.Projector.AllStock()
	if err != nil {
		applog.Error(c, "admin.dashboard", err, nil)
		return c.Status(fiber.StatusInternalServerError).Render("error", fiber.Map{"Message": "Could not load stock levels"})
	}
	orders, err := h.Fulfillment.ListLatest(25)
	if err != nil {
		applog.Error(c, "admin.dashboard", err, nil)
		return c.Status(fiber.StatusInternalServerError).Render("error", fiber.Map{"Message": "Could not load orders"})
	}
	return c.Render("dashboard", fiber.Map{"Stock": rows, "Orders": orders})
}
