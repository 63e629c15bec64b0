package main

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	html "github.com/gofiber/template/html/v2"

	"stockledger/internal/config"
	"stockledger/internal/http/handlers"
	applog "stockledger/internal/log"
	"stockledger/internal/repos"
)

func main() {
	cfg := config.Load()

	if err := applog.Init(cfg.LogLevel, cfg.LogEncoding); err != nil {
		log.Fatal(err)
	}
	defer applog.Sync()

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	engine := html.New("./web/templates", ".html")

	app := fiber.New(fiber.Config{
		Views: engine,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Error(c, "server.error", err, nil)
			// Never leak internals to the caller.
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		},
	})
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))

	deps := handlers.NewDeps(db, applog.L())
	deps.StockHandler.LowDefault = cfg.LowStockLimit
	operator := handlers.RequireOperator(cfg.OperatorHash)

	// ---------- API ----------
	api := app.Group("/api/v1")

	api.Get("/stock", deps.StockHandler.Current)
	api.Get("/stock/product/:id", deps.StockHandler.ProductAggregate)
	api.Get("/stock/low", deps.StockHandler.Low)
	api.Post("/stock/verify", operator, deps.StockHandler.Verify)

	api.Get("/movements", deps.MovementHandler.List)
	api.Post("/movements", operator, deps.MovementHandler.Append)
	api.Post("/transfers", operator, deps.MovementHandler.Transfer)

	api.Post("/orders", deps.OrderHandler.Create)
	api.Get("/orders/:id", deps.OrderHandler.Get)
	api.Post("/orders/:id/payment", deps.OrderHandler.ConfirmPayment)
	api.Post("/orders/:id/cancel", deps.OrderHandler.Cancel)
	api.Post("/orders/:id/shipment", operator, deps.OrderHandler.AdvanceShipment)

	api.Get("/audit", operator, deps.AuditHandler.Entries)

	// ---------- Admin ----------
	app.Get("/admin", operator, deps.AdminHandler.Dashboard)

	// Health & 404
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	})

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		log.Fatalf("invalid PORT %q", cfg.Port)
	}
	log.Fatal(app.Listen(":" + cfg.Port))
}
