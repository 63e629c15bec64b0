package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"stockledger/internal/http/handlers"
	applog "stockledger/internal/log"
	"stockledger/internal/repos"
)

// newTestApp wires the API routes over a fresh file-backed database.
// operatorHash guards the privileged routes; empty leaves them open.
func newTestApp(t *testing.T, operatorHash string) *fiber.App {
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

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Error(c, "server.error", err, nil)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		},
	})
	app.Use(requestid.New())

	deps := handlers.NewDeps(db, applog.L())
	operator := handlers.RequireOperator(operatorHash)

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
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, header map[string]string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request failed: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

// seedStock pushes inbound stock through the movements endpoint.
func seedStock(t *testing.T, app *fiber.App, warehouseID, productID string, qty int) {
	t.Helper()
	code, body := doJSON(t, app, "POST", "/api/v1/movements", map[string]any{
		"warehouse_id": warehouseID,
		"product_id":   productID,
		"delta":        qty,
		"kind":         "inbound",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("seed movement: status %d, body %v", code, body)
	}
}

func TestStockEndpoint(t *testing.T) {
	app := newTestApp(t, "")
	seedStock(t, app, "wh-1", "prd-a", 12)

	code, body := doJSON(t, app, "GET", "/api/v1/stock?warehouse=wh-1&product=prd-a", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if body["on_hand"].(float64) != 12 || body["available"].(float64) != 12 {
		t.Fatalf("unexpected body %v", body)
	}

	// Unknown pair reads as zero, not as an error.
	code, body = doJSON(t, app, "GET", "/api/v1/stock?warehouse=wh-2&product=prd-b", nil, nil)
	if code != http.StatusOK || body["on_hand"].(float64) != 0 {
		t.Fatalf("zero pair: status %d body %v", code, body)
	}

	code, _ = doJSON(t, app, "GET", "/api/v1/stock?warehouse=wh-1", nil, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("missing product: status %d, want 400", code)
	}
}

func TestProductAggregateEndpoint(t *testing.T) {
	app := newTestApp(t, "")
	seedStock(t, app, "wh-1", "prd-a", 10)
	seedStock(t, app, "wh-2", "prd-a", 5)

	code, body := doJSON(t, app, "GET", "/api/v1/stock/product/prd-a", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if body["on_hand"].(float64) != 15 {
		t.Fatalf("aggregate body %v, want on_hand 15", body)
	}

	code, _ = doJSON(t, app, "GET", "/api/v1/stock/product/prd-nope", nil, nil)
	if code != http.StatusNotFound {
		t.Fatalf("unknown product: status %d, want 404", code)
	}
}

func TestMovementsRejectsForbiddenKinds(t *testing.T) {
	app := newTestApp(t, "")

	for _, kind := range []string{"outbound", "reservation_hold", "reservation_release", "transfer_out"} {
		code, _ := doJSON(t, app, "POST", "/api/v1/movements", map[string]any{
			"warehouse_id": "wh-1", "product_id": "prd-a", "delta": -1, "kind": kind,
		}, nil)
		if code != http.StatusBadRequest {
			t.Fatalf("kind %s: status %d, want 400", kind, code)
		}
	}
}

func TestTransferEndpoint(t *testing.T) {
	app := newTestApp(t, "")
	seedStock(t, app, "wh-1", "prd-a", 10)

	code, body := doJSON(t, app, "POST", "/api/v1/transfers", map[string]any{
		"from_warehouse_id": "wh-1", "to_warehouse_id": "wh-2", "product_id": "prd-a", "qty": 4,
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("transfer: status %d body %v", code, body)
	}
	if id, _ := body["transfer_id"].(string); id == "" {
		t.Fatalf("missing transfer_id in %v", body)
	}

	// More than the source holds.
	code, body = doJSON(t, app, "POST", "/api/v1/transfers", map[string]any{
		"from_warehouse_id": "wh-1", "to_warehouse_id": "wh-2", "product_id": "prd-a", "qty": 100,
	}, nil)
	if code != http.StatusConflict || body["error"] != "insufficient_stock" {
		t.Fatalf("oversized transfer: status %d body %v", code, body)
	}
}

func TestOperatorGuard(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("op-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	app := newTestApp(t, string(hash))

	move := map[string]any{"warehouse_id": "wh-1", "product_id": "prd-a", "delta": 5, "kind": "inbound"}

	code, _ := doJSON(t, app, "POST", "/api/v1/movements", move, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", code)
	}

	code, _ = doJSON(t, app, "POST", "/api/v1/movements", move, map[string]string{
		"Authorization": "Bearer wrong",
	})
	if code != http.StatusForbidden {
		t.Fatalf("bad token: status %d, want 403", code)
	}

	code, _ = doJSON(t, app, "POST", "/api/v1/movements", move, map[string]string{
		"Authorization": "Bearer op-token",
	})
	if code != http.StatusCreated {
		t.Fatalf("good token: status %d, want 201", code)
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	app := newTestApp(t, "")
	code, body := doJSON(t, app, "GET", "/api/v1/nope", nil, nil)
	if code != http.StatusNotFound || body["error"] != "not found" {
		t.Fatalf("status %d body %v", code, body)
	}
}
