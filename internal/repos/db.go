package repos

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Single writer; the engine serializes stock mutations per pair anyway
	// and this keeps sqlite out of SQLITE_BUSY territory.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := EnsureSchema(db); err != nil {
		return nil, err
	}
	if err := seedIfEmpty(db); err != nil {
		return nil, err
	}
	return db, nil
}

// WithTx runs fn inside a transaction, rolling back on error.
func WithTx(db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// EnsureSchema creates all tables. Movements and audit_log are append-only:
// no application code issues UPDATE or DELETE against them.
func EnsureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;

-- Warehouses
CREATE TABLE IF NOT EXISTS warehouses(
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL,
  name TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

-- Products (display data only; stock is always a projection)
CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL UNIQUE,
  org_id TEXT NOT NULL,
  title TEXT NOT NULL,
  price NUMERIC NOT NULL CHECK (price >= 0),
  rating NUMERIC NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);

-- Movement ledger: the single authority for stock history
CREATE TABLE IF NOT EXISTS movements(
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  warehouse_id TEXT NOT NULL REFERENCES warehouses(id),
  product_id TEXT NOT NULL REFERENCES products(id),
  delta INTEGER NOT NULL CHECK (delta <> 0),
  kind TEXT NOT NULL,
  ref_kind TEXT NOT NULL DEFAULT '',
  ref_id TEXT NOT NULL DEFAULT '',
  actor TEXT NOT NULL DEFAULT '',
  idem_key TEXT NOT NULL UNIQUE,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_movements_pair ON movements(warehouse_id, product_id, seq);
CREATE INDEX IF NOT EXISTS idx_movements_ref  ON movements(ref_kind, ref_id);

-- Projection cache: disposable, rebuildable from the ledger
CREATE TABLE IF NOT EXISTS stock_levels(
  warehouse_id TEXT NOT NULL REFERENCES warehouses(id),
  product_id TEXT NOT NULL REFERENCES products(id),
  on_hand INTEGER NOT NULL DEFAULT 0 CHECK (on_hand >= 0),
  reserved INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0 AND reserved <= on_hand),
  updated_at TEXT,
  PRIMARY KEY(warehouse_id, product_id)
);

-- Orders
CREATE TABLE IF NOT EXISTS orders(
  id TEXT PRIMARY KEY,
  number TEXT NOT NULL UNIQUE,
  customer_id TEXT NOT NULL DEFAULT '',
  org_id TEXT NOT NULL DEFAULT '',
  subtotal NUMERIC NOT NULL DEFAULT 0,
  tax NUMERIC NOT NULL DEFAULT 0,
  shipping NUMERIC NOT NULL DEFAULT 0,
  discount NUMERIC NOT NULL DEFAULT 0,
  total NUMERIC NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  shipping_status TEXT NOT NULL DEFAULT 'unshipped',
  warehouse_id TEXT NOT NULL DEFAULT '',
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

CREATE TABLE IF NOT EXISTS order_items(
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  product_id TEXT NOT NULL REFERENCES products(id),
  qty INTEGER NOT NULL CHECK (qty >= 1),
  unit_price NUMERIC NOT NULL,
  discount NUMERIC NOT NULL DEFAULT 0,
  line_total NUMERIC NOT NULL,
  warehouse_id TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (order_id, product_id)
);

-- Payments (independently lifecycled from their order)
CREATE TABLE IF NOT EXISTS payments(
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id),
  amount NUMERIC NOT NULL,
  method TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'pending',
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id);

-- Audit trail: write-once, queryable, never mutated
CREATE TABLE IF NOT EXISTS audit_log(
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  actor TEXT NOT NULL DEFAULT '',
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  op TEXT NOT NULL,
  before TEXT NOT NULL DEFAULT '',
  after TEXT NOT NULL DEFAULT '',
  correlation_id TEXT NOT NULL DEFAULT '',
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id, seq);
`
	_, err := db.Exec(schema)
	return err
}

func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM warehouses`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	tx.MustExec(`INSERT INTO warehouses(id, org_id, name) VALUES
	  ('wh-east','org-demo','East Coast DC'),
	  ('wh-west','org-demo','West Coast DC')`)

	tx.MustExec(`INSERT INTO products(id, sku, org_id, title, price) VALUES
	  ('prd-lamp','SKU-LAMP-01','org-demo','Desk Lamp',39.90),
	  ('prd-chair','SKU-CHAIR-01','org-demo','Office Chair',189.00),
	  ('prd-desk','SKU-DESK-01','org-demo','Standing Desk',449.00)`)

	// Opening stock enters through the ledger so the projection and the
	// movement history agree from the first row.
	opening := []struct {
		wh, prod string
		qty      int
	}{
		{"wh-east", "prd-lamp", 40},
		{"wh-east", "prd-chair", 12},
		{"wh-west", "prd-lamp", 25},
		{"wh-west", "prd-desk", 8},
	}
	for _, o := range opening {
		tx.MustExec(`INSERT INTO movements(warehouse_id, product_id, delta, kind, ref_kind, ref_id, actor, idem_key)
		  VALUES(?, ?, ?, 'inbound', 'purchase_order', 'po-opening', 'seed', ?)`,
			o.wh, o.prod, o.qty, fmt.Sprintf("seed:%s:%s", o.wh, o.prod))
		tx.MustExec(`INSERT INTO stock_levels(warehouse_id, product_id, on_hand, reserved, updated_at)
		  VALUES(?, ?, ?, 0, CURRENT_TIMESTAMP)`, o.wh, o.prod, o.qty)
	}

	return tx.Commit()
}
