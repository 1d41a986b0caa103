// Package sqlite persists the product vector index and price alerts in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	price         REAL,
	currency      TEXT NOT NULL DEFAULT '',
	image_url     TEXT NOT NULL DEFAULT '',
	source_link   TEXT NOT NULL DEFAULT '',
	seller        TEXT NOT NULL DEFAULT '',
	brand         TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT 'other',
	rating        REAL,
	reviews_count INTEGER,
	on_sale       INTEGER NOT NULL DEFAULT 0,
	free_shipping INTEGER NOT NULL DEFAULT 0,
	source        TEXT NOT NULL DEFAULT '',
	fetched_at    INTEGER NOT NULL,
	embedding     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_products_price ON products(price);

CREATE TABLE IF NOT EXISTS price_alerts (
	product_id    TEXT PRIMARY KEY,
	target_price  REAL NOT NULL,
	current_price REAL NOT NULL,
	triggered     INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
`

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection: SQLite has a single writer and each ":memory:" connection is its own database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
