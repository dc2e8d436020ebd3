package store

import "context"

// collectionSchemas holds the DDL for every collection this engine owns.
// Each statement is idempotent (CREATE TABLE/INDEX IF NOT EXISTS) so
// Migrate can run on every startup without a separate migration ledger,
// matching the tolerant-of-rerun posture of a teacher that treats schema
// files as the source of truth rather than versioned steps.
var collectionSchemas = []string{
	`CREATE TABLE IF NOT EXISTS trade_calendar (
		exchange    TEXT NOT NULL,
		date        INTEGER NOT NULL,
		datestamp   INTEGER NOT NULL,
		is_open     INTEGER NOT NULL,
		pretrade_date INTEGER,
		payload     BLOB NOT NULL,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (exchange, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_calendar_datestamp ON trade_calendar (datestamp)`,

	`CREATE TABLE IF NOT EXISTS future_contracts (
		exchange         TEXT NOT NULL,
		symbol           TEXT NOT NULL,
		list_date        INTEGER,
		list_datestamp   INTEGER,
		delist_date      INTEGER,
		payload          BLOB NOT NULL,
		updated_at       INTEGER NOT NULL,
		PRIMARY KEY (exchange, symbol)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_future_contracts_list ON future_contracts (exchange, list_datestamp)`,

	`CREATE TABLE IF NOT EXISTS future_daily (
		symbol      TEXT NOT NULL,
		date        INTEGER NOT NULL,
		exchange    TEXT NOT NULL,
		datestamp   INTEGER NOT NULL,
		payload     BLOB NOT NULL,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (symbol, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_future_daily_exchange_date ON future_daily (exchange, date)`,

	`CREATE TABLE IF NOT EXISTS future_holdings (
		date        INTEGER NOT NULL,
		symbol      TEXT NOT NULL,
		broker      TEXT NOT NULL,
		exchange    TEXT NOT NULL,
		payload     BLOB NOT NULL,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (date, symbol, broker)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_future_holdings_exchange_date ON future_holdings (exchange, date)`,

	`CREATE TABLE IF NOT EXISTS stock_list (
		symbol          TEXT NOT NULL,
		exchange        TEXT NOT NULL,
		list_status     TEXT NOT NULL,
		list_date       INTEGER,
		list_datestamp  INTEGER,
		payload         BLOB NOT NULL,
		updated_at      INTEGER NOT NULL,
		PRIMARY KEY (symbol)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_list_exchange_status ON stock_list (exchange, list_status)`,

	`CREATE TABLE IF NOT EXISTS raw_snapshots (
		collection  TEXT NOT NULL,
		captured_at INTEGER NOT NULL,
		payload     BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_snapshots_collection ON raw_snapshots (collection, captured_at)`,
}

// collectionKeyFields lists each collection's composite primary key, used
// by bulk_upsert to build the WHERE clause of its select and update without
// the caller having to repeat the key on every call.
var collectionKeyFields = map[string][]string{
	"trade_calendar":   {"exchange", "date"},
	"future_contracts": {"exchange", "symbol"},
	"future_daily":     {"symbol", "date"},
	"future_holdings":  {"date", "symbol", "broker"},
	"stock_list":       {"symbol"},
}

// Migrate applies every collection's schema. Safe to call on every
// startup.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range collectionSchemas {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
