// Package store implements the document store gateway: connection setup,
// ensure_indexes, bulk_upsert, find_latest, and count, over
// modernc.org/sqlite. Collections behave like documents (composite-key
// upsert, no cross-collection transactions) even though the backing engine
// is relational — no complete reference implementation in reach carries a
// genuine document-database driver, so the contract is implemented over
// typed tables instead of fabricating an unfetchable dependency (see
// DESIGN.md).
//
// Connection setup (WAL mode, profile-tuned PRAGMAs, pooling, transaction
// helper, health checks) is adapted directly from
// internal/database/db.go's profile system, narrowed to the one profile
// this engine needs (ProfileStandard's balance of safety and throughput
// fits an append-mostly ingestion workload).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// DB wraps the document store's connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open connects to uri (a SQLite path, or "file:..." for in-memory/test
// databases), applies WAL mode and standard-profile PRAGMAs, and verifies
// connectivity.
func Open(uri string) (*DB, error) {
	if !strings.HasPrefix(uri, "file:") && uri != ":memory:" {
		absPath, err := filepath.Abs(uri)
		if err != nil {
			return nil, fmt.Errorf("store: resolve path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
		uri = absPath
	}

	connStr := buildConnectionString(uri)
	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	configureConnectionPool(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &DB{conn: conn, path: uri}, nil
}

func buildConnectionString(path string) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(NORMAL)"
	connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
	connStr += "&_pragma=temp_store(MEMORY)"
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)"
	return connStr
}

func configureConnectionPool(conn *sql.DB) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn exposes the underlying *sql.DB for collections that need raw SQL.
func (db *DB) Conn() *sql.DB { return db.conn }

// WithTransaction runs fn inside a transaction, rolling back on error or
// panic and committing otherwise. Adapted from internal/database/db.go's
// WithTransaction helper.
func (db *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("store: panic in transaction: %v", p)
			return
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("store: transaction failed: %w (rollback also failed: %v)", err, rbErr)
			}
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// HealthCheck runs a full integrity check; QuickCheck only pings.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping failed: %w", err)
	}
	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("store: integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("store: integrity check failed: %s", result)
	}
	return nil
}

func (db *DB) QuickCheck(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
