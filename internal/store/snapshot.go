package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotStore is the audit trail: when enabled, every batch of rows an
// adapter call returned is retained, msgpack-encoded, before the pipeline's
// dedup and independent of whether each row was then inserted, modified, or
// skipped as a duplicate. The stored rows are the adapter's normalized model
// values; the vendor's raw wire response is not kept.
type SnapshotStore struct {
	db *DB
}

func NewSnapshotStore(db *DB) *SnapshotStore { return &SnapshotStore{db: db} }

// Record appends one adapter response payload to the audit trail for collection.
func (s *SnapshotStore) Record(ctx context.Context, collection string, raw any) error {
	encoded, err := msgpack.Marshal(raw)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO raw_snapshots (collection, captured_at, payload) VALUES (?, unixepoch(), ?)`,
		collection, encoded)
	if err != nil {
		return fmt.Errorf("store: record snapshot: %w", err)
	}
	return nil
}

// Prune deletes snapshots older than retention for collection; retention
// <= 0 means keep forever.
func (s *SnapshotStore) Prune(ctx context.Context, collection string, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).Unix()
	res, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM raw_snapshots WHERE collection = ? AND captured_at < ?`, collection, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Latest decodes the most recently captured raw payload for collection
// into dest.
func (s *SnapshotStore) Latest(ctx context.Context, collection string, dest any) (bool, error) {
	var payload []byte
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT payload FROM raw_snapshots WHERE collection = ? ORDER BY captured_at DESC LIMIT 1`,
		collection).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: load snapshot: %w", err)
	}
	if err := msgpack.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("store: decode snapshot: %w", err)
	}
	return true, nil
}
