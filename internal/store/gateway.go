package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Upsertable is anything the gateway can persist as a document: a set of
// indexed key/secondary columns (Record) plus whatever JSON-marshals to
// the full payload (the value itself).
type Upsertable interface {
	Record() map[string]any
}

// Gateway implements the document store contract — ensure_indexes,
// bulk_upsert, find_latest, count — over the five collections defined in
// schema.go.
type Gateway struct {
	db *DB
}

func NewGateway(db *DB) *Gateway { return &Gateway{db: db} }

// EnsureIndexes verifies collection is one this engine knows about.
// Indexes themselves are created once by Migrate; there is no per-caller
// index specification the way a genuine document database would accept,
// since the column set is fixed at schema-definition time.
func (g *Gateway) EnsureIndexes(collection string) error {
	if _, ok := collectionKeyFields[collection]; !ok {
		return fmt.Errorf("store: unknown collection %q", collection)
	}
	return nil
}

// BulkUpsert inserts or updates items in collection. A byte-equal payload
// for an already-present key counts as neither inserted nor modified, but
// is reported back as unchanged so callers can fold it into a skipped tally.
func (g *Gateway) BulkUpsert(ctx context.Context, collection string, items []Upsertable) (inserted, modified, unchanged int, err error) {
	keyFields, ok := collectionKeyFields[collection]
	if !ok {
		return 0, 0, 0, fmt.Errorf("store: unknown collection %q", collection)
	}
	if len(items) == 0 {
		return 0, 0, 0, nil
	}

	err = g.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, item := range items {
			rec := item.Record()
			payload, mErr := json.Marshal(item)
			if mErr != nil {
				return fmt.Errorf("store: marshal payload: %w", mErr)
			}

			existing, selErr := selectPayload(ctx, tx, collection, keyFields, rec)
			if selErr != nil {
				return selErr
			}
			switch {
			case existing == nil:
				if iErr := insertRow(ctx, tx, collection, rec, payload); iErr != nil {
					return iErr
				}
				inserted++
			case !bytesEqual(existing, payload):
				if uErr := updateRow(ctx, tx, collection, keyFields, rec, payload); uErr != nil {
					return uErr
				}
				modified++
			default:
				unchanged++
			}
		}
		return nil
	})
	return inserted, modified, unchanged, err
}

func bytesEqual(a, b []byte) bool { return string(a) == string(b) }

func orderedColumns(rec map[string]any) []string {
	cols := make([]string, 0, len(rec))
	for k := range rec {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func selectPayload(ctx context.Context, tx *sql.Tx, collection string, keyFields []string, rec map[string]any) ([]byte, error) {
	where, args := whereClause(keyFields, rec)
	query := fmt.Sprintf("SELECT payload FROM %s WHERE %s", collection, where)
	var payload []byte
	err := tx.QueryRowContext(ctx, query, args...).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: select existing: %w", err)
	}
	return payload, nil
}

func insertRow(ctx context.Context, tx *sql.Tx, collection string, rec map[string]any, payload []byte) error {
	cols := orderedColumns(rec)
	placeholders := make([]string, len(cols)+2)
	args := make([]any, 0, len(cols)+2)
	for i, c := range cols {
		placeholders[i] = "?"
		args = append(args, rec[c])
	}
	placeholders[len(cols)] = "?"
	placeholders[len(cols)+1] = "unixepoch()"
	args = append(args, payload)

	columnList := strings.Join(append(append([]string{}, cols...), "payload"), ", ")
	query := fmt.Sprintf(
		"INSERT INTO %s (%s, updated_at) VALUES (%s, %s)",
		collection, columnList, strings.Join(placeholders[:len(cols)+1], ", "), placeholders[len(cols)+1],
	)
	_, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: insert into %s: %w", collection, err)
	}
	return nil
}

func updateRow(ctx context.Context, tx *sql.Tx, collection string, keyFields []string, rec map[string]any, payload []byte) error {
	keySet := make(map[string]bool, len(keyFields))
	for _, k := range keyFields {
		keySet[k] = true
	}
	cols := orderedColumns(rec)
	setClauses := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+3)
	for _, c := range cols {
		if keySet[c] {
			continue
		}
		setClauses = append(setClauses, c+" = ?")
		args = append(args, rec[c])
	}
	setClauses = append(setClauses, "payload = ?", "updated_at = unixepoch()")
	args = append(args, payload)

	where, whereArgs := whereClause(keyFields, rec)
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", collection, strings.Join(setClauses, ", "), where)
	_, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", collection, err)
	}
	return nil
}

func whereClause(fields []string, rec map[string]any) (string, []any) {
	parts := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		parts[i] = f + " = ?"
		args[i] = rec[f]
	}
	return strings.Join(parts, " AND "), args
}

// Filter is a simple equality filter: column -> value. Empty means "match
// everything in the collection".
type Filter map[string]any

// FindLatest returns the raw JSON payload of the row in collection
// matching filter with the largest value of sortField, or (nil, false) if
// no row matches.
func (g *Gateway) FindLatest(ctx context.Context, collection string, filter Filter, sortField string) ([]byte, bool, error) {
	if _, ok := collectionKeyFields[collection]; !ok {
		return nil, false, fmt.Errorf("store: unknown collection %q", collection)
	}
	where, args := filterClause(filter)
	query := fmt.Sprintf("SELECT payload FROM %s%s ORDER BY %s DESC LIMIT 1", collection, where, sortField)
	var payload []byte
	err := g.db.conn.QueryRowContext(ctx, query, args...).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: find_latest on %s: %w", collection, err)
	}
	return payload, true, nil
}

// List returns the raw JSON payloads of every row in collection matching
// filter.
func (g *Gateway) List(ctx context.Context, collection string, filter Filter) ([][]byte, error) {
	if _, ok := collectionKeyFields[collection]; !ok {
		return nil, fmt.Errorf("store: unknown collection %q", collection)
	}
	where, args := filterClause(filter)
	query := fmt.Sprintf("SELECT payload FROM %s%s", collection, where)
	rows, err := g.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list on %s: %w", collection, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: scan row in %s: %w", collection, err)
		}
		out = append(out, payload)
	}
	return out, rows.Err()
}

// Count returns the number of rows in collection matching filter.
func (g *Gateway) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	if _, ok := collectionKeyFields[collection]; !ok {
		return 0, fmt.Errorf("store: unknown collection %q", collection)
	}
	where, args := filterClause(filter)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", collection, where)
	var n int
	if err := g.db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count on %s: %w", collection, err)
	}
	return n, nil
}

func filterClause(filter Filter) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	cols := make([]string, 0, len(filter))
	for k := range filter {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		parts[i] = c + " = ?"
		args[i] = filter[c]
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}
