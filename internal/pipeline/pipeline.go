// Package pipeline implements the incremental save pipelines: per-dataset
// work-unit planning, an incremental cursor driven by the document store's
// find_latest, a bounded worker pool, two-pass dedup, and batched upserts.
// The worker-pool shape echoes a scheduler's explicit goroutine-lifecycle
// idiom (explicit WaitGroup, a single place that decides concurrency)
// scaled down to a plain bounded fan-out since pipeline work units have no
// need for a time-based trigger.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"quantbox/internal/adapter"
	"quantbox/internal/config"
	"quantbox/internal/kernel"
	"quantbox/internal/model"
	"quantbox/internal/result"
	"quantbox/internal/store"
)

func storeFilter(key string, value any) store.Filter { return store.Filter{key: value} }

func unmarshalPayload(payload []byte, dest any) error {
	return json.Unmarshal(payload, dest)
}

const defaultBatchSize = 1000

// Pipeline runs the five save operations against one vendor DataSource,
// writing through a Gateway and optionally recording raw snapshots.
type Pipeline struct {
	vendor    adapter.DataSource
	gateway   *store.Gateway
	snapshots *store.SnapshotStore // nil disables audit recording
	registry  *config.Registry
	log       zerolog.Logger

	workerCount int
	batchSize   int
}

type Option func(*Pipeline)

func WithSnapshots(s *store.SnapshotStore) Option { return func(p *Pipeline) { p.snapshots = s } }

func New(vendor adapter.DataSource, gateway *store.Gateway, registry *config.Registry, log zerolog.Logger, opts ...Option) *Pipeline {
	tuning := registry.Tuning()
	workers := tuning.WorkerCount
	if workers <= 0 {
		workers = 4
	}
	batch := tuning.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	p := &Pipeline{
		vendor: vendor, gateway: gateway, registry: registry,
		log: log.With().Str("component", "pipeline").Str("vendor", vendor.Vendor()).Logger(),
		workerCount: workers, batchSize: batch,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// runPool fans work out across p.workerCount goroutines and collects every
// error without one unit's failure cancelling the others, matching the
// "continue processing best-effort, surface all failures" rule.
func runPool[T any](ctx context.Context, workerCount int, units []T, fn func(context.Context, T) error) []error {
	if workerCount <= 0 {
		workerCount = 1
	}
	sem := make(chan struct{}, workerCount)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, u := range units {
		if ctx.Err() != nil {
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(unit T) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, unit); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()
	return errs
}

// dedupeCalendar keeps the last occurrence of each (exchange, date) pair,
// the vendor-level half of the two-pass dedup; the gateway's byte-equal
// check handles the batch-level half against what is already stored. The
// second return value is the number of duplicate rows dropped in this pass.
func dedupeCalendar(entries []model.CalendarEntry) ([]model.CalendarEntry, int) {
	seen := make(map[[2]any]model.CalendarEntry, len(entries))
	order := make([][2]any, 0, len(entries))
	dropped := 0
	for _, e := range entries {
		key := [2]any{e.Exchange, e.Date}
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		} else {
			dropped++
		}
		seen[key] = e
	}
	out := make([]model.CalendarEntry, 0, len(order))
	for _, k := range order {
		out = append(out, seen[k])
	}
	return out, dropped
}

func dedupeContracts(rows []model.Contract) ([]model.Contract, int) {
	seen := make(map[string]model.Contract, len(rows))
	order := make([]string, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		key := r.Exchange + "|" + r.Symbol
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		} else {
			dropped++
		}
		seen[key] = r
	}
	out := make([]model.Contract, 0, len(order))
	for _, k := range order {
		out = append(out, seen[k])
	}
	return out, dropped
}

// dedupeDaily drops invalid bars and duplicate (symbol, date) rows in a
// single pass; the returned count covers both kinds of drop.
func dedupeDaily(bars []model.DailyBar) ([]model.DailyBar, int) {
	seen := make(map[string]model.DailyBar, len(bars))
	order := make([]string, 0, len(bars))
	dropped := 0
	for _, b := range bars {
		if !b.Valid() {
			dropped++
			continue
		}
		key := fmt.Sprintf("%s|%d", b.Symbol, b.Date)
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		} else {
			dropped++
		}
		seen[key] = b
	}
	out := make([]model.DailyBar, 0, len(order))
	for _, k := range order {
		out = append(out, seen[k])
	}
	return out, dropped
}

func dedupeHoldings(rows []model.HoldingsRow) ([]model.HoldingsRow, int) {
	seen := make(map[string]model.HoldingsRow, len(rows))
	order := make([]string, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		key := fmt.Sprintf("%d|%s|%s", r.Date, r.Symbol, r.Broker)
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		} else {
			dropped++
		}
		seen[key] = r
	}
	out := make([]model.HoldingsRow, 0, len(order))
	for _, k := range order {
		out = append(out, seen[k])
	}
	return out, dropped
}

func dedupeStockList(rows []model.StockListEntry) ([]model.StockListEntry, int) {
	seen := make(map[string]model.StockListEntry, len(rows))
	order := make([]string, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		if _, ok := seen[r.Symbol]; !ok {
			order = append(order, r.Symbol)
		} else {
			dropped++
		}
		seen[r.Symbol] = r
	}
	out := make([]model.StockListEntry, 0, len(order))
	for _, k := range order {
		out = append(out, seen[k])
	}
	return out, dropped
}

// batchUpsert writes items to collection in chunks of p.batchSize,
// accumulating inserted/modified/unchanged counts into acc. Unchanged rows
// (byte-equal to what's already stored) are folded into the skipped tally.
func batchUpsert[T store.Upsertable](ctx context.Context, p *Pipeline, acc *result.Accumulator, collection string, items []T) error {
	for start := 0; start < len(items); start += p.batchSize {
		end := start + p.batchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := make([]store.Upsertable, end-start)
		for i, v := range items[start:end] {
			chunk[i] = v
		}
		inserted, modified, unchanged, err := p.gateway.BulkUpsert(ctx, collection, chunk)
		if err != nil {
			return err
		}
		acc.AddInserted(inserted)
		acc.AddModified(modified)
		acc.AddSkipped(unchanged)
	}
	return nil
}

// endDateForToday applies the close-hour shift: if "today" hasn't closed
// yet for this exchange, the incremental window's end date is yesterday so
// an in-progress trading session is never saved as if it were final.
func endDateForToday(reg *config.Registry, exchange string) int {
	today := kernel.Today()
	info, ok := reg.Exchange(exchange)
	closeHour := 15
	if ok && info.CloseHour > 0 {
		closeHour = info.CloseHour
	}
	if kernel.Now().Hour() < closeHour {
		return previousDateInt(today)
	}
	return today
}

func previousDateInt(d int) int {
	ts, err := kernel.DateIntToTimestamp(d)
	if err != nil {
		return d
	}
	return kernel.TimestampToDateInt(ts - 86400)
}

func sortedStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

// RunOptions narrows a Run* call to an explicit symbol set and/or bounded
// date window, bypassing the exchange-level incremental cursor. The zero
// value means "use the incremental cursor across every given exchange",
// which is what a scheduled save_all run wants.
type RunOptions struct {
	Symbols    []string
	StartDate  *int
	EndDate    *int
	Date       *int
	ListStatus string
}

func (o RunOptions) hasSymbols() bool { return len(o.Symbols) > 0 }

func (o RunOptions) hasRange() bool { return o.StartDate != nil && o.EndDate != nil }

// dateRange returns every date-int from start to end inclusive, walking a
// day at a time with nextDateInt so it follows the same calendar arithmetic
// as the cursor helpers.
func dateRange(start, end int) []int {
	if start > end {
		return nil
	}
	out := []int{start}
	d := start
	for d < end {
		d = nextDateInt(d)
		out = append(out, d)
	}
	return out
}

// tradingDays returns the stored trade_calendar dates for exchange within
// [start, end]. Every row already stored there is a trading day — the
// vendor adapters filter closed days out before a calendar save — so no
// further is-open check is needed here.
func (p *Pipeline) tradingDays(ctx context.Context, exchange string, start, end int) ([]int, error) {
	payloads, err := p.gateway.List(ctx, calendarCollection, storeFilter("exchange", exchange))
	if err != nil {
		return nil, err
	}
	days := make([]int, 0, len(payloads))
	for _, payload := range payloads {
		var e model.CalendarEntry
		if err := unmarshalPayload(payload, &e); err != nil {
			return nil, err
		}
		if e.Date >= start && e.Date <= end {
			days = append(days, e.Date)
		}
	}
	sort.Ints(days)
	return days, nil
}
