// Package orchestrator sequences the five save operations in dependency
// order, demoting downstream datasets to "skipped" when an upstream one
// fails outright, and caches each vendor's availability probe for the
// duration of one run so every dataset doesn't re-probe independently.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quantbox/internal/adapter"
	"quantbox/internal/pipeline"
	"quantbox/internal/result"
	"quantbox/internal/store"
)

func jsonPayload(v any) ([]byte, error) { return json.Marshal(v) }

// Orchestrator runs one vendor's full save_all sequence.
type Orchestrator struct {
	vendor   adapter.DataSource
	pipeline *pipeline.Pipeline
	exporter *store.Exporter // nil disables post-save export
	log      zerolog.Logger
}

func New(vendor adapter.DataSource, p *pipeline.Pipeline, exporter *store.Exporter, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{vendor: vendor, pipeline: p, exporter: exporter, log: log.With().Str("component", "orchestrator").Logger()}
}

// available probes the vendor once. SaveAll calls it once at the start of
// every run, so each run (including each scheduled daemon run on a reused
// Orchestrator) gets a fresh probe that all of its datasets share.
func (o *Orchestrator) available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return o.vendor.CheckAvailability(probeCtx)
}

// RunResult is the outcome of a full save_all run, keyed by dataset name.
type RunResult map[string]*result.Accumulator

func skippedResult(dataset, reason string) *result.Accumulator {
	acc := result.New(dataset)
	acc.SetMetadata("skip_reason", reason)
	acc.Complete()
	return acc
}

// SaveAll runs calendar first, then contracts and stock_list in parallel,
// then (only if calendar succeeded) daily and holdings in parallel.
func (o *Orchestrator) SaveAll(ctx context.Context, exchanges []string) RunResult {
	out := make(RunResult)

	if !o.available(ctx) {
		reason := "vendor availability probe failed"
		for _, name := range []string{"trade_calendar", "future_contracts", "future_daily", "future_holdings", "stock_list"} {
			out[name] = skippedResult(name, reason)
		}
		return out
	}

	calendarAcc := o.pipeline.RunCalendar(ctx, exchanges, pipeline.RunOptions{})
	out["trade_calendar"] = calendarAcc
	calendarOK := len(calendarAcc.Errors()) == 0

	var wg sync.WaitGroup
	var mu sync.Mutex
	run := func(name string, fn func() *result.Accumulator) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc := fn()
			mu.Lock()
			out[name] = acc
			mu.Unlock()
		}()
	}

	run("future_contracts", func() *result.Accumulator { return o.pipeline.RunContracts(ctx, exchanges, pipeline.RunOptions{}) })
	run("stock_list", func() *result.Accumulator { return o.pipeline.RunStockList(ctx, exchanges, pipeline.RunOptions{}) })
	wg.Wait()

	if !calendarOK {
		out["future_daily"] = skippedResult("future_daily", "upstream trade_calendar save failed")
		out["future_holdings"] = skippedResult("future_holdings", "upstream trade_calendar save failed")
		return out
	}

	run("future_daily", func() *result.Accumulator { return o.pipeline.RunDaily(ctx, exchanges, pipeline.RunOptions{}) })
	run("future_holdings", func() *result.Accumulator { return o.pipeline.RunHoldings(ctx, exchanges, pipeline.RunOptions{}) })
	wg.Wait()

	if o.exporter != nil {
		o.exportSnapshots(ctx, out)
	}
	return out
}

// exportSnapshots best-effort uploads, for each dataset that inserted or
// modified rows this run, that dataset's run summary (Accumulator.ToMap,
// JSON-encoded); the collection's stored rows are not exported. A failed
// export never fails the save itself.
func (o *Orchestrator) exportSnapshots(ctx context.Context, out RunResult) {
	for dataset, acc := range out {
		if acc.Inserted() == 0 && acc.Modified() == 0 {
			continue
		}
		payload, err := jsonPayload(acc.ToMap())
		if err != nil {
			o.log.Warn().Err(err).Str("dataset", dataset).Msg("failed to encode export payload")
			continue
		}
		if _, err := o.exporter.ExportCollection(ctx, dataset, payload); err != nil {
			o.log.Warn().Err(err).Str("dataset", dataset).Msg("snapshot export failed")
		}
	}
}
