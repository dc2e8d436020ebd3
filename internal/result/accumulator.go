// Package result implements the save-result accumulator every pipeline run
// reports through: atomic counters for inserted/modified/skipped rows, a
// guarded error list, and a completion flag. Modeled on the counters
// pattern a scheduler uses to report run outcomes without every worker
// goroutine needing its own lock.
package result

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Accumulator collects the outcome of one save operation across any number
// of concurrently-running work units.
type Accumulator struct {
	dataset string
	runID   string
	started time.Time

	inserted int64
	modified int64
	skipped  int64

	mu       sync.Mutex
	errs     []error
	metadata map[string]any
	done     bool
	finished time.Time
}

func New(dataset string) *Accumulator {
	return &Accumulator{dataset: dataset, runID: uuid.NewString(), started: time.Now(), metadata: make(map[string]any)}
}

// RunID uniquely identifies this accumulator's run, for correlating log
// lines and exported snapshots with the save_result they came from.
func (a *Accumulator) RunID() string { return a.runID }

func (a *Accumulator) AddInserted(n int) { atomic.AddInt64(&a.inserted, int64(n)) }
func (a *Accumulator) AddModified(n int) { atomic.AddInt64(&a.modified, int64(n)) }
func (a *Accumulator) AddSkipped(n int)  { atomic.AddInt64(&a.skipped, int64(n)) }

// AddError records a non-fatal error without stopping the run.
func (a *Accumulator) AddError(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
}

// SetMetadata attaches a free-form key, e.g. "skip_reason" or
// "availability_checked_at".
func (a *Accumulator) SetMetadata(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[key] = value
}

// Complete marks the run finished. Safe to call more than once; only the
// first call records the finish time.
func (a *Accumulator) Complete() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return
	}
	a.done = true
	a.finished = time.Now()
}

func (a *Accumulator) Inserted() int { return int(atomic.LoadInt64(&a.inserted)) }
func (a *Accumulator) Modified() int { return int(atomic.LoadInt64(&a.modified)) }
func (a *Accumulator) Skipped() int  { return int(atomic.LoadInt64(&a.skipped)) }

func (a *Accumulator) Errors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]error, len(a.errs))
	copy(out, a.errs)
	return out
}

func (a *Accumulator) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return a.finished.Sub(a.started)
	}
	return time.Since(a.started)
}

// ToMap renders the accumulator as the flat summary a CLI or HTTP status
// endpoint reports.
func (a *Accumulator) ToMap() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	errStrs := make([]string, len(a.errs))
	for i, e := range a.errs {
		errStrs[i] = e.Error()
	}
	meta := make(map[string]any, len(a.metadata))
	for k, v := range a.metadata {
		meta[k] = v
	}
	return map[string]any{
		"dataset":       a.dataset,
		"run_id":        a.runID,
		"inserted":      atomic.LoadInt64(&a.inserted),
		"modified":      atomic.LoadInt64(&a.modified),
		"skipped":       atomic.LoadInt64(&a.skipped),
		"errors":        errStrs,
		"error_count":   len(errStrs),
		"duration_ms":   a.Duration().Milliseconds(),
		"completed":     a.done,
		"metadata":      meta,
	}
}
