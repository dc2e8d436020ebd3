package main

import (
	"sync"
	"time"

	"quantbox/internal/orchestrator"
)

// runStatus holds the most recent scheduled run's outcome for /metrics.
type runStatus struct {
	mu        sync.Mutex
	at        time.Time
	summaries map[string]map[string]any
}

func (r *runStatus) record(results orchestrator.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.at = time.Now()
	r.summaries = make(map[string]map[string]any, len(results))
	for dataset, acc := range results {
		r.summaries[dataset] = acc.ToMap()
	}
}

func (r *runStatus) snapshot() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summaries == nil {
		return map[string]any{"status": "no run yet"}
	}
	return map[string]any{
		"at":      r.at.Format(time.RFC3339),
		"results": r.summaries,
	}
}
