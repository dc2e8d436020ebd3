// Package adapter defines the unified DataSource contract that every
// vendor adapter implements, plus the adapter-level error taxonomy and
// request shapes shared by the vt and vg sub-packages.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"quantbox/internal/model"
)

// Adapter-level error taxonomy. These are sentinels, wrapped with context
// via fmt.Errorf("...: %w", ...); callers use errors.Is.
var (
	ErrVendorUnavailable     = errors.New("adapter: vendor unavailable")
	ErrInsufficientCoverage  = errors.New("adapter: insufficient vendor coverage")
	ErrAuthFailure           = errors.New("adapter: vendor authorization failure")
	ErrRateLimited           = errors.New("adapter: vendor rate limited")
	ErrSchemaMismatch        = errors.New("adapter: vendor response schema mismatch")
	ErrUnsupportedOperation  = errors.New("adapter: operation unsupported by this vendor")
	ErrValidation            = errors.New("adapter: invalid request")
)

// DailyRequest shapes a get_future_daily call. Exactly one of
// (StartDate,EndDate) or Date must be set, and at least one of Symbols or
// Exchanges must be non-empty.
type DailyRequest struct {
	Symbols   []string
	Exchanges []string
	StartDate *int
	EndDate   *int
	Date      *int
}

// Validate enforces the argument-shape rules before any vendor call is
// made.
func (r DailyRequest) Validate() error {
	if len(r.Symbols) == 0 && len(r.Exchanges) == 0 {
		return fmt.Errorf("%w: at least one of symbols or exchanges is required", ErrValidation)
	}
	rangeSet := r.StartDate != nil || r.EndDate != nil
	singleSet := r.Date != nil
	if rangeSet == singleSet {
		return fmt.Errorf("%w: exactly one of (start_date,end_date) or date must be set", ErrValidation)
	}
	if rangeSet && (r.StartDate == nil || r.EndDate == nil) {
		return fmt.Errorf("%w: start_date and end_date must both be set", ErrValidation)
	}
	if rangeSet && *r.StartDate > *r.EndDate {
		return fmt.Errorf("%w: start_date %d is after end_date %d", ErrValidation, *r.StartDate, *r.EndDate)
	}
	return nil
}

// HoldingsRequest shapes a get_future_holdings call: same argument-shape
// rules as DailyRequest, plus an optional product-name filter.
type HoldingsRequest struct {
	Symbols      []string
	Exchanges    []string
	StartDate    *int
	EndDate      *int
	Date         *int
	ProductNames []string
}

// Validate enforces the same shape rules as DailyRequest.Validate.
func (r HoldingsRequest) Validate() error {
	d := DailyRequest{Symbols: r.Symbols, Exchanges: r.Exchanges, StartDate: r.StartDate, EndDate: r.EndDate, Date: r.Date}
	return d.Validate()
}

// DataSource is the unified per-vendor contract. All six operations are
// safe to invoke concurrently from multiple goroutines.
type DataSource interface {
	Vendor() string

	// GetTradeCalendar returns a sorted, deduplicated set of (exchange,
	// date) pairs. An empty exchanges slice means "all configured
	// exchanges"; a nil start/end uses the vendor's configured defaults.
	GetTradeCalendar(ctx context.Context, exchanges []string, startDate, endDate *int) ([]model.CalendarEntry, error)

	// GetFutureContracts returns contracts active on date (or ever, if
	// date is nil), filtered by the optional criteria. Returns an empty
	// (not error) slice when the vendor cannot serve this query at all.
	GetFutureContracts(ctx context.Context, exchanges, symbols, productNames []string, date *int) ([]model.Contract, error)

	GetFutureDaily(ctx context.Context, req DailyRequest) ([]model.DailyBar, error)

	GetFutureHoldings(ctx context.Context, req HoldingsRequest) ([]model.HoldingsRow, error)

	// GetStockList returns a single snapshot, not date-ranged.
	GetStockList(ctx context.Context, exchanges, markets []string, listStatus string, isHSConnect *bool) ([]model.StockListEntry, error)

	// CheckAvailability is a cheap probe used by the Orchestrator to
	// decide whether to skip a dataset rather than fail a run.
	CheckAvailability(ctx context.Context) bool
}
