// Package vg implements the DataSource contract for vendor V-G. V-G ships
// as a native SDK unavailable on Windows; this package refuses to
// construct on that platform rather than silently degrading. V-G also does
// not provide historical contract listings, so GetFutureContracts always
// returns an empty, non-error result with a diagnostic note.
package vg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"quantbox/internal/adapter"
	"quantbox/internal/kernel"
	"quantbox/internal/model"
	"quantbox/internal/vendorclient"
)

// vgSymbolBatchCap is V-G's per-call symbol cap. Inferred, not
// vendor-confirmed; fixed as a constant rather than exposed as
// configuration until confirmed against production traffic.
const vgSymbolBatchCap = 50

// ErrUnsupportedPlatform is returned by New on a platform V-G's native SDK
// does not support.
var ErrUnsupportedPlatform = fmt.Errorf("%w: V-G adapter is unavailable on this platform", adapter.ErrUnsupportedOperation)

// Adapter implements adapter.DataSource for V-G.
type Adapter struct {
	client *vendorclient.Client
	log    zerolog.Logger
	// contractsUnsupported documents the diagnostic declared at
	// construction for GetFutureContracts.
	contractsUnsupported string
}

// New constructs a V-G adapter. Returns ErrUnsupportedPlatform immediately
// on an unsupported OS rather than constructing a half-working client.
func New(token string, httpClient *http.Client, rateLimit float64, log zerolog.Logger) (*Adapter, error) {
	if runtime.GOOS == "windows" {
		return nil, ErrUnsupportedPlatform
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	transport := newTransport(token, httpClient)
	return newWithRequestFunc(transport.do, rateLimit, log), nil
}

func newWithRequestFunc(do vendorclient.RequestFunc, rateLimit float64, log zerolog.Logger) *Adapter {
	log = log.With().Str("component", "adapter-vg").Logger()
	c := vendorclient.New(kernel.VendorVG, vendorclient.Config{CallsPerSecond: rateLimit}, do, log)
	return &Adapter{
		client: c,
		log:    log,
		contractsUnsupported: "V-G does not provide historical contract listings; only trade_calendar, " +
			"future_daily, future_holdings, and stock_list are supported",
	}
}

func (a *Adapter) Close() { a.client.Close() }

func (a *Adapter) Vendor() string { return kernel.VendorVG }

func (a *Adapter) GetTradeCalendar(ctx context.Context, exchanges []string, startDate, endDate *int) ([]model.CalendarEntry, error) {
	if len(exchanges) == 0 {
		exchanges = []string{kernel.SHSE, kernel.SZSE}
	}
	var out []model.CalendarEntry
	for _, ex := range exchanges {
		params := map[string]any{"exchange": ex}
		if startDate != nil {
			params["start_date"] = *startDate
		}
		if endDate != nil {
			params["end_date"] = *endDate
		}
		raw, err := a.client.Call(ctx, "get_trading_dates", params)
		if err != nil {
			return nil, classifyError(err)
		}
		dates, err := decodeIntSlice(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adapter.ErrSchemaMismatch, err)
		}
		if len(dates) == 0 {
			return nil, fmt.Errorf("%w: %s returned no trading dates", adapter.ErrInsufficientCoverage, ex)
		}
		for _, d := range dates {
			ts, err := kernel.DateIntToTimestamp(d)
			if err != nil {
				continue
			}
			out = append(out, model.CalendarEntry{Exchange: ex, Date: d, Datestamp: ts})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exchange != out[j].Exchange {
			return out[i].Exchange < out[j].Exchange
		}
		return out[i].Date < out[j].Date
	})
	return out, nil
}

// GetFutureContracts always returns an empty result: V-G cannot serve this
// query at all. The limitation is documented in a.contractsUnsupported
// rather than returned as an error.
func (a *Adapter) GetFutureContracts(ctx context.Context, exchanges, symbols, productNames []string, date *int) ([]model.Contract, error) {
	return nil, nil
}

// Diagnostic exposes the declared limitation for GetFutureContracts.
func (a *Adapter) Diagnostic() string { return a.contractsUnsupported }

func (a *Adapter) GetFutureDaily(ctx context.Context, req adapter.DailyRequest) ([]model.DailyBar, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	batches := batchSymbols(req.Symbols, vgSymbolBatchCap)
	var out []model.DailyBar
	var batchErrs []error
	for _, batch := range batches {
		params := map[string]any{}
		if len(batch) > 0 {
			params["symbols"] = batch
		}
		if len(req.Exchanges) > 0 {
			params["exchanges"] = req.Exchanges
		}
		if req.Date != nil {
			params["date"] = *req.Date
		} else {
			params["start_date"] = *req.StartDate
			params["end_date"] = *req.EndDate
		}

		raw, err := a.client.Call(ctx, "get_future_daily", params)
		if err != nil {
			batchErrs = append(batchErrs, classifyError(err))
			continue
		}
		rows, err := decodeRows(raw)
		if err != nil {
			batchErrs = append(batchErrs, fmt.Errorf("%w: %v", adapter.ErrSchemaMismatch, err))
			continue
		}
		for _, row := range rows {
			bar, ok := barFromRow(row)
			if !ok || !bar.Valid() {
				continue
			}
			out = append(out, bar)
		}
	}
	if err := degradedBatchError(a.log, "get_future_daily", len(batches), batchErrs); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Date < out[j].Date
	})
	return out, nil
}

// degradedBatchError fails the call only when every one of total batches
// errored; a partial failure is logged and swallowed so the caller still
// gets whatever batches did succeed.
func degradedBatchError(log zerolog.Logger, method string, total int, batchErrs []error) error {
	if len(batchErrs) == 0 {
		return nil
	}
	if len(batchErrs) == total {
		return batchErrs[0]
	}
	for _, e := range batchErrs {
		log.Warn().Err(e).Str("method", method).Msg("batch degraded, continuing with partial results")
	}
	return nil
}

func (a *Adapter) GetFutureHoldings(ctx context.Context, req adapter.HoldingsRequest) ([]model.HoldingsRow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	batches := batchSymbols(req.Symbols, vgSymbolBatchCap)
	var out []model.HoldingsRow
	var batchErrs []error
	for _, batch := range batches {
		params := map[string]any{}
		if len(batch) > 0 {
			params["symbols"] = batch
		}
		if len(req.Exchanges) > 0 {
			params["exchanges"] = req.Exchanges
		}
		if req.Date != nil {
			params["date"] = *req.Date
		} else {
			params["start_date"] = *req.StartDate
			params["end_date"] = *req.EndDate
		}

		raw, err := a.client.Call(ctx, "get_future_holdings", params)
		if err != nil {
			batchErrs = append(batchErrs, classifyError(err))
			continue
		}
		rows, err := decodeRows(raw)
		if err != nil {
			batchErrs = append(batchErrs, fmt.Errorf("%w: %v", adapter.ErrSchemaMismatch, err))
			continue
		}
		for _, row := range rows {
			if hr, ok := holdingsRowFromRow(row); ok {
				out = append(out, hr)
			}
		}
	}
	if err := degradedBatchError(a.log, "get_future_holdings", len(batches), batchErrs); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		vi, vj := 0.0, 0.0
		if out[i].Vol != nil {
			vi = *out[i].Vol
		}
		if out[j].Vol != nil {
			vj = *out[j].Vol
		}
		return vi > vj
	})
	return out, nil
}

func (a *Adapter) GetStockList(ctx context.Context, exchanges, markets []string, listStatus string, isHSConnect *bool) ([]model.StockListEntry, error) {
	if len(exchanges) == 0 {
		exchanges = []string{kernel.SHSE, kernel.SZSE}
	}
	params := map[string]any{"exchanges": exchanges}
	if listStatus != "" {
		params["list_status"] = listStatus
	}
	if isHSConnect != nil {
		params["is_hs_connect"] = *isHSConnect
	}

	raw, err := a.client.Call(ctx, "get_stock_list", params)
	if err != nil {
		return nil, classifyError(err)
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adapter.ErrSchemaMismatch, err)
	}

	var out []model.StockListEntry
	for _, row := range rows {
		if e, ok := stockEntryFromRow(row); ok {
			if !matchesFilters(e.Market, markets) {
				continue
			}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (a *Adapter) CheckAvailability(ctx context.Context) bool {
	_, err := a.client.Call(ctx, "ping", nil)
	return err == nil
}

// classifyError maps a vendorclient error onto the adapter-level taxonomy
// by inspecting the transport's typed wrapper, falling back to a generic
// unavailable classification for anything else.
func classifyError(err error) error {
	var authErr *vendorclient.AuthError
	if errors.As(err, &authErr) {
		return fmt.Errorf("%w: %v", adapter.ErrAuthFailure, err)
	}
	var rateLimitErr *vendorclient.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return fmt.Errorf("%w: %v", adapter.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", adapter.ErrVendorUnavailable, err)
}

// batchSymbols splits symbols into vgSymbolBatchCap-sized chunks, preserving
// order. A nil/empty input yields a single empty batch so exchange-only
// queries still issue one call.
func batchSymbols(symbols []string, cap int) [][]string {
	if len(symbols) == 0 {
		return [][]string{nil}
	}
	var batches [][]string
	for i := 0; i < len(symbols); i += cap {
		end := i + cap
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[i:end])
	}
	return batches
}
