// Package vt implements the DataSource contract for vendor V-T: an
// HTTP+JSON market-data API reached through a shared vendorclient.Client.
// Response shaping follows the same "normalize immediately, never leak
// vendor dialect past this package" rule the kernel package enforces.
package vt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"quantbox/internal/adapter"
	"quantbox/internal/kernel"
	"quantbox/internal/model"
	"quantbox/internal/vendorclient"
)

// Adapter implements adapter.DataSource for V-T.
type Adapter struct {
	client *vendorclient.Client
	log    zerolog.Logger
}

// New constructs a V-T adapter. token is the vendor credential; httpClient
// lets tests substitute a fake transport. rateLimit is calls-per-second
// (the conservative default is 2.0).
func New(token string, httpClient *http.Client, rateLimit float64, log zerolog.Logger) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	transport := newTransport(token, httpClient)
	return newWithRequestFunc(transport.do, rateLimit, log)
}

// newWithRequestFunc builds an Adapter around an arbitrary RequestFunc,
// bypassing the real HTTP transport. Used by New and by tests that need a
// fake vendor response without a live server.
func newWithRequestFunc(do vendorclient.RequestFunc, rateLimit float64, log zerolog.Logger) *Adapter {
	log = log.With().Str("component", "adapter-vt").Logger()
	c := vendorclient.New(kernel.VendorVT, vendorclient.Config{CallsPerSecond: rateLimit}, do, log)
	return &Adapter{client: c, log: log}
}

// Close releases the underlying vendor client's worker goroutine.
func (a *Adapter) Close() { a.client.Close() }

func (a *Adapter) Vendor() string { return kernel.VendorVT }

func (a *Adapter) GetTradeCalendar(ctx context.Context, exchanges []string, startDate, endDate *int) ([]model.CalendarEntry, error) {
	if len(exchanges) == 0 {
		exchanges = []string{kernel.SHSE, kernel.SZSE, kernel.BSE, kernel.SHFE, kernel.DCE, kernel.CZCE, kernel.CFFEX, kernel.INE, kernel.GFEX}
	}

	var out []model.CalendarEntry
	seen := make(map[string]bool)
	for _, ex := range exchanges {
		vendorEx, err := kernel.ForVendor(ex, kernel.VendorVT, kernel.UsageAPIParameter)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adapter.ErrValidation, err)
		}
		params := map[string]any{"exchange": vendorEx}
		if startDate != nil {
			params["start_date"] = fmt.Sprintf("%d", *startDate)
		}
		if endDate != nil {
			params["end_date"] = fmt.Sprintf("%d", *endDate)
		}

		raw, err := a.client.Call(ctx, "trade_cal", params)
		if err != nil {
			return nil, classifyError(err)
		}
		rows, err := decodeRows(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adapter.ErrSchemaMismatch, err)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: %s returned no calendar rows", adapter.ErrInsufficientCoverage, ex)
		}
		for _, row := range rows {
			isOpen, _ := row["is_open"].(float64)
			if isOpen == 0 {
				continue
			}
			dateStr, ok := row["cal_date"].(string)
			if !ok {
				continue
			}
			d, err := kernel.DateToInt(dateStr)
			if err != nil {
				continue
			}
			key := fmt.Sprintf("%s|%d", ex, d)
			if seen[key] {
				continue
			}
			seen[key] = true
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

func (a *Adapter) GetFutureContracts(ctx context.Context, exchanges, symbols, productNames []string, date *int) ([]model.Contract, error) {
	if len(exchanges) == 0 {
		exchanges = []string{kernel.SHFE, kernel.DCE, kernel.CZCE, kernel.CFFEX, kernel.INE, kernel.GFEX}
	}

	var out []model.Contract
	for _, ex := range exchanges {
		vendorEx, err := kernel.ForVendor(ex, kernel.VendorVT, kernel.UsageAPIParameter)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adapter.ErrValidation, err)
		}
		params := map[string]any{"exchange": vendorEx}
		raw, err := a.client.Call(ctx, "fut_basic", params)
		if err != nil {
			return nil, classifyError(err)
		}
		rows, err := decodeRows(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adapter.ErrSchemaMismatch, err)
		}
		for _, row := range rows {
			c, ok := contractFromRow(ex, row)
			if !ok {
				continue
			}
			if date != nil && !(c.ListDate <= *date && *date <= c.DelistDate) {
				continue
			}
			if !matchesFilters(c.Symbol, symbols) {
				continue
			}
			if !matchesProductName(c.Name, productNames) {
				continue
			}
			out = append(out, c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func contractFromRow(exchange string, row map[string]any) (model.Contract, bool) {
	rawSymbol, _ := row["ts_code"].(string)
	if rawSymbol == "" {
		return model.Contract{}, false
	}
	code := stripExchangeSuffix(rawSymbol)
	if kernel.IsCanonicalExchange(exchange) == false {
		return model.Contract{}, false
	}
	if exchange == kernel.CZCE {
		if expanded, err := kernel.CZCEExpandYear(code, kernel.Today()); err == nil {
			code = expanded
		}
	}
	symbol, err := kernel.CanonicalSymbol(exchange, code)
	if err != nil {
		return model.Contract{}, false
	}

	listDateStr, _ := row["list_date"].(string)
	delistDateStr, _ := row["delist_date"].(string)
	listDate, err := kernel.DateToInt(listDateStr)
	if err != nil {
		return model.Contract{}, false
	}
	delistDate := listDate
	if delistDateStr != "" {
		if d, err := kernel.DateToInt(delistDateStr); err == nil {
			delistDate = d
		}
	}
	listTS, _ := kernel.DateIntToTimestamp(listDate)
	delistTS, _ := kernel.DateIntToTimestamp(delistDate)

	name, _ := row["name"].(string)
	return model.Contract{
		Symbol:          symbol,
		Exchange:        exchange,
		Name:            name,
		ChineseName:     name,
		ListDate:        listDate,
		DelistDate:      delistDate,
		ListDatestamp:   listTS,
		DelistDatestamp: delistTS,
	}, true
}

func (a *Adapter) GetFutureDaily(ctx context.Context, req adapter.DailyRequest) ([]model.DailyBar, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out []model.DailyBar
	units := dailyFetchUnits(req)
	for _, u := range units {
		params := map[string]any{}
		if u.symbol != "" {
			params["ts_code"] = u.symbol
		}
		if u.exchange != "" {
			vendorEx, err := kernel.ForVendor(u.exchange, kernel.VendorVT, kernel.UsageAPIParameter)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", adapter.ErrValidation, err)
			}
			params["exchange"] = vendorEx
		}
		if u.date != 0 {
			params["trade_date"] = fmt.Sprintf("%d", u.date)
		} else {
			params["start_date"] = fmt.Sprintf("%d", u.startDate)
			params["end_date"] = fmt.Sprintf("%d", u.endDate)
		}

		raw, err := a.client.Call(ctx, "fut_daily", params)
		if err != nil {
			return nil, classifyError(err)
		}
		rows, err := decodeRows(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adapter.ErrSchemaMismatch, err)
		}
		for _, row := range rows {
			bar, ok := barFromRow(row)
			if !ok || !bar.Valid() {
				continue // reject-with-diagnostic: invalid rows dropped, counted upstream by the pipeline
			}
			out = append(out, bar)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Date < out[j].Date
	})
	return out, nil
}

type dailyUnit struct {
	symbol, exchange     string
	date                 int
	startDate, endDate   int
}

// dailyFetchUnits expands a DailyRequest into per-symbol (or per-exchange)
// fetch calls; the adapter itself never fans out across trading days, only
// across the symbols/exchanges axis (day-range expansion is a single call).
func dailyFetchUnits(req adapter.DailyRequest) []dailyUnit {
	var units []dailyUnit
	targets := req.Symbols
	useExchange := false
	if len(targets) == 0 {
		targets = req.Exchanges
		useExchange = true
	}
	for _, t := range targets {
		u := dailyUnit{}
		if useExchange {
			u.exchange = t
		} else {
			u.symbol = t
		}
		if req.Date != nil {
			u.date = *req.Date
		} else {
			u.startDate = *req.StartDate
			u.endDate = *req.EndDate
		}
		units = append(units, u)
	}
	return units
}

func barFromRow(row map[string]any) (model.DailyBar, bool) {
	rawSymbol, _ := row["ts_code"].(string)
	tradeDateStr, _ := row["trade_date"].(string)
	if rawSymbol == "" || tradeDateStr == "" {
		return model.DailyBar{}, false
	}
	exchange := exchangeFromTSCode(rawSymbol)
	code := stripExchangeSuffix(rawSymbol)
	if exchange == kernel.CZCE {
		if expanded, err := kernel.CZCEExpandYear(code, kernel.Today()); err == nil {
			code = expanded
		}
	}
	symbol, err := kernel.CanonicalSymbol(exchange, code)
	if err != nil {
		return model.DailyBar{}, false
	}
	date, err := kernel.DateToInt(tradeDateStr)
	if err != nil {
		return model.DailyBar{}, false
	}
	ts, err := kernel.DateIntToTimestamp(date)
	if err != nil {
		return model.DailyBar{}, false
	}

	open, _ := row["open"].(float64)
	high, _ := row["high"].(float64)
	low, _ := row["low"].(float64)
	closeP, _ := row["close"].(float64)
	vol, _ := row["vol"].(float64)
	amount, _ := row["amount"].(float64)
	oi, _ := row["oi"].(float64)

	return model.DailyBar{
		Symbol: symbol, Exchange: exchange, Date: date, Datestamp: ts,
		Open: open, High: high, Low: low, Close: closeP,
		Volume: int64(vol), Amount: amount, OI: int64(oi),
	}, true
}

func (a *Adapter) GetFutureHoldings(ctx context.Context, req adapter.HoldingsRequest) ([]model.HoldingsRow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	dReq := adapter.DailyRequest{Symbols: req.Symbols, Exchanges: req.Exchanges, StartDate: req.StartDate, EndDate: req.EndDate, Date: req.Date}
	units := dailyFetchUnits(dReq)

	var out []model.HoldingsRow
	for _, u := range units {
		params := map[string]any{}
		if u.symbol != "" {
			params["symbol"] = u.symbol
		}
		if u.exchange != "" {
			vendorEx, err := kernel.ForVendor(u.exchange, kernel.VendorVT, kernel.UsageAPIParameter)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", adapter.ErrValidation, err)
			}
			params["exchange"] = vendorEx
		}
		if u.date != 0 {
			params["trade_date"] = fmt.Sprintf("%d", u.date)
		} else {
			params["start_date"] = fmt.Sprintf("%d", u.startDate)
			params["end_date"] = fmt.Sprintf("%d", u.endDate)
		}

		raw, err := a.client.Call(ctx, "fut_holding", params)
		if err != nil {
			return nil, classifyError(err)
		}
		rows, err := decodeRows(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adapter.ErrSchemaMismatch, err)
		}
		for _, row := range rows {
			if hr, ok := holdingsRowFromRow(row); ok {
				if !matchesProductName(hr.Symbol, req.ProductNames) {
					continue
				}
				out = append(out, hr)
			}
		}
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
		return vi > vj // descending vol within (date, symbol)
	})
	return out, nil
}

func holdingsRowFromRow(row map[string]any) (model.HoldingsRow, bool) {
	rawSymbol, _ := row["symbol"].(string)
	tradeDateStr, _ := row["trade_date"].(string)
	broker, _ := row["broker"].(string)
	if rawSymbol == "" || tradeDateStr == "" || broker == "" {
		return model.HoldingsRow{}, false
	}
	broker = stripProxyTag(broker)

	exchange := exchangeFromTSCode(rawSymbol)
	code := stripExchangeSuffix(rawSymbol)
	if exchange == kernel.CZCE {
		if expanded, err := kernel.CZCEExpandYear(code, kernel.Today()); err == nil {
			code = expanded
		}
	}
	symbol, err := kernel.CanonicalSymbol(exchange, code)
	if err != nil {
		return model.HoldingsRow{}, false
	}
	date, err := kernel.DateToInt(tradeDateStr)
	if err != nil {
		return model.HoldingsRow{}, false
	}

	return model.HoldingsRow{
		Date: date, Symbol: symbol, Exchange: exchange, Broker: broker,
		Vol: optFloat(row, "vol"), VolChg: optFloat(row, "vol_chg"),
		LongHld: optFloat(row, "long_hld"), LongChg: optFloat(row, "long_chg"),
		ShortHld: optFloat(row, "short_hld"), ShortChg: optFloat(row, "short_chg"),
	}, true
}

// stripProxyTag removes a vendor proxy-broker tag like "(agent)" from a
// broker name, keeping the canonical broker name.
func stripProxyTag(broker string) string {
	const tag = "(agent)"
	if i := indexOf(broker, tag); i >= 0 {
		return trimSpace(broker[:i])
	}
	return broker
}

func (a *Adapter) GetStockList(ctx context.Context, exchanges, markets []string, listStatus string, isHSConnect *bool) ([]model.StockListEntry, error) {
	if len(exchanges) == 0 {
		exchanges = []string{kernel.SHSE, kernel.SZSE, kernel.BSE}
	}
	if listStatus == "" {
		listStatus = model.ListStatusListed
	}

	var out []model.StockListEntry
	for _, ex := range exchanges {
		vendorEx, err := kernel.ForVendor(ex, kernel.VendorVT, kernel.UsageAPIParameter)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adapter.ErrValidation, err)
		}
		params := map[string]any{"exchange": vendorEx, "list_status": listStatus}
		raw, err := a.client.Call(ctx, "stock_basic", params)
		if err != nil {
			return nil, classifyError(err)
		}
		rows, err := decodeRows(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adapter.ErrSchemaMismatch, err)
		}
		for _, row := range rows {
			if e, ok := stockEntryFromRow(ex, row, listStatus); ok {
				if !matchesFilters(e.Market, markets) {
					continue
				}
				out = append(out, e)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func stockEntryFromRow(exchange string, row map[string]any, listStatus string) (model.StockListEntry, bool) {
	tsCode, _ := row["ts_code"].(string)
	if tsCode == "" {
		return model.StockListEntry{}, false
	}
	bareCode := stripExchangeSuffix(tsCode)
	symbol, err := kernel.NormalizeStockSymbol(bareCode)
	if err != nil {
		return model.StockListEntry{}, false
	}
	name, _ := row["name"].(string)
	listDateStr, _ := row["list_date"].(string)
	listDate, err := kernel.DateToInt(listDateStr)
	if err != nil {
		return model.StockListEntry{}, false
	}
	listTS, _ := kernel.DateIntToTimestamp(listDate)
	market, _ := row["market"].(string)
	return model.StockListEntry{
		Symbol: symbol, Name: name, Exchange: exchange,
		ListDate: listDate, ListDatestamp: listTS,
		Market: market, ListStatus: listStatus,
	}, true
}

func (a *Adapter) CheckAvailability(ctx context.Context) bool {
	_, err := a.client.Call(ctx, "trade_cal", map[string]any{"exchange": "SSE", "limit": 1})
	return err == nil
}

// classifyError maps a vendorclient error onto the adapter-level taxonomy
// by inspecting the transport's typed wrapper, falling back to a generic
// unavailable classification for anything else (network failures, 5xx,
// retry exhaustion on an unclassified transient error).
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
