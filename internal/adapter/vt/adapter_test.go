package vt

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbox/internal/adapter"
	"quantbox/internal/vendorclient"
)

func fakeDo(responses map[string]any) func(ctx context.Context, method string, params any) (any, error) {
	return func(ctx context.Context, method string, params any) (any, error) {
		return responses[method], nil
	}
}

func TestGetTradeCalendarFiltersClosedDays(t *testing.T) {
	rows := []any{
		map[string]any{"exchange": "SSE", "cal_date": "20240101", "is_open": 0.0},
		map[string]any{"exchange": "SSE", "cal_date": "20240102", "is_open": 1.0},
		map[string]any{"exchange": "SSE", "cal_date": "20240103", "is_open": 1.0},
	}
	a := newWithRequestFunc(fakeDo(map[string]any{"trade_cal": rows}), 100, zerolog.Nop())
	defer a.Close()

	entries, err := a.GetTradeCalendar(context.Background(), []string{"SHSE"}, nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 20240102, entries[0].Date)
	assert.Equal(t, 20240103, entries[1].Date)
}

func TestGetTradeCalendarFailsOnEmptyResponse(t *testing.T) {
	a := newWithRequestFunc(fakeDo(map[string]any{"trade_cal": []any{}}), 100, zerolog.Nop())
	defer a.Close()

	_, err := a.GetTradeCalendar(context.Background(), []string{"SHSE"}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrInsufficientCoverage)
}

func TestClassifyErrorMapsTransportErrors(t *testing.T) {
	assert.ErrorIs(t, classifyError(vendorclient.NewAuthError(errors.New("denied"))), adapter.ErrAuthFailure)
	assert.ErrorIs(t, classifyError(vendorclient.NewRateLimitError(errors.New("slow down"))), adapter.ErrRateLimited)
	assert.ErrorIs(t, classifyError(errors.New("boom")), adapter.ErrVendorUnavailable)
}

func TestGetFutureContractsCZCEExpansion(t *testing.T) {
	rows := []any{
		map[string]any{"ts_code": "SR501.ZCE", "name": "White Sugar 2501", "list_date": "20230601", "delist_date": "20250115"},
	}
	a := newWithRequestFunc(fakeDo(map[string]any{"fut_basic": rows}), 100, zerolog.Nop())
	defer a.Close()

	contracts, err := a.GetFutureContracts(context.Background(), []string{"CZCE"}, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "CZCE.SR2501", contracts[0].Symbol)
}

func TestGetFutureDailyDropsInvalidBars(t *testing.T) {
	rows := []any{
		map[string]any{"ts_code": "cu2403.SHF", "trade_date": "20240102", "open": 10.0, "high": 12.0, "low": 9.0, "close": 11.0, "vol": 100.0},
		map[string]any{"ts_code": "cu2403.SHF", "trade_date": "20240103", "open": 100.0, "high": 12.0, "low": 9.0, "close": 11.0, "vol": 100.0}, // invalid: open > high
	}
	a := newWithRequestFunc(fakeDo(map[string]any{"fut_daily": rows}), 100, zerolog.Nop())
	defer a.Close()

	start, end := 20240101, 20240110
	bars, err := a.GetFutureDaily(context.Background(), adapter.DailyRequest{Symbols: []string{"SHFE.cu2403"}, StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 20240102, bars[0].Date)
}

func TestGetFutureDailyValidation(t *testing.T) {
	a := newWithRequestFunc(fakeDo(nil), 100, zerolog.Nop())
	defer a.Close()

	_, err := a.GetFutureDaily(context.Background(), adapter.DailyRequest{})
	assert.ErrorIs(t, err, adapter.ErrValidation)

	start, end := 20240110, 20240101
	_, err = a.GetFutureDaily(context.Background(), adapter.DailyRequest{Symbols: []string{"SHFE.cu2403"}, StartDate: &start, EndDate: &end})
	assert.ErrorIs(t, err, adapter.ErrValidation)
}

func TestGetFutureHoldingsDescendingVolume(t *testing.T) {
	rows := []any{
		map[string]any{"symbol": "cu2403.SHF", "trade_date": "20240115", "broker": "Broker A (agent)", "vol": 50.0},
		map[string]any{"symbol": "cu2403.SHF", "trade_date": "20240115", "broker": "Broker B", "vol": 200.0},
	}
	a := newWithRequestFunc(fakeDo(map[string]any{"fut_holding": rows}), 100, zerolog.Nop())
	defer a.Close()

	date := 20240115
	holdings, err := a.GetFutureHoldings(context.Background(), adapter.HoldingsRequest{Symbols: []string{"SHFE.cu2403"}, Date: &date})
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, "Broker B", holdings[0].Broker)
	assert.Equal(t, "Broker A", holdings[1].Broker)
}

func TestGetStockListSymbolRouting(t *testing.T) {
	rows := []any{
		map[string]any{"ts_code": "600000.SH", "name": "Pudong Bank", "list_date": "19991110", "market": "主板"},
	}
	a := newWithRequestFunc(fakeDo(map[string]any{"stock_basic": rows}), 100, zerolog.Nop())
	defer a.Close()

	entries, err := a.GetStockList(context.Background(), []string{"SHSE"}, nil, "", nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "SHSE.600000", entries[0].Symbol)
}
