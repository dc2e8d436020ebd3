package vg

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

func TestGetFutureContractsAlwaysEmpty(t *testing.T) {
	a := newWithRequestFunc(fakeDo(nil), 100, zerolog.Nop())
	defer a.Close()

	contracts, err := a.GetFutureContracts(context.Background(), nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, contracts)
	assert.NotEmpty(t, a.Diagnostic())
}

func TestBatchSymbolsRespectsCap(t *testing.T) {
	symbols := make([]string, 120)
	for i := range symbols {
		symbols[i] = "SHFE.cu2403"
	}
	batches := batchSymbols(symbols, vgSymbolBatchCap)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 50)
	assert.Len(t, batches[1], 50)
	assert.Len(t, batches[2], 20)
}

func TestGetFutureDailyBatchesAcrossCalls(t *testing.T) {
	calls := 0
	do := func(ctx context.Context, method string, params any) (any, error) {
		calls++
		return []any{
			map[string]any{"symbol": "SHFE.cu2403", "date": 20240102.0, "open": 10.0, "high": 12.0, "low": 9.0, "close": 11.0, "volume": 5.0},
		}, nil
	}
	symbols := make([]string, 60)
	for i := range symbols {
		symbols[i] = "SHFE.cu2403"
	}
	a := newWithRequestFunc(do, 100, zerolog.Nop())
	defer a.Close()

	date := 20240102
	bars, err := a.GetFutureDaily(context.Background(), adapter.DailyRequest{Symbols: symbols, Date: &date})
	require.NoError(t, err)
	assert.Equal(t, 2, calls) // 60 symbols / 50 cap = 2 batches
	assert.Len(t, bars, 2)
}

func TestGetFutureDailyDegradesOnPartialBatchFailure(t *testing.T) {
	calls := 0
	do := func(ctx context.Context, method string, params any) (any, error) {
		calls++
		if calls == 1 {
			return nil, vendorclient.NewAuthError(errors.New("token expired"))
		}
		return []any{
			map[string]any{"symbol": "SHFE.cu2403", "date": 20240102.0, "open": 10.0, "high": 12.0, "low": 9.0, "close": 11.0, "volume": 5.0},
		}, nil
	}
	symbols := make([]string, 60)
	for i := range symbols {
		symbols[i] = "SHFE.cu2403"
	}
	a := newWithRequestFunc(do, 100, zerolog.Nop())
	defer a.Close()

	date := 20240102
	bars, err := a.GetFutureDaily(context.Background(), adapter.DailyRequest{Symbols: symbols, Date: &date})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, bars, 1) // the failed batch is dropped, the succeeding one survives
}

func TestGetFutureDailyFailsWhenAllBatchesFail(t *testing.T) {
	do := func(ctx context.Context, method string, params any) (any, error) {
		return nil, vendorclient.NewAuthError(errors.New("token expired"))
	}
	a := newWithRequestFunc(do, 100, zerolog.Nop())
	defer a.Close()

	date := 20240102
	_, err := a.GetFutureDaily(context.Background(), adapter.DailyRequest{Symbols: []string{"SHFE.cu2403"}, Date: &date})
	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrAuthFailure)
}

func TestGetTradeCalendarFailsOnEmptyResponse(t *testing.T) {
	do := func(ctx context.Context, method string, params any) (any, error) {
		return []any{}, nil
	}
	a := newWithRequestFunc(do, 100, zerolog.Nop())
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
