package orchestrator

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"quantbox/internal/adapter"
	"quantbox/internal/config"
	"quantbox/internal/model"
	"quantbox/internal/pipeline"
	"quantbox/internal/store"
)

type unavailableDataSource struct{}

func (f *unavailableDataSource) Vendor() string { return "V-T" }
func (f *unavailableDataSource) GetTradeCalendar(ctx context.Context, exchanges []string, start, end *int) ([]model.CalendarEntry, error) {
	return nil, nil
}
func (f *unavailableDataSource) GetFutureContracts(ctx context.Context, exchanges, symbols, productNames []string, date *int) ([]model.Contract, error) {
	return nil, nil
}
func (f *unavailableDataSource) GetFutureDaily(ctx context.Context, req adapter.DailyRequest) ([]model.DailyBar, error) {
	return nil, nil
}
func (f *unavailableDataSource) GetFutureHoldings(ctx context.Context, req adapter.HoldingsRequest) ([]model.HoldingsRow, error) {
	return nil, nil
}
func (f *unavailableDataSource) GetStockList(ctx context.Context, exchanges, markets []string, listStatus string, isHSConnect *bool) ([]model.StockListEntry, error) {
	return nil, nil
}
func (f *unavailableDataSource) CheckAvailability(ctx context.Context) bool { return false }

func TestSaveAllSkipsEverythingWhenVendorUnavailable(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(context.Background()))
	gateway := store.NewGateway(db)

	toml := `
[database]
uri = "` + t.TempDir() + `/x.db"

[exchanges.SHFE]
market_type = "futures"
`
	path := t.TempDir() + "/cfg.toml"
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))
	reg, err := config.Load(path)
	require.NoError(t, err)

	ds := &unavailableDataSource{}
	p := pipeline.New(ds, gateway, reg, zerolog.Nop())
	orch := New(ds, p, nil, zerolog.Nop())

	results := orch.SaveAll(context.Background(), []string{"SHFE"})
	require.Len(t, results, 5)
	for _, acc := range results {
		require.Equal(t, 0, acc.Inserted())
	}
}
