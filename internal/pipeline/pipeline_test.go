package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbox/internal/adapter"
	"quantbox/internal/config"
	"quantbox/internal/model"
	"quantbox/internal/result"
	"quantbox/internal/store"
)

type fakeDataSource struct {
	calendar []model.CalendarEntry
	daily    []model.DailyBar
	holdings []model.HoldingsRow
}

func (f *fakeDataSource) Vendor() string { return "V-T" }
func (f *fakeDataSource) GetTradeCalendar(ctx context.Context, exchanges []string, start, end *int) ([]model.CalendarEntry, error) {
	return f.calendar, nil
}
func (f *fakeDataSource) GetFutureContracts(ctx context.Context, exchanges, symbols, productNames []string, date *int) ([]model.Contract, error) {
	return nil, nil
}
func (f *fakeDataSource) GetFutureDaily(ctx context.Context, req adapter.DailyRequest) ([]model.DailyBar, error) {
	return f.daily, nil
}
func (f *fakeDataSource) GetFutureHoldings(ctx context.Context, req adapter.HoldingsRequest) ([]model.HoldingsRow, error) {
	return f.holdings, nil
}
func (f *fakeDataSource) GetStockList(ctx context.Context, exchanges, markets []string, listStatus string, isHSConnect *bool) ([]model.StockListEntry, error) {
	return nil, nil
}
func (f *fakeDataSource) CheckAvailability(ctx context.Context) bool { return true }

func testRegistry(t *testing.T) *config.Registry {
	t.Helper()
	path := t.TempDir() + "/quantbox.toml"
	toml := `
[database]
uri = "` + t.TempDir() + `/quantbox.db"

[exchanges.SHFE]
name = "Shanghai Futures Exchange"
market_type = "futures"
close_hour = 15
`
	require.NoError(t, writeFile(path, toml))
	reg, err := config.Load(path)
	require.NoError(t, err)
	return reg
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestRunCalendarInsertsNewEntriesOnce(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(context.Background()))
	gateway := store.NewGateway(db)

	ds := &fakeDataSource{calendar: []model.CalendarEntry{
		{Exchange: "SHFE", Date: 20240102, Datestamp: 1704153600},
		{Exchange: "SHFE", Date: 20240103, Datestamp: 1704240000},
	}}
	reg := testRegistry(t)
	p := New(ds, gateway, reg, zerolog.Nop())

	acc := p.RunCalendar(context.Background(), []string{"SHFE"}, RunOptions{})
	require.Empty(t, acc.Errors())
	require.Equal(t, 2, acc.Inserted())

	acc2 := p.RunCalendar(context.Background(), []string{"SHFE"}, RunOptions{})
	require.Empty(t, acc2.Errors())
	require.Equal(t, 0, acc2.Inserted())
	require.Equal(t, 2, acc2.Skipped())
}

func TestPlanDailyUnitsRequiresRangeWithSymbols(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(context.Background()))
	gateway := store.NewGateway(db)

	p := New(&fakeDataSource{}, gateway, testRegistry(t), zerolog.Nop())
	acc := result.New("future_daily")

	_, err = p.planDailyUnits(context.Background(), []string{"SHFE"}, RunOptions{Symbols: []string{"SHFE.cu2403"}}, acc)
	require.Error(t, err)
}

func TestPlanDailyUnitsSymbolModeOneUnitPerSymbol(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(context.Background()))
	gateway := store.NewGateway(db)

	p := New(&fakeDataSource{}, gateway, testRegistry(t), zerolog.Nop())
	acc := result.New("future_daily")

	start, end := 20240101, 20240110
	units, err := p.planDailyUnits(context.Background(), []string{"SHFE"}, RunOptions{
		Symbols:   []string{"SHFE.cu2403", "SHFE.au2406"},
		StartDate: &start,
		EndDate:   &end,
	}, acc)
	require.NoError(t, err)
	require.Len(t, units, 2)
	for _, u := range units {
		assert.Equal(t, start, u.start)
		assert.Equal(t, end, u.end)
		assert.Empty(t, u.exchange)
	}
}

func TestPlanDailyUnitsExchangeModeOneUnitPerDay(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(context.Background()))
	gateway := store.NewGateway(db)

	p := New(&fakeDataSource{}, gateway, testRegistry(t), zerolog.Nop())
	acc := result.New("future_daily")

	start, end := 20240102, 20240104
	units, err := p.planDailyUnits(context.Background(), []string{"SHFE"}, RunOptions{StartDate: &start, EndDate: &end}, acc)
	require.NoError(t, err)
	require.Len(t, units, 3)
	for _, u := range units {
		assert.Equal(t, "SHFE", u.exchange)
		assert.Equal(t, u.start, u.end)
	}
}

func TestRunDailyDropsInvalidAndDuplicateBars(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(context.Background()))
	gateway := store.NewGateway(db)

	ds := &fakeDataSource{daily: []model.DailyBar{
		{Symbol: "SHFE.cu2403", Exchange: "SHFE", Date: 20240102, Open: 10, High: 12, Low: 9, Close: 11},
		{Symbol: "SHFE.cu2403", Exchange: "SHFE", Date: 20240102, Open: 10, High: 12, Low: 9, Close: 11}, // duplicate
		{Symbol: "SHFE.cu2403", Exchange: "SHFE", Date: 20240103, Open: 100, High: 12, Low: 9, Close: 11}, // invalid: open > high
	}}
	p := New(ds, gateway, testRegistry(t), zerolog.Nop())

	start, end := 20240102, 20240102
	acc := p.RunDaily(context.Background(), []string{"SHFE"}, RunOptions{StartDate: &start, EndDate: &end})
	require.Empty(t, acc.Errors())
	assert.Equal(t, 1, acc.Inserted())
	assert.Equal(t, 2, acc.Skipped()) // one duplicate, one invalid
}

func TestRunHoldingsDedupSkipsDuplicates(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(context.Background()))
	gateway := store.NewGateway(db)

	vol := 50.0
	ds := &fakeDataSource{holdings: []model.HoldingsRow{
		{Date: 20240115, Symbol: "SHFE.cu2403", Exchange: "SHFE", Broker: "Broker A", Vol: &vol},
		{Date: 20240115, Symbol: "SHFE.cu2403", Exchange: "SHFE", Broker: "Broker A", Vol: &vol}, // duplicate
	}}
	p := New(ds, gateway, testRegistry(t), zerolog.Nop())

	start, end := 20240115, 20240115
	acc := p.RunHoldings(context.Background(), []string{"SHFE"}, RunOptions{
		Symbols:   []string{"SHFE.cu2403"},
		StartDate: &start,
		EndDate:   &end,
	})
	require.Empty(t, acc.Errors())
	assert.Equal(t, 1, acc.Inserted())
	assert.Equal(t, 1, acc.Skipped())
}
