package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"quantbox/internal/model"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return NewGateway(db)
}

type upsertableCalendar = model.CalendarEntry

func TestBulkUpsertInsertsThenDedupsUnchanged(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	entries := []Upsertable{
		upsertableCalendar{Exchange: "SHFE", Date: 20240102, Datestamp: 1704153600},
		upsertableCalendar{Exchange: "SHFE", Date: 20240103, Datestamp: 1704240000},
	}
	inserted, modified, unchanged, err := g.BulkUpsert(ctx, "trade_calendar", entries)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)
	require.Equal(t, 0, modified)
	require.Equal(t, 0, unchanged)

	inserted, modified, unchanged, err = g.BulkUpsert(ctx, "trade_calendar", entries)
	require.NoError(t, err)
	require.Equal(t, 0, inserted)
	require.Equal(t, 0, modified)
	require.Equal(t, 2, unchanged)

	count, err := g.Count(ctx, "trade_calendar", Filter{"exchange": "SHFE"})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestBulkUpsertModifiesChangedPayload(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	bar := model.DailyBar{Symbol: "SHFE.cu2403", Exchange: "SHFE", Date: 20240102, Open: 10, High: 12, Low: 9, Close: 11, Volume: 100}
	_, _, _, err := g.BulkUpsert(ctx, "future_daily", []Upsertable{bar})
	require.NoError(t, err)

	bar.Close = 11.5
	inserted, modified, unchanged, err := g.BulkUpsert(ctx, "future_daily", []Upsertable{bar})
	require.NoError(t, err)
	require.Equal(t, 0, inserted)
	require.Equal(t, 1, modified)
	require.Equal(t, 0, unchanged)
}

func TestFindLatestReturnsMostRecentByDate(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	entries := []Upsertable{
		upsertableCalendar{Exchange: "SHFE", Date: 20240102, Datestamp: 1},
		upsertableCalendar{Exchange: "SHFE", Date: 20240105, Datestamp: 2},
	}
	_, _, _, err := g.BulkUpsert(ctx, "trade_calendar", entries)
	require.NoError(t, err)

	payload, found, err := g.FindLatest(ctx, "trade_calendar", Filter{"exchange": "SHFE"}, "date")
	require.NoError(t, err)
	require.True(t, found)

	var e model.CalendarEntry
	require.NoError(t, json.Unmarshal(payload, &e))
	require.Equal(t, 20240105, e.Date)
}
