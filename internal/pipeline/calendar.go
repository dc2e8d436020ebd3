package pipeline

import (
	"context"
	"fmt"

	"quantbox/internal/kernel"
	"quantbox/internal/model"
	"quantbox/internal/result"
)

// calendarCollection names the document store table this pipeline writes.
const calendarCollection = "trade_calendar"

// RunCalendar plans one work unit per exchange. An explicit start/end in
// opts replaces the incremental cursor for every unit in this run; the
// zero-value RunOptions keeps the cursor-driven incremental behavior.
func (p *Pipeline) RunCalendar(ctx context.Context, exchanges []string, opts RunOptions) *result.Accumulator {
	acc := result.New("trade_calendar")
	defer acc.Complete()

	units := sortedStrings(exchanges)
	errs := runPool(ctx, p.workerCount, units, func(ctx context.Context, exchange string) error {
		start, end, err := p.calendarWindow(ctx, exchange, opts)
		if err != nil {
			acc.AddError(fmt.Errorf("calendar cursor %s: %w", exchange, err))
			return err
		}
		if start > end {
			acc.SetMetadata("skip_reason_"+exchange, "already current")
			stored, countErr := p.gateway.Count(ctx, calendarCollection, storeFilter("exchange", exchange))
			if countErr != nil {
				acc.AddError(fmt.Errorf("calendar skip count %s: %w", exchange, countErr))
				return countErr
			}
			acc.AddSkipped(stored)
			return nil
		}

		entries, err := p.vendor.GetTradeCalendar(ctx, []string{exchange}, &start, &end)
		if err != nil {
			acc.AddError(fmt.Errorf("fetch calendar %s: %w", exchange, err))
			return err
		}
		if p.snapshots != nil {
			_ = p.snapshots.Record(ctx, calendarCollection, entries)
		}

		entries, dropped := dedupeCalendar(entries)
		if dropped > 0 {
			acc.AddSkipped(dropped)
		}
		items := make([]model.CalendarEntry, 0, len(entries))
		for _, e := range entries {
			if e.Exchange == exchange {
				items = append(items, e)
			}
		}
		return batchUpsert(ctx, p, acc, calendarCollection, items)
	})
	for _, e := range errs {
		acc.AddError(e)
	}
	return acc
}

// calendarWindow resolves the [start, end] date window for exchange: an
// explicit range in opts overrides the stored cursor entirely.
func (p *Pipeline) calendarWindow(ctx context.Context, exchange string, opts RunOptions) (int, int, error) {
	if opts.hasRange() {
		return *opts.StartDate, *opts.EndDate, nil
	}
	start, err := p.calendarCursor(ctx, exchange)
	if err != nil {
		return 0, 0, err
	}
	return start, endDateForToday(p.registry, exchange), nil
}

// calendarCursor returns the first date the caller still needs for
// exchange: the day after the latest stored entry, or the exchange's
// backfill floor if nothing is stored yet.
func (p *Pipeline) calendarCursor(ctx context.Context, exchange string) (int, error) {
	payload, found, err := p.gateway.FindLatest(ctx, calendarCollection, storeFilter("exchange", exchange), "date")
	if err != nil {
		return 0, err
	}
	if !found {
		return backfillFloor, nil
	}
	var entry model.CalendarEntry
	if err := unmarshalPayload(payload, &entry); err != nil {
		return 0, err
	}
	return nextDateInt(entry.Date), nil
}

// backfillFloor is the earliest date pulled for a dataset with no stored
// cursor yet. Chinese futures exchanges as modeled here have no history
// before this date.
const backfillFloor = 19900101

func nextDateInt(d int) int {
	ts, err := kernel.DateIntToTimestamp(d)
	if err != nil {
		return d
	}
	return kernel.TimestampToDateInt(ts + 86400)
}
