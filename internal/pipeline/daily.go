package pipeline

import (
	"context"
	"fmt"

	"quantbox/internal/adapter"
	"quantbox/internal/model"
	"quantbox/internal/result"
)

const dailyCollection = "future_daily"

// dailyUnit is one fetch-and-save work item: either a single symbol over
// a bounded range, or a single exchange on a single day.
type dailyUnit struct {
	exchange string
	symbol   string
	start    int
	end      int
}

// RunDaily plans its work units per the symbol/date-range shape of opts:
// with explicit symbols, one unit per symbol covering the whole bounded
// range; without them, one unit per (exchange, day) across the exchange's
// incremental (or explicit) window — granular enough that one bad day
// never aborts the rest of the backfill.
func (p *Pipeline) RunDaily(ctx context.Context, exchanges []string, opts RunOptions) *result.Accumulator {
	acc := result.New("future_daily")
	defer acc.Complete()

	units, err := p.planDailyUnits(ctx, exchanges, opts, acc)
	if err != nil {
		acc.AddError(err)
		return acc
	}

	errs := runPool(ctx, p.workerCount, units, func(ctx context.Context, u dailyUnit) error {
		req := adapter.DailyRequest{StartDate: &u.start, EndDate: &u.end}
		label := u.exchange
		if u.symbol != "" {
			req.Symbols = []string{u.symbol}
			label = u.symbol
		} else {
			req.Exchanges = []string{u.exchange}
		}

		bars, err := p.vendor.GetFutureDaily(ctx, req)
		if err != nil {
			acc.AddError(fmt.Errorf("fetch daily %s: %w", label, err))
			return err
		}
		if p.snapshots != nil {
			_ = p.snapshots.Record(ctx, dailyCollection, bars)
		}

		bars, dropped := dedupeDaily(bars)
		if u.exchange != "" {
			filtered := make([]model.DailyBar, 0, len(bars))
			for _, b := range bars {
				if b.Exchange == u.exchange {
					filtered = append(filtered, b)
				} else {
					dropped++
				}
			}
			bars = filtered
		}
		if dropped > 0 {
			acc.AddSkipped(dropped)
		}
		return batchUpsert(ctx, p, acc, dailyCollection, bars)
	})
	for _, e := range errs {
		acc.AddError(e)
	}
	return acc
}

// planDailyUnits resolves opts into concrete dailyUnits, consulting the
// incremental cursor per exchange only when no explicit window is given.
func (p *Pipeline) planDailyUnits(ctx context.Context, exchanges []string, opts RunOptions, acc *result.Accumulator) ([]dailyUnit, error) {
	if opts.hasSymbols() {
		if !opts.hasRange() {
			return nil, fmt.Errorf("daily: explicit symbols require start_date and end_date")
		}
		units := make([]dailyUnit, 0, len(opts.Symbols))
		for _, sym := range sortedStrings(opts.Symbols) {
			units = append(units, dailyUnit{symbol: sym, start: *opts.StartDate, end: *opts.EndDate})
		}
		return units, nil
	}

	var units []dailyUnit
	for _, exchange := range sortedStrings(exchanges) {
		start, end, err := p.dailyWindow(ctx, exchange, opts)
		if err != nil {
			acc.AddError(fmt.Errorf("daily cursor %s: %w", exchange, err))
			continue
		}
		if start > end {
			acc.SetMetadata("skip_reason_"+exchange, "already current")
			stored, countErr := p.gateway.Count(ctx, dailyCollection, storeFilter("exchange", exchange))
			if countErr != nil {
				acc.AddError(fmt.Errorf("daily skip count %s: %w", exchange, countErr))
				continue
			}
			acc.AddSkipped(stored)
			continue
		}
		for _, day := range dateRange(start, end) {
			units = append(units, dailyUnit{exchange: exchange, start: day, end: day})
		}
	}
	return units, nil
}

func (p *Pipeline) dailyWindow(ctx context.Context, exchange string, opts RunOptions) (int, int, error) {
	if opts.hasRange() {
		return *opts.StartDate, *opts.EndDate, nil
	}
	start, err := p.dailyCursor(ctx, exchange)
	if err != nil {
		return 0, 0, err
	}
	return start, endDateForToday(p.registry, exchange), nil
}

func (p *Pipeline) dailyCursor(ctx context.Context, exchange string) (int, error) {
	payload, found, err := p.gateway.FindLatest(ctx, dailyCollection, storeFilter("exchange", exchange), "date")
	if err != nil {
		return 0, err
	}
	if !found {
		return backfillFloor, nil
	}
	var bar model.DailyBar
	if err := unmarshalPayload(payload, &bar); err != nil {
		return 0, err
	}
	return nextDateInt(bar.Date), nil
}
