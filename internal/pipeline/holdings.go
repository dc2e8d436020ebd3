package pipeline

import (
	"context"
	"fmt"

	"quantbox/internal/adapter"
	"quantbox/internal/model"
	"quantbox/internal/result"
)

const holdingsCollection = "future_holdings"

// holdingsUnit is one fetch-and-save work item: either an explicit symbol
// set on a single day, or a single exchange on a single trading day.
type holdingsUnit struct {
	exchange string
	symbols  []string
	date     int
}

// RunHoldings plans its work units per the symbol/date-range shape of
// opts. Without explicit symbols, the window is expanded against the
// stored trade calendar for each exchange so non-trading days are never
// fetched; with explicit symbols, the calendar expansion is bypassed and
// every day in the bounded range becomes one (symbol set, day) unit.
func (p *Pipeline) RunHoldings(ctx context.Context, exchanges []string, opts RunOptions) *result.Accumulator {
	acc := result.New("future_holdings")
	defer acc.Complete()

	units, err := p.planHoldingsUnits(ctx, exchanges, opts, acc)
	if err != nil {
		acc.AddError(err)
		return acc
	}

	errs := runPool(ctx, p.workerCount, units, func(ctx context.Context, u holdingsUnit) error {
		req := adapter.HoldingsRequest{Date: &u.date}
		label := u.exchange
		if len(u.symbols) > 0 {
			req.Symbols = u.symbols
			label = fmt.Sprintf("%d symbols", len(u.symbols))
		} else {
			req.Exchanges = []string{u.exchange}
		}

		rows, err := p.vendor.GetFutureHoldings(ctx, req)
		if err != nil {
			acc.AddError(fmt.Errorf("fetch holdings %s: %w", label, err))
			return err
		}
		if p.snapshots != nil {
			_ = p.snapshots.Record(ctx, holdingsCollection, rows)
		}

		rows, dropped := dedupeHoldings(rows)
		if u.exchange != "" {
			filtered := make([]model.HoldingsRow, 0, len(rows))
			for _, r := range rows {
				if r.Exchange == u.exchange {
					filtered = append(filtered, r)
				} else {
					dropped++
				}
			}
			rows = filtered
		}
		if dropped > 0 {
			acc.AddSkipped(dropped)
		}
		return batchUpsert(ctx, p, acc, holdingsCollection, rows)
	})
	for _, e := range errs {
		acc.AddError(e)
	}
	return acc
}

func (p *Pipeline) planHoldingsUnits(ctx context.Context, exchanges []string, opts RunOptions, acc *result.Accumulator) ([]holdingsUnit, error) {
	if opts.hasSymbols() {
		if !opts.hasRange() {
			return nil, fmt.Errorf("holdings: explicit symbols require start_date and end_date")
		}
		symbols := sortedStrings(opts.Symbols)
		units := make([]holdingsUnit, 0)
		for _, day := range dateRange(*opts.StartDate, *opts.EndDate) {
			units = append(units, holdingsUnit{symbols: symbols, date: day})
		}
		return units, nil
	}

	var units []holdingsUnit
	for _, exchange := range sortedStrings(exchanges) {
		start, end, err := p.holdingsWindow(ctx, exchange, opts)
		if err != nil {
			acc.AddError(fmt.Errorf("holdings cursor %s: %w", exchange, err))
			continue
		}
		if start > end {
			acc.SetMetadata("skip_reason_"+exchange, "already current")
			stored, countErr := p.gateway.Count(ctx, holdingsCollection, storeFilter("exchange", exchange))
			if countErr != nil {
				acc.AddError(fmt.Errorf("holdings skip count %s: %w", exchange, countErr))
				continue
			}
			acc.AddSkipped(stored)
			continue
		}
		days, err := p.tradingDays(ctx, exchange, start, end)
		if err != nil {
			acc.AddError(fmt.Errorf("holdings calendar %s: %w", exchange, err))
			continue
		}
		for _, day := range days {
			units = append(units, holdingsUnit{exchange: exchange, date: day})
		}
	}
	return units, nil
}

func (p *Pipeline) holdingsWindow(ctx context.Context, exchange string, opts RunOptions) (int, int, error) {
	if opts.hasRange() {
		return *opts.StartDate, *opts.EndDate, nil
	}
	start, err := p.holdingsCursor(ctx, exchange)
	if err != nil {
		return 0, 0, err
	}
	return start, endDateForToday(p.registry, exchange), nil
}

func (p *Pipeline) holdingsCursor(ctx context.Context, exchange string) (int, error) {
	payload, found, err := p.gateway.FindLatest(ctx, holdingsCollection, storeFilter("exchange", exchange), "date")
	if err != nil {
		return 0, err
	}
	if !found {
		return backfillFloor, nil
	}
	var row model.HoldingsRow
	if err := unmarshalPayload(payload, &row); err != nil {
		return 0, err
	}
	return nextDateInt(row.Date), nil
}
