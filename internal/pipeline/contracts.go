package pipeline

import (
	"context"
	"fmt"

	"quantbox/internal/model"
	"quantbox/internal/result"
)

const contractsCollection = "future_contracts"

// RunContracts plans one work unit per exchange. Contracts are refreshed
// in full per exchange rather than incrementally by list date, since a
// vendor may backfill or correct a listing's delist_date well after the
// fact. opts.Symbols narrows the fetch to those symbols; opts.Date (or
// opts.StartDate, accepted as an alias for a single as-of date) restricts
// to contracts active on that date instead of ever-listed.
func (p *Pipeline) RunContracts(ctx context.Context, exchanges []string, opts RunOptions) *result.Accumulator {
	acc := result.New("future_contracts")
	defer acc.Complete()

	asOf := opts.Date
	if asOf == nil {
		asOf = opts.StartDate
	}

	units := sortedStrings(exchanges)
	errs := runPool(ctx, p.workerCount, units, func(ctx context.Context, exchange string) error {
		rows, err := p.vendor.GetFutureContracts(ctx, []string{exchange}, opts.Symbols, nil, asOf)
		if err != nil {
			acc.AddError(fmt.Errorf("fetch contracts %s: %w", exchange, err))
			return err
		}
		if len(rows) == 0 {
			acc.SetMetadata("skip_reason_"+exchange, "vendor returned no contracts")
			return nil
		}
		if p.snapshots != nil {
			_ = p.snapshots.Record(ctx, contractsCollection, rows)
		}

		rows, dropped := dedupeContracts(rows)
		items := make([]model.Contract, 0, len(rows))
		for _, r := range rows {
			if r.Exchange == exchange {
				items = append(items, r)
			} else {
				dropped++
			}
		}
		if dropped > 0 {
			acc.AddSkipped(dropped)
		}
		return batchUpsert(ctx, p, acc, contractsCollection, items)
	})
	for _, e := range errs {
		acc.AddError(e)
	}
	return acc
}
