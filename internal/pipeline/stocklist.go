package pipeline

import (
	"context"
	"fmt"

	"quantbox/internal/model"
	"quantbox/internal/result"
)

const stockListCollection = "stock_list"

// RunStockList plans one work unit per exchange. The stock list is a
// point-in-time snapshot, not date-ranged, so there is no cursor — every
// run re-fetches and relies on the gateway's byte-equal check to keep a
// quiet day from counting as a modification.
//
// A run is not a wholesale rewrite of the snapshot: it only upserts what the vendor currently reports, it never deletes a
// previously-stored symbol the vendor has since dropped (e.g. a stock that
// moved from list_status "L" to "D" in a way the vendor stopped reporting
// under the old symbol entirely). A caller that needs an exact mirror of
// the vendor's current universe should diff stored vs. fetched symbols
// itself; this pipeline's contract is additive/corrective only.
func (p *Pipeline) RunStockList(ctx context.Context, exchanges []string, opts RunOptions) *result.Accumulator {
	acc := result.New("stock_list")
	defer acc.Complete()

	units := sortedStrings(exchanges)
	errs := runPool(ctx, p.workerCount, units, func(ctx context.Context, exchange string) error {
		rows, err := p.vendor.GetStockList(ctx, []string{exchange}, nil, opts.ListStatus, nil)
		if err != nil {
			acc.AddError(fmt.Errorf("fetch stock list %s: %w", exchange, err))
			return err
		}
		if p.snapshots != nil {
			_ = p.snapshots.Record(ctx, stockListCollection, rows)
		}

		rows, dropped := dedupeStockList(rows)
		items := make([]model.StockListEntry, 0, len(rows))
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
		return batchUpsert(ctx, p, acc, stockListCollection, items)
	})
	for _, e := range errs {
		acc.AddError(e)
	}
	return acc
}
