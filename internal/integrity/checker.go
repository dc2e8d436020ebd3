// Package integrity runs post-save sanity checks against the document
// store: calendar shape, contract date ordering, price invariants, and
// non-negative holdings. Findings are reported, never auto-corrected —
// this package only flags.
package integrity

import (
	"context"
	"encoding/json"
	"fmt"

	"quantbox/internal/kernel"
	"quantbox/internal/model"
	"quantbox/internal/store"
)

// Finding is one integrity violation.
type Finding struct {
	Collection string
	Key        string
	Message    string
}

// Checker runs the checks against one document store.
type Checker struct {
	gateway *store.Gateway
}

func New(gateway *store.Gateway) *Checker { return &Checker{gateway: gateway} }

// CheckCalendar verifies: no weekend entries, required fields (exchange,
// date, datestamp) populated, and a sane minimum of trading days per month
// (15 in February, 17 otherwise — allows for the Lunar New Year and
// National Day holiday clusters without masking a genuinely truncated
// fetch). Calendar entries carry no pretrade_date, so no pretrade_date
// ordering is checked.
func (c *Checker) CheckCalendar(ctx context.Context, exchange string, year, month int) ([]Finding, error) {
	rows, err := c.monthCalendar(ctx, exchange, year, month)
	if err != nil {
		return nil, err
	}
	var findings []Finding
	for _, e := range rows {
		if e.Exchange == "" || e.Date == 0 || e.Datestamp == 0 {
			findings = append(findings, Finding{"trade_calendar", fmt.Sprintf("%s/%d", exchange, e.Date), "required field missing"})
		}
		weekend, err := kernel.IsWeekend(e.Date)
		if err == nil && weekend {
			findings = append(findings, Finding{"trade_calendar", fmt.Sprintf("%s/%d", exchange, e.Date), "weekend entry present"})
		}
	}
	minDays := 17
	if month == 2 {
		minDays = 15
	}
	if len(rows) < minDays {
		findings = append(findings, Finding{"trade_calendar", fmt.Sprintf("%s/%d-%02d", exchange, year, month),
			fmt.Sprintf("only %d trading days found, expected at least %d", len(rows), minDays)})
	}
	return findings, nil
}

// CheckContracts verifies list_date <= delist_date for every contract on
// exchange that has both populated.
func (c *Checker) CheckContracts(ctx context.Context, exchange string) ([]Finding, error) {
	payloads, err := c.gateway.List(ctx, "future_contracts", store.Filter{"exchange": exchange})
	if err != nil {
		return nil, err
	}
	var findings []Finding
	for _, payload := range payloads {
		var contract model.Contract
		if err := json.Unmarshal(payload, &contract); err != nil {
			return nil, err
		}
		if contract.DelistDate != 0 && contract.ListDate != 0 && contract.ListDate > contract.DelistDate {
			findings = append(findings, Finding{"future_contracts", contract.Symbol,
				fmt.Sprintf("list_date %d is after delist_date %d", contract.ListDate, contract.DelistDate)})
		}
	}
	return findings, nil
}

// CheckDailyBar re-validates the OHLC and volume invariants on a single
// bar, for callers that want to spot-check a row outside the pipeline's
// own drop-on-ingest filtering.
func CheckDailyBar(b model.DailyBar) []Finding {
	var findings []Finding
	if !b.Valid() {
		findings = append(findings, Finding{"future_daily", fmt.Sprintf("%s/%d", b.Symbol, b.Date), "OHLC ordering violated"})
	}
	if b.Volume < 0 {
		findings = append(findings, Finding{"future_daily", fmt.Sprintf("%s/%d", b.Symbol, b.Date), "negative volume"})
	}
	if b.Amount < 0 {
		findings = append(findings, Finding{"future_daily", fmt.Sprintf("%s/%d", b.Symbol, b.Date), "negative amount"})
	}
	return findings
}

// CheckHoldingsRow flags negative positions and empty broker names.
func CheckHoldingsRow(h model.HoldingsRow) []Finding {
	var findings []Finding
	key := fmt.Sprintf("%d/%s/%s", h.Date, h.Symbol, h.Broker)
	if h.Broker == "" {
		findings = append(findings, Finding{"future_holdings", key, "empty broker name"})
	}
	for name, v := range map[string]*float64{"vol": h.Vol, "long_hld": h.LongHld, "short_hld": h.ShortHld} {
		if v != nil && *v < 0 {
			findings = append(findings, Finding{"future_holdings", key, fmt.Sprintf("negative %s", name)})
		}
	}
	return findings
}

func (c *Checker) monthCalendar(ctx context.Context, exchange string, year, month int) ([]model.CalendarEntry, error) {
	lo := year*10000 + month*100 + 1
	hi := year*10000 + month*100 + 31
	payloads, err := c.gateway.List(ctx, "trade_calendar", store.Filter{"exchange": exchange})
	if err != nil {
		return nil, err
	}
	var out []model.CalendarEntry
	for _, payload := range payloads {
		var e model.CalendarEntry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		if e.Date >= lo && e.Date <= hi {
			out = append(out, e)
		}
	}
	return out, nil
}
