package vg

import (
	"strings"

	"quantbox/internal/kernel"
	"quantbox/internal/model"
)

func decodeRows(raw any) ([]map[string]any, error) {
	arr, ok := raw.([]any)
	if !ok {
		if raw == nil {
			return nil, nil
		}
		return nil, nil
	}
	rows := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	return rows, nil
}

func decodeIntSlice(raw any) ([]int, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, nil
	}
	out := make([]int, 0, len(arr))
	for _, item := range arr {
		switch v := item.(type) {
		case float64:
			out = append(out, int(v))
		case string:
			d, err := kernel.DateToInt(v)
			if err == nil {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

// barFromRow parses a V-G future-daily row. V-G symbols are already
// canonical "EXCHANGE.code" strings, so no exchange-suffix translation is
// needed, unlike V-T.
func barFromRow(row map[string]any) (model.DailyBar, bool) {
	symbol, _ := row["symbol"].(string)
	if symbol == "" {
		return model.DailyBar{}, false
	}
	exchange, _, err := kernel.SplitCanonicalSymbol(symbol)
	if err != nil {
		return model.DailyBar{}, false
	}
	dateVal, ok := row["date"].(float64)
	if !ok {
		return model.DailyBar{}, false
	}
	date := int(dateVal)
	ts, err := kernel.DateIntToTimestamp(date)
	if err != nil {
		return model.DailyBar{}, false
	}

	open, _ := row["open"].(float64)
	high, _ := row["high"].(float64)
	low, _ := row["low"].(float64)
	closeP, _ := row["close"].(float64)
	vol, _ := row["volume"].(float64)
	amount, _ := row["amount"].(float64)
	oi, _ := row["oi"].(float64)

	return model.DailyBar{
		Symbol: symbol, Exchange: exchange, Date: date, Datestamp: ts,
		Open: open, High: high, Low: low, Close: closeP,
		Volume: int64(vol), Amount: amount, OI: int64(oi),
	}, true
}

func holdingsRowFromRow(row map[string]any) (model.HoldingsRow, bool) {
	symbol, _ := row["symbol"].(string)
	dateVal, dateOK := row["date"].(float64)
	broker, _ := row["broker"].(string)
	if symbol == "" || !dateOK || broker == "" {
		return model.HoldingsRow{}, false
	}
	exchange, _, err := kernel.SplitCanonicalSymbol(symbol)
	if err != nil {
		return model.HoldingsRow{}, false
	}
	broker = strings.TrimSpace(strings.TrimSuffix(broker, "(agent)"))

	return model.HoldingsRow{
		Date: int(dateVal), Symbol: symbol, Exchange: exchange, Broker: broker,
		Vol: optFloat(row, "vol"), VolChg: optFloat(row, "vol_chg"),
		LongHld: optFloat(row, "long_hld"), LongChg: optFloat(row, "long_chg"),
		ShortHld: optFloat(row, "short_hld"), ShortChg: optFloat(row, "short_chg"),
	}, true
}

func stockEntryFromRow(row map[string]any) (model.StockListEntry, bool) {
	symbol, _ := row["symbol"].(string)
	if symbol == "" {
		return model.StockListEntry{}, false
	}
	exchange, _, err := kernel.SplitCanonicalSymbol(symbol)
	if err != nil {
		return model.StockListEntry{}, false
	}
	name, _ := row["name"].(string)
	dateVal, ok := row["list_date"].(float64)
	if !ok {
		return model.StockListEntry{}, false
	}
	listDate := int(dateVal)
	listTS, err := kernel.DateIntToTimestamp(listDate)
	if err != nil {
		return model.StockListEntry{}, false
	}
	market, _ := row["market"].(string)
	return model.StockListEntry{
		Symbol: symbol, Name: name, Exchange: exchange,
		ListDate: listDate, ListDatestamp: listTS, Market: market,
	}, true
}

func matchesFilters(value string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.EqualFold(f, value) {
			return true
		}
	}
	return false
}

func optFloat(row map[string]any, key string) *float64 {
	v, ok := row[key]
	if !ok || v == nil {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}
