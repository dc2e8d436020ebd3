// Package model holds the vendor-neutral data shapes every component above
// the normalization layer exchanges: the five persisted record types (the
// in-memory save result lives in package result). This package has almost no behavior, only
// shape — the Record() accessors exist only so the storage layer can treat
// every collection generically.
package model

// CalendarEntry is one (exchange, trading day) pair.
type CalendarEntry struct {
	Exchange  string `json:"exchange" msgpack:"exchange"`
	Date      int    `json:"date" msgpack:"date"`
	Datestamp int64  `json:"datestamp" msgpack:"datestamp"`
}

// Contract is one listed futures contract.
type Contract struct {
	Symbol          string `json:"symbol" msgpack:"symbol"`
	Exchange        string `json:"exchange" msgpack:"exchange"`
	Name            string `json:"name" msgpack:"name"`
	ChineseName     string `json:"chinese_name" msgpack:"chinese_name"`
	ListDate        int    `json:"list_date" msgpack:"list_date"`
	DelistDate      int    `json:"delist_date" msgpack:"delist_date"`
	ListDatestamp   int64  `json:"list_datestamp" msgpack:"list_datestamp"`
	DelistDatestamp int64  `json:"delist_datestamp" msgpack:"delist_datestamp"`
}

// DailyBar is one (symbol, trading day) OHLC record.
type DailyBar struct {
	Symbol    string  `json:"symbol" msgpack:"symbol"`
	Exchange  string  `json:"exchange" msgpack:"exchange"`
	Date      int     `json:"date" msgpack:"date"`
	Datestamp int64   `json:"datestamp" msgpack:"datestamp"`
	Open      float64 `json:"open" msgpack:"open"`
	High      float64 `json:"high" msgpack:"high"`
	Low       float64 `json:"low" msgpack:"low"`
	Close     float64 `json:"close" msgpack:"close"`
	Volume    int64   `json:"volume" msgpack:"volume"`
	Amount    float64 `json:"amount" msgpack:"amount"`
	OI        int64   `json:"oi" msgpack:"oi"`
}

// Valid reports whether the bar satisfies the standard OHLC ordering:
// low <= open <= high, low <= close <= high, low <= high.
func (b DailyBar) Valid() bool {
	return b.Low <= b.Open && b.Open <= b.High &&
		b.Low <= b.Close && b.Close <= b.High &&
		b.Low <= b.High
}

// HoldingsRow is one (date, symbol, broker) broker-holdings record.
// VolChg, LongHld, LongChg, ShortHld, ShortChg use pointers because the
// vendor may omit an indicator column; nil means "not reported", never 0.
type HoldingsRow struct {
	Date     int      `json:"date" msgpack:"date"`
	Symbol   string   `json:"symbol" msgpack:"symbol"`
	Exchange string   `json:"exchange" msgpack:"exchange"`
	Broker   string   `json:"broker" msgpack:"broker"`
	Vol      *float64 `json:"vol" msgpack:"vol"`
	VolChg   *float64 `json:"vol_chg" msgpack:"vol_chg"`
	LongHld  *float64 `json:"long_hld" msgpack:"long_hld"`
	LongChg  *float64 `json:"long_chg" msgpack:"long_chg"`
	ShortHld *float64 `json:"short_hld" msgpack:"short_hld"`
	ShortChg *float64 `json:"short_chg" msgpack:"short_chg"`
}

// StockListEntry is one listed-stock snapshot row.
type StockListEntry struct {
	Symbol        string `json:"symbol" msgpack:"symbol"`
	Name          string `json:"name" msgpack:"name"`
	Exchange      string `json:"exchange" msgpack:"exchange"`
	ListDate      int    `json:"list_date" msgpack:"list_date"`
	ListDatestamp int64  `json:"list_datestamp" msgpack:"list_datestamp"`
	Market        string `json:"market,omitempty" msgpack:"market,omitempty"`
	ListStatus    string `json:"list_status,omitempty" msgpack:"list_status,omitempty"`
}

// ListStatus values accepted by get_stock_list / save_stock_list.
const (
	ListStatusListed   = "L"
	ListStatusDelisted = "D"
	ListStatusPending  = "P"
)

// Record returns the key/secondary-index columns the document store keys
// and indexes on, separate from the full JSON payload it also stores.

func (c CalendarEntry) Record() map[string]any {
	return map[string]any{"exchange": c.Exchange, "date": c.Date, "datestamp": c.Datestamp, "is_open": 1}
}

func (c Contract) Record() map[string]any {
	return map[string]any{
		"exchange": c.Exchange, "symbol": c.Symbol,
		"list_date": c.ListDate, "list_datestamp": c.ListDatestamp, "delist_date": c.DelistDate,
	}
}

func (b DailyBar) Record() map[string]any {
	return map[string]any{"symbol": b.Symbol, "date": b.Date, "exchange": b.Exchange, "datestamp": b.Datestamp}
}

func (h HoldingsRow) Record() map[string]any {
	return map[string]any{"date": h.Date, "symbol": h.Symbol, "broker": h.Broker, "exchange": h.Exchange}
}

func (s StockListEntry) Record() map[string]any {
	status := s.ListStatus
	if status == "" {
		status = ListStatusListed
	}
	return map[string]any{
		"symbol": s.Symbol, "exchange": s.Exchange, "list_status": status,
		"list_date": s.ListDate, "list_datestamp": s.ListDatestamp,
	}
}
