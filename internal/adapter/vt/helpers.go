package vt

import (
	"strings"

	"quantbox/internal/kernel"
)

// decodeRows normalizes the vendor's loosely-typed JSON response ([]any of
// maps, or {"result": [...]}) into a flat slice of row maps.
func decodeRows(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		return toRowSlice(v)
	case map[string]any:
		if res, ok := v["result"]; ok {
			if arr, ok := res.([]any); ok {
				return toRowSlice(arr)
			}
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func toRowSlice(arr []any) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	return rows, nil
}

// stripExchangeSuffix strips a V-T "CODE.EXCH" ts_code into the bare code.
func stripExchangeSuffix(tsCode string) string {
	if i := strings.IndexByte(tsCode, '.'); i >= 0 {
		return tsCode[:i]
	}
	return tsCode
}

// exchangeFromTSCode reads the ".EXCH" suffix of a V-T ts_code and returns
// the canonical exchange.
func exchangeFromTSCode(tsCode string) string {
	i := strings.IndexByte(tsCode, '.')
	if i < 0 || i == len(tsCode)-1 {
		return ""
	}
	suffix := tsCode[i+1:]
	return kernel.ToCanonical(suffix, kernel.VendorVT, kernel.UsageAPIParameter)
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

func matchesProductName(value string, names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if strings.Contains(value, n) {
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

func indexOf(s, substr string) int {
	return strings.Index(s, substr)
}

func trimSpace(s string) string {
	return strings.TrimSpace(s)
}
