package kernel

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// uppercaseExchanges is the set of futures exchanges whose contract symbols
// are canonically uppercase; all others (SHFE, DCE, INE, GFEX) are lowercase.
var uppercaseExchanges = map[string]bool{
	CZCE:  true,
	CFFEX: true,
}

// CanonicalContractCase rewrites a bare contract code (no exchange prefix)
// into the casing convention for the given canonical exchange.
func CanonicalContractCase(exchange, code string) (string, error) {
	if !canonicalExchanges[exchange] {
		return "", fmt.Errorf("%w: %q", ErrUnknownExchange, exchange)
	}
	if uppercaseExchanges[exchange] {
		return strings.ToUpper(code), nil
	}
	return strings.ToLower(code), nil
}

// CanonicalSymbol builds the "EXCHANGE.code" canonical future symbol from an
// exchange and a bare contract code, applying the exchange's case rule.
func CanonicalSymbol(exchange, code string) (string, error) {
	c, err := CanonicalContractCase(exchange, code)
	if err != nil {
		return "", err
	}
	return exchange + "." + c, nil
}

// SplitCanonicalSymbol splits "EXCHANGE.code" into its two parts.
func SplitCanonicalSymbol(symbol string) (exchange, code string, err error) {
	i := strings.IndexByte(symbol, '.')
	if i <= 0 || i == len(symbol)-1 {
		return "", "", fmt.Errorf("%w: %q: expected EXCHANGE.code", ErrInvalidSymbol, symbol)
	}
	return symbol[:i], symbol[i+1:], nil
}

// productAndDigits splits a bare contract code like "SR501" or "rb2501"
// into its alphabetic product prefix and its numeric year-month suffix.
func productAndDigits(code string) (product, digits string, err error) {
	i := 0
	for i < len(code) && unicode.IsLetter(rune(code[i])) {
		i++
	}
	if i == 0 || i == len(code) {
		return "", "", fmt.Errorf("%w: %q: no product/date split found", ErrInvalidSymbol, code)
	}
	digits = code[i:]
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return "", "", fmt.Errorf("%w: %q: non-numeric contract date part %q", ErrInvalidSymbol, code, digits)
		}
	}
	return code[:i], digits, nil
}

// CZCEExpandYear converts a CZCE 3-digit year-month code (e.g. "SR501") to
// the canonical 4-digit form (e.g. "SR2501"), using anchorDate (YYYYMMDD)
// to disambiguate the decade. Already-4-digit codes pass through unchanged.
//
// Disambiguation: the 3-digit form encodes a single year digit (the last
// digit of the decade) plus month. The decade is chosen as the one nearest
// anchorDate's decade such that the result is not more than 5 years behind
// anchorDate's year; ties round forward. For example, anchored on a date in
// 2024, "SR501" expands to "SR2501"; anchored on a date in 2034, it expands
// to "SR3501".
func CZCEExpandYear(code string, anchorDate int) (string, error) {
	product, digits, err := productAndDigits(code)
	if err != nil {
		return "", err
	}
	switch len(digits) {
	case 4:
		return strings.ToUpper(product) + digits, nil
	case 3:
		yearDigit := digits[0] - '0'
		month := digits[1:]
		anchorYear := anchorDate / 10000
		anchorDecade := (anchorYear / 10) * 10
		candidate := anchorDecade + int(yearDigit)
		if candidate < anchorYear-5 {
			candidate += 10
		}
		return fmt.Sprintf("%s%02d%s", strings.ToUpper(product), candidate%100, month), nil
	default:
		return "", fmt.Errorf("%w: %q: unexpected contract date length %d", ErrInvalidSymbol, code, len(digits))
	}
}

// CZCECompactYear is the inverse of CZCEExpandYear: converts a canonical
// 4-digit CZCE contract code to the vendor's 3-digit form.
func CZCECompactYear(code string) (string, error) {
	product, digits, err := productAndDigits(code)
	if err != nil {
		return "", err
	}
	if len(digits) != 4 {
		return "", fmt.Errorf("%w: %q: expected 4-digit canonical contract date", ErrInvalidSymbol, code)
	}
	return strings.ToUpper(product) + digits[1:], nil
}

// NormalizeStockSymbol converts a bare numeric stock code (e.g. "600000")
// into its canonical "EXCHANGE.code" form, routed by the code's leading
// digit.
func NormalizeStockSymbol(bareCode string) (string, error) {
	if len(bareCode) == 0 {
		return "", fmt.Errorf("%w: empty stock code", ErrInvalidSymbol)
	}
	if _, err := strconv.Atoi(bareCode); err != nil {
		return "", fmt.Errorf("%w: %q: not numeric", ErrInvalidSymbol, bareCode)
	}
	exchange, err := StockExchangeForDigit(bareCode[0])
	if err != nil {
		return "", err
	}
	return exchange + "." + bareCode, nil
}

// StockSymbolForVendor renders a canonical "EXCHANGE.code" stock symbol in
// the vendor's dialect for the given usage (e.g. V-T suffix form
// "600000.SH" vs. V-G's native "SHSE.600000").
func StockSymbolForVendor(canonical, vendor string, usage Usage) (string, error) {
	exchange, code, err := SplitCanonicalSymbol(canonical)
	if err != nil {
		return "", err
	}
	switch vendor {
	case VendorVT:
		if usage == UsageSymbolSuffix {
			suffix, err := ForVendor(exchange, vendor, UsageSymbolSuffix)
			if err != nil {
				return "", err
			}
			return code + "." + suffix, nil
		}
		return canonical, nil
	case VendorVG:
		return canonical, nil
	default:
		return "", fmt.Errorf("%w: unrecognized vendor %q", ErrUnknownExchange, vendor)
	}
}
