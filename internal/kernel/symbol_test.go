package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalSymbolCase(t *testing.T) {
	sym, err := CanonicalSymbol(CZCE, "sr501")
	require.NoError(t, err)
	assert.Equal(t, "CZCE.SR501", sym)

	sym, err = CanonicalSymbol(SHFE, "CU2403")
	require.NoError(t, err)
	assert.Equal(t, "SHFE.cu2403", sym)
}

func TestCZCEExpandYearAnchors(t *testing.T) {
	got, err := CZCEExpandYear("SR501", 20240101)
	require.NoError(t, err)
	assert.Equal(t, "SR2501", got)

	got, err = CZCEExpandYear("SR501", 20340101)
	require.NoError(t, err)
	assert.Equal(t, "SR3501", got)
}

func TestCZCEYearRoundTrip(t *testing.T) {
	for _, code := range []string{"SR2501", "CF2409", "TA2412"} {
		compact, err := CZCECompactYear(code)
		require.NoError(t, err)

		back, err := CZCEExpandYear(compact, 20240101)
		require.NoError(t, err)
		assert.Equal(t, code, back)
	}
}

func TestNormalizeStockSymbol(t *testing.T) {
	sym, err := NormalizeStockSymbol("600000")
	require.NoError(t, err)
	assert.Equal(t, "SHSE.600000", sym)

	suffix, err := StockSymbolForVendor(sym, VendorVT, UsageSymbolSuffix)
	require.NoError(t, err)
	assert.Equal(t, "600000.SH", suffix)

	native, err := StockSymbolForVendor(sym, VendorVG, UsageAPIParameter)
	require.NoError(t, err)
	assert.Equal(t, "SHSE.600000", native)
}

func TestSplitCanonicalSymbolInvalid(t *testing.T) {
	_, _, err := SplitCanonicalSymbol("nosep")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}
