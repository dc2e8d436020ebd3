package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCanonicalVT(t *testing.T) {
	assert.Equal(t, SHSE, ToCanonical("SSE", VendorVT, UsageAPIParameter))
	assert.Equal(t, SHFE, ToCanonical("SHF", VendorVT, UsageAPIParameter))
	assert.Equal(t, CZCE, ToCanonical("ZCE", VendorVT, UsageAPIParameter))
	assert.Equal(t, SHSE, ToCanonical("SH", VendorVT, UsageSymbolSuffix))
}

func TestForVendorRoundTrip(t *testing.T) {
	for _, vendor := range []string{VendorVT, VendorVG} {
		for canonical := range canonicalExchanges {
			dialect, err := ForVendor(canonical, vendor, UsageAPIParameter)
			require.NoError(t, err)
			got := ToCanonical(dialect, vendor, UsageAPIParameter)
			assert.Equal(t, canonical, got, "vendor=%s canonical=%s dialect=%s", vendor, canonical, dialect)
		}
	}
}

func TestForVendorUnknownExchange(t *testing.T) {
	_, err := ForVendor("NOPE", VendorVT, UsageAPIParameter)
	assert.ErrorIs(t, err, ErrUnknownExchange)
}

func TestStockExchangeForDigit(t *testing.T) {
	cases := map[byte]string{'6': SHSE, '0': SZSE, '3': SZSE, '4': BSE, '8': BSE, '9': BSE}
	for digit, want := range cases {
		got, err := StockExchangeForDigit(digit)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := StockExchangeForDigit('1')
	assert.ErrorIs(t, err, ErrUnknownExchange)
}
