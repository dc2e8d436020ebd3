package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quantbox/internal/model"
)

func TestCheckDailyBarFlagsInvalidOHLC(t *testing.T) {
	bad := model.DailyBar{Symbol: "SHFE.cu2403", Date: 20240102, Open: 20, High: 12, Low: 9, Close: 11}
	findings := CheckDailyBar(bad)
	assert.NotEmpty(t, findings)
}

func TestCheckDailyBarAcceptsValidBar(t *testing.T) {
	good := model.DailyBar{Symbol: "SHFE.cu2403", Date: 20240102, Open: 10, High: 12, Low: 9, Close: 11, Volume: 5}
	assert.Empty(t, CheckDailyBar(good))
}

func TestCheckHoldingsRowFlagsNegativePosition(t *testing.T) {
	neg := -1.0
	row := model.HoldingsRow{Date: 20240102, Symbol: "SHFE.cu2403", Broker: "Citic", LongHld: &neg}
	findings := CheckHoldingsRow(row)
	assert.NotEmpty(t, findings)
}

func TestCheckHoldingsRowFlagsEmptyBroker(t *testing.T) {
	row := model.HoldingsRow{Date: 20240102, Symbol: "SHFE.cu2403"}
	findings := CheckHoldingsRow(row)
	assert.NotEmpty(t, findings)
}
