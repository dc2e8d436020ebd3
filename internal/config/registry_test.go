package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
log_level = "info"

[database]
uri = "file:quantbox.db"

[vendor_credentials.V-T]
token = "file-token"

[exchanges.SHSE]
name = "Shanghai Stock Exchange"
market_type = "stock"
timezone = "Asia/Shanghai"
close_hour = 15

[exchanges.SHFE]
name = "Shanghai Futures Exchange"
market_type = "futures"
timezone = "Asia/Shanghai"
close_hour = 15

[pipeline_tuning]
worker_count = 4
retry_count = 3
batch_size = 1000
slow_call_threshold_secs = 5
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "quantbox.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o600))
	return path
}

func TestLoadAndAccessors(t *testing.T) {
	path := writeSample(t)
	reg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file:quantbox.db", reg.DatabaseURI())
	assert.Equal(t, "info", reg.LogLevel())

	info, ok := reg.Exchange("SHSE")
	require.True(t, ok)
	assert.Equal(t, "stock", info.MarketType)

	assert.ElementsMatch(t, []string{"SHFE"}, reg.FutureExchanges())
	assert.ElementsMatch(t, []string{"SHSE"}, reg.StockExchanges())

	token, ok := reg.VendorToken("V-T")
	require.True(t, ok)
	assert.Equal(t, "file-token", token)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeSample(t)
	t.Setenv("QUANTBOX_DB_URI", "file:override.db")
	t.Setenv("QUANTBOX_VENDOR_V-T_TOKEN", "env-token")

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file:override.db", reg.DatabaseURI())

	token, ok := reg.VendorToken("V-T")
	require.True(t, ok)
	assert.Equal(t, "env-token", token)
}

func TestLoadMissingDatabaseURI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quantbox.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"info\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
