// Package config implements the configuration registry: immutable tables
// loaded once at startup, with read-only accessors and an explicit
// (non-reactive) Reload. Config-file loading follows a familiar
// env-overrides-file precedence (an env var present and non-empty always
// wins over the value on disk).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ExchangeInfo is one row of the `exchanges` table.
type ExchangeInfo struct {
	Name       string `toml:"name"`
	MarketType string `toml:"market_type"` // "futures" | "stock"
	Timezone   string `toml:"timezone"`
	CloseHour  int    `toml:"close_hour"` // local hour after which "today" counts as closed
}

// VendorMapping is one row of the `data-source-mappings` table: a vendor's
// exchange-code substitutions for each usage.
type VendorMapping struct {
	APIParameter map[string]string `toml:"api_parameter"`
	SymbolSuffix map[string]string `toml:"symbol_suffix"`
}

// Instrument is one row of the `instruments` table.
type Instrument struct {
	Exchange    string  `toml:"exchange"`
	ProductCode string  `toml:"product_code"`
	DisplayName string  `toml:"display_name"`
	Multiplier  float64 `toml:"multiplier"`
	TickSize    float64 `toml:"tick_size"`
}

// VendorCredential holds a vendor's opaque token/connection string.
type VendorCredential struct {
	Token string `toml:"token"`
}

// PipelineTuning holds the pipeline's runtime knobs: worker concurrency,
// per-vendor rate limits, retry/batch sizing, the daemon schedule, and the
// optional audit/export toggles.
type PipelineTuning struct {
	WorkerCount           int                `toml:"worker_count"`
	VendorRateLimit       map[string]float64 `toml:"vendor_rate_limit"`
	RetryCount            int                `toml:"retry_count"`
	BatchSize             int                `toml:"batch_size"`
	SlowCallThresholdSecs int                `toml:"slow_call_threshold_secs"`
	Schedule              string             `toml:"schedule"`
	AuditRawResponses     bool               `toml:"audit_raw_responses"`
	S3Export              S3ExportConfig     `toml:"s3_export"`
}

// S3ExportConfig configures the optional post-save snapshot export.
type S3ExportConfig struct {
	Enabled  bool   `toml:"enabled"`
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Endpoint string `toml:"endpoint"` // non-empty for S3-compatible (e.g. R2) endpoints
	Region   string `toml:"region"`
}

// fileConfig is the on-disk shape, parsed with pelletier/go-toml/v2.
type fileConfig struct {
	Database struct {
		URI string `toml:"uri"`
	} `toml:"database"`
	VendorCredentials map[string]VendorCredential `toml:"vendor_credentials"`
	Exchanges         map[string]ExchangeInfo     `toml:"exchanges"`
	DataSourceMapping map[string]VendorMapping    `toml:"data_source_mappings"`
	Instruments       []Instrument                `toml:"instruments"`
	PipelineTuning    PipelineTuning              `toml:"pipeline_tuning"`
	LogLevel          string                      `toml:"log_level"`
}

// Registry exposes read-only accessors over the immutable configuration
// tables. Safe for concurrent reads; Reload takes an exclusive lock and
// swaps the whole snapshot atomically. Reload is an explicit operation,
// never triggered reactively by file changes.
type Registry struct {
	mu   sync.RWMutex
	path string
	data fileConfig
}

// Load reads path (a TOML file), applies QUANTBOX_* environment overrides,
// and returns a ready Registry. A missing .env file next to the process is
// not an error (godotenv.Load is best-effort, matching cmd/quantbox's
// development convenience).
func Load(path string) (*Registry, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&fc)

	if fc.Database.URI == "" {
		return nil, fmt.Errorf("config: database.uri is required")
	}

	r := &Registry{path: path, data: fc}
	return r, nil
}

// applyEnvOverrides implements the getEnv-style precedence: an env var
// present and non-empty always wins over the file value.
func applyEnvOverrides(fc *fileConfig) {
	if v := os.Getenv("QUANTBOX_DB_URI"); v != "" {
		fc.Database.URI = v
	}
	if v := os.Getenv("QUANTBOX_LOG_LEVEL"); v != "" {
		fc.LogLevel = v
	}
	for vendor := range fc.VendorCredentials {
		envKey := "QUANTBOX_VENDOR_" + strings.ToUpper(vendor) + "_TOKEN"
		if v := os.Getenv(envKey); v != "" {
			cred := fc.VendorCredentials[vendor]
			cred.Token = v
			fc.VendorCredentials[vendor] = cred
		}
	}
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Reload re-reads the config file from the same path used at construction,
// applies env overrides again, and swaps the snapshot atomically on
// success. The previous snapshot remains live if reload fails.
func (r *Registry) Reload() error {
	fresh, err := Load(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = fresh.data
	return nil
}

// DatabaseURI returns the configured document-store connection string.
func (r *Registry) DatabaseURI() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.Database.URI
}

// LogLevel returns the configured zerolog level string (empty means
// "use the caller's default").
func (r *Registry) LogLevel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.LogLevel
}

// Exchange returns the metadata row for a canonical exchange code.
func (r *Registry) Exchange(code string) (ExchangeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.data.Exchanges[code]
	return info, ok
}

// Exchanges returns every configured canonical exchange code.
func (r *Registry) Exchanges() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.data.Exchanges))
	for code := range r.data.Exchanges {
		codes = append(codes, code)
	}
	return codes
}

// FutureExchanges returns the configured exchanges whose market_type is
// "futures".
func (r *Registry) FutureExchanges() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for code, info := range r.data.Exchanges {
		if info.MarketType == "futures" {
			out = append(out, code)
		}
	}
	return out
}

// StockExchanges returns the configured exchanges whose market_type is
// "stock".
func (r *Registry) StockExchanges() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for code, info := range r.data.Exchanges {
		if info.MarketType == "stock" {
			out = append(out, code)
		}
	}
	return out
}

// VendorMapping returns the exchange-code substitution table for a vendor.
func (r *Registry) VendorMapping(vendor string) (VendorMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.data.DataSourceMapping[vendor]
	return m, ok
}

// VendorToken returns a vendor's credential token.
func (r *Registry) VendorToken(vendor string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.data.VendorCredentials[vendor]
	if !ok {
		return "", false
	}
	return c.Token, true
}

// Instruments returns the full instrument table.
func (r *Registry) Instruments() []Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Instrument, len(r.data.Instruments))
	copy(out, r.data.Instruments)
	return out
}

// Tuning returns the pipeline-tuning knobs.
func (r *Registry) Tuning() PipelineTuning {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.PipelineTuning
}
