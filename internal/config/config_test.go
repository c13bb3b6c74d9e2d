package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MARKET_DATA_PROVIDER", "mock")
	t.Setenv("SHARED_STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Pipeline.WindowSize)
	assert.Equal(t, 10, cfg.Pipeline.MinBars)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.MonitorInterval)
	assert.Equal(t, 1*time.Second, cfg.Pipeline.WarmupInterval)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.ErrorBackoff)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.SupervisorInterval)
	assert.Equal(t, 60*time.Second, cfg.Forecast.Interval)
	assert.Equal(t, 10, cfg.Forecast.Rows)
	assert.Zero(t, cfg.Notification.ErrorCooldown)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MARKET_DATA_PROVIDER", "kite")
	t.Setenv("MARKET_DATA_API_KEY", "key")
	t.Setenv("MARKET_DATA_ACCESS_TOKEN", "token")
	t.Setenv("KITE_INSTRUMENT_TOKENS", "tcs:2953217, INFY:408065")
	t.Setenv("WINDOW_SIZE", "50")
	t.Setenv("MONITOR_INTERVAL", "250ms")
	t.Setenv("ERROR_ALERT_COOLDOWN", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Pipeline.WindowSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.MonitorInterval)
	assert.Equal(t, time.Minute, cfg.Notification.ErrorCooldown)
	assert.Equal(t, uint32(2953217), cfg.MarketData.InstrumentTokens["TCS"])
	assert.Equal(t, uint32(408065), cfg.MarketData.InstrumentTokens["INFY"])
}

func TestLoad_InvalidTokenMap(t *testing.T) {
	t.Setenv("KITE_INSTRUMENT_TOKENS", "TCS")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Pipeline: PipelineConfig{
				ConfigPath:         "config.json",
				WindowSize:         500,
				MinBars:            10,
				MonitorInterval:    time.Second,
				WarmupInterval:     time.Second,
				ErrorBackoff:       time.Second,
				SupervisorInterval: time.Second,
			},
			SharedStore: SharedStoreConfig{Backend: "memory"},
			MarketData:  MarketDataConfig{Provider: "mock"},
			Snapshot:    SnapshotConfig{Format: "csv"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "zero window", mutate: func(c *Config) { c.Pipeline.WindowSize = 0 }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.SharedStore.Backend = "etcd" }, wantErr: true},
		{name: "websocket without url", mutate: func(c *Config) { c.MarketData.Provider = "websocket" }, wantErr: true},
		{name: "kite without credentials", mutate: func(c *Config) { c.MarketData.Provider = "kite" }, wantErr: true},
		{name: "bad snapshot format", mutate: func(c *Config) { c.Snapshot.Format = "xlsx" }, wantErr: true},
		{name: "unknown journal driver", mutate: func(c *Config) { c.Journal.Driver = "mysql" }, wantErr: true},
		{name: "forecast without key", mutate: func(c *Config) { c.Forecast.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
