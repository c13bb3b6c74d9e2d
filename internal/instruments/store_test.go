package instruments

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return NewStore(path)
}

func TestStore_Load(t *testing.T) {
	store := writeConfig(t, `{"stocks":[
		{"stock_code":"TCS","support":3500,"resistance":3700,"volume_threshold":50000,
		 "bollinger":{"period":20,"std_dev":2},"adx":{"period":14,"threshold":25}},
		{"stock_code":"INFY","support":1400,"resistance":1500}
	]}`)

	stocks := store.Load()
	require.Len(t, stocks, 2)
	assert.Equal(t, "TCS", stocks[0].StockCode)
	assert.Equal(t, 3700.0, stocks[0].Resistance)
	require.NotNil(t, stocks[0].Bollinger)
	assert.Equal(t, 20, stocks[0].Bollinger.Period)
	assert.Nil(t, stocks[1].MACD)

	assert.Equal(t, []string{"TCS", "INFY"}, store.Codes())
}

func TestStore_LoadMissingOrMalformed(t *testing.T) {
	missing := NewStore(filepath.Join(t.TempDir(), "nope.json"))
	assert.Empty(t, missing.Load())

	malformed := writeConfig(t, `{"stocks": [`)
	assert.Empty(t, malformed.Load())
	assert.Empty(t, malformed.Codes())

	codes, err := missing.ReadCodes()
	require.NoError(t, err)
	assert.Empty(t, codes)
	_, err = malformed.ReadCodes()
	assert.Error(t, err)
}

func TestStore_Instrument(t *testing.T) {
	store := writeConfig(t, `{"stocks":[{"stock_code":"TCS","support":3500,"resistance":3700}]}`)

	cfg, err := store.Instrument("TCS")
	require.NoError(t, err)
	assert.Equal(t, 3500.0, cfg.Support)

	_, err = store.Instrument("INFY")
	assert.True(t, errors.Is(err, ErrInstrumentNotFound))
}

func TestStore_PaddedCodeIsResolvable(t *testing.T) {
	store := writeConfig(t, `{"stocks":[{"stock_code":" infy ","support":1400,"resistance":1500}]}`)

	codes, err := store.ReadCodes()
	require.NoError(t, err)
	require.Equal(t, []string{"INFY"}, codes)

	for _, code := range codes {
		cfg, err := store.Instrument(code)
		require.NoError(t, err, "every listed code must resolve")
		assert.Equal(t, 1500.0, cfg.Resistance)
	}

	_, err = store.Instrument(" infy")
	assert.NoError(t, err)
	require.NoError(t, store.Remove("INFY"))
	assert.Empty(t, store.Codes())
}

func TestStore_AddRejectsNegativePeriod(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.json"))

	_, err := store.Add(models.InstrumentConfig{
		StockCode: "TCS",
		ADX:       &models.ADXParams{Period: -14},
	})
	assert.True(t, errors.Is(err, models.ErrInvalidPeriod))
	assert.Empty(t, store.Codes())
}

func TestStore_AddAppliesDefaults(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.json"))

	added, err := store.Add(models.InstrumentConfig{StockCode: " hdfban "})
	require.NoError(t, err)
	assert.Equal(t, "HDFBAN", added.StockCode)
	assert.Equal(t, models.DefaultSupport, added.Support)
	assert.Equal(t, models.DefaultResistance, added.Resistance)
	assert.Equal(t, models.DefaultVolumeThreshold, added.VolumeThreshold)
	assert.Equal(t, models.DefaultMACDSignalPeriod, added.MACD.SignalPeriod)

	got, err := store.Instrument("HDFBAN")
	require.NoError(t, err)
	assert.Equal(t, added, *got)

	_, err = store.Add(models.InstrumentConfig{StockCode: "HDFBAN"})
	assert.True(t, errors.Is(err, ErrDuplicateInstrument))

	_, err = store.Add(models.InstrumentConfig{StockCode: "  "})
	assert.True(t, errors.Is(err, models.ErrInvalidStockCode))
}

func TestStore_UpdateAndRemove(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.json"))
	_, err := store.Add(models.InstrumentConfig{StockCode: "TCS"})
	require.NoError(t, err)
	_, err = store.Add(models.InstrumentConfig{StockCode: "INFY"})
	require.NoError(t, err)

	cfg, err := store.Instrument("TCS")
	require.NoError(t, err)
	cfg.Resistance = 1200
	require.NoError(t, store.Update(*cfg))

	cfg, err = store.Instrument("TCS")
	require.NoError(t, err)
	assert.Equal(t, 1200.0, cfg.Resistance)

	assert.True(t, errors.Is(store.Update(models.InstrumentConfig{StockCode: "WIPRO"}), ErrInstrumentNotFound))

	require.NoError(t, store.Remove("tcs"))
	assert.Equal(t, []string{"INFY"}, store.Codes())
	assert.True(t, errors.Is(store.Remove("TCS"), ErrInstrumentNotFound))
}

func TestDiff(t *testing.T) {
	prev := models.NewInstrumentConfig("TCS")
	next := prev.Clone()
	next.Resistance = 1200
	next.MACD.FastPeriod = 10

	changes := Diff(&prev, &next)
	require.Len(t, changes, 2)
	assert.Equal(t, "macd.fast_period", changes[0].Field)
	assert.Equal(t, "resistance", changes[1].Field)

	line := FormatChanges(changes)
	assert.Equal(t, "macd.fast_period: 12 → 10, resistance: 1100 → 1200", line)

	assert.Empty(t, Diff(&prev, &prev))

	all := Diff(nil, &next)
	assert.True(t, len(all) > 10)
	assert.True(t, strings.HasSuffix(all[0].String(), "→ "+formatValue(all[0].New)))
}
