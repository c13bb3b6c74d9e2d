package breakout

import (
	"strings"
	"testing"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/stretchr/testify/assert"
)

func enriched(closes ...float64) []models.EnrichedBar {
	start := time.Date(2025, 1, 2, 9, 15, 0, 0, time.UTC)
	out := make([]models.EnrichedBar, len(closes))
	for i, c := range closes {
		out[i] = models.EnrichedBar{Bar: models.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Close:     models.Float(c),
		}}
	}
	return out
}

func thresholds(support, resistance float64) models.InstrumentConfig {
	cfg := models.NewInstrumentConfig("TCS")
	cfg.Support = support
	cfg.Resistance = resistance
	return cfg
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		window     []models.EnrichedBar
		cfg        models.InstrumentConfig
		wantSignal models.Signal
		wantReason string
	}{
		{
			name:       "insufficient data",
			window:     enriched(1200, 1200, 1200, 1200),
			cfg:        thresholds(1000, 1100),
			wantSignal: models.SignalNone,
			wantReason: ReasonInsufficientData,
		},
		{
			name:       "breakout",
			window:     enriched(1050, 1050, 1050, 1050, 1150),
			cfg:        thresholds(1000, 1100),
			wantSignal: models.SignalBreakout,
			wantReason: "📈 Breakout: Close (1150.00) > Resistance (1100.00)",
		},
		{
			name:       "breakdown",
			window:     enriched(1050, 1050, 1050, 1050, 950),
			cfg:        thresholds(1000, 1100),
			wantSignal: models.SignalBreakdown,
			wantReason: "📉 Breakdown: Close (950.00) < Support (1000.00)",
		},
		{
			name:       "inside range",
			window:     enriched(1050, 1050, 1050, 1050, 1050),
			cfg:        thresholds(1000, 1100),
			wantSignal: models.SignalNone,
			wantReason: ReasonNoSignal,
		},
		{
			name:       "breakout wins when support above resistance",
			window:     enriched(1050, 1050, 1050, 1050, 1050),
			cfg:        thresholds(1200, 1000),
			wantSignal: models.SignalBreakout,
			wantReason: "📈 Breakout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.window, tt.cfg)
			if got.Signal != tt.wantSignal {
				t.Errorf("Detect() signal = %v, want %v", got.Signal, tt.wantSignal)
			}
			if !strings.HasPrefix(got.Reason, tt.wantReason) {
				t.Errorf("Detect() reason = %q, want prefix %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestDetect_NullClose(t *testing.T) {
	window := enriched(1150, 1150, 1150, 1150, 1150)
	window[4].Close = nil

	got := Detect(window, thresholds(1000, 1100))
	assert.Equal(t, models.SignalNone, got.Signal)
}

func TestDetect_AnnotationsDoNotGate(t *testing.T) {
	window := enriched(1050, 1050, 1050, 1050, 1150)
	last := &window[4]
	last.Volume = models.Float(10)
	last.BBUpper = models.Float(1200)
	last.ADX = models.Float(5)

	got := Detect(window, thresholds(1000, 1100))

	assert.Equal(t, models.SignalBreakout, got.Signal)
	assert.Equal(t, 1150.0, got.Price)
	assert.Equal(t, 1100.0, got.Level)
	assert.Contains(t, got.Reason, "Low Volume")
	assert.Contains(t, got.Reason, "BB no confirm")
	assert.Contains(t, got.Reason, "ADX=5.0 < threshold")
}

func TestState_SingleAlertPerCrossing(t *testing.T) {
	state := NewState()
	cfg := thresholds(1000, 1100)
	base := []float64{1050, 1050, 1050, 1050}

	alerts := 0
	for _, price := range []float64{1150, 1160, 1140} {
		window := enriched(append(append([]float64{}, base...), price)...)
		if state.Apply(Detect(window, cfg).Signal) {
			alerts++
		}
	}

	assert.Equal(t, 1, alerts)
	assert.Equal(t, Snapshot{AboveResistance: true}, state.Snapshot())
	assert.Equal(t, int64(2), state.GetStats().Suppressed)
}

func TestState_ThresholdChangeRearms(t *testing.T) {
	state := NewState()

	assert.True(t, state.Apply(models.SignalBreakout))
	assert.False(t, state.Apply(models.SignalBreakout))

	state.Reset()
	assert.Equal(t, Snapshot{}, state.Snapshot())
	assert.True(t, state.Apply(models.SignalBreakout))
}

func TestState_OppositeSignalFlips(t *testing.T) {
	state := NewState()

	assert.True(t, state.Apply(models.SignalBreakout))
	assert.True(t, state.Apply(models.SignalBreakdown))
	assert.Equal(t, Snapshot{BelowSupport: true}, state.Snapshot())
	assert.True(t, state.Apply(models.SignalBreakout))
	assert.False(t, state.Apply(models.SignalNone))
	assert.Equal(t, int64(3), state.GetStats().AlertsFired)
}
