package breakout

import (
	"fmt"
	"math"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
)

// MinBars is the fewest enriched bars the detector will evaluate
const MinBars = 5

const (
	ReasonInsufficientData = "Insufficient data"
	ReasonNoSignal         = "No breakout/breakdown"
	ReasonMissingClose     = "Latest price unavailable"
)

// Result is the outcome of evaluating the latest bar
type Result struct {
	Signal models.Signal
	Price  float64 // latest price, zero when Signal is none
	Level  float64 // the level that was crossed, zero when Signal is none
	Reason string
}

// Detect compares the latest close of the enriched window against the
// instrument's support and resistance. Breakout is checked first, so it wins
// when support >= resistance. Volume, Bollinger and ADX readings are appended
// to the reason as annotations and never change the signal.
func Detect(window []models.EnrichedBar, cfg models.InstrumentConfig) Result {
	if len(window) < MinBars {
		return Result{Signal: models.SignalNone, Reason: ReasonInsufficientData}
	}

	current := window[len(window)-1]
	if current.Close == nil || math.IsNaN(*current.Close) {
		return Result{Signal: models.SignalNone, Reason: ReasonMissingClose}
	}
	price := *current.Close
	params := cfg.WithDefaults()

	switch {
	case price > cfg.Resistance:
		reason := fmt.Sprintf("📈 Breakout: Close (%.2f) > Resistance (%.2f)", price, cfg.Resistance)
		reason += volumeNote(current, cfg.VolumeThreshold)
		reason += bandNote(current.BBUpper, func(band float64) bool { return price > band })
		reason += adxNote(current.ADX, params.ADX.Threshold)
		return Result{Signal: models.SignalBreakout, Price: price, Level: cfg.Resistance, Reason: reason}

	case price < cfg.Support:
		reason := fmt.Sprintf("📉 Breakdown: Close (%.2f) < Support (%.2f)", price, cfg.Support)
		reason += volumeNote(current, cfg.VolumeThreshold)
		reason += bandNote(current.BBLower, func(band float64) bool { return price < band })
		reason += adxNote(current.ADX, params.ADX.Threshold)
		return Result{Signal: models.SignalBreakdown, Price: price, Level: cfg.Support, Reason: reason}
	}

	return Result{Signal: models.SignalNone, Reason: ReasonNoSignal}
}

func volumeNote(bar models.EnrichedBar, threshold float64) string {
	if bar.Volume == nil || threshold <= 0 {
		return ""
	}
	if *bar.Volume < threshold {
		return " | Low Volume"
	}
	return " | Volume OK"
}

func bandNote(band *float64, confirms func(float64) bool) string {
	if band == nil {
		return ""
	}
	if confirms(*band) {
		return " | BB confirms"
	}
	return " | BB no confirm"
}

func adxNote(adx *float64, threshold float64) string {
	if adx == nil {
		return ""
	}
	if *adx < threshold {
		return fmt.Sprintf(" | ADX=%.1f < threshold", *adx)
	}
	return fmt.Sprintf(" | ADX=%.1f confirms", *adx)
}
