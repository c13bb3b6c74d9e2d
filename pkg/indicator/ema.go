package indicator

import (
	"fmt"
	"math"
)

// EMA tracks an exponential moving average without bias adjustment.
// EMA = (Price - Previous EMA) * Multiplier + Previous EMA
// Multiplier = 2 / (Span + 1)
// The first valid observation seeds the average. A NaN observation leaves
// the previous value in place but still ages it: the next valid observation
// weighs the old average by (1-Multiplier)^(gap+1).
type EMA struct {
	span       int
	multiplier float64
	value      float64
	ready      bool
	gap        int
}

// NewEMA creates a new EMA with the specified span
func NewEMA(span int) (*EMA, error) {
	if span < 1 {
		return nil, fmt.Errorf("EMA span must be at least 1, got %d", span)
	}

	return &EMA{
		span:       span,
		multiplier: 2.0 / float64(span+1),
		value:      math.NaN(),
	}, nil
}

// Update folds one observation into the average and returns the new value.
// The result is NaN until the first valid observation arrives.
func (e *EMA) Update(price float64) float64 {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		if e.ready {
			e.gap++
		}
		return e.value
	}

	if !e.ready {
		e.value = price
		e.ready = true
		return e.value
	}

	if e.gap == 0 {
		e.value = (price-e.value)*e.multiplier + e.value
		return e.value
	}

	old := math.Pow(1-e.multiplier, float64(e.gap+1))
	e.value = (old*e.value + e.multiplier*price) / (old + e.multiplier)
	e.gap = 0
	return e.value
}

// Value returns the current EMA value, NaN before the first observation
func (e *EMA) Value() float64 {
	return e.value
}

// IsReady returns true once a valid observation has been seen
func (e *EMA) IsReady() bool {
	return e.ready
}

// Reset clears the EMA state
func (e *EMA) Reset() {
	e.value = math.NaN()
	e.ready = false
	e.gap = 0
}

// EMASeries applies an EMA of the given span across values.
func EMASeries(values []float64, span int) ([]float64, error) {
	ema, err := NewEMA(span)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = ema.Update(v)
	}
	return out, nil
}
