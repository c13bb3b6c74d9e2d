package indicator

import "math"

// ADXResult holds every intermediate column of the directional movement system
type ADXResult struct {
	UpMove   []float64
	DownMove []float64
	PlusDM   []float64
	MinusDM  []float64
	TR       []float64
	PlusDI   []float64
	MinusDI  []float64
	DX       []float64
	ADX      []float64
}

// ADX computes the average directional index. +DM, -DM and TR are smoothed
// with an EMA of span period, as is DX. Zero denominators yield NaN.
func ADX(high, low, close []float64, period int) (ADXResult, error) {
	n := len(close)
	r := ADXResult{
		UpMove:   Diff(high),
		DownMove: Diff(low),
		PlusDM:   make([]float64, n),
		MinusDM:  make([]float64, n),
		TR:       make([]float64, n),
		PlusDI:   make([]float64, n),
		MinusDI:  make([]float64, n),
		DX:       make([]float64, n),
	}

	for i := 0; i < n; i++ {
		r.DownMove[i] = -r.DownMove[i]

		up, down := r.UpMove[i], r.DownMove[i]
		if up > down && up > 0 {
			r.PlusDM[i] = up
		}
		if down > up && down > 0 {
			r.MinusDM[i] = down
		}

		r.TR[i] = trueRange(high, low, close, i)
	}

	smPlus, err := EMASeries(r.PlusDM, period)
	if err != nil {
		return ADXResult{}, err
	}
	smMinus, err := EMASeries(r.MinusDM, period)
	if err != nil {
		return ADXResult{}, err
	}
	smTR, err := EMASeries(r.TR, period)
	if err != nil {
		return ADXResult{}, err
	}

	for i := 0; i < n; i++ {
		r.PlusDI[i] = 100 * safeDiv(smPlus[i], smTR[i])
		r.MinusDI[i] = 100 * safeDiv(smMinus[i], smTR[i])
		r.DX[i] = 100 * safeDiv(math.Abs(r.PlusDI[i]-r.MinusDI[i]), r.PlusDI[i]+r.MinusDI[i])
	}

	r.ADX, err = EMASeries(r.DX, period)
	if err != nil {
		return ADXResult{}, err
	}

	return r, nil
}

// trueRange is the largest of high-low, |high-prev close| and |low-prev close|,
// ignoring missing components. The first bar uses high-low.
func trueRange(high, low, close []float64, i int) float64 {
	tr := math.NaN()
	candidates := []float64{high[i] - low[i]}
	if i > 0 {
		candidates = append(candidates,
			math.Abs(high[i]-close[i-1]),
			math.Abs(low[i]-close[i-1]),
		)
	}
	for _, c := range candidates {
		if isMissing(c) {
			continue
		}
		if isMissing(tr) || c > tr {
			tr = c
		}
	}
	return tr
}
