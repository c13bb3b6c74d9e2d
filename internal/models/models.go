package models

import (
	"math"
	"time"
)

// Bar is one time-sliced observation for an instrument as produced from a feed tick.
// Numeric fields are nullable: a field missing from the tick is kept as nil.
// A zero Timestamp means the tick carried no trade time.
type Bar struct {
	Timestamp    time.Time `json:"timestamp"`
	Open         *float64  `json:"open"`
	High         *float64  `json:"high"`
	Low          *float64  `json:"low"`
	Close        *float64  `json:"close"`
	PrevClose    *float64  `json:"prev_close"`
	Change       *float64  `json:"change"`
	Volume       *float64  `json:"volume"`       // Last traded quantity
	TotalVolume  *float64  `json:"total_volume"` // Total traded quantity
	BuyQty       *float64  `json:"buy_qty"`
	SellQty      *float64  `json:"sell_qty"`
	BuyPrice     *float64  `json:"buy_price"`
	SellPrice    *float64  `json:"sell_price"`
	TotalBuyQty  *float64  `json:"total_buy_qty"`
	TotalSellQty *float64  `json:"total_sell_qty"`
	AvgPrice     *float64  `json:"avg_price"`
	UpperCircuit *float64  `json:"upper_circuit"`
	LowerCircuit *float64  `json:"lower_circuit"`
	Exchange     string    `json:"exchange"`
	StockName    string    `json:"stock_name"`
	Trend        string    `json:"trend"`
}

// Validate validates a Bar
func (b *Bar) Validate() error {
	if b.High != nil && b.Low != nil && *b.High < *b.Low {
		return ErrInvalidBar
	}
	if b.Volume != nil && *b.Volume < 0 {
		return ErrInvalidVolume
	}
	return nil
}

// Float returns a pointer to v, for building nullable fields
func Float(v float64) *float64 {
	return &v
}

// Value dereferences a nullable field, mapping nil to NaN
func Value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Nullable maps NaN and Inf to nil
func Nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// BarWindow is the rolling window of bars for one instrument, oldest first.
// A published window is an immutable snapshot.
type BarWindow struct {
	StockCode string    `json:"stock_code"`
	Bars      []Bar     `json:"bars"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Len returns the number of bars in the window
func (w *BarWindow) Len() int {
	if w == nil {
		return 0
	}
	return len(w.Bars)
}

// Last returns the newest bar, or nil for an empty window
func (w *BarWindow) Last() *Bar {
	if w.Len() == 0 {
		return nil
	}
	return &w.Bars[len(w.Bars)-1]
}

// Clone returns a deep copy so the snapshot can be handed to another worker
func (w *BarWindow) Clone() *BarWindow {
	if w == nil {
		return nil
	}
	bars := make([]Bar, len(w.Bars))
	copy(bars, w.Bars)
	return &BarWindow{
		StockCode: w.StockCode,
		Bars:      bars,
		UpdatedAt: w.UpdatedAt,
	}
}

// Indicators holds the derived columns for one bar. Undefined values are nil.
type Indicators struct {
	MAFast     *float64 `json:"ma_fast"`
	MASlow     *float64 `json:"ma_slow"`
	BBMid      *float64 `json:"bb_mid"`
	BBStd      *float64 `json:"bb_std"`
	BBUpper    *float64 `json:"bb_upper"`
	BBLower    *float64 `json:"bb_lower"`
	MACD       *float64 `json:"macd"`
	MACDSignal *float64 `json:"macd_signal"`
	MACDHist   *float64 `json:"macd_hist"`
	UpMove     *float64 `json:"up_move"`
	DownMove   *float64 `json:"down_move"`
	PlusDM     *float64 `json:"plus_dm"`
	MinusDM    *float64 `json:"minus_dm"`
	TR         *float64 `json:"tr"`
	PlusDI     *float64 `json:"plus_di"`
	MinusDI    *float64 `json:"minus_di"`
	DX         *float64 `json:"dx"`
	ADX        *float64 `json:"adx"`
}

// EnrichedBar is a Bar plus its derived indicator columns
type EnrichedBar struct {
	Bar
	Indicators
}

// Signal is the outcome of breakout detection
type Signal string

const (
	SignalNone      Signal = "none"
	SignalBreakout  Signal = "breakout"
	SignalBreakdown Signal = "breakdown"
)

// AlertKind classifies outbound notifications
type AlertKind string

const (
	AlertKindTrade  AlertKind = "trade"
	AlertKindStatus AlertKind = "status"
	AlertKindError  AlertKind = "error"
)

// Alert represents a dispatched notification
type Alert struct {
	ID        string    `json:"id" db:"id"`
	Kind      AlertKind `json:"kind" db:"kind"`
	StockCode string    `json:"stock_code" db:"stock_code"`
	Signal    Signal    `json:"signal,omitempty" db:"signal"`
	Price     float64   `json:"price,omitempty" db:"price"`
	Level     float64   `json:"level,omitempty" db:"level"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	Message   string    `json:"message" db:"message"`
	BarTime   time.Time `json:"bar_time,omitempty" db:"bar_time"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Validate validates an Alert
func (a *Alert) Validate() error {
	if a.ID == "" {
		return ErrInvalidAlertID
	}
	if a.Message == "" {
		return ErrEmptyMessage
	}
	if a.Kind == AlertKindTrade {
		if a.StockCode == "" {
			return ErrInvalidStockCode
		}
		if a.Signal != SignalBreakout && a.Signal != SignalBreakdown {
			return ErrInvalidSignal
		}
	}
	return nil
}
