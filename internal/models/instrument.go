package models

import "strings"

// Default instrument parameters applied when an instrument is first added
const (
	DefaultSupport           = 1000.0
	DefaultResistance        = 1100.0
	DefaultVolumeThreshold   = 100000.0
	DefaultBollingerPeriod   = 20
	DefaultBollingerStdDev   = 2.0
	DefaultMACDFastPeriod    = 12
	DefaultMACDSlowPeriod    = 26
	DefaultMACDSignalPeriod  = 9
	DefaultADXPeriod         = 14
	DefaultADXThreshold      = 25.0
	DefaultMAFast            = 9
	DefaultMASlow            = 21
	DefaultInsideBarLookback = 1
	DefaultCandleMinBody     = 0.7
)

// BollingerParams configures Bollinger Bands
type BollingerParams struct {
	Period int     `json:"period"`
	StdDev float64 `json:"std_dev"`
}

// MACDParams configures MACD
type MACDParams struct {
	FastPeriod   int `json:"fast_period"`
	SlowPeriod   int `json:"slow_period"`
	SignalPeriod int `json:"signal_period"`
}

// ADXParams configures ADX and its confirmation threshold
type ADXParams struct {
	Period    int     `json:"period"`
	Threshold float64 `json:"threshold"`
}

// MovingAverageParams configures the fast/slow simple moving averages
type MovingAverageParams struct {
	MAFast int `json:"ma_fast"`
	MASlow int `json:"ma_slow"`
}

// InsideBarParams configures inside-bar lookback
type InsideBarParams struct {
	Lookback int `json:"lookback"`
}

// CandleParams configures candle body ratio filtering
type CandleParams struct {
	MinBodyPercent float64 `json:"min_body_percent"`
}

// InstrumentConfig is one monitored instrument in the config store.
// Indicator groups are optional; nil groups resolve to defaults.
type InstrumentConfig struct {
	StockCode       string               `json:"stock_code"`
	Support         float64              `json:"support"`
	Resistance      float64              `json:"resistance"`
	VolumeThreshold float64              `json:"volume_threshold"`
	Bollinger       *BollingerParams     `json:"bollinger,omitempty"`
	MACD            *MACDParams          `json:"macd,omitempty"`
	ADX             *ADXParams           `json:"adx,omitempty"`
	MovingAverages  *MovingAverageParams `json:"moving_averages,omitempty"`
	InsideBar       *InsideBarParams     `json:"inside_bar,omitempty"`
	Candle          *CandleParams        `json:"candle,omitempty"`
}

// NewInstrumentConfig returns a config populated with every default
func NewInstrumentConfig(stockCode string) InstrumentConfig {
	cfg := InstrumentConfig{
		StockCode:       stockCode,
		Support:         DefaultSupport,
		Resistance:      DefaultResistance,
		VolumeThreshold: DefaultVolumeThreshold,
	}
	cfg.fillGroups()
	return cfg
}

// Validate validates an InstrumentConfig
func (c *InstrumentConfig) Validate() error {
	if strings.TrimSpace(c.StockCode) == "" {
		return ErrInvalidStockCode
	}
	if c.Support < 0 || c.Resistance < 0 {
		return ErrInvalidThresholds
	}
	// Zero means "use the default"
	for _, period := range c.periods() {
		if period < 0 {
			return ErrInvalidPeriod
		}
	}
	return nil
}

func (c *InstrumentConfig) periods() []int {
	var out []int
	if c.Bollinger != nil {
		out = append(out, c.Bollinger.Period)
	}
	if c.MACD != nil {
		out = append(out, c.MACD.FastPeriod, c.MACD.SlowPeriod, c.MACD.SignalPeriod)
	}
	if c.ADX != nil {
		out = append(out, c.ADX.Period)
	}
	if c.MovingAverages != nil {
		out = append(out, c.MovingAverages.MAFast, c.MovingAverages.MASlow)
	}
	return out
}

// WithDefaults returns a copy where every missing group or zero parameter
// takes its documented default. Thresholds are left untouched.
func (c InstrumentConfig) WithDefaults() InstrumentConfig {
	out := c.Clone()
	out.fillGroups()
	return out
}

func (c *InstrumentConfig) fillGroups() {
	if c.Bollinger == nil {
		c.Bollinger = &BollingerParams{}
	}
	if c.Bollinger.Period <= 0 {
		c.Bollinger.Period = DefaultBollingerPeriod
	}
	if c.Bollinger.StdDev <= 0 {
		c.Bollinger.StdDev = DefaultBollingerStdDev
	}

	if c.MACD == nil {
		c.MACD = &MACDParams{}
	}
	if c.MACD.FastPeriod <= 0 {
		c.MACD.FastPeriod = DefaultMACDFastPeriod
	}
	if c.MACD.SlowPeriod <= 0 {
		c.MACD.SlowPeriod = DefaultMACDSlowPeriod
	}
	if c.MACD.SignalPeriod <= 0 {
		c.MACD.SignalPeriod = DefaultMACDSignalPeriod
	}

	if c.ADX == nil {
		c.ADX = &ADXParams{}
	}
	if c.ADX.Period <= 0 {
		c.ADX.Period = DefaultADXPeriod
	}
	if c.ADX.Threshold <= 0 {
		c.ADX.Threshold = DefaultADXThreshold
	}

	if c.MovingAverages == nil {
		c.MovingAverages = &MovingAverageParams{}
	}
	if c.MovingAverages.MAFast <= 0 {
		c.MovingAverages.MAFast = DefaultMAFast
	}
	if c.MovingAverages.MASlow <= 0 {
		c.MovingAverages.MASlow = DefaultMASlow
	}

	if c.InsideBar == nil {
		c.InsideBar = &InsideBarParams{}
	}
	if c.InsideBar.Lookback <= 0 {
		c.InsideBar.Lookback = DefaultInsideBarLookback
	}

	if c.Candle == nil {
		c.Candle = &CandleParams{}
	}
	if c.Candle.MinBodyPercent <= 0 {
		c.Candle.MinBodyPercent = DefaultCandleMinBody
	}
}

// Clone returns a deep copy, so cached snapshots never alias live config
func (c InstrumentConfig) Clone() InstrumentConfig {
	out := c
	if c.Bollinger != nil {
		v := *c.Bollinger
		out.Bollinger = &v
	}
	if c.MACD != nil {
		v := *c.MACD
		out.MACD = &v
	}
	if c.ADX != nil {
		v := *c.ADX
		out.ADX = &v
	}
	if c.MovingAverages != nil {
		v := *c.MovingAverages
		out.MovingAverages = &v
	}
	if c.InsideBar != nil {
		v := *c.InsideBar
		out.InsideBar = &v
	}
	if c.Candle != nil {
		v := *c.Candle
		out.Candle = &v
	}
	return out
}

// ThresholdsChanged reports whether support or resistance differ
func (c *InstrumentConfig) ThresholdsChanged(other *InstrumentConfig) bool {
	if other == nil {
		return true
	}
	return c.Support != other.Support || c.Resistance != other.Resistance
}
