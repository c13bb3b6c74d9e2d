package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
)

var (
	// ErrInvalidMessage is returned when a tick cannot be turned into a bar
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNonFinite is returned for NaN or Inf numeric fields
	ErrNonFinite = errors.New("non-finite number")
)

// timestampLayouts are tried in order when parsing the ltt field
var timestampLayouts = []string{
	time.ANSIC, // Breeze: "Thu Jan  2 09:15:30 2025"
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02-Jan-2006 15:04:05",
}

// numericFields maps provider field names onto Bar fields
var numericFields = []struct {
	key string
	set func(b *models.Bar, v *float64)
}{
	{"open", func(b *models.Bar, v *float64) { b.Open = v }},
	{"high", func(b *models.Bar, v *float64) { b.High = v }},
	{"low", func(b *models.Bar, v *float64) { b.Low = v }},
	{"last", func(b *models.Bar, v *float64) { b.Close = v }},
	{"close", func(b *models.Bar, v *float64) { b.PrevClose = v }},
	{"change", func(b *models.Bar, v *float64) { b.Change = v }},
	{"ltq", func(b *models.Bar, v *float64) { b.Volume = v }},
	{"ttq", func(b *models.Bar, v *float64) { b.TotalVolume = v }},
	{"bQty", func(b *models.Bar, v *float64) { b.BuyQty = v }},
	{"sQty", func(b *models.Bar, v *float64) { b.SellQty = v }},
	{"bPrice", func(b *models.Bar, v *float64) { b.BuyPrice = v }},
	{"sPrice", func(b *models.Bar, v *float64) { b.SellPrice = v }},
	{"totalBuyQt", func(b *models.Bar, v *float64) { b.TotalBuyQty = v }},
	{"totalSellQ", func(b *models.Bar, v *float64) { b.TotalSellQty = v }},
	{"avgPrice", func(b *models.Bar, v *float64) { b.AvgPrice = v }},
	{"upperCktLm", func(b *models.Bar, v *float64) { b.UpperCircuit = v }},
	{"lowerCktLm", func(b *models.Bar, v *float64) { b.LowerCircuit = v }},
}

// NormalizeTick converts a raw tick record into a Bar. Missing fields stay
// null (a missing ltt leaves a zero Timestamp); an unparseable timestamp or a
// non-finite or unparseable number is an error.
func NormalizeTick(tick map[string]interface{}) (models.Bar, error) {
	var bar models.Bar
	if tick == nil {
		return bar, fmt.Errorf("%w: empty tick", ErrInvalidMessage)
	}

	ts, err := parseTimestamp(tick["ltt"])
	if err != nil {
		return bar, err
	}
	bar.Timestamp = ts

	for _, f := range numericFields {
		v, err := parseNumber(tick[f.key])
		if err != nil {
			return bar, fmt.Errorf("%w: field %s: %w", ErrInvalidMessage, f.key, err)
		}
		f.set(&bar, v)
	}

	bar.Exchange = stringField(tick["exchange"])
	bar.StockName = stringField(tick["stock_name"])
	bar.Trend = stringField(tick["trend"])

	if err := bar.Validate(); err != nil {
		return bar, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return bar, nil
}

// DecodeTick parses a JSON tick message into a raw record
func DecodeTick(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, ErrInvalidMessage
	}
	var tick map[string]interface{}
	if err := json.Unmarshal(raw, &tick); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return tick, nil
}

// KiteTickToRecord maps a Zerodha ticker update onto the raw field names the
// normalizer understands
func KiteTickToRecord(tk kitemodels.Tick, stockCode, exchange string) map[string]interface{} {
	ts := tk.LastTradeTime.Time
	if ts.IsZero() {
		ts = tk.Timestamp.Time
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	record := map[string]interface{}{
		"ltt":        ts.Format(time.RFC3339Nano),
		"last":       tk.LastPrice,
		"change":     tk.NetChange,
		"ltq":        float64(tk.LastTradedQuantity),
		"ttq":        float64(tk.VolumeTraded),
		"totalBuyQt": float64(tk.TotalBuyQuantity),
		"totalSellQ": float64(tk.TotalSellQuantity),
		"avgPrice":   tk.AverageTradePrice,
		"exchange":   exchange,
		"stock_name": stockCode,
	}

	// OHLC is only populated in quote/full mode
	if tk.OHLC.High > 0 {
		record["open"] = tk.OHLC.Open
		record["high"] = tk.OHLC.High
		record["low"] = tk.OHLC.Low
		record["close"] = tk.OHLC.Close
	}
	if buy := tk.Depth.Buy[0]; buy.Price > 0 {
		record["bPrice"] = buy.Price
		record["bQty"] = float64(buy.Quantity)
	}
	if sell := tk.Depth.Sell[0]; sell.Price > 0 {
		record["sPrice"] = sell.Price
		record["sQty"] = float64(sell.Quantity)
	}
	return record
}

func parseTimestamp(v interface{}) (time.Time, error) {
	switch ts := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return ts, nil
	case float64:
		return time.Unix(int64(ts), 0).UTC(), nil
	case string:
		ts = strings.TrimSpace(ts)
		if ts == "" {
			return time.Time{}, nil
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, ts); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", ErrInvalidMessage, ts)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported timestamp type %T", ErrInvalidMessage, v)
	}
}

func parseNumber(v interface{}) (*float64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return nil, nil
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, err
		}
		f = parsed
	case string:
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, err
		}
		f = parsed
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}

	// NaN cannot be encoded into the published window
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrNonFinite, v)
	}
	return models.Float(f), nil
}
