package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/parquet-go/parquet-go"
)

// SnapshotTimeLayout is the timestamp layout of snapshot rows
const SnapshotTimeLayout = "2006-01-02 15:04:05"

// SnapshotColumns is the column order of persisted snapshots
var SnapshotColumns = []string{
	"Timestamp", "Open", "High", "Low", "Close", "PrevClose", "Change",
	"Volume", "TotalVolume", "BuyQty", "SellQty", "BuyPrice", "SellPrice",
	"TotalBuyQty", "TotalSellQty", "AvgPrice", "UpperCircuit", "LowerCircuit",
	"Exchange", "StockName", "Trend",
	"MA_Fast", "MA_Slow", "BB_Mid", "BB_Std", "BB_Upper", "BB_Lower",
	"MACD", "MACD_Signal", "MACD_Hist",
	"UpMove", "DownMove", "+DM", "-DM", "TR", "+DI", "-DI", "DX", "ADX",
}

// NewSnapshotWriter returns the writer for format ("csv" or "parquet")
func NewSnapshotWriter(format, dir string) (SnapshotWriter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return NewCSVSnapshotWriter(dir), nil
	case "parquet":
		return NewParquetSnapshotWriter(dir), nil
	default:
		return nil, fmt.Errorf("%w: %q (use csv or parquet)", ErrUnknownFormat, format)
	}
}

func snapshotPath(dir, stockCode, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("latest_data_%s.%s", strings.ToUpper(stockCode), ext))
}

// CSVSnapshotWriter writes latest_data_<CODE>.csv files
type CSVSnapshotWriter struct {
	dir string
}

// NewCSVSnapshotWriter creates a CSV snapshot writer rooted at dir
func NewCSVSnapshotWriter(dir string) *CSVSnapshotWriter {
	return &CSVSnapshotWriter{dir: dir}
}

// Path returns the snapshot path for stockCode
func (w *CSVSnapshotWriter) Path(stockCode string) string {
	return snapshotPath(w.dir, stockCode, "csv")
}

// WriteSnapshot overwrites the CSV snapshot for stockCode
func (w *CSVSnapshotWriter) WriteSnapshot(ctx context.Context, stockCode string, rows []models.EnrichedBar) error {
	err := WriteFileAtomic(w.Path(stockCode), func(out io.Writer) error {
		return EncodeCSV(out, rows)
	})
	if err != nil {
		return fmt.Errorf("failed to write csv snapshot for %s: %w", stockCode, err)
	}
	return nil
}

// EncodeCSV writes rows with a SnapshotColumns header. Null cells are empty.
func EncodeCSV(out io.Writer, rows []models.EnrichedBar) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(SnapshotColumns); err != nil {
		return err
	}
	for i := range rows {
		if err := cw.Write(csvRecord(&rows[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRecord(r *models.EnrichedBar) []string {
	f := func(p *float64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatFloat(*p, 'f', -1, 64)
	}
	ts := ""
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.Format(SnapshotTimeLayout)
	}
	return []string{
		ts,
		f(r.Open), f(r.High), f(r.Low), f(r.Close), f(r.PrevClose), f(r.Change),
		f(r.Volume), f(r.TotalVolume), f(r.BuyQty), f(r.SellQty), f(r.BuyPrice), f(r.SellPrice),
		f(r.TotalBuyQty), f(r.TotalSellQty), f(r.AvgPrice), f(r.UpperCircuit), f(r.LowerCircuit),
		r.Exchange, r.StockName, r.Trend,
		f(r.MAFast), f(r.MASlow), f(r.BBMid), f(r.BBStd), f(r.BBUpper), f(r.BBLower),
		f(r.MACD), f(r.MACDSignal), f(r.MACDHist),
		f(r.UpMove), f(r.DownMove), f(r.PlusDM), f(r.MinusDM), f(r.TR), f(r.PlusDI), f(r.MinusDI), f(r.DX), f(r.ADX),
	}
}

// ParquetRow is one snapshot row in columnar form
type ParquetRow struct {
	Timestamp    *int64   `parquet:"timestamp,optional"` // Unix milliseconds
	Open         *float64 `parquet:"open,optional"`
	High         *float64 `parquet:"high,optional"`
	Low          *float64 `parquet:"low,optional"`
	Close        *float64 `parquet:"close,optional"`
	PrevClose    *float64 `parquet:"prev_close,optional"`
	Change       *float64 `parquet:"change,optional"`
	Volume       *float64 `parquet:"volume,optional"`
	TotalVolume  *float64 `parquet:"total_volume,optional"`
	BuyQty       *float64 `parquet:"buy_qty,optional"`
	SellQty      *float64 `parquet:"sell_qty,optional"`
	BuyPrice     *float64 `parquet:"buy_price,optional"`
	SellPrice    *float64 `parquet:"sell_price,optional"`
	TotalBuyQty  *float64 `parquet:"total_buy_qty,optional"`
	TotalSellQty *float64 `parquet:"total_sell_qty,optional"`
	AvgPrice     *float64 `parquet:"avg_price,optional"`
	UpperCircuit *float64 `parquet:"upper_circuit,optional"`
	LowerCircuit *float64 `parquet:"lower_circuit,optional"`
	Exchange     string   `parquet:"exchange"`
	StockName    string   `parquet:"stock_name"`
	Trend        string   `parquet:"trend"`
	MAFast       *float64 `parquet:"ma_fast,optional"`
	MASlow       *float64 `parquet:"ma_slow,optional"`
	BBMid        *float64 `parquet:"bb_mid,optional"`
	BBStd        *float64 `parquet:"bb_std,optional"`
	BBUpper      *float64 `parquet:"bb_upper,optional"`
	BBLower      *float64 `parquet:"bb_lower,optional"`
	MACD         *float64 `parquet:"macd,optional"`
	MACDSignal   *float64 `parquet:"macd_signal,optional"`
	MACDHist     *float64 `parquet:"macd_hist,optional"`
	UpMove       *float64 `parquet:"up_move,optional"`
	DownMove     *float64 `parquet:"down_move,optional"`
	PlusDM       *float64 `parquet:"plus_dm,optional"`
	MinusDM      *float64 `parquet:"minus_dm,optional"`
	TR           *float64 `parquet:"tr,optional"`
	PlusDI       *float64 `parquet:"plus_di,optional"`
	MinusDI      *float64 `parquet:"minus_di,optional"`
	DX           *float64 `parquet:"dx,optional"`
	ADX          *float64 `parquet:"adx,optional"`
}

// ToParquetRows converts enriched bars into columnar rows
func ToParquetRows(rows []models.EnrichedBar) []ParquetRow {
	out := make([]ParquetRow, len(rows))
	for i := range rows {
		r := &rows[i]
		var ts *int64
		if !r.Timestamp.IsZero() {
			ms := r.Timestamp.UnixMilli()
			ts = &ms
		}
		out[i] = ParquetRow{
			Timestamp:    ts,
			Open:         r.Open,
			High:         r.High,
			Low:          r.Low,
			Close:        r.Close,
			PrevClose:    r.PrevClose,
			Change:       r.Change,
			Volume:       r.Volume,
			TotalVolume:  r.TotalVolume,
			BuyQty:       r.BuyQty,
			SellQty:      r.SellQty,
			BuyPrice:     r.BuyPrice,
			SellPrice:    r.SellPrice,
			TotalBuyQty:  r.TotalBuyQty,
			TotalSellQty: r.TotalSellQty,
			AvgPrice:     r.AvgPrice,
			UpperCircuit: r.UpperCircuit,
			LowerCircuit: r.LowerCircuit,
			Exchange:     r.Exchange,
			StockName:    r.StockName,
			Trend:        r.Trend,
			MAFast:       r.MAFast,
			MASlow:       r.MASlow,
			BBMid:        r.BBMid,
			BBStd:        r.BBStd,
			BBUpper:      r.BBUpper,
			BBLower:      r.BBLower,
			MACD:         r.MACD,
			MACDSignal:   r.MACDSignal,
			MACDHist:     r.MACDHist,
			UpMove:       r.UpMove,
			DownMove:     r.DownMove,
			PlusDM:       r.PlusDM,
			MinusDM:      r.MinusDM,
			TR:           r.TR,
			PlusDI:       r.PlusDI,
			MinusDI:      r.MinusDI,
			DX:           r.DX,
			ADX:          r.ADX,
		}
	}
	return out
}

// ParquetSnapshotWriter writes latest_data_<CODE>.parquet files
type ParquetSnapshotWriter struct {
	dir string
}

// NewParquetSnapshotWriter creates a Parquet snapshot writer rooted at dir
func NewParquetSnapshotWriter(dir string) *ParquetSnapshotWriter {
	return &ParquetSnapshotWriter{dir: dir}
}

// Path returns the snapshot path for stockCode
func (w *ParquetSnapshotWriter) Path(stockCode string) string {
	return snapshotPath(w.dir, stockCode, "parquet")
}

// WriteSnapshot overwrites the Parquet snapshot for stockCode
func (w *ParquetSnapshotWriter) WriteSnapshot(ctx context.Context, stockCode string, rows []models.EnrichedBar) error {
	path := w.Path(stockCode)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp := fmt.Sprintf("%s.%d.tmp", path, time.Now().UnixNano())
	if err := parquet.WriteFile(tmp, ToParquetRows(rows)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write parquet snapshot for %s: %w", stockCode, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace parquet snapshot for %s: %w", stockCode, err)
	}
	return nil
}

// ReadParquetSnapshot loads a snapshot written by ParquetSnapshotWriter
func ReadParquetSnapshot(path string) ([]ParquetRow, error) {
	rows, err := parquet.ReadFile[ParquetRow](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet snapshot %s: %w", path, err)
	}
	return rows, nil
}
