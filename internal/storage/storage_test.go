package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow(code string, closes ...float64) *models.BarWindow {
	start := time.Date(2025, 1, 2, 9, 15, 0, 0, time.UTC)
	w := &models.BarWindow{StockCode: code, UpdatedAt: start}
	for i, c := range closes {
		w.Bars = append(w.Bars, models.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Close:     models.Float(c),
		})
	}
	return w
}

func TestMemoryStore_PublishAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	got, err := store.GetWindow(ctx, "TCS")
	require.NoError(t, err)
	assert.Nil(t, got, "absent window should be nil")

	require.NoError(t, store.PublishWindow(ctx, testWindow("TCS", 100, 101)))

	got, err = store.GetWindow(ctx, "TCS")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Len())

	// readers own their copy
	got.Bars[0].Trend = "mutated"
	again, err := store.GetWindow(ctx, "TCS")
	require.NoError(t, err)
	assert.Equal(t, "", again.Bars[0].Trend)

	require.NoError(t, store.DeleteWindow(ctx, "TCS"))
	got, err = store.GetWindow(ctx, "TCS")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_RejectsMissingCode(t *testing.T) {
	err := NewMemoryStore().PublishWindow(context.Background(), &models.BarWindow{})
	assert.True(t, errors.Is(err, models.ErrInvalidStockCode))
}

func TestRedisStore_PublishAndNotify(t *testing.T) {
	ctx := context.Background()
	client := NewMockRedisClient()
	store := NewRedisStore(client, RedisStoreConfig{KeyPrefix: "w:", NotifyChannel: "windows"})

	require.NoError(t, store.PublishWindow(ctx, testWindow("INFY", 1, 2, 3)))

	_, ok := client.Data["w:INFY"]
	assert.True(t, ok)

	got, err := store.GetWindow(ctx, "INFY")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Len())

	published := client.PublishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "windows", published[0].Channel)
	assert.Contains(t, published[0].Message, `"stock_code":"INFY"`)
}

func TestRedisStore_NotifyFailureIsNotFatal(t *testing.T) {
	client := NewMockRedisClient()
	client.PublishErr = errors.New("pubsub down")
	store := NewRedisStore(client, RedisStoreConfig{NotifyChannel: "windows"})

	assert.NoError(t, store.PublishWindow(context.Background(), testWindow("INFY", 1)))
}

func TestRedisStore_GetError(t *testing.T) {
	client := NewMockRedisClient()
	client.GetErr = errors.New("connection refused")
	store := NewRedisStore(client, RedisStoreConfig{})

	_, err := store.GetWindow(context.Background(), "INFY")
	assert.Error(t, err)
}

func enrichedRows(n int) []models.EnrichedBar {
	w := testWindow("TCS")
	start := w.UpdatedAt
	rows := make([]models.EnrichedBar, n)
	for i := range rows {
		rows[i] = models.EnrichedBar{
			Bar: models.Bar{
				Timestamp: start.Add(time.Duration(i) * time.Minute),
				Open:      models.Float(100),
				High:      models.Float(101),
				Low:       models.Float(99),
				Close:     models.Float(100.5),
				Exchange:  "NSE",
			},
			Indicators: models.Indicators{MACD: models.Float(0.25)},
		}
	}
	return rows
}

func TestCSVSnapshotWriter(t *testing.T) {
	dir := t.TempDir()
	writer := NewCSVSnapshotWriter(dir)

	require.NoError(t, writer.WriteSnapshot(context.Background(), "tcs", enrichedRows(10)))

	path := writer.Path("tcs")
	assert.Equal(t, filepath.Join(dir, "latest_data_TCS.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 11)
	assert.Equal(t, SnapshotColumns, records[0])
	assert.Equal(t, "2025-01-02 09:15:00", records[1][0])

	macdIdx := indexOf(SnapshotColumns, "MACD")
	adxIdx := indexOf(SnapshotColumns, "ADX")
	assert.Equal(t, "0.25", records[1][macdIdx])
	assert.Equal(t, "", records[1][adxIdx], "null columns are written empty")

	// a bar without a trade time is written with an empty timestamp cell
	untimed := enrichedRows(2)
	untimed[1].Timestamp = time.Time{}
	require.NoError(t, writer.WriteSnapshot(context.Background(), "tcs", untimed))
	records = readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, "", records[2][0])
	assert.Equal(t, "100.5", records[2][indexOf(SnapshotColumns, "Close")])

	// overwrite leaves no temp files behind
	require.NoError(t, writer.WriteSnapshot(context.Background(), "tcs", enrichedRows(3)))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestParquetSnapshotWriter(t *testing.T) {
	dir := t.TempDir()
	writer := NewParquetSnapshotWriter(dir)

	written := enrichedRows(5)
	written[4].Timestamp = time.Time{}
	require.NoError(t, writer.WriteSnapshot(context.Background(), "INFY", written))

	rows, err := ReadParquetSnapshot(writer.Path("INFY"))
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "NSE", rows[0].Exchange)
	require.NotNil(t, rows[0].Timestamp)
	assert.Equal(t, written[0].Timestamp.UnixMilli(), *rows[0].Timestamp)
	assert.Nil(t, rows[4].Timestamp, "missing trade time is stored as null")
	require.NotNil(t, rows[0].MACD)
	assert.Equal(t, 0.25, *rows[0].MACD)
	assert.Nil(t, rows[0].ADX)
}

func TestNewSnapshotWriter(t *testing.T) {
	w, err := NewSnapshotWriter("CSV", "out")
	require.NoError(t, err)
	assert.IsType(t, &CSVSnapshotWriter{}, w)

	w, err = NewSnapshotWriter("parquet", "out")
	require.NoError(t, err)
	assert.IsType(t, &ParquetSnapshotWriter{}, w)

	_, err = NewSnapshotWriter("xlsx", "out")
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestSQLAlertJournal_SQLite(t *testing.T) {
	ctx := context.Background()
	journal, err := NewSQLAlertJournal("sqlite3", filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	defer journal.Close()

	base := time.Date(2025, 1, 2, 9, 15, 0, 0, time.UTC)
	alerts := []*models.Alert{
		{ID: "a-1", Kind: models.AlertKindStatus, StockCode: "TCS", Message: "started", CreatedAt: base},
		{ID: "a-2", Kind: models.AlertKindTrade, StockCode: "TCS", Signal: models.SignalBreakout, Price: 1150, Level: 1100, Message: "breakout", BarTime: base, CreatedAt: base.Add(time.Second)},
		{ID: "a-3", Kind: models.AlertKindTrade, StockCode: "INFY", Signal: models.SignalBreakdown, Price: 950, Level: 1000, Message: "breakdown", BarTime: base, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, a := range alerts {
		require.NoError(t, journal.WriteAlert(ctx, a))
	}

	got, err := journal.GetAlerts(ctx, AlertFilter{StockCode: "TCS"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a-2", got[0].ID, "newest first")
	assert.Equal(t, models.SignalBreakout, got[0].Signal)
	assert.Equal(t, 1150.0, got[0].Price)

	got, err = journal.GetAlerts(ctx, AlertFilter{Kind: models.AlertKindTrade, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a-3", got[0].ID)

	assert.Error(t, journal.WriteAlert(ctx, &models.Alert{ID: "bad"}), "invalid alerts are rejected")
}

func TestNewSQLAlertJournal_UnknownDriver(t *testing.T) {
	_, err := NewSQLAlertJournal("mysql", "dsn")
	assert.Error(t, err)
}

func indexOf(values []string, want string) int {
	for i, v := range values {
		if v == want {
			return i
		}
	}
	return -1
}
