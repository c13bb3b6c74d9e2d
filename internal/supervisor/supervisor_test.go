package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/alert"
	"github.com/mohamedkhairy/breakout-monitor/internal/data"
	"github.com/mohamedkhairy/breakout-monitor/internal/instruments"
	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/internal/monitor"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	configs    *instruments.Store
	store      *storage.MemoryStore
	snapshots  *storage.MockSnapshotWriter
	notifier   *alert.RecordingNotifier
	providers  atomic.Int32
	connectErr error
	sup        *Supervisor
}

func newFixture(t *testing.T, config string) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))

	f := &fixture{
		configs:   instruments.NewStore(path),
		store:     storage.NewMemoryStore(),
		snapshots: storage.NewMockSnapshotWriter(),
		notifier:  alert.NewRecordingNotifier(),
	}

	cfg := DefaultConfig()
	cfg.Interval = 20 * time.Millisecond
	cfg.WindowSize = 50
	cfg.Monitor = monitor.Config{Interval: 10 * time.Millisecond, WarmupInterval: 10 * time.Millisecond}

	f.sup = New(cfg, Deps{
		Configs:    f.configs,
		Providers:  f.newProvider,
		Store:      f.store,
		Snapshots:  f.snapshots,
		Dispatcher: alert.NewDispatcher(f.notifier),
	})
	t.Cleanup(f.sup.StopAll)
	return f
}

func (f *fixture) newProvider(code string) (data.Provider, error) {
	f.providers.Add(1)
	p, err := data.NewMockProvider(data.ProviderConfig{TickInterval: time.Millisecond})
	if err != nil {
		return nil, err
	}
	p.(*data.MockProvider).ConnectErr = f.connectErr
	return p, nil
}

func (f *fixture) statusMessages(status string) int {
	n := 0
	for _, a := range f.notifier.ByKind(models.AlertKindStatus) {
		if strings.Contains(a.Message, status) {
			n++
		}
	}
	return n
}

const twoStocks = `{"stocks":[
	{"stock_code":"TCS","support":1000,"resistance":1100},
	{"stock_code":"INFY","support":1400,"resistance":1500}
]}`

func TestSupervisor_ScanIsIdempotent(t *testing.T) {
	f := newFixture(t, twoStocks)
	ctx := context.Background()

	require.NoError(t, f.sup.Scan(ctx))
	require.NoError(t, f.sup.Scan(ctx))

	assert.Equal(t, 2, f.sup.Len())
	assert.Equal(t, []string{"INFY", "TCS"}, f.sup.Codes())
	assert.Eventually(t, func() bool { return f.providers.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, f.statusMessages(StatusStarted))
	assert.True(t, f.sup.Ready())

	scans, failed := f.sup.ScanStats()
	assert.Equal(t, int64(2), scans)
	assert.Zero(t, failed)
}

func TestSupervisor_RemoveAndReAdd(t *testing.T) {
	f := newFixture(t, twoStocks)
	ctx := context.Background()
	require.NoError(t, f.sup.Scan(ctx))

	require.NoError(t, f.configs.Remove("INFY"))
	require.NoError(t, f.sup.Scan(ctx))
	assert.Equal(t, []string{"TCS"}, f.sup.Codes())
	assert.Equal(t, 1, f.statusMessages(StatusStopped))

	window, err := f.store.GetWindow(ctx, "INFY")
	require.NoError(t, err)
	assert.Nil(t, window, "stopped pipelines drop their window")

	_, err = f.configs.Add(models.InstrumentConfig{StockCode: "INFY"})
	require.NoError(t, err)
	require.NoError(t, f.sup.Scan(ctx))
	assert.Equal(t, []string{"INFY", "TCS"}, f.sup.Codes())
	assert.Equal(t, 3, f.statusMessages(StatusStarted))
}

func TestSupervisor_KeepsRemovedWhenDisabled(t *testing.T) {
	f := newFixture(t, twoStocks)
	f.sup.config.RemoveOnDelete = false
	ctx := context.Background()
	require.NoError(t, f.sup.Scan(ctx))

	require.NoError(t, f.configs.Remove("INFY"))
	require.NoError(t, f.sup.Scan(ctx))
	assert.Equal(t, 2, f.sup.Len())
	assert.Zero(t, f.statusMessages(StatusStopped))
}

func TestSupervisor_CollectorStartupFailure(t *testing.T) {
	f := newFixture(t, `{"stocks":[{"stock_code":"TCS"}]}`)
	f.connectErr = errors.New("feed unreachable")
	ctx := context.Background()

	require.NoError(t, f.sup.Scan(ctx))
	assert.Eventually(t, func() bool {
		return len(f.notifier.ByKind(models.AlertKindError)) == 1
	}, time.Second, 5*time.Millisecond)

	errs := f.notifier.ByKind(models.AlertKindError)
	assert.Contains(t, errs[0].Message, "[TCS] Collector Error")
	assert.Contains(t, errs[0].Message, "feed unreachable")

	// The pipeline stays registered and is not restarted on the next scan
	require.NoError(t, f.sup.Scan(ctx))
	assert.True(t, f.sup.Running("TCS"))
	assert.Equal(t, int32(1), f.providers.Load())

	status, ok := f.sup.Status("TCS")
	require.True(t, ok)
	assert.Equal(t, "terminated", status.Collector.State)
	assert.Contains(t, status.CollectorError, "feed unreachable")
}

func TestSupervisor_MalformedConfigKeepsPipelines(t *testing.T) {
	f := newFixture(t, twoStocks)
	ctx := context.Background()
	require.NoError(t, f.sup.Scan(ctx))

	require.NoError(t, os.WriteFile(f.configs.Path(), []byte(`{"stocks": [`), 0o644))
	assert.Error(t, f.sup.Scan(ctx))

	assert.Equal(t, 2, f.sup.Len())
	errs := f.notifier.ByKind(models.AlertKindError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "Supervisor Error")

	_, failed := f.sup.ScanStats()
	assert.Equal(t, int64(1), failed)
}

// explodingConfigs panics on ReadCodes while armed
type explodingConfigs struct {
	ConfigSource
	armed atomic.Bool
}

func (e *explodingConfigs) ReadCodes() ([]string, error) {
	if e.armed.Load() {
		panic("config store exploded")
	}
	return e.ConfigSource.ReadCodes()
}

func TestSupervisor_ScanPanicIsReported(t *testing.T) {
	f := newFixture(t, twoStocks)
	ctx := context.Background()
	require.NoError(t, f.sup.Scan(ctx))

	configs := &explodingConfigs{ConfigSource: f.configs}
	configs.armed.Store(true)
	f.sup.deps.Configs = configs

	var err error
	require.NotPanics(t, func() { err = f.sup.Scan(ctx) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config store exploded")
	assert.Equal(t, 2, f.sup.Len(), "running pipelines survive a failed scan")

	errs := f.notifier.ByKind(models.AlertKindError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "Supervisor Error")

	_, failed := f.sup.ScanStats()
	assert.Equal(t, int64(1), failed)

	configs.armed.Store(false)
	assert.NoError(t, f.sup.Scan(ctx))
}

func TestSupervisor_PipelineProducesSnapshots(t *testing.T) {
	f := newFixture(t, `{"stocks":[{"stock_code":"TCS","support":1,"resistance":100000}]}`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.sup.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(f.snapshots.Snapshot("TCS")) >= 10
	}, 5*time.Second, 10*time.Millisecond)

	statuses := f.sup.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "streaming", statuses[0].Collector.State)
	assert.Positive(t, statuses[0].Monitor.Cycles)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, f.sup.Len())
}
