package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/alert"
	"github.com/mohamedkhairy/breakout-monitor/internal/bars"
	"github.com/mohamedkhairy/breakout-monitor/internal/data"
	"github.com/mohamedkhairy/breakout-monitor/internal/forecast"
	"github.com/mohamedkhairy/breakout-monitor/internal/monitor"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// Pipeline status notifications
const (
	StatusStarted = "✅ Started Monitoring"
	StatusStopped = "🛑 Stopped Monitoring"
)

// ConfigSource is the instrument set the supervisor watches
type ConfigSource interface {
	monitor.ConfigSource
	ReadCodes() ([]string, error)
}

// ProviderFunc creates the tick feed for one instrument
type ProviderFunc func(stockCode string) (data.Provider, error)

// Waker hands out per-instrument wake channels for monitors
type Waker interface {
	C(stockCode string) <-chan struct{}
}

// Config holds supervisor configuration
type Config struct {
	Interval       time.Duration  // config poll interval (default: 5s)
	StopTimeout    time.Duration  // wait for a removed pipeline to exit (default: 10s)
	WindowSize     int            // collector window capacity
	RemoveOnDelete bool           // cancel pipelines whose instrument left the config
	Monitor        monitor.Config // template, StockCode is filled per pipeline
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Second,
		StopTimeout:    10 * time.Second,
		WindowSize:     bars.DefaultWindowSize,
		RemoveOnDelete: true,
		Monitor:        monitor.DefaultConfig(""),
	}
}

// Deps are the collaborators shared by every pipeline. Forecaster, Recorder
// and Waker are optional.
type Deps struct {
	Configs    ConfigSource
	Providers  ProviderFunc
	Store      storage.SharedStore
	Snapshots  storage.SnapshotWriter
	Dispatcher *alert.Dispatcher
	Forecaster forecast.Forecaster
	Recorder   *forecast.Recorder
	Waker      Waker
}

// PipelineStatus is the externally visible state of one pipeline
type PipelineStatus struct {
	StockCode      string              `json:"stock_code"`
	StartedAt      time.Time           `json:"started_at"`
	Collector      bars.CollectorStats `json:"collector"`
	CollectorError string              `json:"collector_error,omitempty"`
	Monitor        monitor.Status      `json:"monitor"`
}

// pipeline is one instrument's collector and monitor pair
type pipeline struct {
	stockCode string
	startedAt time.Time
	monitor   *monitor.Monitor
	cancel    context.CancelFunc
	done      chan struct{}

	mu           sync.Mutex
	collector    *bars.Collector
	collectorErr error
}

func (p *pipeline) setCollector(c *bars.Collector) {
	p.mu.Lock()
	p.collector = c
	p.mu.Unlock()
}

func (p *pipeline) setErr(err error) {
	p.mu.Lock()
	p.collectorErr = err
	p.mu.Unlock()
}

func (p *pipeline) status() PipelineStatus {
	p.mu.Lock()
	collector := p.collector
	collectorErr := p.collectorErr
	p.mu.Unlock()

	s := PipelineStatus{
		StockCode: p.stockCode,
		StartedAt: p.startedAt,
		Monitor:   p.monitor.Status(),
	}
	if collector != nil {
		s.Collector = collector.Stats()
	} else {
		s.Collector.State = bars.StateConnecting.String()
	}
	if collectorErr != nil {
		s.CollectorError = collectorErr.Error()
		s.Collector.State = bars.StateTerminated.String()
	}
	return s
}

// Supervisor polls the config store and keeps exactly one pipeline running
// per configured instrument
type Supervisor struct {
	config Config
	deps   Deps

	mu        sync.RWMutex
	pipelines map[string]*pipeline
	wg        sync.WaitGroup

	scans  atomic.Int64
	failed atomic.Int64
	ready  atomic.Bool
}

// New creates a supervisor
func New(config Config, deps Deps) *Supervisor {
	d := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = d.Interval
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = d.StopTimeout
	}
	if config.WindowSize <= 0 {
		config.WindowSize = d.WindowSize
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = alert.NewDispatcher(nil)
	}

	return &Supervisor{
		config:    config,
		deps:      deps,
		pipelines: make(map[string]*pipeline),
	}
}

// Run scans the config until ctx is cancelled, then stops every pipeline
func (s *Supervisor) Run(ctx context.Context) error {
	logger.Info("Supervisor started",
		logger.Duration("interval", s.config.Interval),
		logger.Bool("remove_on_delete", s.config.RemoveOnDelete),
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		// Failures are alerted inside Scan; the next tick retries
		_ = s.Scan(ctx)

		select {
		case <-ctx.Done():
			s.StopAll()
			logger.Info("Supervisor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Scan reconciles running pipelines with the configured instruments.
// Scanning an unchanged config starts and stops nothing. A panic inside the
// scan is reported like any other scan failure.
func (s *Supervisor) Scan(ctx context.Context) (err error) {
	s.scans.Add(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.Error("Supervisor scan panicked",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			s.scanFailed(ctx, "panic", err)
		}
	}()

	codes, err := s.deps.Configs.ReadCodes()
	if err != nil {
		logger.Error("Supervisor failed to read instrument config", logger.ErrorField(err))
		s.scanFailed(ctx, "config", err)
		return err
	}

	wanted := make(map[string]bool, len(codes))
	for _, code := range codes {
		wanted[code] = true
		if s.Running(code) {
			continue
		}
		s.start(ctx, code)
	}

	if s.config.RemoveOnDelete {
		for _, code := range s.Codes() {
			if !wanted[code] {
				s.stop(ctx, code)
			}
		}
	}

	s.ready.Store(true)
	logger.ActivePipelines.Set(float64(s.Len()))
	return nil
}

func (s *Supervisor) scanFailed(ctx context.Context, reason string, err error) {
	s.failed.Add(1)
	logger.ErrorsTotal.WithLabelValues("supervisor", reason).Inc()
	s.deps.Dispatcher.ErrorAlert(ctx, "", fmt.Errorf("Supervisor Error: %w", err))
}

func (s *Supervisor) start(ctx context.Context, code string) {
	cfg, err := s.deps.Configs.Instrument(code)
	if err != nil {
		logger.Warn("Skipping instrument without readable config",
			logger.String("stock_code", code),
			logger.ErrorField(err),
		)
		return
	}

	monitorConfig := s.config.Monitor
	monitorConfig.StockCode = code

	var wake <-chan struct{}
	if s.deps.Waker != nil {
		wake = s.deps.Waker.C(code)
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &pipeline{
		stockCode: code,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		monitor: monitor.New(monitorConfig, monitor.Deps{
			Configs:    s.deps.Configs,
			Store:      s.deps.Store,
			Snapshots:  s.deps.Snapshots,
			Dispatcher: s.deps.Dispatcher,
			Forecaster: s.deps.Forecaster,
			Recorder:   s.deps.Recorder,
			Wake:       wake,
		}, cfg),
	}

	s.mu.Lock()
	s.pipelines[code] = p
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(p.done)

		var workers sync.WaitGroup
		workers.Add(2)
		go func() {
			defer workers.Done()
			s.runCollector(pctx, p)
		}()
		go func() {
			defer workers.Done()
			_ = p.monitor.Run(pctx)
		}()
		workers.Wait()
	}()

	logger.Info("Pipeline started", logger.String("stock_code", code))
	s.deps.Dispatcher.PipelineStatus(ctx, StatusStarted, code)
}

// runCollector runs the tick collector. A collector failure ends only the
// collector; the monitor keeps evaluating the last published window.
func (s *Supervisor) runCollector(ctx context.Context, p *pipeline) {
	provider, err := s.deps.Providers(p.stockCode)
	if err != nil {
		s.collectorFailed(ctx, p, fmt.Errorf("%w: %v", bars.ErrStartup, err))
		return
	}

	collector := bars.NewCollector(provider, s.deps.Store, bars.CollectorConfig{
		StockCode:  p.stockCode,
		WindowSize: s.config.WindowSize,
	})
	p.setCollector(collector)

	if err := collector.Run(ctx); err != nil && ctx.Err() == nil {
		s.collectorFailed(ctx, p, err)
	}
}

func (s *Supervisor) collectorFailed(ctx context.Context, p *pipeline, err error) {
	p.setErr(err)
	logger.Error("Collector failed",
		logger.String("stock_code", p.stockCode),
		logger.ErrorField(err),
	)
	s.deps.Dispatcher.ErrorAlert(ctx, p.stockCode,
		fmt.Errorf("[%s] Collector Error: %w", p.stockCode, err))
}

func (s *Supervisor) stop(ctx context.Context, code string) {
	s.mu.Lock()
	p, ok := s.pipelines[code]
	delete(s.pipelines, code)
	s.mu.Unlock()
	if !ok {
		return
	}

	p.cancel()
	select {
	case <-p.done:
	case <-time.After(s.config.StopTimeout):
		logger.Warn("Pipeline did not stop in time", logger.String("stock_code", code))
	}

	// A re-added instrument starts from an empty window
	if err := s.deps.Store.DeleteWindow(ctx, code); err != nil {
		logger.Warn("Failed to delete window",
			logger.String("stock_code", code),
			logger.ErrorField(err),
		)
	}

	logger.Info("Pipeline stopped", logger.String("stock_code", code))
	s.deps.Dispatcher.PipelineStatus(ctx, StatusStopped, code)
}

// StopAll cancels every pipeline and waits for them to exit
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	for code, p := range s.pipelines {
		p.cancel()
		delete(s.pipelines, code)
	}
	s.mu.Unlock()

	s.wg.Wait()
	logger.ActivePipelines.Set(0)
}

// Running reports whether code has a pipeline
func (s *Supervisor) Running(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pipelines[code]
	return ok
}

// Len returns the number of running pipelines
func (s *Supervisor) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pipelines)
}

// Codes returns the running codes, sorted
func (s *Supervisor) Codes() []string {
	s.mu.RLock()
	codes := make([]string, 0, len(s.pipelines))
	for code := range s.pipelines {
		codes = append(codes, code)
	}
	s.mu.RUnlock()

	sort.Strings(codes)
	return codes
}

// Status returns the status of one pipeline
func (s *Supervisor) Status(code string) (PipelineStatus, bool) {
	s.mu.RLock()
	p, ok := s.pipelines[code]
	s.mu.RUnlock()
	if !ok {
		return PipelineStatus{}, false
	}
	return p.status(), true
}

// Statuses returns every pipeline's status, sorted by code
func (s *Supervisor) Statuses() []PipelineStatus {
	s.mu.RLock()
	pipelines := make([]*pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		pipelines = append(pipelines, p)
	}
	s.mu.RUnlock()

	out := make([]PipelineStatus, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, p.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockCode < out[j].StockCode })
	return out
}

// Ready reports whether at least one scan succeeded
func (s *Supervisor) Ready() bool {
	return s.ready.Load()
}

// ScanStats returns the number of scans and failed scans
func (s *Supervisor) ScanStats() (scans, failed int64) {
	return s.scans.Load(), s.failed.Load()
}
