package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mohamedkhairy/breakout-monitor/internal/alert"
	"github.com/mohamedkhairy/breakout-monitor/internal/breakout"
	"github.com/mohamedkhairy/breakout-monitor/internal/forecast"
	"github.com/mohamedkhairy/breakout-monitor/internal/instruments"
	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/mohamedkhairy/breakout-monitor/pkg/indicator"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// Cycle results, also used as the result label of the cycle metric
const (
	ResultOK            = "ok"
	ResultAlert         = "alert"
	ResultMissingConfig = "missing_config"
	ResultNoWindow      = "no_window"
	ResultWarmingUp     = "warming_up"
	ResultStoreError    = "store_error"
	ResultError         = "error"
)

// ConfigSource resolves the current config of one instrument
type ConfigSource interface {
	Instrument(stockCode string) (*models.InstrumentConfig, error)
}

// Config holds the monitor's timing
type Config struct {
	StockCode        string
	MinBars          int           // bars required before evaluating (default: 10)
	Interval         time.Duration // sleep after a normal cycle (default: 2s)
	WarmupInterval   time.Duration // sleep while the window is short (default: 1s)
	ErrorBackoff     time.Duration // sleep after a failed cycle (default: 5s)
	ForecastInterval time.Duration // forecast cadence (default: 60s)
	ForecastTimeout  time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig(stockCode string) Config {
	return Config{
		StockCode:        stockCode,
		MinBars:          10,
		Interval:         2 * time.Second,
		WarmupInterval:   1 * time.Second,
		ErrorBackoff:     5 * time.Second,
		ForecastInterval: 60 * time.Second,
		ForecastTimeout:  30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig(c.StockCode)
	if c.MinBars <= 0 {
		c.MinBars = d.MinBars
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.WarmupInterval <= 0 {
		c.WarmupInterval = d.WarmupInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = d.ErrorBackoff
	}
	if c.ForecastInterval <= 0 {
		c.ForecastInterval = d.ForecastInterval
	}
	if c.ForecastTimeout <= 0 {
		c.ForecastTimeout = d.ForecastTimeout
	}
}

// Deps are the monitor's collaborators. Forecaster, Recorder and Wake are optional.
type Deps struct {
	Configs    ConfigSource
	Store      storage.SharedStore
	Snapshots  storage.SnapshotWriter
	Dispatcher *alert.Dispatcher
	Forecaster forecast.Forecaster
	Recorder   *forecast.Recorder
	Wake       <-chan struct{}
}

// Status is a point-in-time view of the monitor
type Status struct {
	Cycles     int64             `json:"cycles"`
	Errors     int64             `json:"errors"`
	Alerts     int64             `json:"alerts"`
	LastCycle  time.Time         `json:"last_cycle,omitempty"`
	LastResult string            `json:"last_result"`
	LastSignal models.Signal     `json:"last_signal"`
	LastReason string            `json:"last_reason,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
	Bars       int               `json:"bars"`
	State      breakout.Snapshot `json:"breakout_state"`
}

// Monitor polls the shared store for one instrument, enriches the window,
// persists it and raises an alert on each rising edge into a breakout or
// breakdown. A failing cycle never stops the monitor.
type Monitor struct {
	config Config
	deps   Deps
	state  *breakout.State
	log    *zap.Logger
	now    func() time.Time

	mu           sync.RWMutex
	lastConfig   *models.InstrumentConfig
	status       Status
	lastForecast time.Time

	forecasting atomic.Bool
	wg          sync.WaitGroup
}

// New creates a monitor. initial is the config the pipeline was started
// with; threshold changes are detected against it.
func New(config Config, deps Deps, initial *models.InstrumentConfig) *Monitor {
	config.applyDefaults()
	if deps.Dispatcher == nil {
		deps.Dispatcher = alert.NewDispatcher(nil)
	}

	m := &Monitor{
		config: config,
		deps:   deps,
		state:  breakout.NewState(),
		log:    logger.ForInstrument(config.StockCode, "monitor"),
		now:    time.Now,
	}
	if initial != nil {
		c := initial.Clone()
		m.lastConfig = &c
	}
	m.status.LastSignal = models.SignalNone
	return m
}

// Run executes cycles until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("Monitor started",
		logger.Int("min_bars", m.config.MinBars),
		logger.Duration("interval", m.config.Interval),
	)
	defer m.wg.Wait()

	for {
		wait, failed := m.runCycle(ctx)

		// An error backoff is always waited out in full
		wake := m.deps.Wake
		if failed {
			wake = nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.log.Info("Monitor stopped")
			return nil
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// RunCycle performs one monitoring cycle and returns how long to sleep
// before the next one
func (m *Monitor) RunCycle(ctx context.Context) time.Duration {
	wait, _ := m.runCycle(ctx)
	return wait
}

func (m *Monitor) runCycle(ctx context.Context) (wait time.Duration, failed bool) {
	start := m.now()
	result := ResultError

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			m.log.Error("Monitor cycle panicked",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			wait = m.fail(ctx, err)
			failed = true
			result = ResultError
		}
		m.finishCycle(start, result)
	}()

	var err error
	result, err = m.cycle(ctx)
	if err != nil {
		return m.fail(ctx, err), true
	}

	if result == ResultWarmingUp {
		return m.config.WarmupInterval, false
	}
	return m.config.Interval, false
}

func (m *Monitor) cycle(ctx context.Context) (string, error) {
	code := m.config.StockCode

	cfg, err := m.deps.Configs.Instrument(code)
	if err != nil {
		if errors.Is(err, instruments.ErrInstrumentNotFound) {
			m.log.Warn("Config not found in latest config")
			return ResultMissingConfig, nil
		}
		return ResultError, fmt.Errorf("failed to load config: %w", err)
	}
	m.observeConfig(cfg)

	window, err := m.deps.Store.GetWindow(ctx, code)
	if err != nil {
		m.log.Warn("Failed to read window", logger.ErrorField(err))
		return ResultStoreError, nil
	}
	if window == nil {
		return ResultNoWindow, nil
	}
	m.setBars(window.Len())
	if window.Len() < m.config.MinBars {
		return ResultWarmingUp, nil
	}

	enriched, err := indicator.Compute(window.Bars, *cfg)
	if err != nil {
		return ResultError, fmt.Errorf("indicator computation failed: %w", err)
	}
	res := breakout.Detect(enriched, *cfg)

	if err := m.deps.Snapshots.WriteSnapshot(ctx, code, enriched); err != nil {
		return ResultError, fmt.Errorf("failed to persist snapshot: %w", err)
	}
	m.log.Debug("Saved snapshot",
		logger.Int("rows", len(enriched)),
		logger.String("path", m.deps.Snapshots.Path(code)),
	)

	m.mu.Lock()
	m.status.LastSignal = res.Signal
	m.status.LastReason = res.Reason
	m.mu.Unlock()

	m.maybeForecast(ctx, enriched)

	if !m.state.Apply(res.Signal) {
		return ResultOK, nil
	}

	barTime := enriched[len(enriched)-1].Timestamp
	if barTime.IsZero() {
		barTime = m.now()
	}
	m.log.Info("Alert",
		logger.String("signal", string(res.Signal)),
		logger.Float64("price", res.Price),
		logger.Float64("level", res.Level),
		logger.String("reason", res.Reason),
	)
	m.deps.Dispatcher.TradeAlert(ctx, code, res.Signal, res.Price, res.Level, res.Reason, barTime)

	m.mu.Lock()
	m.status.Alerts++
	m.mu.Unlock()
	return ResultAlert, nil
}

// observeConfig logs config edits and re-arms the state machine when
// support or resistance moved
func (m *Monitor) observeConfig(cfg *models.InstrumentConfig) {
	m.mu.Lock()
	prev := m.lastConfig
	c := cfg.Clone()
	m.lastConfig = &c
	m.mu.Unlock()

	if prev == nil {
		return
	}
	changes := instruments.Diff(prev, cfg)
	if len(changes) == 0 {
		return
	}

	m.log.Info("Config changes detected", logger.String("changes", instruments.FormatChanges(changes)))
	if cfg.ThresholdsChanged(prev) {
		m.state.Reset()
		m.log.Info("Thresholds changed, breakout state reset",
			logger.Float64("support", cfg.Support),
			logger.Float64("resistance", cfg.Resistance),
		)
	}
}

func (m *Monitor) fail(ctx context.Context, err error) time.Duration {
	m.mu.Lock()
	m.status.Errors++
	m.status.LastError = err.Error()
	m.mu.Unlock()

	logger.ErrorsTotal.WithLabelValues("monitor", "cycle").Inc()
	m.log.Error("Monitor error", logger.ErrorField(err))
	m.deps.Dispatcher.ErrorAlert(ctx, m.config.StockCode,
		fmt.Errorf("[%s] Monitor Error: %w", m.config.StockCode, err))
	return m.config.ErrorBackoff
}

func (m *Monitor) finishCycle(start time.Time, result string) {
	elapsed := m.now().Sub(start)
	logger.MonitorCycles.WithLabelValues(m.config.StockCode, result).Inc()
	logger.MonitorCycleDuration.WithLabelValues(m.config.StockCode).Observe(elapsed.Seconds())

	m.mu.Lock()
	m.status.Cycles++
	m.status.LastCycle = start
	m.status.LastResult = result
	m.mu.Unlock()
}

func (m *Monitor) setBars(n int) {
	m.mu.Lock()
	m.status.Bars = n
	m.mu.Unlock()
}

// maybeForecast starts a forecast in the background when the cadence is
// due. It never touches breakout state.
func (m *Monitor) maybeForecast(ctx context.Context, rows []models.EnrichedBar) {
	if m.deps.Forecaster == nil {
		return
	}

	now := m.now()
	m.mu.Lock()
	due := m.lastForecast.IsZero() || now.Sub(m.lastForecast) >= m.config.ForecastInterval
	if due {
		m.lastForecast = now
	}
	m.mu.Unlock()
	if !due || !m.forecasting.CompareAndSwap(false, true) {
		return
	}

	snapshot := make([]models.EnrichedBar, len(rows))
	copy(snapshot, rows)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.forecasting.Store(false)

		fctx, cancel := context.WithTimeout(ctx, m.config.ForecastTimeout)
		defer cancel()

		text, err := m.deps.Forecaster.Forecast(fctx, m.config.StockCode, snapshot)
		if err != nil {
			m.log.Warn("Forecast failed", logger.ErrorField(err))
			return
		}
		m.log.Info("Forecast", logger.String("forecast", text))
		if m.deps.Recorder != nil {
			if err := m.deps.Recorder.Append(m.config.StockCode, text, m.now()); err != nil {
				m.log.Warn("Failed to record forecast", logger.ErrorField(err))
			}
		}
	}()
}

// Status returns the monitor status
func (m *Monitor) Status() Status {
	m.mu.RLock()
	s := m.status
	m.mu.RUnlock()
	s.State = m.state.Snapshot()
	return s
}

// State exposes the breakout state machine
func (m *Monitor) State() *breakout.State {
	return m.state
}

// WaitForecasts blocks until in-flight forecasts finish
func (m *Monitor) WaitForecasts() {
	m.wg.Wait()
}
