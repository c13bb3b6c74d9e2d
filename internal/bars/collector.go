package bars

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mohamedkhairy/breakout-monitor/internal/data"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

var (
	// ErrStartup wraps connect and subscribe failures; they end the pipeline
	ErrStartup = errors.New("collector startup failed")
	// ErrStreamClosed is returned when the feed ends while the collector is running
	ErrStreamClosed = errors.New("tick stream closed")
)

// CollectorState is the lifecycle of a collector
type CollectorState int32

const (
	StateConnecting CollectorState = iota
	StateSubscribed
	StateStreaming
	StateTerminated
)

func (s CollectorState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CollectorConfig holds configuration for one instrument's collector
type CollectorConfig struct {
	StockCode      string
	WindowSize     int
	PublishTimeout time.Duration
}

// CollectorStats is a point-in-time view of collector counters
type CollectorStats struct {
	State        string    `json:"state"`
	TicksSeen    int64     `json:"ticks_seen"`
	TicksDropped int64     `json:"ticks_dropped"`
	Bars         int       `json:"bars"`
	LastTick     time.Time `json:"last_tick,omitempty"`
}

// streamEnder is implemented by providers whose stream can end on its own
type streamEnder interface {
	Done() <-chan struct{}
}

// Collector subscribes to one instrument's feed, appends every tick to a
// bounded window and publishes the whole window to the shared store.
type Collector struct {
	config   CollectorConfig
	provider data.Provider
	store    storage.SharedStore
	window   *Window
	log      *zap.Logger

	state   atomic.Int32
	seen    atomic.Int64
	dropped atomic.Int64

	mu       sync.RWMutex
	ctx      context.Context
	lastTick time.Time
}

// NewCollector creates a collector
func NewCollector(provider data.Provider, store storage.SharedStore, config CollectorConfig) *Collector {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}
	return &Collector{
		config:   config,
		provider: provider,
		store:    store,
		window:   NewWindow(config.StockCode, config.WindowSize),
		log:      logger.ForInstrument(config.StockCode, "collector"),
		ctx:      context.Background(),
	}
}

// Run connects, subscribes and streams until ctx is cancelled. Connect and
// subscribe failures are returned wrapped in ErrStartup; nothing is retried.
func (c *Collector) Run(ctx context.Context) error {
	c.setState(StateConnecting)
	defer c.setState(StateTerminated)

	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if err := c.provider.Connect(ctx); err != nil {
		logger.ErrorsTotal.WithLabelValues("collector", "connect").Inc()
		return fmt.Errorf("%w: connect %s: %v", ErrStartup, c.provider.GetName(), err)
	}
	defer func() {
		if err := c.provider.Close(); err != nil {
			c.log.Warn("Failed to close provider", logger.ErrorField(err))
		}
	}()

	if err := c.provider.Subscribe(ctx, c.config.StockCode, c.handleTick); err != nil {
		logger.ErrorsTotal.WithLabelValues("collector", "subscribe").Inc()
		return fmt.Errorf("%w: subscribe %s: %v", ErrStartup, c.config.StockCode, err)
	}
	// a tick may already have moved us to streaming
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateSubscribed))

	c.log.Info("Collector started",
		logger.String("provider", c.provider.GetName()),
		logger.Int("window_size", c.config.WindowSize),
	)

	var ended <-chan struct{}
	if se, ok := c.provider.(streamEnder); ok {
		ended = se.Done()
	}

	select {
	case <-ctx.Done():
		c.log.Info("Collector stopped")
		return nil
	case <-ended:
		c.log.Warn("Tick stream ended")
		return ErrStreamClosed
	}
}

// handleTick is the provider callback. Parse failures drop the tick.
func (c *Collector) handleTick(raw map[string]interface{}) {
	c.seen.Add(1)
	logger.TicksReceived.WithLabelValues(c.config.StockCode).Inc()

	bar, err := data.NormalizeTick(raw)
	if err != nil {
		c.dropped.Add(1)
		logger.TicksDropped.WithLabelValues(c.config.StockCode, "parse").Inc()
		c.log.Warn("Tick processing error", logger.ErrorField(err))
		return
	}

	c.window.Append(bar)
	if !c.state.CompareAndSwap(int32(StateSubscribed), int32(StateStreaming)) {
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateStreaming))
	}

	c.mu.Lock()
	if !bar.Timestamp.IsZero() {
		c.lastTick = bar.Timestamp
	}
	ctx := c.ctx
	c.mu.Unlock()

	pubCtx, cancel := context.WithTimeout(ctx, c.config.PublishTimeout)
	defer cancel()
	if err := c.store.PublishWindow(pubCtx, c.window.Snapshot()); err != nil {
		logger.TicksDropped.WithLabelValues(c.config.StockCode, "publish").Inc()
		c.log.Warn("Failed to publish window", logger.ErrorField(err))
	}
}

// State returns the current lifecycle state
func (c *Collector) State() CollectorState {
	return CollectorState(c.state.Load())
}

func (c *Collector) setState(s CollectorState) {
	c.state.Store(int32(s))
}

// Stats returns the collector counters
func (c *Collector) Stats() CollectorStats {
	c.mu.RLock()
	last := c.lastTick
	c.mu.RUnlock()

	return CollectorStats{
		State:        c.State().String(),
		TicksSeen:    c.seen.Load(),
		TicksDropped: c.dropped.Load(),
		Bars:         c.window.Len(),
		LastTick:     last,
	}
}
