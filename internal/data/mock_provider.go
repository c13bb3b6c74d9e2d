package data

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const defaultMockTickInterval = 500 * time.Millisecond

// MockProvider generates a random walk of Breeze-shaped ticks. It is used for
// local runs and tests.
type MockProvider struct {
	name      string
	config    ProviderConfig
	connected bool
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// ConnectErr and SubscribeErr force failures in tests
	ConnectErr   error
	SubscribeErr error
}

// NewMockProvider creates a new mock provider
func NewMockProvider(config ProviderConfig) (Provider, error) {
	if config.TickInterval <= 0 {
		config.TickInterval = defaultMockTickInterval
	}
	if config.Exchange == "" {
		config.Exchange = "NSE"
	}
	return &MockProvider{
		name:   "mock",
		config: config,
	}, nil
}

// Connect establishes a connection (mock - succeeds unless ConnectErr is set)
func (m *MockProvider) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	if m.connected {
		return ErrProviderAlreadyConnected
	}

	m.connected = true
	return nil
}

// Subscribe starts the tick generator for stockCode
func (m *MockProvider) Subscribe(ctx context.Context, stockCode string, handler TickHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrProviderNotConnected
	}
	if m.SubscribeErr != nil {
		return m.SubscribeErr
	}
	if stockCode == "" || handler == nil {
		return ErrInvalidSymbol
	}

	genCtx, cancel := context.WithCancel(ctx)
	prev := m.cancel
	m.cancel = func() {
		if prev != nil {
			prev()
		}
		cancel()
	}

	m.wg.Add(1)
	go m.generateTicks(genCtx, stockCode, handler)
	return nil
}

// Close stops every generator
func (m *MockProvider) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.connected = false
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// IsConnected returns whether the provider is connected
func (m *MockProvider) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// GetName returns the provider name
func (m *MockProvider) GetName() string {
	return m.name
}

func (m *MockProvider) generateTicks(ctx context.Context, stockCode string, handler TickHandler) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	prevClose := 1000.0 + rng.Float64()*100.0
	last := prevClose
	open, high, low := last, last, last
	var total float64

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			last += (rng.Float64() - 0.5) * 4.0
			if last < 1.0 {
				last = 1.0
			}
			if last > high {
				high = last
			}
			if last < low {
				low = last
			}
			qty := float64(rng.Intn(1000) + 100)
			total += qty

			handler(map[string]interface{}{
				"ltt":        now.Format(time.ANSIC),
				"open":       open,
				"high":       high,
				"low":        low,
				"last":       last,
				"close":      prevClose,
				"change":     (last - prevClose) / prevClose * 100,
				"ltq":        qty,
				"ttq":        total,
				"bPrice":     last - 0.05,
				"sPrice":     last + 0.05,
				"bQty":       float64(rng.Intn(500)),
				"sQty":       float64(rng.Intn(500)),
				"avgPrice":   (open + last) / 2,
				"upperCktLm": prevClose * 1.2,
				"lowerCktLm": prevClose * 0.8,
				"exchange":   m.config.Exchange,
				"stock_name": stockCode,
			})
		}
	}
}
