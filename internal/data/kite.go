package data

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// connectTimeout bounds how long Connect waits when ctx has no deadline
const connectTimeout = 30 * time.Second

// KiteProvider streams ticks from the Zerodha Kite ticker. Stock codes are
// mapped to instrument tokens through ProviderConfig.InstrumentTokens.
type KiteProvider struct {
	config ProviderConfig

	mu        sync.RWMutex
	ticker    *kiteticker.Ticker
	connected bool
	handlers  map[uint32]TickHandler
	codes     map[uint32]string
	cancel    context.CancelFunc
}

// NewKiteProvider creates a Kite ticker provider
func NewKiteProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" || config.AccessToken == "" {
		return nil, fmt.Errorf("kite provider requires an API key and access token")
	}
	if config.Exchange == "" {
		config.Exchange = "NSE"
	}
	return &KiteProvider{
		config:   config,
		handlers: make(map[uint32]TickHandler),
		codes:    make(map[uint32]string),
	}, nil
}

// Connect starts the ticker and waits for the first connect callback
func (k *KiteProvider) Connect(ctx context.Context) error {
	k.mu.Lock()
	if k.connected {
		k.mu.Unlock()
		return ErrProviderAlreadyConnected
	}

	t := kiteticker.New(k.config.APIKey, k.config.AccessToken)
	t.SetAutoReconnect(false)
	ready := make(chan struct{})
	errs := make(chan error, 1)
	var once sync.Once

	t.OnConnect(func() {
		once.Do(func() { close(ready) })
		k.resubscribe()
	})
	t.OnError(func(err error) {
		logger.Error("Kite ticker error", logger.ErrorField(err))
		select {
		case errs <- err:
		default:
		}
	})
	t.OnClose(func(code int, reason string) {
		logger.Warn("Kite ticker closed",
			logger.Int("code", code),
			logger.String("reason", reason),
		)
	})
	t.OnTick(k.onTick)

	serveCtx, cancel := context.WithCancel(context.Background())
	k.ticker = t
	k.cancel = cancel
	k.mu.Unlock()

	go t.ServeWithContext(serveCtx)

	if _, ok := ctx.Deadline(); !ok {
		var cancelWait context.CancelFunc
		ctx, cancelWait = context.WithTimeout(ctx, connectTimeout)
		defer cancelWait()
	}

	select {
	case <-ready:
		k.mu.Lock()
		k.connected = true
		k.mu.Unlock()
		logger.Info("Kite ticker connected")
		return nil
	case err := <-errs:
		k.Close()
		return fmt.Errorf("failed to connect kite ticker: %w", err)
	case <-ctx.Done():
		k.Close()
		return ctx.Err()
	}
}

// Subscribe maps stockCode to its instrument token and subscribes in full mode
func (k *KiteProvider) Subscribe(ctx context.Context, stockCode string, handler TickHandler) error {
	if stockCode == "" || handler == nil {
		return ErrInvalidSymbol
	}
	code := strings.ToUpper(stockCode)
	token, ok := k.config.InstrumentTokens[code]
	if !ok {
		return fmt.Errorf("%w: no instrument token for %s", ErrInvalidSymbol, code)
	}

	k.mu.Lock()
	if !k.connected {
		k.mu.Unlock()
		return ErrProviderNotConnected
	}
	k.handlers[token] = handler
	k.codes[token] = code
	t := k.ticker
	k.mu.Unlock()

	tokens := []uint32{token}
	if err := t.Subscribe(tokens); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", code, err)
	}
	if err := t.SetMode(kiteticker.ModeFull, tokens); err != nil {
		return fmt.Errorf("failed to set mode for %s: %w", code, err)
	}
	return nil
}

// Close stops the ticker
func (k *KiteProvider) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.ticker == nil {
		return nil
	}
	k.cancel()
	k.ticker.Stop()
	k.ticker = nil
	k.connected = false
	return nil
}

// IsConnected returns whether the ticker is connected
func (k *KiteProvider) IsConnected() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.connected
}

// GetName returns the provider name
func (k *KiteProvider) GetName() string {
	return "kite"
}

func (k *KiteProvider) onTick(tk kitemodels.Tick) {
	k.mu.RLock()
	handler := k.handlers[tk.InstrumentToken]
	code := k.codes[tk.InstrumentToken]
	k.mu.RUnlock()

	if handler == nil {
		return
	}
	handler(KiteTickToRecord(tk, code, k.config.Exchange))
}

func (k *KiteProvider) resubscribe() {
	k.mu.RLock()
	t := k.ticker
	tokens := make([]uint32, 0, len(k.handlers))
	for token := range k.handlers {
		tokens = append(tokens, token)
	}
	k.mu.RUnlock()

	if t == nil || len(tokens) == 0 {
		return
	}
	if err := t.Subscribe(tokens); err != nil {
		logger.Error("Kite resubscribe failed", logger.ErrorField(err))
		return
	}
	if err := t.SetMode(kiteticker.ModeFull, tokens); err != nil {
		logger.Error("Kite set mode failed", logger.ErrorField(err))
	}
}
