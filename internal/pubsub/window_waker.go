package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// WindowWaker listens on the shared store's notify channel and wakes the
// monitor of the instrument whose window was just published. Monitors keep
// polling; a wake only shortens the current sleep.
type WindowWaker struct {
	client  storage.RedisClient
	channel string

	mu      sync.Mutex
	waiters map[string]chan struct{}
	running bool
	wg      sync.WaitGroup
}

// NewWindowWaker creates a waker for channel
func NewWindowWaker(client storage.RedisClient, channel string) *WindowWaker {
	return &WindowWaker{
		client:  client,
		channel: channel,
		waiters: make(map[string]chan struct{}),
	}
}

// Start subscribes to the notify channel. It returns once subscribed; the
// listener stops when ctx is cancelled.
func (w *WindowWaker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("window waker is already running")
	}
	w.running = true
	w.mu.Unlock()

	messages, err := w.client.Subscribe(ctx, w.channel)
	if err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("failed to subscribe to %s: %w", w.channel, err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for msg := range messages {
			var note storage.WindowNotification
			if err := json.Unmarshal([]byte(msg.Message), &note); err != nil {
				logger.Debug("Ignoring malformed window notification",
					logger.String("channel", msg.Channel),
					logger.ErrorField(err),
				)
				continue
			}
			w.wake(note.StockCode)
		}
	}()

	logger.Info("Window waker started", logger.String("channel", w.channel))
	return nil
}

// Wait blocks until the listener has exited
func (w *WindowWaker) Wait() {
	w.wg.Wait()
}

// C returns the wake channel for stockCode. At most one wake is buffered.
func (w *WindowWaker) C(stockCode string) <-chan struct{} {
	return w.waiter(stockCode)
}

func (w *WindowWaker) waiter(stockCode string) chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch, ok := w.waiters[stockCode]
	if !ok {
		ch = make(chan struct{}, 1)
		w.waiters[stockCode] = ch
	}
	return ch
}

func (w *WindowWaker) wake(stockCode string) {
	select {
	case w.waiter(stockCode) <- struct{}{}:
	default:
	}
}
