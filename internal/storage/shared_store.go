package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// MemoryStore is an in-process SharedStore. Windows are kept serialized, so
// every reader decodes its own copy and no reader can observe a later write.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string][]byte
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]byte)}
}

// PublishWindow stores the serialized window, replacing the previous one
func (s *MemoryStore) PublishWindow(ctx context.Context, window *models.BarWindow) error {
	if window == nil || window.StockCode == "" {
		return models.ErrInvalidStockCode
	}

	data, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("failed to marshal window: %w", err)
	}

	s.mu.Lock()
	s.windows[window.StockCode] = data
	s.mu.Unlock()

	logger.SnapshotsPublished.WithLabelValues(window.StockCode).Inc()
	return nil
}

// GetWindow decodes the latest window for stockCode
func (s *MemoryStore) GetWindow(ctx context.Context, stockCode string) (*models.BarWindow, error) {
	s.mu.RLock()
	data, ok := s.windows[stockCode]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	var window models.BarWindow
	if err := json.Unmarshal(data, &window); err != nil {
		return nil, fmt.Errorf("failed to unmarshal window: %w", err)
	}
	return &window, nil
}

// DeleteWindow removes the window for stockCode
func (s *MemoryStore) DeleteWindow(ctx context.Context, stockCode string) error {
	s.mu.Lock()
	delete(s.windows, stockCode)
	s.mu.Unlock()
	return nil
}

// Codes returns the codes that currently have a window
func (s *MemoryStore) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.windows))
	for code := range s.windows {
		codes = append(codes, code)
	}
	return codes
}

// RedisStoreConfig configures the Redis-backed SharedStore
type RedisStoreConfig struct {
	KeyPrefix     string
	TTL           time.Duration
	NotifyChannel string // published with the stock code on every update, empty disables
}

// WindowNotification is published on the notify channel after each update
type WindowNotification struct {
	StockCode string    `json:"stock_code"`
	Bars      int       `json:"bars"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisStore keeps windows in Redis so collectors and monitors can run in
// separate processes. A SET replaces the whole value atomically.
type RedisStore struct {
	client RedisClient
	config RedisStoreConfig
}

// NewRedisStore creates a Redis-backed SharedStore
func NewRedisStore(client RedisClient, config RedisStoreConfig) *RedisStore {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "window:"
	}
	return &RedisStore{client: client, config: config}
}

func (s *RedisStore) key(stockCode string) string {
	return s.config.KeyPrefix + stockCode
}

// PublishWindow writes the window and announces it on the notify channel
func (s *RedisStore) PublishWindow(ctx context.Context, window *models.BarWindow) error {
	if window == nil || window.StockCode == "" {
		return models.ErrInvalidStockCode
	}

	if err := s.client.Set(ctx, s.key(window.StockCode), window, s.config.TTL); err != nil {
		return fmt.Errorf("failed to publish window for %s: %w", window.StockCode, err)
	}
	logger.SnapshotsPublished.WithLabelValues(window.StockCode).Inc()

	if s.config.NotifyChannel != "" {
		note := WindowNotification{
			StockCode: window.StockCode,
			Bars:      window.Len(),
			UpdatedAt: window.UpdatedAt,
		}
		if err := s.client.Publish(ctx, s.config.NotifyChannel, note); err != nil {
			// The window itself is stored; pollers will pick it up
			logger.Warn("Failed to publish window notification",
				logger.String("stock_code", window.StockCode),
				logger.ErrorField(err),
			)
		}
	}

	return nil
}

// GetWindow reads the latest window, nil when the key is absent
func (s *RedisStore) GetWindow(ctx context.Context, stockCode string) (*models.BarWindow, error) {
	raw, err := s.client.Get(ctx, s.key(stockCode))
	if err != nil {
		return nil, fmt.Errorf("failed to get window for %s: %w", stockCode, err)
	}
	if raw == "" {
		return nil, nil
	}

	var window models.BarWindow
	if err := json.Unmarshal([]byte(raw), &window); err != nil {
		return nil, fmt.Errorf("failed to unmarshal window for %s: %w", stockCode, err)
	}
	return &window, nil
}

// DeleteWindow removes the stored window
func (s *RedisStore) DeleteWindow(ctx context.Context, stockCode string) error {
	return s.client.Delete(ctx, s.key(stockCode))
}
