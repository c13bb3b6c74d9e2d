package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
)

// ErrUnknownFormat is returned for unsupported snapshot formats
var ErrUnknownFormat = errors.New("unknown snapshot format")

// SharedStore maps instrument codes to the latest published bar window.
// Each key has a single writer (the instrument's collector) and many readers.
// A reader sees an absent, stale or complete window, never a partial one.
type SharedStore interface {
	// PublishWindow replaces the stored window for window.StockCode
	PublishWindow(ctx context.Context, window *models.BarWindow) error

	// GetWindow returns the latest window, or nil when none was published
	GetWindow(ctx context.Context, stockCode string) (*models.BarWindow, error)

	// DeleteWindow drops the stored window
	DeleteWindow(ctx context.Context, stockCode string) error
}

// SnapshotWriter persists the enriched window of one instrument, replacing
// any previous snapshot.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, stockCode string, rows []models.EnrichedBar) error

	// Path returns the file the snapshot for stockCode is written to
	Path(stockCode string) string
}

// AlertJournal records dispatched alerts
type AlertJournal interface {
	// WriteAlert writes an alert to storage
	WriteAlert(ctx context.Context, alert *models.Alert) error

	// GetAlerts retrieves alerts with filtering options, newest first
	GetAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)

	// Close closes the storage connection
	Close() error
}

// AlertFilter defines filtering options for alert queries
type AlertFilter struct {
	StockCode string
	Kind      models.AlertKind
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// RedisClient defines the interface for Redis operations
type RedisClient interface {
	// Key-value operations
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error)

	// Close closes the Redis connection
	Close() error
}

// PubSubMessage represents a message from Redis pub/sub
type PubSubMessage struct {
	Channel string
	Message string
}
