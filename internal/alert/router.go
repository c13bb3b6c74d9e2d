package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// RedisNotifier publishes every alert as JSON on a Redis pub/sub channel so
// dashboards and other consumers can follow the alert stream.
type RedisNotifier struct {
	redis          storage.RedisClient
	channel        string
	publishTimeout time.Duration
}

// NewRedisNotifier creates a new Redis alert publisher
func NewRedisNotifier(redis storage.RedisClient, channel string, publishTimeout time.Duration) *RedisNotifier {
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &RedisNotifier{
		redis:          redis,
		channel:        channel,
		publishTimeout: publishTimeout,
	}
}

// Send publishes the alert to the channel
func (r *RedisNotifier) Send(ctx context.Context, alert *models.Alert) error {
	pubCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()

	if err := r.redis.Publish(pubCtx, r.channel, alert); err != nil {
		return fmt.Errorf("failed to publish alert to %s: %w", r.channel, err)
	}

	logger.Debug("Published alert",
		logger.String("alert_id", alert.ID),
		logger.String("stock_code", alert.StockCode),
		logger.String("channel", r.channel),
	)
	return nil
}

// Name returns the notifier name
func (r *RedisNotifier) Name() string { return "redis" }
