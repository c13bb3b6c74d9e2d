package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// CooldownManager suppresses repeats of the same error alert for an
// instrument within ttl. A monitor stuck on a failing cycle would otherwise
// alert every backoff period. Trade and status alerts are never throttled.
// With a Redis client the cooldown is shared across processes; without one it
// is kept in memory.
type CooldownManager struct {
	redis storage.RedisClient
	ttl   time.Duration

	mu        sync.Mutex
	expiry    map[string]time.Time
	lastPrune time.Time
	now       func() time.Time
}

// NewCooldownManager creates a cooldown manager. redis may be nil.
func NewCooldownManager(redis storage.RedisClient, ttl time.Duration) *CooldownManager {
	return &CooldownManager{
		redis:  redis,
		ttl:    ttl,
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// GenerateCooldownKey generates a cooldown key for an alert
// Format: cooldown:{kind}:{stock_code}:{message}
func GenerateCooldownKey(alert *models.Alert) string {
	return fmt.Sprintf("cooldown:%s:%s:%s", alert.Kind, alert.StockCode, alert.Message)
}

// CheckAndSetCooldown reports whether alert should be suppressed, starting
// a new cooldown when it is not
func (c *CooldownManager) CheckAndSetCooldown(ctx context.Context, alert *models.Alert) (bool, error) {
	if c == nil || c.ttl <= 0 || alert.Kind != models.AlertKindError {
		return false, nil
	}

	key := GenerateCooldownKey(alert)
	if c.redis != nil {
		return c.checkRedis(ctx, key, alert)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.prune(now)
	if until, ok := c.expiry[key]; ok && now.Before(until) {
		return true, nil
	}
	c.expiry[key] = now.Add(c.ttl)
	return false, nil
}

// prune drops expired keys, at most once per ttl. Keys embed the error
// text, so the map would otherwise grow for the life of the process.
func (c *CooldownManager) prune(now time.Time) {
	if now.Sub(c.lastPrune) < c.ttl {
		return
	}
	c.lastPrune = now
	for key, until := range c.expiry {
		if !now.Before(until) {
			delete(c.expiry, key)
		}
	}
}

func (c *CooldownManager) tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expiry)
}

func (c *CooldownManager) checkRedis(ctx context.Context, key string, alert *models.Alert) (bool, error) {
	exists, err := c.redis.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown: %w", err)
	}
	if exists {
		logger.Debug("Alert in cooldown period",
			logger.String("alert_id", alert.ID),
			logger.String("stock_code", alert.StockCode),
		)
		return true, nil
	}

	if err := c.redis.Set(ctx, key, alert.ID, c.ttl); err != nil {
		logger.Warn("Failed to set cooldown",
			logger.ErrorField(err),
			logger.String("alert_id", alert.ID),
		)
	}
	return false, nil
}
