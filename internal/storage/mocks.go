package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
)

// MockAlertJournal is a mock implementation of AlertJournal for testing
type MockAlertJournal struct {
	mu       sync.Mutex
	Alerts   []*models.Alert
	WriteErr error
	GetErr   error
}

func (m *MockAlertJournal) WriteAlert(ctx context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Alerts = append(m.Alerts, alert)
	return nil
}

func (m *MockAlertJournal) GetAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var result []*models.Alert
	for i := len(m.Alerts) - 1; i >= 0; i-- {
		alert := m.Alerts[i]
		if filter.StockCode != "" && alert.StockCode != filter.StockCode {
			continue
		}
		if filter.Kind != "" && alert.Kind != filter.Kind {
			continue
		}
		result = append(result, alert)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MockAlertJournal) Close() error {
	return nil
}

// MockSnapshotWriter records snapshots in memory
type MockSnapshotWriter struct {
	mu        sync.Mutex
	Snapshots map[string][]models.EnrichedBar
	Writes    int
	WriteErr  error
}

func NewMockSnapshotWriter() *MockSnapshotWriter {
	return &MockSnapshotWriter{Snapshots: make(map[string][]models.EnrichedBar)}
}

func (m *MockSnapshotWriter) WriteSnapshot(ctx context.Context, stockCode string, rows []models.EnrichedBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Snapshots[stockCode] = rows
	m.Writes++
	return nil
}

func (m *MockSnapshotWriter) Path(stockCode string) string {
	return "mock://" + stockCode
}

// Snapshot returns the last rows written for stockCode
func (m *MockSnapshotWriter) Snapshot(stockCode string) []models.EnrichedBar {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Snapshots[stockCode]
}

// MockRedisClient is a mock implementation of RedisClient for testing
type MockRedisClient struct {
	mu           sync.Mutex
	Data         map[string]string
	PubSubData   []PubSubMessage
	Published    []PubSubMessage
	PublishErr   error
	GetErr       error
	SetErr       error
	SubscribeErr error
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Data: make(map[string]string),
	}
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	// Marshal to JSON like the real implementation
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.Data[key] = string(jsonData)
	return nil
}

func (m *MockRedisClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", m.GetErr
	}
	return m.Data[key], nil
}

func (m *MockRedisClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
	return nil
}

func (m *MockRedisClient) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.Data[key]
	return exists, nil
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	jsonData, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.Published = append(m.Published, PubSubMessage{Channel: channel, Message: string(jsonData)})
	return nil
}

func (m *MockRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	ch := make(chan PubSubMessage, len(m.PubSubData))
	for _, msg := range m.PubSubData {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

func (m *MockRedisClient) Close() error {
	return nil
}

// PublishedMessages returns a copy of everything published so far
func (m *MockRedisClient) PublishedMessages() []PubSubMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PubSubMessage, len(m.Published))
	copy(out, m.Published)
	return out
}
