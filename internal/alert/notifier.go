package alert

import (
	"context"
	"errors"
	"sync"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// Notifier delivers a formatted alert to one outbound channel
type Notifier interface {
	Send(ctx context.Context, alert *models.Alert) error
	Name() string
}

// LogNotifier writes alerts to the structured log. It is the fallback when no
// other channel is configured.
type LogNotifier struct{}

// Send logs the alert
func (LogNotifier) Send(ctx context.Context, alert *models.Alert) error {
	logger.Info("Alert",
		logger.String("alert_id", alert.ID),
		logger.String("kind", string(alert.Kind)),
		logger.String("stock_code", alert.StockCode),
		logger.String("message", alert.Message),
	)
	return nil
}

// Name returns the notifier name
func (LogNotifier) Name() string { return "log" }

// MultiNotifier fans an alert out to every notifier. One failing channel
// does not stop the others.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a fan-out notifier
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send delivers to all notifiers and joins their errors
func (m *MultiNotifier) Send(ctx context.Context, alert *models.Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			logger.NotificationFailures.WithLabelValues(n.Name()).Inc()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Name returns the notifier name
func (m *MultiNotifier) Name() string { return "multi" }

// Len returns the number of wrapped notifiers
func (m *MultiNotifier) Len() int { return len(m.notifiers) }

// RecordingNotifier keeps every alert in memory. Used by tests.
type RecordingNotifier struct {
	mu     sync.Mutex
	alerts []*models.Alert
	Err    error
}

// NewRecordingNotifier creates an empty recorder
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// Send records the alert and returns Err
func (r *RecordingNotifier) Send(ctx context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return r.Err
}

// Name returns the notifier name
func (r *RecordingNotifier) Name() string { return "recording" }

// Alerts returns a copy of the recorded alerts
func (r *RecordingNotifier) Alerts() []*models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// ByKind returns the recorded alerts of one kind
func (r *RecordingNotifier) ByKind(kind models.AlertKind) []*models.Alert {
	var out []*models.Alert
	for _, a := range r.Alerts() {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}
