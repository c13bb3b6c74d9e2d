package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// TimeLayout formats bar times inside alert messages
const TimeLayout = "2006-01-02 15:04:05"

// Dispatcher formats alerts, stamps them with an ID and hands them to the
// notifier and the journal. Every failure is logged and swallowed so a
// broken channel never stops a pipeline.
type Dispatcher struct {
	notifier Notifier
	journal  storage.AlertJournal
	cooldown *CooldownManager
	timeout  time.Duration
	now      func() time.Time
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithJournal records every dispatched alert
func WithJournal(journal storage.AlertJournal) DispatcherOption {
	return func(d *Dispatcher) { d.journal = journal }
}

// WithCooldown throttles repeated error alerts
func WithCooldown(cooldown *CooldownManager) DispatcherOption {
	return func(d *Dispatcher) { d.cooldown = cooldown }
}

// WithTimeout bounds each delivery
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// NewDispatcher creates a dispatcher. A nil notifier logs alerts.
func NewDispatcher(notifier Notifier, opts ...DispatcherOption) *Dispatcher {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	d := &Dispatcher{
		notifier: notifier,
		timeout:  10 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TradeAlert announces a breakout or breakdown
func (d *Dispatcher) TradeAlert(ctx context.Context, stockCode string, signal models.Signal, price, level float64, reason string, barTime time.Time) *models.Alert {
	a := d.newAlert(models.AlertKindTrade, stockCode)
	a.Signal = signal
	a.Price = price
	a.Level = level
	a.Reason = reason
	a.BarTime = barTime
	a.Message = FormatTradeMessage(stockCode, signal, price, level, reason, barTime)

	if d.dispatch(ctx, a) {
		logger.AlertsFired.WithLabelValues(stockCode, string(signal)).Inc()
	}
	return a
}

// PipelineStatus announces a pipeline lifecycle change
func (d *Dispatcher) PipelineStatus(ctx context.Context, status, stockCode string) *models.Alert {
	a := d.newAlert(models.AlertKindStatus, stockCode)
	a.Message = FormatStatusMessage(status, stockCode)
	d.dispatch(ctx, a)
	return a
}

// ErrorAlert reports a failure. stockCode may be empty for process-level errors.
func (d *Dispatcher) ErrorAlert(ctx context.Context, stockCode string, err error) *models.Alert {
	a := d.newAlert(models.AlertKindError, stockCode)
	a.Reason = err.Error()
	a.Message = FormatErrorMessage(err.Error())
	d.dispatch(ctx, a)
	return a
}

func (d *Dispatcher) newAlert(kind models.AlertKind, stockCode string) *models.Alert {
	return &models.Alert{
		ID:        uuid.New().String(),
		Kind:      kind,
		StockCode: stockCode,
		CreatedAt: d.now().UTC(),
	}
}

// send hands a to the notifier. A panicking notifier is reported as a failed send.
func (d *Dispatcher) send(ctx context.Context, a *models.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return d.notifier.Send(ctx, a)
}

// dispatch reports whether the alert was handed to the notifier
func (d *Dispatcher) dispatch(ctx context.Context, a *models.Alert) bool {
	if err := a.Validate(); err != nil {
		logger.Error("Refusing to dispatch invalid alert",
			logger.String("alert_id", a.ID),
			logger.ErrorField(err),
		)
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if suppressed, err := d.cooldown.CheckAndSetCooldown(sendCtx, a); err != nil {
		logger.Warn("Cooldown check failed", logger.ErrorField(err))
	} else if suppressed {
		return false
	}

	if err := d.send(sendCtx, a); err != nil {
		logger.NotificationFailures.WithLabelValues(d.notifier.Name()).Inc()
		logger.Error("Failed to send alert",
			logger.String("alert_id", a.ID),
			logger.String("kind", string(a.Kind)),
			logger.String("stock_code", a.StockCode),
			logger.String("notifier", d.notifier.Name()),
			logger.ErrorField(err),
		)
	}

	if d.journal != nil {
		if err := d.journal.WriteAlert(sendCtx, a); err != nil {
			logger.ErrorsTotal.WithLabelValues("alert_journal", "write").Inc()
			logger.Error("Failed to journal alert",
				logger.String("alert_id", a.ID),
				logger.ErrorField(err),
			)
		}
	}
	return true
}

// FormatTradeMessage renders a breakout or breakdown alert
func FormatTradeMessage(stockCode string, signal models.Signal, price, level float64, reason string, barTime time.Time) string {
	var action string
	switch signal {
	case models.SignalBreakdown:
		action = fmt.Sprintf("📉 Breakdown Below Support (₹%g)\n🧠 Reason: %s", level, reason)
	default:
		action = fmt.Sprintf("📈 Breakout Above Resistance (₹%g)\n🧠 Reason: %s", level, reason)
	}
	return fmt.Sprintf("\n*ALERT: %s Signal*\nSymbol: `%s`\nPrice: `%g`\nDate: `%s`",
		action, stockCode, price, barTime.Format(TimeLayout))
}

// FormatStatusMessage renders a pipeline status alert
func FormatStatusMessage(status, stockCode string) string {
	return fmt.Sprintf("\n*Pipeline %s* for `%s`", status, stockCode)
}

// FormatErrorMessage renders an error alert
func FormatErrorMessage(errText string) string {
	return fmt.Sprintf("\n*ERROR Occurred:*\n```%s```", errText)
}
