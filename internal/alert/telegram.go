package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

const defaultTelegramAPIURL = "https://api.telegram.org"

// TelegramNotifier sends alerts via the Telegram Bot API using legacy
// Markdown formatting.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiURL   string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier. An empty apiURL uses the
// public Bot API endpoint.
func NewTelegramNotifier(botToken, chatID, apiURL string, timeout time.Duration) *TelegramNotifier {
	if apiURL == "" {
		apiURL = defaultTelegramAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiURL:   strings.TrimRight(apiURL, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Send posts the alert message to the configured chat
func (t *TelegramNotifier) Send(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      alert.Message,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	logger.Debug("Sent telegram alert",
		logger.String("alert_id", alert.ID),
		logger.String("kind", string(alert.Kind)),
	)
	return nil
}

// Name returns the notifier name
func (t *TelegramNotifier) Name() string { return "telegram" }
