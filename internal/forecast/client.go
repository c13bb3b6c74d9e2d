package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
)

var (
	// ErrNotEnoughRows is returned when the window is shorter than the requested row count
	ErrNotEnoughRows = errors.New("not enough rows to forecast")
	// ErrEmptyResponse is returned when the model returns no choices
	ErrEmptyResponse = errors.New("forecast response has no choices")
)

const systemPrompt = "You are a stock market expert."

const userPromptTemplate = `You are a professional stock analyst. Analyze the following real-time stock data and determine the next trading action.

Please provide:
1. A clear recommendation (e.g., Buy, Sell, Hold, Set Stop Loss, Wait)
2. A target price (if applicable)
3. Key reasons based on Close price trend, Volume, Support/Resistance, Bollinger Bands, ADX, and breakout/breakdown patterns
4. Risk Level (Low, Medium, High)

Only respond with concise and precise analysis.

Here is the most recent data:
%s`

// Forecaster produces a free-text trading forecast from recent enriched rows
type Forecaster interface {
	Forecast(ctx context.Context, stockCode string, rows []models.EnrichedBar) (string, error)
}

// Config configures the chat-completions client
type Config struct {
	APIURL      string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Rows        int
	Timeout     time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint (Groq by default)
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a forecast client
func NewClient(config Config) *Client {
	if config.Rows <= 0 {
		config.Rows = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Forecast sends the last Rows rows as CSV and returns the model's answer
func (c *Client) Forecast(ctx context.Context, stockCode string, rows []models.EnrichedBar) (string, error) {
	if len(rows) < c.config.Rows {
		return "", fmt.Errorf("%w: found %d, expected %d", ErrNotEnoughRows, len(rows), c.config.Rows)
	}

	var table bytes.Buffer
	if err := storage.EncodeCSV(&table, rows[len(rows)-c.config.Rows:]); err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, table.String())},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		TopP:        1.0,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("forecast request for %s failed: %w", stockCode, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read forecast response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("forecast API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode forecast response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("forecast API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
