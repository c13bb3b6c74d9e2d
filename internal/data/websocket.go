package data

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// WebSocketConfig holds timing for the tick feed connection
type WebSocketConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingPeriod       time.Duration
	PongWait         time.Duration
}

// DefaultWebSocketConfig returns a default WebSocket configuration
func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingPeriod:       54 * time.Second, // Should be less than PongWait
		PongWait:         60 * time.Second,
	}
}

// subscribeMessage is sent once per instrument after connecting
type subscribeMessage struct {
	Action    string `json:"action"`
	StockCode string `json:"stock_code"`
	Exchange  string `json:"exchange"`
}

// WebSocketProvider streams JSON tick messages over a websocket. Each message
// is a flat object using the feed's field names; stock_code routes it to the
// subscribed handler. A dropped connection ends the stream.
type WebSocketProvider struct {
	config   WebSocketConfig
	exchange string

	mu       sync.RWMutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	handlers map[string]TickHandler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewWebSocketProvider creates a websocket tick provider
func NewWebSocketProvider(config ProviderConfig) (Provider, error) {
	if config.WSURL == "" {
		return nil, fmt.Errorf("websocket provider requires a URL")
	}
	exchange := config.Exchange
	if exchange == "" {
		exchange = "NSE"
	}
	return &WebSocketProvider{
		config:   DefaultWebSocketConfig(config.WSURL),
		exchange: exchange,
		handlers: make(map[string]TickHandler),
	}, nil
}

// Connect dials the feed and starts the read and ping pumps
func (w *WebSocketProvider) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return ErrProviderAlreadyConnected
	}

	logger.Info("Connecting to WebSocket", logger.String("url", w.config.URL))

	dialer := websocket.Dialer{HandshakeTimeout: w.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial WebSocket: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	})

	pumpCtx, cancel := context.WithCancel(context.Background())
	w.conn = conn
	w.cancel = cancel
	w.done = make(chan struct{})

	w.wg.Add(2)
	go w.readPump(pumpCtx, conn)
	go w.pingPump(pumpCtx, conn)

	logger.Info("WebSocket connected", logger.String("url", w.config.URL))
	return nil
}

// Subscribe registers handler and asks the feed for stockCode
func (w *WebSocketProvider) Subscribe(ctx context.Context, stockCode string, handler TickHandler) error {
	if stockCode == "" || handler == nil {
		return ErrInvalidSymbol
	}

	w.mu.Lock()
	conn := w.conn
	if conn == nil {
		w.mu.Unlock()
		return ErrProviderNotConnected
	}
	w.handlers[strings.ToUpper(stockCode)] = handler
	w.mu.Unlock()

	msg := subscribeMessage{Action: "subscribe", StockCode: stockCode, Exchange: w.exchange}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", stockCode, err)
	}
	return nil
}

// Done is closed when the read loop exits
func (w *WebSocketProvider) Done() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.done
}

// Close closes the connection and waits for the pumps
func (w *WebSocketProvider) Close() error {
	w.mu.Lock()
	if w.conn == nil {
		w.mu.Unlock()
		return nil
	}
	w.cancel()
	w.writeMu.Lock()
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()
	err := w.conn.Close()
	w.conn = nil
	w.mu.Unlock()

	w.wg.Wait()
	return err
}

// IsConnected returns whether the WebSocket is connected
func (w *WebSocketProvider) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil
}

// GetName returns the provider name
func (w *WebSocketProvider) GetName() string {
	return "websocket"
}

func (w *WebSocketProvider) readPump(ctx context.Context, conn *websocket.Conn) {
	defer w.wg.Done()
	defer close(w.done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("WebSocket read error", logger.ErrorField(err))
			}
			return
		}

		tick, err := DecodeTick(message)
		if err != nil {
			logger.Debug("Ignoring malformed feed message", logger.ErrorField(err))
			continue
		}

		code := strings.ToUpper(stringField(tick["stock_code"]))
		w.mu.RLock()
		handler := w.handlers[code]
		w.mu.RUnlock()
		if handler != nil {
			handler(tick)
		}
	}
}

func (w *WebSocketProvider) pingPump(ctx context.Context, conn *websocket.Conn) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(w.config.WriteTimeout))
			w.writeMu.Unlock()
			if err != nil {
				logger.Error("Failed to send ping", logger.ErrorField(err))
				return
			}
		}
	}
}
