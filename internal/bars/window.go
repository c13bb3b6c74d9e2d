package bars

import (
	"sync"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
)

// DefaultWindowSize is the number of bars a collector retains per instrument
const DefaultWindowSize = 500

// Window is the bounded FIFO of bars for one instrument, oldest first.
// Appending past capacity evicts the oldest bars.
type Window struct {
	mu        sync.RWMutex
	stockCode string
	capacity  int
	bars      []models.Bar
	updatedAt time.Time
}

// NewWindow creates an empty window holding at most capacity bars
func NewWindow(stockCode string, capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{
		stockCode: stockCode,
		capacity:  capacity,
		bars:      make([]models.Bar, 0, capacity),
	}
}

// Append adds bar as the newest entry and returns the resulting length
func (w *Window) Append(bar models.Bar) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.bars) == w.capacity {
		// shift in place so the backing array never grows
		copy(w.bars, w.bars[1:])
		w.bars[len(w.bars)-1] = bar
	} else {
		w.bars = append(w.bars, bar)
	}
	w.updatedAt = time.Now().UTC()
	return len(w.bars)
}

// Len returns the number of bars held
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bars)
}

// Capacity returns the maximum number of bars held
func (w *Window) Capacity() int {
	return w.capacity
}

// Snapshot returns an immutable copy suitable for publishing
func (w *Window) Snapshot() *models.BarWindow {
	w.mu.RLock()
	defer w.mu.RUnlock()

	bars := make([]models.Bar, len(w.bars))
	copy(bars, w.bars)
	return &models.BarWindow{
		StockCode: w.stockCode,
		Bars:      bars,
		UpdatedAt: w.updatedAt,
	}
}
