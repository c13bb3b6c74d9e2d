package forecast

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RecordTimeLayout is the Time column format
const RecordTimeLayout = "2006-01-02 15:04:05"

// Recorder appends forecasts to one CSV log per instrument
type Recorder struct {
	dir string
	mu  sync.Mutex
}

// NewRecorder creates a recorder writing under dir
func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir}
}

// Path returns the forecast log for stockCode
func (r *Recorder) Path(stockCode string) string {
	return filepath.Join(r.dir, fmt.Sprintf("LLM_data_%s.csv", strings.ToUpper(stockCode)))
}

// Append adds one Time,Forecast row, writing the header for a new file
func (r *Recorder) Append(stockCode, forecast string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create forecast dir: %w", err)
	}

	path := r.Path(stockCode)
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write([]string{"Time", "Forecast"}); err != nil {
			return err
		}
	}
	if err := w.Write([]string{at.Format(RecordTimeLayout), forecast}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
