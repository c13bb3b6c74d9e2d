package breakout

import (
	"sync"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
)

// State is the hysteresis state for one instrument. An alert fires only on
// the rising edge into a breakout or breakdown; crossing to the opposite
// side re-arms the other direction.
type State struct {
	mu              sync.RWMutex
	aboveResistance bool
	belowSupport    bool
	stats           StateStats
}

// StateStats holds counters about signal handling
type StateStats struct {
	SignalsSeen int64
	AlertsFired int64
	Suppressed  int64
	Resets      int64
	LastSignal  models.Signal
}

// Snapshot is a copy of the state flags
type Snapshot struct {
	AboveResistance bool `json:"above_resistance"`
	BelowSupport    bool `json:"below_support"`
}

// NewState returns a state with both flags cleared
func NewState() *State {
	return &State{stats: StateStats{LastSignal: models.SignalNone}}
}

// Apply records signal and reports whether an alert should fire
func (s *State) Apply(signal models.Signal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.SignalsSeen++
	s.stats.LastSignal = signal

	switch signal {
	case models.SignalBreakout:
		if s.aboveResistance {
			s.stats.Suppressed++
			return false
		}
		s.aboveResistance = true
		s.belowSupport = false
	case models.SignalBreakdown:
		if s.belowSupport {
			s.stats.Suppressed++
			return false
		}
		s.belowSupport = true
		s.aboveResistance = false
	default:
		return false
	}

	s.stats.AlertsFired++
	return true
}

// Reset clears both flags, used when support or resistance change
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aboveResistance = false
	s.belowSupport = false
	s.stats.Resets++
}

// Snapshot returns the current flags
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{AboveResistance: s.aboveResistance, BelowSupport: s.belowSupport}
}

// GetStats returns a copy of the counters
func (s *State) GetStats() StateStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stats
}
