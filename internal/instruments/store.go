package instruments

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

var (
	// ErrInstrumentNotFound is returned when a code is not configured
	ErrInstrumentNotFound = errors.New("instrument not found")
	// ErrDuplicateInstrument is returned when adding a code that already exists
	ErrDuplicateInstrument = errors.New("instrument already exists")
)

// Document is the on-disk layout of the config file
type Document struct {
	Stocks []models.InstrumentConfig `json:"stocks"`
}

// Store is the JSON file backed instrument configuration. Every read goes
// back to the file so edits made by other processes are picked up on the
// next poll. Writes replace the file atomically; concurrent writers from
// other processes are last-writer-wins.
type Store struct {
	path string
	mu   sync.Mutex // serializes read-modify-write within this process
}

// NewStore creates a store for the file at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the config file path
func (s *Store) Path() string {
	return s.path
}

// Load returns every configured instrument. A missing or malformed file is
// logged and yields an empty list.
func (s *Store) Load() []models.InstrumentConfig {
	doc, err := s.read()
	if err != nil {
		logger.Error("Failed to read instrument config",
			logger.String("path", s.path),
			logger.ErrorField(err),
		)
		return []models.InstrumentConfig{}
	}
	return doc.Stocks
}

// Instrument returns the config for stockCode
func (s *Store) Instrument(stockCode string) (*models.InstrumentConfig, error) {
	stockCode = normalizeCode(stockCode)
	for _, cfg := range s.Load() {
		if cfg.StockCode == stockCode {
			c := cfg.Clone()
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInstrumentNotFound, stockCode)
}

// Codes returns the configured codes in file order, skipping blanks and duplicates
func (s *Store) Codes() []string {
	codes, err := s.ReadCodes()
	if err != nil {
		logger.Error("Failed to read instrument config",
			logger.String("path", s.path),
			logger.ErrorField(err),
		)
		return []string{}
	}
	return codes
}

// ReadCodes is Codes with the read error surfaced. A missing file is an
// empty config; an unreadable or malformed one is an error.
func (s *Store) ReadCodes() ([]string, error) {
	doc, err := s.readOrEmpty()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	codes := []string{}
	for _, cfg := range doc.Stocks {
		code := cfg.StockCode
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes, nil
}

// Add appends a new instrument with defaults filled in
func (s *Store) Add(cfg models.InstrumentConfig) (models.InstrumentConfig, error) {
	// Validate first: defaults would paper over negative periods
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	cfg = ApplyDefaults(cfg)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readOrEmpty()
	if err != nil {
		return cfg, err
	}
	for _, existing := range doc.Stocks {
		if existing.StockCode == cfg.StockCode {
			return cfg, fmt.Errorf("%w: %s", ErrDuplicateInstrument, cfg.StockCode)
		}
	}

	doc.Stocks = append(doc.Stocks, cfg)
	if err := s.write(doc); err != nil {
		return cfg, err
	}

	logger.Info("Instrument added",
		logger.String("stock_code", cfg.StockCode),
		logger.Float64("support", cfg.Support),
		logger.Float64("resistance", cfg.Resistance),
	)
	return cfg, nil
}

// Update replaces the config of an existing instrument
func (s *Store) Update(cfg models.InstrumentConfig) error {
	cfg.StockCode = normalizeCode(cfg.StockCode)
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	for i := range doc.Stocks {
		if doc.Stocks[i].StockCode == cfg.StockCode {
			doc.Stocks[i] = cfg
			return s.write(doc)
		}
	}
	return fmt.Errorf("%w: %s", ErrInstrumentNotFound, cfg.StockCode)
}

// Remove deletes an instrument
func (s *Store) Remove(stockCode string) error {
	stockCode = normalizeCode(stockCode)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	for i := range doc.Stocks {
		if doc.Stocks[i].StockCode == stockCode {
			doc.Stocks = append(doc.Stocks[:i], doc.Stocks[i+1:]...)
			return s.write(doc)
		}
	}
	return fmt.Errorf("%w: %s", ErrInstrumentNotFound, stockCode)
}

// ApplyDefaults fills every missing field of a newly added instrument
func ApplyDefaults(cfg models.InstrumentConfig) models.InstrumentConfig {
	cfg.StockCode = normalizeCode(cfg.StockCode)
	if cfg.Support == 0 {
		cfg.Support = models.DefaultSupport
	}
	if cfg.Resistance == 0 {
		cfg.Resistance = models.DefaultResistance
	}
	if cfg.VolumeThreshold == 0 {
		cfg.VolumeThreshold = models.DefaultVolumeThreshold
	}
	return cfg.WithDefaults()
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Store) read() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	// Codes are matched in normalized form everywhere
	for i := range doc.Stocks {
		doc.Stocks[i].StockCode = normalizeCode(doc.Stocks[i].StockCode)
	}
	return &doc, nil
}

func (s *Store) readOrEmpty() (*Document, error) {
	doc, err := s.read()
	if err == nil {
		return doc, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return &Document{}, nil
	}
	return nil, err
}

func (s *Store) write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := storage.WriteBytesAtomic(s.path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

// Change is one differing field between two configs
type Change struct {
	Field string
	Old   interface{}
	New   interface{}
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %s → %s", c.Field, formatValue(c.Old), formatValue(c.New))
}

func formatValue(v interface{}) string {
	if v == nil {
		return "None"
	}
	return fmt.Sprint(v)
}

// Diff lists every field of next that differs from prev. Nested groups are
// reported as group.field. A nil prev reports every field of next.
func Diff(prev, next *models.InstrumentConfig) []Change {
	oldFields := flatten(prev)
	newFields := flatten(next)

	keys := make([]string, 0, len(newFields))
	for k := range newFields {
		keys = append(keys, k)
	}
	for k := range oldFields {
		if _, ok := newFields[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var changes []Change
	for _, k := range keys {
		o, n := oldFields[k], newFields[k]
		if fmt.Sprint(o) == fmt.Sprint(n) {
			continue
		}
		changes = append(changes, Change{Field: k, Old: o, New: n})
	}
	return changes
}

// FormatChanges joins changes for a single log line
func FormatChanges(changes []Change) string {
	parts := make([]string, len(changes))
	for i, c := range changes {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

func flatten(cfg *models.InstrumentConfig) map[string]interface{} {
	out := make(map[string]interface{})
	if cfg == nil {
		return out
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return out
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return out
	}

	for k, v := range raw {
		if group, ok := v.(map[string]interface{}); ok {
			for sub, sv := range group {
				out[k+"."+sub] = sv
			}
			continue
		}
		out[k] = v
	}
	return out
}
