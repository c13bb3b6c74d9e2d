package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/breakout-monitor/internal/instruments"
	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/mohamedkhairy/breakout-monitor/internal/supervisor"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

// InstrumentStore is the config store behind the instrument endpoints
type InstrumentStore interface {
	Load() []models.InstrumentConfig
	Instrument(stockCode string) (*models.InstrumentConfig, error)
	Add(cfg models.InstrumentConfig) (models.InstrumentConfig, error)
	Update(cfg models.InstrumentConfig) error
	Remove(stockCode string) error
}

// PipelineRegistry exposes running pipelines
type PipelineRegistry interface {
	Statuses() []supervisor.PipelineStatus
	Status(stockCode string) (supervisor.PipelineStatus, bool)
	Ready() bool
}

// InstrumentHandler handles instrument configuration endpoints
type InstrumentHandler struct {
	store InstrumentStore
}

// NewInstrumentHandler creates a new instrument handler
func NewInstrumentHandler(store InstrumentStore) *InstrumentHandler {
	return &InstrumentHandler{store: store}
}

// ListInstruments handles GET /api/v1/instruments
func (h *InstrumentHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	stocks := h.store.Load()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"stocks": stocks,
		"count":  len(stocks),
	})
}

// GetInstrument handles GET /api/v1/instruments/{code}
func (h *InstrumentHandler) GetInstrument(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Instrument(stockCodeVar(r))
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Instrument not found")
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}

// CreateInstrument handles POST /api/v1/instruments. Missing fields take defaults.
func (h *InstrumentHandler) CreateInstrument(w http.ResponseWriter, r *http.Request) {
	var cfg models.InstrumentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.store.Add(cfg)
	switch {
	case errors.Is(err, instruments.ErrDuplicateInstrument):
		respondWithError(w, http.StatusConflict, err.Error())
		return
	case isValidationError(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logger.Error("Failed to add instrument", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to create instrument")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// UpdateInstrument handles PUT /api/v1/instruments/{code}
func (h *InstrumentHandler) UpdateInstrument(w http.ResponseWriter, r *http.Request) {
	code := stockCodeVar(r)

	existing, err := h.store.Instrument(code)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Instrument not found")
		return
	}

	var cfg models.InstrumentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cfg.StockCode = code

	err = h.store.Update(cfg)
	switch {
	case errors.Is(err, instruments.ErrInstrumentNotFound):
		respondWithError(w, http.StatusNotFound, "Instrument not found")
		return
	case isValidationError(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logger.Error("Failed to update instrument", logger.String("stock_code", code), logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to update instrument")
		return
	}

	changes := instruments.Diff(existing, &cfg)
	logger.Info("Instrument updated",
		logger.String("stock_code", code),
		logger.String("changes", instruments.FormatChanges(changes)),
	)

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"stock":   cfg,
		"changes": changeStrings(changes),
	})
}

// DeleteInstrument handles DELETE /api/v1/instruments/{code}
func (h *InstrumentHandler) DeleteInstrument(w http.ResponseWriter, r *http.Request) {
	code := stockCodeVar(r)

	if err := h.store.Remove(code); err != nil {
		if errors.Is(err, instruments.ErrInstrumentNotFound) {
			respondWithError(w, http.StatusNotFound, "Instrument not found")
			return
		}
		logger.Error("Failed to remove instrument", logger.String("stock_code", code), logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to delete instrument")
		return
	}

	logger.Info("Instrument removed", logger.String("stock_code", code))
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Instrument deleted"})
}

// AlertHandler handles alert history endpoints
type AlertHandler struct {
	journal storage.AlertJournal
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(journal storage.AlertJournal) *AlertHandler {
	return &AlertHandler{journal: journal}
}

// ListAlerts handles GET /api/v1/alerts
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.AlertFilter{
		StockCode: strings.ToUpper(query.Get("stock_code")),
		Kind:      models.AlertKind(query.Get("kind")),
		Limit:     100,
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := parseInt(limitStr); err == nil && limit > 0 && limit <= 1000 {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := parseInt(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	if startStr := query.Get("start_time"); startStr != "" {
		if start, err := time.Parse(time.RFC3339, startStr); err == nil {
			filter.StartTime = start
		}
	}
	if endStr := query.Get("end_time"); endStr != "" {
		if end, err := time.Parse(time.RFC3339, endStr); err == nil {
			filter.EndTime = end
		}
	}

	alerts, err := h.journal.GetAlerts(r.Context(), filter)
	if err != nil {
		logger.Error("Failed to query alert journal", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve alerts")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// PipelineHandler serves pipeline status and health probes
type PipelineHandler struct {
	registry PipelineRegistry
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(registry PipelineRegistry) *PipelineHandler {
	return &PipelineHandler{registry: registry}
}

// ListPipelines handles GET /pipelines
func (h *PipelineHandler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	statuses := h.registry.Statuses()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"pipelines": statuses,
		"count":     len(statuses),
	})
}

// GetPipeline handles GET /pipelines/{code}
func (h *PipelineHandler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	status, ok := h.registry.Status(stockCodeVar(r))
	if !ok {
		respondWithError(w, http.StatusNotFound, "Pipeline not found")
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// Health handles GET /health
func (h *PipelineHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Live handles GET /live
func (h *PipelineHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready handles GET /ready. The process is ready once the supervisor has
// read the instrument config.
func (h *PipelineHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Ready() {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Helper functions

func stockCodeVar(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"]))
}

func isValidationError(err error) bool {
	return errors.Is(err, models.ErrInvalidStockCode) ||
		errors.Is(err, models.ErrInvalidThresholds) ||
		errors.Is(err, models.ErrInvalidPeriod)
}

func changeStrings(changes []instruments.Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.String()
	}
	return out
}

func parseInt(s string) (int, error) {
	var result int
	_, err := fmt.Sscanf(s, "%d", &result)
	return result, err
}
