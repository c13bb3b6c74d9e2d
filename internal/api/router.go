package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the handlers mounted by NewRouter. Alerts is optional.
type RouterConfig struct {
	Instruments *InstrumentHandler
	Alerts      *AlertHandler
	Pipelines   *PipelineHandler
}

// NewRouter builds the HTTP surface: probes, metrics, pipeline status and
// the instrument/alert API
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", cfg.Pipelines.Health).Methods(http.MethodGet)
	router.HandleFunc("/live", cfg.Pipelines.Live).Methods(http.MethodGet)
	router.HandleFunc("/ready", cfg.Pipelines.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	router.HandleFunc("/pipelines", cfg.Pipelines.ListPipelines).Methods(http.MethodGet)
	router.HandleFunc("/pipelines/{code}", cfg.Pipelines.GetPipeline).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	if cfg.Instruments != nil {
		v1.HandleFunc("/instruments", cfg.Instruments.ListInstruments).Methods(http.MethodGet)
		v1.HandleFunc("/instruments", cfg.Instruments.CreateInstrument).Methods(http.MethodPost)
		v1.HandleFunc("/instruments/{code}", cfg.Instruments.GetInstrument).Methods(http.MethodGet)
		v1.HandleFunc("/instruments/{code}", cfg.Instruments.UpdateInstrument).Methods(http.MethodPut)
		v1.HandleFunc("/instruments/{code}", cfg.Instruments.DeleteInstrument).Methods(http.MethodDelete)
	}
	if cfg.Alerts != nil {
		v1.HandleFunc("/alerts", cfg.Alerts.ListAlerts).Methods(http.MethodGet)
	}

	return ChainMiddleware(
		ErrorHandlingMiddleware(),
		LoggingMiddleware(),
		CORSMiddleware(),
	)(router)
}
