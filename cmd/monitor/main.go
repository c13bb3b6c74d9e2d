package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/alert"
	"github.com/mohamedkhairy/breakout-monitor/internal/api"
	"github.com/mohamedkhairy/breakout-monitor/internal/config"
	"github.com/mohamedkhairy/breakout-monitor/internal/data"
	"github.com/mohamedkhairy/breakout-monitor/internal/forecast"
	"github.com/mohamedkhairy/breakout-monitor/internal/instruments"
	"github.com/mohamedkhairy/breakout-monitor/internal/monitor"
	"github.com/mohamedkhairy/breakout-monitor/internal/pubsub"
	"github.com/mohamedkhairy/breakout-monitor/internal/storage"
	"github.com/mohamedkhairy/breakout-monitor/internal/supervisor"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting breakout monitor",
		logger.String("config_path", cfg.Pipeline.ConfigPath),
		logger.String("provider", cfg.MarketData.Provider),
		logger.String("shared_store", cfg.SharedStore.Backend),
		logger.String("snapshot_format", cfg.Snapshot.Format),
		logger.Int("http_port", cfg.HTTP.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs the shared store, the window signal and the alert channel
	var redisClient storage.RedisClient
	if cfg.SharedStore.Backend == "redis" || cfg.Notification.RedisChannel != "" {
		redisClient, err = pubsub.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis client",
				logger.ErrorField(err),
			)
		}
		defer redisClient.Close()
	}

	// Shared store
	var store storage.SharedStore = storage.NewMemoryStore()
	var waker supervisor.Waker
	if cfg.SharedStore.Backend == "redis" {
		store = storage.NewRedisStore(redisClient, storage.RedisStoreConfig{
			KeyPrefix:     cfg.SharedStore.KeyPrefix,
			TTL:           cfg.SharedStore.TTL,
			NotifyChannel: cfg.SharedStore.NotifyChannel,
		})

		if cfg.SharedStore.NotifyChannel != "" {
			windowWaker := pubsub.NewWindowWaker(redisClient, cfg.SharedStore.NotifyChannel)
			if err := windowWaker.Start(ctx); err != nil {
				logger.Warn("Window waker unavailable, monitors will poll only",
					logger.ErrorField(err),
				)
			} else {
				waker = windowWaker
			}
		}
	}

	// Snapshot writer
	snapshots, err := storage.NewSnapshotWriter(cfg.Snapshot.Format, cfg.Snapshot.Dir)
	if err != nil {
		logger.Fatal("Failed to initialize snapshot writer",
			logger.ErrorField(err),
		)
	}

	// Alert journal
	var journal *storage.SQLAlertJournal
	if cfg.Journal.Driver != "" {
		journal, err = storage.NewSQLAlertJournal(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			logger.Fatal("Failed to initialize alert journal",
				logger.ErrorField(err),
			)
		}
		defer journal.Close()
	}

	// Notifiers
	notifiers := []alert.Notifier{alert.LogNotifier{}}
	if cfg.TelegramEnabled() {
		notifiers = append(notifiers, alert.NewTelegramNotifier(
			cfg.Notification.TelegramToken,
			cfg.Notification.TelegramChatID,
			cfg.Notification.TelegramAPIURL,
			cfg.Notification.Timeout,
		))
	} else {
		logger.Warn("Telegram credentials not set, alerts are only logged")
	}
	if cfg.Notification.RedisChannel != "" {
		notifiers = append(notifiers, alert.NewRedisNotifier(redisClient, cfg.Notification.RedisChannel, cfg.Notification.Timeout))
	}

	dispatcherOpts := []alert.DispatcherOption{
		alert.WithTimeout(cfg.Notification.Timeout),
		alert.WithCooldown(alert.NewCooldownManager(redisClient, cfg.Notification.ErrorCooldown)),
	}
	if journal != nil {
		dispatcherOpts = append(dispatcherOpts, alert.WithJournal(journal))
	}
	dispatcher := alert.NewDispatcher(alert.NewMultiNotifier(notifiers...), dispatcherOpts...)

	// Forecast channel
	var forecaster forecast.Forecaster
	var recorder *forecast.Recorder
	if cfg.Forecast.Enabled {
		forecaster = forecast.NewClient(forecast.Config{
			APIURL:      cfg.Forecast.APIURL,
			APIKey:      cfg.Forecast.APIKey,
			Model:       cfg.Forecast.Model,
			Temperature: cfg.Forecast.Temperature,
			MaxTokens:   cfg.Forecast.MaxTokens,
			Rows:        cfg.Forecast.Rows,
			Timeout:     cfg.Forecast.Timeout,
		})
		recorder = forecast.NewRecorder(cfg.Forecast.Dir)
	}

	// Tick feeds, one provider per instrument
	factory := data.NewProviderFactory()
	providerConfig := data.ProviderConfig{
		APIKey:           cfg.MarketData.APIKey,
		AccessToken:      cfg.MarketData.AccessToken,
		WSURL:            cfg.MarketData.WebSocketURL,
		Exchange:         cfg.MarketData.Exchange,
		InstrumentTokens: cfg.MarketData.InstrumentTokens,
		TickInterval:     cfg.MarketData.MockTickInterval,
	}
	providers := func(stockCode string) (data.Provider, error) {
		return factory.CreateProvider(cfg.MarketData.Provider, providerConfig)
	}

	// Supervisor
	configStore := instruments.NewStore(cfg.Pipeline.ConfigPath)
	sup := supervisor.New(supervisor.Config{
		Interval:       cfg.Pipeline.SupervisorInterval,
		WindowSize:     cfg.Pipeline.WindowSize,
		RemoveOnDelete: cfg.Pipeline.RemoveOnDelete,
		Monitor: monitor.Config{
			MinBars:          cfg.Pipeline.MinBars,
			Interval:         cfg.Pipeline.MonitorInterval,
			WarmupInterval:   cfg.Pipeline.WarmupInterval,
			ErrorBackoff:     cfg.Pipeline.ErrorBackoff,
			ForecastInterval: cfg.Forecast.Interval,
			ForecastTimeout:  cfg.Forecast.Timeout,
		},
	}, supervisor.Deps{
		Configs:    configStore,
		Providers:  providers,
		Store:      store,
		Snapshots:  snapshots,
		Dispatcher: dispatcher,
		Forecaster: forecaster,
		Recorder:   recorder,
		Waker:      waker,
	})

	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		if err := sup.Run(ctx); err != nil {
			logger.Error("Supervisor exited with error", logger.ErrorField(err))
		}
	}()

	// HTTP server
	routes := api.RouterConfig{
		Instruments: api.NewInstrumentHandler(configStore),
		Pipelines:   api.NewPipelineHandler(sup),
	}
	if journal != nil {
		routes.Alerts = api.NewAlertHandler(journal)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           api.NewRouter(routes),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down breakout monitor")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	select {
	case <-supervisorDone:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for pipelines to stop")
	}

	logger.Info("Breakout monitor stopped")
}
