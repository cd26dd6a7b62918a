package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"adreport/internal/delivery"
	"adreport/internal/domain"
	"adreport/internal/infrastructure"
	"adreport/internal/usecase"
	"adreport/pkg/config"
	"adreport/pkg/logger"
	"adreport/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("Server stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	loc := cfg.Aggregation.Location()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	var settings domain.SettingsProvider
	if cfg.Postgres.URL != "" {
		pg, err := infrastructure.NewPostgresSettings(ctx, cfg.Postgres, log)
		if err != nil {
			return fmt.Errorf("postgres settings: %w", err)
		}
		closers = append(closers, pg.Close)
		settings = pg
	} else {
		file, err := infrastructure.LoadFileSettings(cfg.Settings.FilePath)
		if err != nil {
			return fmt.Errorf("settings file: %w", err)
		}
		settings = file
	}

	var history domain.HistoricalStore
	if cfg.ClickHouse.DSN != "" {
		ch, err := infrastructure.NewClickHouseStore(ctx, cfg.ClickHouse.DSN, cfg.ClickHouse.Table, loc, log)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = ch.Close() })
		if err := ch.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
		history = ch
	} else {
		log.Warn("CLICKHOUSE_DSN not set, serving history from memory")
		history = infrastructure.NewMetricsRepository(log)
	}

	var cache domain.SnapshotCache
	if cfg.Redis.Addr != "" {
		rc, err := infrastructure.NewRedisSnapshotCache(ctx, cfg.Redis, cfg.Aggregation.SnapshotTTL, log)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		cache = rc
	} else {
		cache = infrastructure.NewSnapshotRepository(cfg.Aggregation.SnapshotTTL, log)
	}

	var publisher domain.SnapshotPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp := infrastructure.NewKafkaPublisher(cfg.Kafka, log, m)
		closers = append(closers, func() { _ = kp.Close() })
		publisher = kp
	} else {
		publisher = infrastructure.NewExportRepository(log)
	}

	agg := cfg.Aggregation
	apiClient := func(p domain.Platform) *infrastructure.APIClient {
		return infrastructure.NewAPIClient(p, agg.HTTPTimeout, agg.RateLimitPerSecond, log, m)
	}
	sources := []domain.DeliverySource{
		infrastructure.NewMetaSource(apiClient(domain.PlatformMeta), cfg.Platforms.Meta, agg.LookupConcurrency, log),
		infrastructure.NewTikTokSource(apiClient(domain.PlatformTikTok), cfg.Platforms.TikTok, agg.LookupConcurrency, log),
		infrastructure.NewGoogleSource(apiClient(domain.PlatformGoogle), cfg.Platforms.Google, nil),
		infrastructure.NewLineSource(apiClient(domain.PlatformLine), cfg.Platforms.Line, agg.LookupConcurrency, log),
	}
	conversions := infrastructure.NewConversionLogSource(cfg.Conversion, agg.HTTPTimeout, log, m)

	realtime := usecase.NewRealtimeService(settings, sources, conversions, cache, log, m, usecase.Options{
		FetchConcurrency: agg.FetchConcurrency,
		AdapterTimeout:   agg.AdapterTimeout,
		Location:         loc,
	})
	dashboard := usecase.NewDashboardService(settings, history, realtime, publisher, log, m)

	handlers := delivery.NewHTTPHandlers(realtime, dashboard, log, version)
	router := delivery.NewHTTPRouter(handlers, log, m, prometheus.DefaultGatherer, cfg.Server.RequestTimeout)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router.SetupRoutes(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
