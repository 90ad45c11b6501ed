package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/location-forecast-service/internal/circuitbreaker"
	"github.com/kjstillabower/location-forecast-service/internal/client"
	"github.com/kjstillabower/location-forecast-service/internal/config"
	httphandler "github.com/kjstillabower/location-forecast-service/internal/http"
	"github.com/kjstillabower/location-forecast-service/internal/lifecycle"
	"github.com/kjstillabower/location-forecast-service/internal/observability"
	"github.com/kjstillabower/location-forecast-service/internal/service"
	"github.com/kjstillabower/location-forecast-service/internal/store"
)

const breakerComponent = "forecast_api"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	repo, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer closeStore()

	forecastClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("forecast client", zap.Error(err))
	}

	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		HalfOpenProbes:   cfg.CircuitBreakerHalfOpenProbes,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(breakerComponent, observability.CircuitBreakerStateValue(int(to)))
			logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	forecastClient.SetCircuitBreaker(cb)
	observability.SetCircuitBreakerStateGauge(breakerComponent, 0)

	validateCtx, validateCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := forecastClient.ValidateAPIKey(validateCtx); err != nil {
		logger.Warn("weather API key check failed; forecasts will report errors", zap.Error(err))
	}
	validateCancel()

	locations := service.NewLocationService(repo)
	forecasts := service.NewForecastAggregator(locations, forecastClient, cfg.ForecastTimeout, cfg.ForecastConcurrency)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		StoragePing:          locations.Ping,
		UpstreamOpen:         func() bool { return cb.State() == circuitbreaker.StateOpen },
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	handler := httphandler.NewHandler(locations, forecasts, healthConfig, logger)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		WeatherTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("storage", cfg.StorageBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	lifecycle.MarkReady()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.InFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// openStore builds the configured repository. For postgres it connects, applies
// migrations when enabled, and exports pool gauges. The returned func releases it.
func openStore(cfg *config.Config, logger *zap.Logger) (service.LocationRepository, func(), error) {
	if cfg.StorageBackend != config.StoragePostgres {
		logger.Info("storage backend: memory")
		return store.NewMemoryStore(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := store.OpenPool(ctx, cfg.DatabaseURL, cfg.StorageMaxConns)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MigrateOnStart {
		if err := store.Migrate(pool, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	pg := store.NewPostgresStore(pool)
	observability.RegisterStorageGauges(pg.PoolStats)
	logger.Info("storage backend: postgres", zap.Int32("max_conns", cfg.StorageMaxConns), zap.Bool("migrated", cfg.MigrateOnStart))
	return pg, pool.Close, nil
}
