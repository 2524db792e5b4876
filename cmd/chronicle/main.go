package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quartzdata/chronicle/pkg/audit"
	"github.com/quartzdata/chronicle/pkg/config"
	"github.com/quartzdata/chronicle/pkg/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, nil)
	logger.Infof("Starting Chronicle audit service on port %s", cfg.Server.Port)

	// Audit log writer. Every shutdown path below must run before its Close.
	auditLogger, err := audit.New(cfg.Audit.LogPath, cfg.Audit.Console)
	if err != nil {
		logger.WithError(err).Error("Failed to open audit log")
		return
	}

	registry := prometheus.NewRegistry()
	auditMetrics := audit.NewMetrics(registry)
	auditLogger.SetMetrics(auditMetrics)
	httpMetrics := observability.NewMetrics(registry)

	// The JSONL file is always the source of truth. When a Postgres archive
	// is configured the query API reads from it instead, because scanning a
	// large log per request does not scale.
	var source audit.Source = audit.NewFileSource(cfg.Audit.LogPath)
	var archiveDB *sql.DB
	if cfg.Archive.PostgresURL != "" {
		archiveDB, err = sql.Open("postgres", cfg.Archive.PostgresURL)
		if err != nil {
			logger.WithError(err).Error("Failed to open archive database")
			return
		}
		if err := archiveDB.Ping(); err != nil {
			logger.WithError(err).Error("Failed to ping archive database")
			return
		}
		archiveDB.SetMaxOpenConns(25)
		archiveDB.SetMaxIdleConns(5)
		archiveDB.SetConnMaxLifetime(5 * time.Minute)

		archive, err := audit.NewPGStore(archiveDB)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize archive store")
			return
		}
		source = archive
		logger.Info("Query API backed by Postgres archive")
	} else {
		logger.Infof("Query API backed by log file %s", cfg.Audit.LogPath)
	}

	var redisClient *redis.Client
	if cfg.Archive.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Archive.RedisURL,
			Password: cfg.Archive.RedisPassword,
			DB:       cfg.Archive.RedisDB,
		})
	}

	ctx := context.Background()
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		return
	}

	// Health and metrics on a separate port so probes stay reachable while
	// the API drains.
	healthChecker := observability.NewHealthChecker(cfg.Audit.LogPath, archiveDB, redisClient)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, healthChecker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.Infof("Health server listening on port %s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	router := mux.NewRouter()
	router.Use(requestLogMiddleware(logger))
	router.Use(observability.HTTPMetricsMiddleware(httpMetrics))

	api := router.PathPrefix("/api/v1").Subrouter()
	audit.NewHandlers(source).RegisterRoutes(api)

	var handler http.Handler = router
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(router, "chronicle-api")
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Infof("API server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("API server failed")
		}
	}()

	// Ordered teardown: stop accepting traffic, flush telemetry, close the
	// archive connections, and close the audit log last so anything still
	// running can append.
	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	if archiveDB != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return archiveDB.Close()
		})
	}
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLogger.Close()
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		return
	}
	logger.Info("Chronicle stopped")
}

// requestLogMiddleware tags each request with an ID and logs its outcome.
func requestLogMiddleware(logger *observability.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			ctx := observability.WithRequestID(r.Context(), requestID)
			w.Header().Set("X-Request-ID", requestID)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))

			observability.UpdateLoggerWithTraceContext(ctx, logger).WithFields(map[string]interface{}{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"duration":   time.Since(start).String(),
			}).Info("Request completed")
		})
	}
}
