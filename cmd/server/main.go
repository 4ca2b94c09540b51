package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"                      // optional .env for local runs
	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // recover, request log, body limit
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/procurement-gateway/internal/config"
	"github.com/iliyamo/procurement-gateway/internal/database"
	"github.com/iliyamo/procurement-gateway/internal/handler"
	"github.com/iliyamo/procurement-gateway/internal/identity"
	"github.com/iliyamo/procurement-gateway/internal/logging"
	"github.com/iliyamo/procurement-gateway/internal/middleware"
	"github.com/iliyamo/procurement-gateway/internal/odata"
	"github.com/iliyamo/procurement-gateway/internal/procurement"
	"github.com/iliyamo/procurement-gateway/internal/queue"
	"github.com/iliyamo/procurement-gateway/internal/repository"
	"github.com/iliyamo/procurement-gateway/internal/router"
	queue_publisher "github.com/iliyamo/procurement-gateway/internal/service"
	"github.com/iliyamo/procurement-gateway/internal/upload"
	"github.com/iliyamo/procurement-gateway/internal/vault"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine; the environment wins anyway

	cfg := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log logging.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := upload.NewMetrics(reg)
	checks := map[string]handler.Check{}

	// System of record and vault.
	plm := odata.New(cfg.ODataBaseURL, cfg.ODataTimeout)
	vc := vault.NewClient(cfg.VaultBaseURLs, &http.Client{Timeout: cfg.VaultTimeout}, log.With("component", "vault"))
	resolver := identity.NewResolver(plm, log.With("component", "identity"))
	log.Info(ctx, "plm endpoints", "odata", plm.BaseURL(), "vault_candidates", vc.Candidates())

	opts := []upload.Option{upload.WithMetrics(metrics), upload.WithTimeout(cfg.UploadTimeout)}

	// Upload audit (optional).
	uploads := handler.NewUploadAuditHandler(nil, nil, nil)
	if cfg.AuditEnabled() {
		db, err := openAudit(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		repo := repository.NewUploadAttemptRepo(db)
		opts = append(opts, upload.WithRecorder(repo))
		uploads = handler.NewUploadAuditHandler(repo, resolver, log.With("component", "audit"))
		checks["mysql"] = db.PingContext
	} else {
		log.Warn(ctx, "DB_HOST not set, upload audit disabled")
	}

	// Redis cache and rate limit (optional, degrade on failure).
	var cache, limit echo.MiddlewareFunc
	rlCfg := config.LoadRateLimitConfig()
	if rdb, err := config.NewRedisClient(config.LoadRedisConfig()); err != nil {
		log.Warn(ctx, "redis unavailable, cache and rate limit disabled", "error", err)
	} else {
		defer rdb.Close()
		cache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log.With("component", "cache"))
		limit = middleware.NewTokenBucket(rlCfg, rdb, log.With("component", "ratelimit"))
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Submission events (optional).
	var events procurement.EventPublisher
	if cfg.RabbitMQURL != "" {
		events = queue_publisher.NewPublisher(cfg.RabbitMQURL, log.With("component", "publisher"))
		consumer := &queue.Consumer{URL: cfg.RabbitMQURL, LogDir: cfg.SubmissionLogDir, Log: log.With("component", "consumer")}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(ctx, "submission consumer stopped", "error", err)
			}
		}()
	} else {
		log.Warn(ctx, "RABBITMQ_URL not set, submission events disabled")
	}

	orch := upload.NewOrchestrator(resolver, vc, plm, log.With("component", "upload"), opts...)
	svc := procurement.NewService(orch, plm, events, metrics, log.With("component", "procurement"), cfg.ProcurementEntity)

	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = middleware.ClientIP(rlCfg.TrustProxy)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency.String()}
			if v.Error != nil {
				log.Warn(c.Request().Context(), "request", append(args, "error", v.Error)...)
				return nil
			}
			log.Info(c.Request().Context(), "request", args...)
			return nil
		},
	}))
	// multipart overhead on top of the largest accepted quote
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dK", (cfg.MaxUploadBytes+(1<<20))/1024)))

	router.RegisterRoutes(e, router.Routes{
		Procurement: handler.NewProcurementHandler(svc, cfg.MaxUploadBytes, log.With("component", "http")),
		Files:       handler.NewFileHandler(plm, log.With("component", "http")),
		Uploads:     uploads,
		Checks:      checks,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Cache:       cache,
		RateLimit:   limit,
	})

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "addr", addr, "env", cfg.Env)
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Uploads run detached from their requests; give them the full window.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.UploadTimeout+5*time.Second)
	defer cancel()
	log.Info(shutdownCtx, "shutting down")
	return e.Shutdown(shutdownCtx)
}

func openAudit(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := database.Open(ctx, database.Params{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
