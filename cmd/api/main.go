package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/memtriage/internal/application"
	appanalysis "github.com/bryanwahyu/memtriage/internal/application/analysis"
	"github.com/bryanwahyu/memtriage/internal/config"
	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
	"github.com/bryanwahyu/memtriage/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/memtriage/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/memtriage/internal/infra/db/postgres"
	"github.com/bryanwahyu/memtriage/internal/infra/events"
	"github.com/bryanwahyu/memtriage/internal/infra/executor/volatility"
	"github.com/bryanwahyu/memtriage/internal/infra/grr"
	"github.com/bryanwahyu/memtriage/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/memtriage/internal/infra/storage"
	"github.com/bryanwahyu/memtriage/internal/logger"
	"github.com/bryanwahyu/memtriage/internal/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		stdlog.Fatalf("config load error: %v", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		stdlog.Fatalf("logger init error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// database
	db, results, failures, err := openStore(ctx, cfg, logger.WithComponent(log, "db"))
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("database connect error")
	}
	defer db.Close()

	// optional archive
	var archive domain.Archive
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("minio init error")
		}
		archive = store
	}

	// optional events
	var publisher domain.EventPublisher
	if cfg.NATS.Enabled {
		pub, nc, err := events.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream, logger.WithComponent(log, "events"))
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect error")
		}
		defer nc.Close()
		publisher = pub
	}

	backend, err := grr.NewClient(grr.Config{
		Endpoint:     cfg.GRR.Endpoint,
		Username:     cfg.GRR.Username,
		Password:     cfg.GRR.Password,
		Timeout:      cfg.GRR.Timeout,
		StallTimeout: cfg.GRR.StallTimeout,
	}, logger.WithComponent(log, "grr"))
	if err != nil {
		log.Fatal().Err(err).Msg("grr client init error")
	}

	runner := volatility.NewRunner(volatility.Options{
		Mode:          volatility.Mode(cfg.Extraction.Mode),
		Binary:        cfg.Extraction.Binary,
		DockerImage:   cfg.Extraction.DockerImage,
		ModuleTimeout: cfg.Extraction.ModuleTimeout,
	}, logger.WithComponent(log, "volatility"))

	reasoner := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	clock := application.SystemClock{}
	metrics := middleware.NewMetrics()

	queue := appanalysis.NewQueue(cfg.Ingestion.QueueSize, cfg.Ingestion.EnqueueTimeout)
	metrics.TrackQueue(queue.Len, queue.Cap())

	ingestor := appanalysis.NewIngestor(queue, appanalysis.IngestOptions{
		AllowedFlows:  cfg.Ingestion.AllowedFlows,
		TerminalState: cfg.Ingestion.TerminalState,
		DedupWindow:   cfg.Ingestion.DedupWindow,
	}, clock, logger.WithComponent(log, "ingest"))

	acquirer := &appanalysis.Acquirer{Backend: backend, TempDir: cfg.Extraction.TempDir, Log: logger.WithComponent(log, "acquire")}
	if n, err := acquirer.SweepStale(); err != nil {
		log.Warn().Err(err).Msg("failed to sweep stale memory dumps")
	} else if n > 0 {
		log.Info().Int("removed", n).Msg("removed memory dumps left by a previous run")
	}

	pipeline := &appanalysis.Pipeline{
		Queue:    queue,
		Acquirer: acquirer,
		Runner:   runner,
		Modules:  cfg.Extraction.Modules,
		Assessor: &appanalysis.Assessor{
			Reasoner: reasoner,
			Timeout:  cfg.OpenAI.Timeout,
			Clock:    clock,
			Log:      logger.WithComponent(log, "assess"),
		},
		Results:  results,
		Failures: failures,
		Archive:  archive,
		Events:   publisher,
		Responder: &appanalysis.Responder{
			Backend:   backend,
			Enabled:   cfg.Response.Enabled,
			Threshold: cfg.Response.RiskThreshold,
			Clock:     clock,
			Log:       logger.WithComponent(log, "responder"),
		},
		Observer: metrics,
		Clock:    clock,
		Log:      logger.WithComponent(log, "pipeline"),
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		// closing the queue stops the worker; ctx is not passed so the
		// backlog drains on shutdown
		pipeline.Run(context.Background())
	}()

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillRate)
	defer limiter.Close()

	var accepting atomic.Bool
	accepting.Store(true)

	handler := httpserver.NewRouter(ingestor, results, failures, httpserver.Options{
		APIKeys:     cfg.Server.APIKeys,
		RateLimiter: limiter,
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     metrics,
		HealthCheckers: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: db},
			"queue":    &middleware.QueueHealthChecker{Depth: queue.Len, Capacity: queue.Cap()},
		},
		Ready: accepting.Load,
		Log:   logger.WithComponent(log, "http"),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Int("modules", len(cfg.Extraction.Modules)).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")
	accepting.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	// in-flight job may need its full worst case; queued jobs beyond that are
	// dropped and their dumps swept on next start
	drain := cfg.WorstCaseJob()
	queue.Close()
	select {
	case <-workerDone:
	case <-time.After(drain):
		log.Warn().Int("pending", queue.Len()).Dur("waited", drain).Msg("worker did not drain before timeout")
	}
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sql.DB, domain.ResultRepository, domain.FailureRepository, error) {
	threshold := cfg.Response.RiskThreshold
	switch cfg.Database.Driver {
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN(), log)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, pgp.NewAnalysisRepository(db, threshold), pgp.NewFailureRepository(db), nil
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN(), log)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, mysqlp.NewAnalysisRepository(db, threshold), mysqlp.NewFailureRepository(db), nil
	}
}
