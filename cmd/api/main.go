// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"

	"magnet/internal/adapter/events"
	"magnet/internal/adapter/storage"
	"magnet/internal/config"
	"magnet/internal/domain/research"
	"magnet/internal/logging"
	"magnet/internal/scheduler"
	"magnet/internal/server"
	researchService "magnet/internal/service/research"
	"magnet/internal/service/scoring"
	"magnet/internal/service/trending"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Build the scoring and trend engines first so bad parameters fail fast
	scorerConfig, err := scoringConfig(cfg.Scoring)
	if err != nil {
		log.Fatalf("Invalid scoring configuration: %v", err)
	}
	analyzerConfig, err := trendConfig(cfg.Trend)
	if err != nil {
		log.Fatalf("Invalid trend configuration: %v", err)
	}

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()

	// Initialize adapters
	runStore := storage.NewRunStore(db)
	publisher := events.NewPublisher(natsConn, cfg.Trend.EventsTopic)

	// Initialize services
	service := researchService.NewService(
		scoring.NewScorer(scorerConfig, logger),
		trending.NewAnalyzer(analyzerConfig, logger),
		runStore,
		publisher,
		logger,
	)

	service.RegisterRunHandler(func(run research.Run) error {
		if len(run.Ranked) == 0 {
			return nil
		}
		top := run.Ranked[0]
		logger.Info("top problem",
			"run_id", run.ID,
			"item_id", top.ID,
			"title", top.Title,
			"problem_score", top.ProblemScore,
		)
		return nil
	})

	// Start the refresh job
	var refreshJob *scheduler.Scheduler
	if cfg.Refresh.Enabled {
		refreshJob, err = scheduler.New(service, scheduler.Config{
			Schedule: cfg.Refresh.Schedule,
			Lookback: cfg.Refresh.Lookback,
			Timeout:  cfg.Server.WriteTimeout,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to schedule refresh: %v", err)
		}
		refreshJob.Start()
	}

	// Initialize HTTP server
	httpServer := server.NewServer(
		cfg.Server,
		service,
		events.NewSubscriber(natsConn),
		cfg.Trend.EventsTopic,
		logger,
	)

	// Start HTTP server
	go func() {
		logger.Info("starting HTTP server", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop refresh job
	if refreshJob != nil {
		if err := refreshJob.Stop(shutdownCtx); err != nil {
			logger.Error("refresh job shutdown error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// scoringConfig maps the environment onto the scorer options
func scoringConfig(cfg config.ScoringConfig) (scoring.Config, error) {
	return scoring.NewConfig(
		scoring.WithEngagementWeight(cfg.WeightEngagement),
		scoring.WithNegativityWeight(cfg.WeightNegativity),
		scoring.WithQuestionWeight(cfg.WeightQuestion),
		scoring.WithPainWeight(cfg.WeightPain),
		scoring.WithDensityWeight(cfg.WeightDensity),
		scoring.WithFreshnessWeight(cfg.WeightFreshness),
		scoring.WithHalfLife(hours(cfg.HalfLifeHours)),
		scoring.WithDensityNorm(cfg.DensityNorm),
	)
}

// trendConfig maps the environment onto the analyzer options
func trendConfig(cfg config.TrendConfig) (trending.Config, error) {
	return trending.NewConfig(
		trending.WithBucket(time.Duration(cfg.BucketHours)*time.Hour),
		trending.WithShortWindow(time.Duration(cfg.WindowShortHours)*time.Hour),
		trending.WithLongWindow(time.Duration(cfg.WindowLongHours)*time.Hour),
		trending.WithTrendDelta(cfg.TrendDelta),
		trending.WithMinSupport(cfg.MinSupport),
		trending.WithTailBuckets(cfg.TailBuckets),
		trending.WithMaxConcurrent(cfg.MaxConcurrentClusters),
	)
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
