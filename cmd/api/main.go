package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taurean/internal/api"
	"taurean/internal/booking"
	"taurean/internal/config"
	"taurean/internal/database"
	"taurean/internal/events"
	"taurean/internal/export"
	"taurean/internal/logging"
	"taurean/internal/metrics"
	"taurean/internal/reconciler"
	"taurean/internal/repository"
	"taurean/internal/settlement"
	"taurean/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, storeCloser := initStore(ctx, cfg, &logger)
	if storeCloser != nil {
		defer (func() { _ = storeCloser.Close() })()
	}

	publisher, pubCloser := initPublisher(cfg, &logger)
	if pubCloser != nil {
		defer (func() { _ = pubCloser.Close() })()
	}

	settlements := settlement.NewService(db, publisher, &logger, cfg.Settlement.Currency, cfg.Settlement.MinAdvanceBps)
	bookings := booking.NewService(db, publisher, &logger, cfg.Settlement.Currency)
	rec := reconciler.New(db, settlements, &logger)

	w := worker.New(db, rec,
		worker.RetryPolicy{MaxRetries: cfg.Worker.MaxRetries},
		time.Duration(cfg.Worker.PollIntervalSec)*time.Second,
		cfg.Worker.BatchSize, &logger)
	go w.Start(ctx)

	exporter := export.NewService(db, cfg.Exports.Path, &logger)

	httpServer := api.NewHTTPServer(cfg.API, cfg.Gateway, api.Deps{
		DB:          db,
		Bookings:    bookings,
		Settlements: settlements,
		Exporter:    exporter,
		Store:       store,
		WakeWorker:  w.Notify,
		Logger:      &logger,
	})

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := seedCatalog(context.Background(), db, cfg, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// seedCatalog applies the configured companies, resources and taxes.
// Duplicates are skipped and resources are seeded only on first boot,
// so operator edits survive restarts.
func seedCatalog(ctx context.Context, db *database.DB, cfg *config.Config, logger *zerolog.Logger) error {
	for i := range cfg.Companies {
		c := cfg.Companies[i]
		if err := db.CreateCompany(ctx, &c); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				continue
			}
			return fmt.Errorf("seed company %q: %w", c.Name, err)
		}
		logger.Info().Str("company", c.Name).Int64("id", c.ID).Msg("seeded company")
	}

	var existing int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&existing); err != nil {
		return fmt.Errorf("count resources: %w", err)
	}
	if existing == 0 {
		for i := range cfg.Resources {
			r := cfg.Resources[i]
			r.ID = 0
			r.IsActive = true
			if err := db.CreateResource(ctx, &r); err != nil {
				return fmt.Errorf("seed resource %q: %w", r.Name, err)
			}
			logger.Info().Str("resource", r.Name).Str("kind", r.Kind).Int64("id", r.ID).Msg("seeded resource")
		}
	}

	for i := range cfg.Taxes {
		t := cfg.Taxes[i]
		t.IsActive = true
		if err := db.CreateTax(ctx, &t); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				continue
			}
			return fmt.Errorf("seed tax %q: %w", t.Name, err)
		}
		logger.Info().Str("tax", t.Name).Int64("rate_bps", t.RateBps).Msg("seeded tax")
	}
	return nil
}

// initStore wires the dedup/rate-limit store: redis when configured,
// behind a failover wrapper with an in-memory fallback.
func initStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (repository.Store, io.Closer) {
	memory := repository.NewMemoryStore()
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, using in-memory store")
		return memory, nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup, failover store will keep probing")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	store := repository.NewFailoverStore(repository.NewRedisStore(client), memory, logger)
	return store, closerFunc(func() error { return repository.Close(client) })
}

func initPublisher(cfg *config.Config, logger *zerolog.Logger) (events.Publisher, io.Closer) {
	if !cfg.AMQP.Enabled {
		return events.NewBus(), nil
	}

	publisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp connection failed, events stay in-process")
		return events.NewBus(), nil
	}
	logger.Info().Str("queue", cfg.AMQP.Queue).Msg("amqp publisher connected")
	return publisher, publisher
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Int("port", port).Msg("metrics server started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.Info().Msg("API server stopped")
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
