// Package control wires the capture pipeline together and manages its
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vuchq/crashwatch/internal/capture/catchup"
	"github.com/vuchq/crashwatch/internal/capture/gaps"
	"github.com/vuchq/crashwatch/internal/capture/health"
	"github.com/vuchq/crashwatch/internal/capture/monitor"
	"github.com/vuchq/crashwatch/internal/capture/pubsub"
	"github.com/vuchq/crashwatch/internal/core/config"
	"github.com/vuchq/crashwatch/internal/infra/oracle"
	"github.com/vuchq/crashwatch/internal/infra/provider"
	redisclient "github.com/vuchq/crashwatch/internal/infra/redis"
	"github.com/vuchq/crashwatch/internal/infra/storage"
	"github.com/vuchq/crashwatch/internal/infra/storage/memory"
	"github.com/vuchq/crashwatch/internal/infra/storage/postgres"
)

// Config holds the application configuration.
type Config struct {
	Port      int
	Database  postgres.Config
	Redis     redisclient.Config
	Provider  provider.Config
	Oracle    oracle.Config
	Monitor   config.MonitorConfig
	Catchup   config.CatchupConfig
	Reconcile config.ReconcileConfig

	// ReconcileEnabled gates the gap detector and reconcile worker.
	// CLI flag; requires redis.
	ReconcileEnabled bool
}

// Engine is the main application struct that manages the capture lifecycle.
type Engine struct {
	cfg          Config
	repo         storage.RoundRepository
	db           *postgres.DB
	redisClient  *redisclient.Client
	broker       *pubsub.Broker
	chain        *provider.Chain
	monitor      *monitor.Monitor
	catchup      *catchup.Fetcher
	detector     *gaps.Detector
	worker       *gaps.Worker
	healthServer *health.Server
	log          *slog.Logger
}

// New creates an Engine with all dependencies initialized.
func New(cfg Config) (*Engine, error) {
	log := slog.Default()

	// 1. Storage
	var repo storage.RoundRepository
	var db *postgres.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		repo = postgres.NewRoundRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		repo = memory.NewRoundRepo()
		log.Info("Using Memory storage")
	}

	// 2. Redis (reconcile queue and cache generation)
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, reconcile disabled", "error", err)
		}
	}

	// Invalidate downstream caches whenever any path stores rounds.
	var afterStore func(ctx context.Context, inserted int)
	if redisClient != nil {
		afterStore = func(ctx context.Context, inserted int) {
			if _, err := redisClient.BumpGeneration(ctx); err != nil {
				log.Warn("cache generation bump failed", "error", err)
			}
		}
	}

	// 3. Provider strategy chain
	var strategies []provider.Strategy
	if cfg.Provider.APIBaseURL != "" {
		strategies = append(strategies,
			provider.NewAPIStrategy(cfg.Provider.APIBaseURL, cfg.Provider.AuthToken, cfg.Provider.Timeout))
	}
	if cfg.Provider.ScriptBaseURL != "" {
		strategies = append(strategies,
			provider.NewScriptStrategy(cfg.Provider.ScriptBaseURL, cfg.Provider.Timeout))
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("no provider endpoints configured")
	}
	chain := provider.NewChain(log, strategies...)

	// 4. Live monitor
	broker := pubsub.NewBroker(log)
	mon := monitor.New(monitor.Config{
		Fetcher:       chain,
		Repo:          repo,
		Broker:        broker,
		Salt:          cfg.Provider.Salt,
		PollInterval:  cfg.Monitor.PollInterval,
		RetryInterval: cfg.Monitor.RetryInterval,
		PageSize:      cfg.Monitor.PageSize,
		RingCapacity:  cfg.Monitor.RingCapacity,
		Log:           log,
		AfterStore:    afterStore,
	})

	// 5. Catch-up fetcher
	cf := catchup.New(catchup.Config{
		Fetcher:    chain,
		Repo:       repo,
		Salt:       cfg.Provider.Salt,
		BatchDelay: cfg.Catchup.BatchDelay,
		Log:        log,
		AfterStore: afterStore,
	})

	// 6. Gap detection and reconciliation
	var detector *gaps.Detector
	var worker *gaps.Worker
	if redisClient != nil && cfg.ReconcileEnabled {
		detector = gaps.NewDetector(repo, redisClient, log)
		reconciler := gaps.NewReconciler(
			repo,
			oracle.NewSession(cfg.Oracle, log),
			cfg.Provider.Salt,
			log,
		)
		worker = gaps.NewWorker(
			redisClient,
			reconciler,
			cfg.Reconcile.MaxRetries,
			cfg.Reconcile.IdleWait,
			log,
			afterStore,
		)
		log.Info("Reconcile worker initialized")
	}

	// 7. Health server
	var dbPinger, cachePinger health.Pinger
	var depth health.DepthReader
	if db != nil {
		dbPinger = db
	}
	if redisClient != nil {
		cachePinger = redisClient
		depth = redisClient
	}
	healthMon := health.NewMonitor(dbPinger, cachePinger, mon, depth, 3*cfg.Monitor.PollInterval)
	healthServer := health.NewServer(healthMon, cfg.Port)

	return &Engine{
		cfg:          cfg,
		repo:         repo,
		db:           db,
		redisClient:  redisClient,
		broker:       broker,
		chain:        chain,
		monitor:      mon,
		catchup:      cf,
		detector:     detector,
		worker:       worker,
		healthServer: healthServer,
		log:          log,
	}, nil
}

// Broker exposes the round broker so callers can subscribe before Start.
func (e *Engine) Broker() *pubsub.Broker { return e.broker }

// Repo exposes the round store.
func (e *Engine) Repo() storage.RoundRepository { return e.repo }

// Start starts the engine and all its components.
func (e *Engine) Start(ctx context.Context) error {
	go func() {
		if err := e.healthServer.Start(); err != nil {
			e.log.Error("Health server failed", "error", err)
		}
	}()

	e.log.Info("Starting live monitor")
	go func() {
		if err := e.monitor.Start(ctx); err != nil {
			e.log.Error("Live monitor failed", "error", err)
		}
	}()

	if e.cfg.Catchup.Pages > 0 {
		e.log.Info("Starting catch-up", "pages", e.cfg.Catchup.Pages)
		go func() {
			_, err := e.catchup.Fetch(ctx,
				e.cfg.Catchup.Pages, e.cfg.Catchup.BatchSize, e.cfg.Catchup.PageSize)
			if err != nil {
				e.log.Error("Catch-up failed", "error", err)
			}
		}()
	}

	if e.detector != nil {
		e.log.Info("Starting gap detector", "interval", e.cfg.Reconcile.ScanInterval)
		go func() {
			if err := e.detector.Run(ctx, e.cfg.Reconcile.ScanInterval); err != nil {
				e.log.Error("Gap detector failed", "error", err)
			}
		}()
	}
	if e.worker != nil {
		e.log.Info("Starting reconcile worker")
		go func() {
			if err := e.worker.Run(ctx); err != nil {
				e.log.Error("Reconcile worker failed", "error", err)
			}
		}()
	}

	return nil
}

// Catchup runs a one-shot historical fetch. Used by the -catchup-pages flag.
func (e *Engine) Catchup(ctx context.Context, pages int) (catchup.Counts, error) {
	return e.catchup.Fetch(ctx, pages, e.cfg.Catchup.BatchSize, e.cfg.Catchup.PageSize)
}

// Stop stops the engine.
func (e *Engine) Stop(ctx context.Context) error {
	e.log.Info("Stopping engine...")

	if err := e.monitor.Stop(); err != nil {
		e.log.Warn("Failed to stop monitor", "error", err)
	}

	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.log.Warn("Failed to close Redis", "error", err)
		}
	}

	return e.healthServer.Stop(ctx)
}
