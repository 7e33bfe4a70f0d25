package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hdtickets/scout/internal/config"
	"github.com/hdtickets/scout/internal/cron"
	"github.com/hdtickets/scout/internal/notify"
	"github.com/hdtickets/scout/internal/postgres"
	redisx "github.com/hdtickets/scout/internal/redis"
	postgresrepo "github.com/hdtickets/scout/internal/repository/postgres"
	redisrepo "github.com/hdtickets/scout/internal/repository/redis"
	"github.com/hdtickets/scout/internal/scrape"
	"github.com/hdtickets/scout/internal/service"
	"github.com/hdtickets/scout/internal/service/ingest"
	"github.com/hdtickets/scout/internal/service/orchestrator"
	"github.com/hdtickets/scout/internal/service/purchase"
	"github.com/hdtickets/scout/internal/service/query"
	"github.com/hdtickets/scout/internal/service/rotation"
	"github.com/hdtickets/scout/internal/service/scoring"
	httpgin "github.com/hdtickets/scout/internal/transport/http/gin"
)

type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool *pgxpool.Pool
	rdb  *goredis.Client

	services    *service.Services
	httpServer  *http.Server
	cronRunner  *cron.Runner
	asynqServer *asynq.Server
	asynqMux    *asynq.ServeMux
	asynqClient *asynq.Client
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	health := redisrepo.NewPlatformHealthStore(rdb, cfg.Scoring.ReliabilityAlpha)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, redisx.RateLimitPrefix("api"), cfg.Server.RateLimit, cfg.Server.RateWindow)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
	pubsub := redisx.NewAlertPubSub(rdb)

	// Initialize the notification pipeline: HTTP and scrape paths enqueue,
	// the asynq worker publishes.
	asynqOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	asynqClient := asynq.NewClient(asynqOpt)
	enqueuer := notify.NewEnqueuer(asynqClient)

	asynqServer := asynq.NewServer(asynqOpt, asynq.Config{
		Concurrency: cfg.Notify.Concurrency,
		Queues: map[string]int{
			notify.QueueNotifications: 1,
		},
		Logger: notify.NewAsynqLogger(logger),
	})
	asynqMux := notify.NewWorker(pubsub, logger).Mux()

	// Initialize platform adapters
	adapters := []scrape.Adapter{
		scrape.NewStubHubAdapter(cfg.Scrape.StubHubURL, cfg.Scrape.FetchTimeout),
		scrape.NewTicketmasterAdapter(cfg.Scrape.TicketmasterURL, cfg.Scrape.FetchTimeout),
		scrape.NewViagogoAdapter(cfg.Scrape.ViagogoURL, cfg.Scrape.FetchTimeout),
		scrape.NewTickPickAdapter(cfg.Scrape.TickPickURL, cfg.Scrape.FetchTimeout),
		scrape.NewFunZoneAdapter(cfg.Scrape.FunZoneURL, cfg.Scrape.FetchTimeout),
	}

	// Initialize services
	services := service.NewServices(store, cache, health, adapters, enqueuer, service.Config{
		Rotation: rotation.Config{
			BanThreshold: cfg.Rotation.BanThreshold,
			CooldownBase: cfg.Rotation.CooldownBase,
			CooldownCap:  cfg.Rotation.CooldownCap,
		},
		Orchestrator: orchestrator.Config{
			Workers:          cfg.Scrape.Workers,
			MaxRetries:       cfg.Scrape.MaxRetries,
			RetryBackoffBase: cfg.Scrape.RetryBackoffBase,
			FetchTimeout:     cfg.Scrape.FetchTimeout,
			CycleDeadline:    cfg.Scrape.CycleDeadline,
			BreakerThreshold: cfg.Scrape.BreakerThreshold,
			BreakerCooldown:  cfg.Scrape.BreakerCooldown,
			Keywords:         cfg.Scrape.Keywords,
		},
		Ingest: ingest.Config{
			GraceMissedCycles: cfg.Ingest.GraceMissedCycles,
			StalenessWindow:   cfg.Ingest.StalenessWindow,
			RetentionWindow:   cfg.Ingest.RetentionWindow,
		},
		Scoring: scoring.Config{
			TrendWindow:       cfg.Scoring.TrendWindow,
			SlopeEpsilon:      cfg.Scoring.SlopeEpsilon,
			WeightPrice:       cfg.Scoring.WeightPrice,
			WeightTrend:       cfg.Scoring.WeightTrend,
			WeightUrgency:     cfg.Scoring.WeightUrgency,
			WeightReliability: cfg.Scoring.WeightReliability,
			UrgencyCapDays:    cfg.Scoring.UrgencyCapDays,
		},
		Purchase: purchase.Config{
			ReservationTTL: cfg.Queue.ReservationTTL,
		},
		Query: query.Config{},
	}, logger)

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, health, logger, httpgin.RateLimitMiddleware(limiter))

	a := &App{
		cfg:    cfg,
		logger: logger,
		pool:   pgxPool,
		rdb:    rdb,

		services: services,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		asynqServer: asynqServer,
		asynqMux:    asynqMux,
		asynqClient: asynqClient,
	}

	if err := a.schedule(); err != nil {
		return nil, fmt.Errorf("failed to schedule jobs: %w", err)
	}

	return a, nil
}

// schedule registers the background jobs: the scrape cycle, reservation
// expiry, listing housekeeping and stuck identity release.
func (a *App) schedule() error {
	runner := cron.New(a.logger, context.Background())

	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"scrape_cycle", a.cfg.Scrape.CycleCron, func(ctx context.Context) {
			report, err := a.services.Orchestrator.RunCycle(ctx)
			if err != nil {
				a.logger.Error("scrape cycle failed", "error", err)
				return
			}
			a.logger.Info("scrape cycle finished",
				"duration", report.Duration,
				"fetches", report.Fetches,
				"failures", report.Failures,
				"listings", report.Listings,
				"downgraded", report.Downgraded,
				"skipped", report.Skipped,
			)
		}},
		{"expire_reservations", a.cfg.Queue.ExpireCron, func(ctx context.Context) {
			n, err := a.services.Purchase.ExpireReservations(ctx)
			if err != nil {
				a.logger.Error("reservation expiry failed", "error", err)
				return
			}
			if n > 0 {
				a.logger.Info("reservations expired", "count", n)
			}
		}},
		{"housekeep_listings", "0 15 * * * *", func(ctx context.Context) {
			retired, pruned, err := a.services.Ingest.Housekeep(ctx)
			if err != nil {
				a.logger.Error("listing housekeeping failed", "error", err)
				return
			}
			a.logger.Info("listing housekeeping finished", "retired", retired, "pruned", pruned)
		}},
		{"release_stuck_identities", "0 */10 * * * *", func(ctx context.Context) {
			n, err := a.services.Rotation.ReleaseStuck(ctx, a.cfg.Scrape.CycleDeadline)
			if err != nil {
				a.logger.Error("identity release failed", "error", err)
				return
			}
			if n > 0 {
				a.logger.Warn("stuck identities released", "count", n)
			}
		}},
	}

	for _, j := range jobs {
		if _, err := runner.Add(j.name, j.spec, j.run); err != nil {
			return fmt.Errorf("job %s: %w", j.name, err)
		}
	}

	a.cronRunner = runner
	return nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Start notification worker
	g.Go(func() error {
		a.logger.Info("notification worker starting", "concurrency", a.cfg.Notify.Concurrency)
		if err := a.asynqServer.Start(a.asynqMux); err != nil {
			return fmt.Errorf("failed to start notification worker: %w", err)
		}
		return nil
	})

	a.cronRunner.Start()

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down")

		a.cronRunner.Stop()
		a.asynqServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := a.httpServer.Shutdown(shutdownCtx)

		if cerr := a.asynqClient.Close(); cerr != nil {
			a.logger.Error("failed to close asynq client", "error", cerr)
		}
		a.pool.Close()
		if cerr := a.rdb.Close(); cerr != nil {
			a.logger.Error("failed to close redis client", "error", cerr)
		}

		return err
	})

	return g.Wait()
}
