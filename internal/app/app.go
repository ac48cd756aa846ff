package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling-billing/internal/api"
	"github.com/hackgods/clinic-scheduling-billing/internal/appointment"
	"github.com/hackgods/clinic-scheduling-billing/internal/billing"
	"github.com/hackgods/clinic-scheduling-billing/internal/config"
	"github.com/hackgods/clinic-scheduling-billing/internal/db"
	"github.com/hackgods/clinic-scheduling-billing/internal/insurance"
	"github.com/hackgods/clinic-scheduling-billing/internal/metrics"
	"github.com/hackgods/clinic-scheduling-billing/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling-billing/internal/redis"
	"github.com/hackgods/clinic-scheduling-billing/internal/timeslot"
)

// App is the wired set of engines shared by the binaries.
type App struct {
	Config   config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry

	Pool  *pgxpool.Pool // nil with memory storage
	Redis *redis.Client // nil when REDIS_ADDR is empty

	Appointments *appointment.Service
	Policies     insurance.PolicyStore
	Eligibility  *insurance.Evaluator
	Billing      *billing.Service
}

// New connects the configured stores and builds the engines on top of them.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	slots, err := timeslot.New(cfg.ClinicOpen, cfg.ClinicClose, cfg.SlotInterval, cfg.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("clinic hours: %w", err)
	}

	var (
		apptRepo    appointment.Repository
		paymentRepo billing.Repository
		sink        notify.Sink = notify.NewLogSink(logger)
	)

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		a.Pool = pool
		logger.Info().Msg("connected to Postgres")

		apptRepo = appointment.NewPgRepository(pool)
		paymentRepo = billing.NewPgRepository(pool)
		a.Policies = insurance.NewPgRepository(pool)
		sink = notify.Multi{sink, notify.NewEventLogSink(pool, logger)}
	default:
		logger.Warn().Msg("using in-memory storage, data is lost on exit")
		apptRepo = appointment.NewMemoryRepository()
		paymentRepo = billing.NewMemoryRepository()
		a.Policies = insurance.NewMemoryRepository()
	}

	var locker redisclient.Locker = redisclient.NoopLocker{}
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.Connect(ctx, redisclient.ClientConfig{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		a.Redis = rdb
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		logger.Info().Msg("connected to Redis")
	}

	a.Appointments = appointment.NewService(apptRepo, locker, sink, slots,
		appointment.WithLogger(logger.With().Str("component", "scheduling").Logger()),
		appointment.WithMetrics(metrics.NewSchedulingMetrics(a.Registry)),
	)
	a.Eligibility = insurance.NewEvaluator(a.Policies,
		insurance.WithLogger(logger.With().Str("component", "insurance").Logger()),
	)
	a.Billing = billing.NewService(paymentRepo, a.Eligibility,
		billing.NewSimulatedGateway(cfg.GatewayApprovalRate, nil),
		locker, sink,
		billing.WithLogger(logger.With().Str("component", "billing").Logger()),
		billing.WithMetrics(metrics.NewBillingMetrics(a.Registry)),
	)

	return a, nil
}

// Checks are the readiness probes for the connected dependencies.
func (a *App) Checks() []api.Check {
	var checks []api.Check
	if a.Pool != nil {
		checks = append(checks, api.Check{Name: "postgres", Critical: true, Ping: a.Pool.Ping})
	}
	if a.Redis != nil {
		rdb := a.Redis
		checks = append(checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return checks
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("error closing redis")
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
