package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling-billing/internal/app"
	"github.com/hackgods/clinic-scheduling-billing/internal/config"
	"github.com/hackgods/clinic-scheduling-billing/internal/insurance"
	"github.com/hackgods/clinic-scheduling-billing/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev", "info").Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "policy-worker").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Str("schedule", cfg.PolicySweepSchedule).
		Msg("policy-worker starting up")

	schedule, err := sweepSchedule(cfg.PolicySweepSchedule)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid POLICY_SWEEP_SCHEDULE")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
	defer a.Close()

	// Run once at startup
	runOnce(rootCtx, a.Eligibility, logger)

	c := cron.New(cron.WithLocation(cfg.ClinicTimezone))
	c.Schedule(schedule, cron.FuncJob(func() {
		runOnce(rootCtx, a.Eligibility, logger)
	}))
	c.Start()

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping policy worker")
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, ev *insurance.Evaluator, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := ev.ExpireLapsedPolicies(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("policy sweep failed")
		return
	}
	logger.Info().Int64("expired", n).Dur("took", time.Since(start)).Msg("policy sweep complete")
}

// sweepSchedule parses a standard five-field cron expression.
func sweepSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", spec, err)
	}
	return schedule, nil
}
