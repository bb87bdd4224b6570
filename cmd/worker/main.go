package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/dealersites/internal/activity"
	"github.com/edvin/dealersites/internal/app"
	"github.com/edvin/dealersites/internal/config"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/db"
	"github.com/edvin/dealersites/internal/logging"
	"github.com/edvin/dealersites/internal/metrics"
	"github.com/edvin/dealersites/internal/routecache"
	"github.com/edvin/dealersites/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	tlsConfig, err := cfg.TemporalTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	dialOpts := temporalclient.Options{HostPort: cfg.TemporalAddress}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	a, err := app.New(cfg, pool, tc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}

	// Route invalidation is skipped without Redis; API caches expire on TTL.
	var routes activity.RouteInvalidator
	if cfg.RedisAddr != "" {
		store := routecache.NewRedisStore(cfg.RedisAddr)
		defer store.Close()
		routes = store
	}

	w := worker.New(tc, core.TaskQueue, worker.Options{})

	// Register activities
	w.RegisterActivity(activity.NewOnboarding(a.Services.Onboarding, a.Archiver, logging.Component(logger, "activity")))
	w.RegisterActivity(activity.NewDeploy(a.Orchestrator))
	w.RegisterActivity(activity.NewSite(a.Certs, a.Services.Domain, a.Notifier, routes, logging.Component(logger, "activity")))
	w.RegisterActivity(activity.NewMonitor(a.Services.Monitor))

	// Register workflows
	w.RegisterWorkflow(workflow.AutoCheckPropagationWorkflow)
	w.RegisterWorkflow(workflow.DeploySiteWorkflow)
	w.RegisterWorkflow(workflow.SSLMonitorWorkflow)
	w.RegisterWorkflow(workflow.ExpiryMonitorWorkflow)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr, pool.Ping)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", core.TaskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	// Errors for already-existing schedules are ignored so that re-deploys
	// do not fail.
	registerCronSchedules(ctx, tc, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
}

type cronSchedule struct {
	id       string
	cron     string
	workflow any
}

var cronSchedules = []cronSchedule{
	{
		id:       "ssl-monitor-cron",
		cron:     "0 2 * * *",
		workflow: workflow.SSLMonitorWorkflow,
	},
	{
		id:       "domain-expiry-cron",
		cron:     "0 3 * * *",
		workflow: workflow.ExpiryMonitorWorkflow,
	},
}

func registerCronSchedules(ctx context.Context, tc temporalclient.Client, logger zerolog.Logger) {
	scheduleClient := tc.ScheduleClient()

	for _, s := range cronSchedules {
		_, err := scheduleClient.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.id,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.cron},
			},
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.id,
				Workflow:  s.workflow,
				TaskQueue: core.TaskQueue,
			},
		})
		switch {
		case err == nil:
			logger.Info().Str("id", s.id).Str("cron", s.cron).Msg("created cron schedule")
		case alreadyExists(err):
			logger.Info().Str("id", s.id).Msg("cron schedule already exists, skipping")
		default:
			logger.Fatal().Err(err).Str("id", s.id).Msg("failed to create cron schedule")
		}
	}
}

func alreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "AlreadyExists") || strings.Contains(msg, "already registered")
}
