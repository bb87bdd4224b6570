package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/dealersites/internal/api"
	mw "github.com/edvin/dealersites/internal/api/middleware"
	"github.com/edvin/dealersites/internal/app"
	"github.com/edvin/dealersites/internal/config"
	"github.com/edvin/dealersites/internal/db"
	"github.com/edvin/dealersites/internal/logging"
	"github.com/edvin/dealersites/internal/metrics"
	"github.com/edvin/dealersites/internal/routecache"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "hash-api-key" {
		hashAPIKey()
		return
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations/core", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("onboarding-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		version, err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Int64("version", version).Msg("database migrated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	tc, err := dialTemporal(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	a, err := app.New(cfg, pool, tc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}

	routes, closeRoutes := newRouteCache(ctx, cfg, a, logger)
	defer closeRoutes()

	deps := api.Deps{
		Onboarding:     a.Services.Onboarding,
		Dealers:        a.Services.Dealer,
		Domains:        a.Services.Domain,
		Registration:   a.Services.Registration,
		Routes:         routes,
		StreamInterval: 5 * time.Second,
		APIKeyHashes:   cfg.APIKeys,
		ReadyChecks:    readyChecks(pool, tc),
	}
	// A nil *registrar.Service must not reach the handler as an interface.
	if a.Registrar != nil {
		deps.Search = a.Registrar
	}
	srv := api.NewServer(logger, deps)

	httpServer := &http.Server{
		Addr:        cfg.HTTPListenAddr,
		Handler:     srv,
		ReadTimeout: 15 * time.Second,
		// Propagation streams stay open; handlers bound their own work.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting onboarding API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

func dialTemporal(cfg *config.Config, logger zerolog.Logger) (temporalclient.Client, error) {
	tlsConfig, err := cfg.TemporalTLS()
	if err != nil {
		return nil, fmt.Errorf("configure temporal TLS: %w", err)
	}
	dialOpts := temporalclient.Options{HostPort: cfg.TemporalAddress}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
		logger.Info().Msg("temporal mTLS enabled")
	}
	return temporalclient.Dial(dialOpts)
}

// newRouteCache builds the host lookup cache, shared through Redis when
// REDIS_ADDR is set.
func newRouteCache(ctx context.Context, cfg *config.Config, a *app.App, logger zerolog.Logger) (*routecache.Cache, func()) {
	var (
		l2      routecache.L2
		closeFn = func() {}
	)
	if cfg.RedisAddr != "" {
		store := routecache.NewRedisStore(cfg.RedisAddr)
		if err := store.Ping(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, route cache is process-local")
			store.Close()
		} else {
			l2 = store
			closeFn = func() { store.Close() }
		}
	}

	cache := routecache.New(cfg.RouteCacheSize, cfg.RouteCacheTTL, l2, a.Services.Domain.ResolveSlug, logger)
	go cache.Run(ctx)
	return cache, closeFn
}

func readyChecks(pool *pgxpool.Pool, tc temporalclient.Client) map[string]api.Check {
	return map[string]api.Check{
		"database": pool.Ping,
		"temporal": func(ctx context.Context) error {
			_, err := tc.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
			return err
		},
	}
}

// hashAPIKey reads a key from stdin and prints the digest to put in API_KEYS.
func hashAPIKey() {
	fmt.Fprintln(os.Stderr, "Enter API key:")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintf(os.Stderr, "error: failed to read key: %v\n", err)
		os.Exit(1)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		fmt.Fprintln(os.Stderr, "error: key is empty")
		os.Exit(1)
	}
	fmt.Println(mw.HashAPIKey(key))
}
