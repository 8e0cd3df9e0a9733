package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/voyagen/streamshelf/internal/cache"
	"github.com/voyagen/streamshelf/internal/config"
	"github.com/voyagen/streamshelf/internal/epg"
	"github.com/voyagen/streamshelf/internal/fetcher"
	"github.com/voyagen/streamshelf/internal/logging"
	"github.com/voyagen/streamshelf/internal/prefs"
	"github.com/voyagen/streamshelf/internal/server"
	"github.com/voyagen/streamshelf/internal/service"
	"github.com/voyagen/streamshelf/internal/store"
	"github.com/voyagen/streamshelf/internal/xtream"
)

const (
	epgInterval  = 12 * time.Hour
	epgRetention = 24 * time.Hour
	ingestLock   = 10 * time.Minute
)

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use env")
	resetSchema := flag.Bool("reset-schema", false, "Drop all tables and recreate the schema before starting")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *resetSchema, logger); err != nil {
		logger.Error("exiting", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, resetSchema bool, logger *zap.Logger) error {
	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer db.Close()

	// Connect to Redis if REDIS_URL is configured.
	var rds *cache.Redis
	if cfg.RedisURL != "" {
		rds, err = cache.New(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("redis connected (cache, locks and refresh queue enabled)")
	} else {
		logger.Info("redis disabled (REDIS_URL not set)")
	}

	var versions store.VersionStore = prefs.NewFileStore(cfg.PrefsPath)
	if rds != nil {
		versions = prefs.NewRedisStore(rds)
	}
	migrator, err := store.NewMigrator(db, versions, logger.Named("migrate"))
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if resetSchema {
		if err := migrator.Reset(ctx); err != nil {
			return fmt.Errorf("reset schema: %w", err)
		}
	} else if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	sqlStore, err := store.NewSQLStore(db, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	var appStore store.Store = sqlStore
	if rds != nil {
		appStore = store.NewCachedStore(sqlStore, rds, logger.Named("cache"))
	}

	getter := fetcher.NewClient(cfg.UserAgent, cfg.Timeout)
	var limiter *rate.Limiter
	if cfg.XtreamRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.XtreamRPS), 1)
	}
	xc := xtream.NewClient(getter, limiter, logger.Named("xtream"))

	var ingestOpts []service.Option
	var serverOpts []server.Option
	if rds != nil {
		ingestOpts = append(ingestOpts, service.WithLocker(service.NewRedisLocker(rds, ingestLock)))
	}
	ingester := service.NewIngester(appStore, getter, xc, logger.Named("ingest"), ingestOpts...)

	if rds != nil {
		serverOpts = append(serverOpts, server.WithRefreshQueue(service.NewRedisRefreshQueue(rds)))
		go service.RunRefreshWorker(ctx, rds, ingester, logger.Named("refresh"))
	}

	importer := epg.NewImporter(appStore, getter, logger.Named("epg"))
	serverOpts = append(serverOpts, server.WithEPG(importer))
	if cfg.EpgURL != "" {
		go runEPGSchedule(ctx, importer, cfg.EpgURL, logger.Named("epg"))
	}

	srv := server.New(appStore, ingester, cfg.ServerPort, logger.Named("http"), serverOpts...)
	return srv.ListenAndServe(ctx)
}

// runEPGSchedule imports the guide now and every epgInterval, dropping programs
// older than epgRetention.
func runEPGSchedule(ctx context.Context, im *epg.Importer, url string, logger *zap.Logger) {
	ticker := time.NewTicker(epgInterval)
	defer ticker.Stop()
	for {
		if _, err := im.FetchAndImport(ctx, url); err != nil && ctx.Err() == nil {
			logger.Error("epg import failed", zap.Error(err))
		}
		if _, err := im.Sweep(ctx, epgRetention); err != nil && ctx.Err() == nil {
			logger.Error("epg sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
