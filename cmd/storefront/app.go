package main

import (
	"context"
	"time"

	"github.com/agentuity/storefront/cache"
	"github.com/agentuity/storefront/catalog"
	"github.com/agentuity/storefront/config"
	"github.com/agentuity/storefront/logger"
	"github.com/agentuity/storefront/resilience"
	"github.com/agentuity/storefront/session"
	"github.com/agentuity/storefront/settings"
	"github.com/agentuity/storefront/store"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      config.Config
	log      logger.Logger
	remote   store.Store
	assets   store.AssetReader
	mirror   *catalog.Mirror
	catalog  *catalog.Catalog
	settings *settings.Service
	redis    *redis.Client
	closers  []func() error
	shutdown func()
}

// loadConfig parses the environment and applies the command's flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}
	cfg.ApplyFlags(cmd)
	return cfg, nil
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	log, shutdown, err := cfg.NewTelemetry(ctx, cfg.NewLogger(), "storefront")
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, shutdown: shutdown}

	var base store.Store
	if cfg.UseSQLite() {
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath, cfg.BaseURL(), cfg.AssetsBucket)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.assets = db
		base = db
		log.Info("using local store %s", cfg.SQLitePath)
	} else {
		base, err = store.NewSupabase(log, store.SupabaseConfig{
			URL:    cfg.SupabaseURL,
			Key:    cfg.SupabaseKey(),
			Bucket: cfg.AssetsBucket,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	breaker := resilience.DefaultCircuitBreakerConfig()
	breaker.OnStateChange = func(from, to resilience.CircuitBreakerState) {
		log.Warn("remote store circuit %s -> %s", from, to)
	}
	a.remote = store.WithCircuitBreaker(base, resilience.NewCircuitBreaker(breaker))
	a.mirror = catalog.NewMirror(log, a.remote, catalog.DefaultMirrorRetry())
	a.catalog, err = catalog.New(log, a.remote, a.mirror, catalog.Config{Dir: cfg.CacheDir, TTL: cfg.CacheTTL})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.settings = settings.New(log, a.remote, a.settingsCache(ctx), settings.DefaultTTL)
	return a, nil
}

// redisClient connects to REDIS_URL once and shares the client.
func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	opts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse REDIS_URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "connect to redis")
	}
	a.closers = append(a.closers, client.Close)
	a.redis = client
	return client, nil
}

// settingsCache keeps settings in memory, backed by Redis when configured
// so instances share lookups.
func (a *app) settingsCache(ctx context.Context) cache.Cache {
	local := cache.NewInMemory(ctx, cache.WithExpiryCheck(time.Minute))
	if a.cfg.RedisURL == "" {
		a.closers = append(a.closers, local.Close)
		return local
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		a.log.Warn("settings cache stays local: %s", err)
		a.closers = append(a.closers, local.Close)
		return local
	}
	c := cache.NewComposite(local, cache.NewRedis(client, cache.WithPrefix("storefront")))
	a.closers = append(a.closers, c.Close)
	return c
}

// sessionStore opens the configured session backend.
func (a *app) sessionStore(ctx context.Context) (cache.Cache, error) {
	switch a.cfg.SessionBackend {
	case config.SessionRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		c := cache.NewRedis(client, cache.WithPrefix("storefront"))
		a.closers = append(a.closers, c.Close)
		return c, nil
	case config.SessionSQLite:
		c, err := cache.NewSQLite(ctx, a.cfg.SessionSQLitePath, cache.WithPrefix("storefront"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return c, nil
	default:
		c := cache.NewInMemory(ctx)
		a.closers = append(a.closers, c.Close)
		return c, nil
	}
}

func (a *app) sessions(ctx context.Context) (*session.Manager, error) {
	backend, err := a.sessionStore(ctx)
	if err != nil {
		return nil, err
	}
	return session.NewManager(a.log, backend, a.cfg.SecretKey,
		session.WithTTL(a.cfg.SessionTTL),
		session.WithSecureCookie(a.cfg.SecureCookies()),
	)
}

// drain pushes queued catalog changes to the remote store before exit.
func (a *app) drain(timeout time.Duration) {
	if len(a.mirror.Queued()) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if failed := a.mirror.Drain(ctx); failed > 0 {
		a.log.Warn("%d changes could not be synced to the remote store", failed)
	}
	if queued := len(a.mirror.Queued()); queued > 0 {
		a.log.Warn("%d changes still queued at exit", queued)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close: %s", err)
		}
	}
	a.closers = nil
	if a.shutdown != nil {
		a.shutdown()
		a.shutdown = nil
	}
}
