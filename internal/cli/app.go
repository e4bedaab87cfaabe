package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ppiankov/truthguard/internal/cache"
	"github.com/ppiankov/truthguard/internal/credits"
	"github.com/ppiankov/truthguard/internal/fetch"
	"github.com/ppiankov/truthguard/internal/history"
	"github.com/ppiankov/truthguard/internal/llm"
	"github.com/ppiankov/truthguard/internal/media"
	"github.com/ppiankov/truthguard/internal/model"
	"github.com/ppiankov/truthguard/internal/search"
	"github.com/ppiankov/truthguard/internal/store"
	"github.com/ppiankov/truthguard/internal/verify"
)

// backends holds the shared connections, opened only when a component
// configured for them needs one
type backends struct {
	db      *sql.DB
	rdb     *redis.Client
	closers []io.Closer
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i].Close()
	}
}

func openBackends(ctx context.Context, cfg *model.Config) (*backends, error) {
	b := &backends{}

	needDB := (cfg.Credits.Enabled && cfg.Credits.Backend == "postgres") ||
		(cfg.History.Enabled && cfg.History.Backend == "postgres")
	if needDB {
		db, err := store.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		b.db = db
		b.closers = append(b.closers, db)
		if err := store.Migrate(ctx, db); err != nil {
			b.Close()
			return nil, err
		}
	}

	needRedis := (cfg.Credits.Enabled && cfg.Credits.Backend == "redis") || cfg.Cache.Backend == "redis"
	if needRedis {
		if cfg.Redis.URL == "" {
			b.Close()
			return nil, fmt.Errorf("redis URL is empty: set REDIS_URL or redis.url")
		}
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		b.rdb = rdb
		b.closers = append(b.closers, rdb)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	return b, nil
}

func newLedger(cfg model.CreditsConfig, b *backends) (credits.Ledger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "", "memory":
		return credits.NewMemoryLedger(cfg.InitialBalance), nil
	case "postgres":
		return credits.NewPostgresLedger(b.db, cfg.InitialBalance), nil
	case "redis":
		return credits.NewRedisLedger(b.rdb, cfg.InitialBalance), nil
	default:
		return nil, fmt.Errorf("unknown credits backend: %s (supported: memory, postgres, redis)", cfg.Backend)
	}
}

func newHistory(cfg model.HistoryConfig, b *backends) (history.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "", "memory":
		return history.NewMemoryStore(0), nil
	case "postgres":
		return history.NewPostgresStore(b.db), nil
	default:
		return nil, fmt.Errorf("unknown history backend: %s (supported: memory, postgres)", cfg.Backend)
	}
}

// newSearchCache returns nil when search results should not be cached
func newSearchCache(cfg *model.Config, b *backends) (cache.Cache, error) {
	if cfg.Search.CacheTTL <= 0 {
		return nil, nil
	}
	switch cfg.Cache.Backend {
	case "", "memory":
		return cache.NewMemoryCache(cfg.Search.CacheTTL, 10*time.Minute), nil
	case "layered":
		return cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Search.CacheTTL), nil
	case "disk":
		return cache.NewDiskCache(cfg.Cache.Dir, cfg.Search.CacheTTL), nil
	case "redis":
		return cache.NewRedisCache(b.rdb, cfg.Search.CacheTTL), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: memory, layered, disk, redis, none)", cfg.Cache.Backend)
	}
}

// app is a fully wired verification service
type app struct {
	cfg     *model.Config
	log     zerolog.Logger
	service *verify.Service
	ledger  credits.Ledger
	history history.Store
	b       *backends
}

func newApp(ctx context.Context, cfg *model.Config, log zerolog.Logger) (a *app, err error) {
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	client, err := search.NewClient(ctx, cfg.Search)
	if err != nil {
		return nil, err
	}
	var evidence search.Source = client
	searchCache, err := newSearchCache(cfg, b)
	if err != nil {
		return nil, err
	}
	if searchCache != nil {
		evidence = search.NewCached(client, searchCache, cfg.Search.CacheTTL, log.With().Str("component", "search").Logger())
	}

	provider, err := llm.NewProvider(ctx, llm.ConfigFromModel(cfg.AI, cfg.HTTP))
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	if c, ok := provider.(io.Closer); ok {
		b.closers = append(b.closers, c)
	}
	verdicts := llm.NewVerdictClient(provider, log.With().Str("component", "llm").Logger())

	imageHTTP := cfg.HTTP
	imageHTTP.MaxBodyBytes = cfg.HTTP.MaxImageBytes
	resolver := media.NewResolver(
		fetch.FromConfig(cfg.HTTP, cfg.RateLimiting),
		fetch.FromConfig(imageHTTP, cfg.RateLimiting),
	)

	svc := verify.NewService(evidence, verdicts, resolver, verify.OptionsFromConfig(cfg), log.With().Str("component", "verify").Logger())

	ledger, err := newLedger(cfg.Credits, b)
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		svc.WithLedger(ledger)
	}

	hist, err := newHistory(cfg.History, b)
	if err != nil {
		return nil, err
	}
	if hist != nil {
		svc.WithHistory(hist)
	}

	return &app{cfg: cfg, log: log, service: svc, ledger: ledger, history: hist, b: b}, nil
}

func (a *app) Close() {
	a.b.Close()
}
