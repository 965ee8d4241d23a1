package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skillswap/swapd/internal/cache"
	"github.com/skillswap/swapd/internal/completion"
	"github.com/skillswap/swapd/internal/config"
	"github.com/skillswap/swapd/internal/economy"
	"github.com/skillswap/swapd/internal/email"
	"github.com/skillswap/swapd/internal/embedding"
	"github.com/skillswap/swapd/internal/interfaces/http/handlers"
	"github.com/skillswap/swapd/internal/kmutex"
	"github.com/skillswap/swapd/internal/match"
	"github.com/skillswap/swapd/internal/messaging"
	"github.com/skillswap/swapd/internal/metrics"
	"github.com/skillswap/swapd/internal/moderation"
	"github.com/skillswap/swapd/internal/persistence"
	"github.com/skillswap/swapd/internal/persistence/memstore"
	"github.com/skillswap/swapd/internal/persistence/postgres"
	"github.com/skillswap/swapd/internal/portfolio"
	"github.com/skillswap/swapd/internal/profile"
	"github.com/skillswap/swapd/internal/review"
	"github.com/skillswap/swapd/internal/search"
	"github.com/skillswap/swapd/internal/swap"
	"github.com/skillswap/swapd/internal/vectorindex"
)

// app is everything a command needs, wired per the loaded config.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	stores  *persistence.Stores
	cache   cache.Cache
	metrics *metrics.Registry
	svc     handlers.Services

	db *sqlx.DB
}

// buildApp assembles stores, clients, and services from cfg. Every
// external backend is optional; absent config selects the in-process
// fallback so a bare `swapd serve` works on a laptop.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := log.Logger
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		logger = logger.Level(lvl)
	}

	var (
		stores *persistence.Stores
		db     *sqlx.DB
	)
	if cfg.Database.Enabled() {
		var err error
		db, err = postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		stores = postgres.New(db, cfg.Database.Timeout)
		logger.Info().Msg("using postgres store")
	} else {
		stores = memstore.New()
		logger.Warn().Msg("no database configured, state is in-memory only")
	}

	c, err := buildCache(cfg.Redis)
	if err != nil {
		return nil, err
	}

	reg := metrics.New()

	var embed embedding.Client
	if cfg.Embeddings.Enabled() {
		embed = embedding.NewHTTPClient(cfg.Embeddings.Endpoint, cfg.Embeddings.APIKey,
			cfg.Embeddings.Deployment, cfg.Embeddings.APIVersion, cfg.Embeddings.VectorDim).
			Instrument(reg.EmbeddingCalls)
	} else {
		embed = embedding.NewHashingEncoder(cfg.Embeddings.VectorDim)
		logger.Warn().Msg("no embedding provider configured, using hashing encoder")
	}

	var index vectorindex.Index
	if cfg.Search.Enabled() {
		index = vectorindex.NewREST(cfg.Search.Endpoint, cfg.Search.APIKey,
			cfg.Search.Index, cfg.Embeddings.VectorDim).
			Instrument(reg.VectorIndexCalls)
		// The index is rebuildable from the store, so schema trouble at
		// boot degrades search instead of blocking startup.
		if err := index.EnsureIndex(ctx); err != nil {
			logger.Warn().Err(err).Msg("vector index schema check failed, searches may error")
		}
	} else {
		index = vectorindex.NewMemory()
	}

	var sender email.Sender
	if cfg.Email.Active() {
		sender = email.NewHTTPSender(cfg.Email.Endpoint, cfg.Email.APIKey, cfg.Email.From)
	}
	mail := email.New(sender, c, cfg.AppURL, true).Instrument(reg.EmailsSent)

	weights := config.NewWeightsLoader()
	if cfg.Economy.WeightsFile != "" {
		if err := weights.LoadFromFile(cfg.Economy.WeightsFile); err != nil {
			return nil, fmt.Errorf("load economy weights: %w", err)
		}
	} else if err := weights.LoadDefault(); err != nil {
		return nil, fmt.Errorf("load default economy weights: %w", err)
	}

	locks := kmutex.New()
	eco := economy.NewService(stores.Profiles, stores.Ledger, stores.Boosts,
		locks, weights.Weights(), economy.StaticDemand(1.0), logger)
	reviews := review.NewService(stores, eco, locks, logger)

	svc := handlers.Services{
		Profiles:   profile.NewService(stores.Profiles, embed, index, c, mail, locks, logger),
		Search:     search.NewService(embed, index, c, eco, reg, logger),
		Match:      match.NewService(embed, index, stores.Profiles, stores.Blocks, mail, reg, logger),
		Swaps:      swap.NewService(stores, eco, mail, reg, locks, logger),
		Completion: completion.NewService(stores, eco, mail, reg, locks, logger),
		Economy:    eco,
		Messaging:  messaging.NewService(stores, mail, locks, logger),
		Moderation: moderation.NewService(stores, logger),
		Reviews:    reviews,
		Portfolio:  portfolio.NewService(stores, reviews, locks, logger),
	}

	return &app{
		cfg:     cfg,
		log:     logger,
		stores:  stores,
		cache:   c,
		metrics: reg,
		svc:     svc,
		db:      db,
	}, nil
}

func buildCache(cfg config.RedisConfig) (cache.Cache, error) {
	if !cfg.Enabled() {
		return cache.New(), nil
	}
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return cache.NewRedis(redis.NewClient(opts)), nil
	}
	return cache.NewRedis(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})), nil
}

// Close releases held connections.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing database")
		}
	}
}
