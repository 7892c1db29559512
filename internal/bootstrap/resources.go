package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
	"github.com/yanqian/faq-assistant/internal/domain/faq"
	"github.com/yanqian/faq-assistant/internal/infra/config"
	"github.com/yanqian/faq-assistant/internal/infra/embcache"
	"github.com/yanqian/faq-assistant/internal/infra/embedder"
	"github.com/yanqian/faq-assistant/internal/infra/faqrepo"
	"github.com/yanqian/faq-assistant/internal/infra/kv"
	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
	"github.com/yanqian/faq-assistant/pkg/metrics"
)

// RetryPolicy converts the configured retry settings.
func RetryPolicy(cfg *config.Config) faq.RetryPolicy {
	return faq.RetryPolicy{
		MaxAttempts: cfg.FAQ.Retry.MaxAttempts,
		Multiplier:  cfg.FAQ.Retry.Multiplier,
		Floor:       cfg.FAQ.Retry.Floor,
		Ceiling:     cfg.FAQ.Retry.Ceiling,
		CallTimeout: cfg.LLM.CallTimeout,
	}
}

// FAQConfig builds the answer pipeline settings.
func FAQConfig(cfg *config.Config) faq.Config {
	return faq.Config{
		ClassifierModel:       cfg.LLM.ClassifierModel,
		GenerationModel:       cfg.LLM.ChatModel,
		ClassifierPrompt:      cfg.FAQ.ClassifierPrompt,
		GenerationPrompt:      cfg.FAQ.GenerationPrompt,
		GenerationTemperature: cfg.FAQ.GenerationTemperature,
		GenerationMaxTokens:   cfg.FAQ.GenerationMaxTokens,
		ComplianceMessage:     cfg.FAQ.ComplianceMessage,
		SimilarityThreshold:   cfg.FAQ.SimilarityThreshold,
		MaxQuestionLength:     cfg.FAQ.MaxQuestionLength,
		Retry:                 RetryPolicy(cfg),
		Dimension:             cfg.Dimension(),
	}
}

// CatalogConfig builds the administrative loader settings.
func CatalogConfig(cfg *config.Config) catalog.Config {
	return catalog.Config{
		DefaultCollection: cfg.FAQ.DefaultCollection,
		Dimension:         cfg.Dimension(),
		Retry:             RetryPolicy(cfg),
	}
}

// OpenRepository selects the corpus backend for the server. A Postgres
// connection failure falls back to memory; a vector dimension mismatch is fatal.
func OpenRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (faqrepo.Repository, func(), error) {
	return openRepository(ctx, cfg, logger, true)
}

// OpenRepositoryStrict is OpenRepository without the memory fallback, for
// tools whose writes must reach the configured store.
func OpenRepositoryStrict(ctx context.Context, cfg *config.Config, logger *slog.Logger) (faqrepo.Repository, func(), error) {
	return openRepository(ctx, cfg, logger, false)
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, fallback bool) (faqrepo.Repository, func(), error) {
	noop := func() {}
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		repo, err := faqrepo.NewSQLiteRepository(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, noop, apperrors.Wrap(apperrors.CodeCorpus, "open sqlite corpus", err)
		}
		if err := repo.VerifyDimension(ctx, cfg.Dimension()); err != nil {
			if apperrors.IsCode(err, apperrors.CodeConfiguration) {
				repo.Close()
				return nil, noop, err
			}
			logger.Warn("embedding dimension check skipped", "error", err)
		}
		logger.Info("faq sqlite repository enabled", "path", cfg.Storage.SQLite.Path)
		return repo, func() { repo.Close() }, nil
	case config.StoragePostgres:
		return openPostgres(ctx, cfg, logger, fallback)
	default:
		logger.Info("using memory repository")
		return faqrepo.NewMemoryRepository(), noop, nil
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger, fallback bool) (faqrepo.Repository, func(), error) {
	noop := func() {}
	unavailable := func(msg string, err error) (faqrepo.Repository, func(), error) {
		if !fallback {
			return nil, noop, apperrors.Wrap(apperrors.CodeCorpus, msg, err)
		}
		logger.Error(msg+", using memory repository", "error", err)
		return faqrepo.NewMemoryRepository(), noop, nil
	}

	poolConfig, err := pgxpool.ParseConfig(strings.TrimSpace(cfg.Storage.Postgres.DSN))
	if err != nil {
		return unavailable("invalid postgres dsn", err)
	}
	if cfg.Storage.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Storage.Postgres.MaxConns
	}
	if cfg.Storage.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Storage.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return unavailable("failed to initialize postgres pool", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return unavailable("postgres ping failed", err)
	}

	repo := faqrepo.NewPostgresRepository(pool, cfg.Dimension())
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("postgres migration failed", "error", err)
	}
	if err := repo.VerifyDimension(ctx); err != nil {
		if apperrors.IsCode(err, apperrors.CodeConfiguration) {
			pool.Close()
			return nil, noop, err
		}
		logger.Warn("embedding dimension check skipped", "error", err)
	}
	logger.Info("faq postgres repository enabled", "dimension", cfg.Dimension())
	return repo, pool.Close, nil
}

// NewEmbedder builds the embedder stack: OpenAI, or the deterministic
// embedder when offline, behind the optional Valkey cache.
func NewEmbedder(ctx context.Context, cfg *config.Config, recorder *metrics.Recorder, logger *slog.Logger) (faq.Embedder, func()) {
	var base faq.Embedder
	if cfg.LLM.Offline {
		logger.Warn("offline mode, using deterministic embeddings")
		base = embedder.NewDeterministicEmbedder(cfg.Dimension())
	} else {
		base = embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.LLM.EmbeddingModel,
			Dimensions: cfg.Dimension(),
		}, logger)
	}
	if !cfg.Cache.Enabled {
		return base, func() {}
	}
	if cfg.Cache.Addr == config.CacheInProcess {
		logger.Info("embedding cache enabled", "addr", config.CacheInProcess)
		return embedder.NewCachedEmbedder(base, embcache.NewMemoryCache(), cfg.LLM.EmbeddingModel, cfg.Dimension(), cfg.Cache.TTL, recorder, logger), func() {}
	}
	client, err := kv.Connect(ctx, cfg.Cache.Addr)
	if err != nil {
		logger.Error("embedding cache unavailable, continuing without it", "error", err)
		return base, func() {}
	}
	logger.Info("embedding cache enabled", "addr", cfg.Cache.Addr)
	cache := embcache.NewValkeyCache(client, "")
	return embedder.NewCachedEmbedder(base, cache, cfg.LLM.EmbeddingModel, cfg.Dimension(), cfg.Cache.TTL, recorder, logger), client.Close
}
