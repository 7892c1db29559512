package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yanqian/faq-assistant/internal/bootstrap"
	"github.com/yanqian/faq-assistant/internal/domain/catalog"
	"github.com/yanqian/faq-assistant/internal/infra/config"
	"github.com/yanqian/faq-assistant/internal/infra/faqsource"
	"github.com/yanqian/faq-assistant/internal/infra/kv"
	"github.com/yanqian/faq-assistant/internal/infra/queue"
	"github.com/yanqian/faq-assistant/internal/infra/tokenizer"
	"github.com/yanqian/faq-assistant/pkg/metrics"
)

// env holds everything a subcommand needs. close releases it and waits for
// in-process jobs.
type env struct {
	cfg       *config.Config
	catalog   *catalog.Service
	loader    *faqsource.Loader
	immediate *queue.ImmediateQueue
	valkey    *queue.ValkeyQueue
	cleanups  []func()
}

func newEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*env, error) {
	e := &env{cfg: cfg}
	recorder := metrics.NewRecorder(nil)

	repo, closeRepo, err := bootstrap.OpenRepositoryStrict(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	e.cleanups = append(e.cleanups, closeRepo)

	embedder, closeEmbedder := bootstrap.NewEmbedder(ctx, cfg, recorder, logger)
	e.cleanups = append(e.cleanups, closeEmbedder)

	var jobs catalog.JobQueue
	switch cfg.Queue.Driver {
	case config.QueueValkey:
		client, err := kv.Connect(ctx, cfg.Queue.Addr)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("connect job queue: %w", err)
		}
		e.cleanups = append(e.cleanups, client.Close)
		e.valkey = queue.NewValkeyQueue(client, cfg.Queue.Key, logger)
		jobs = e.valkey
	default:
		e.immediate = queue.NewImmediateQueue(nil, logger)
		jobs = e.immediate
	}

	var tokens catalog.TokenCounter
	if !cfg.LLM.Offline {
		tokens = tokenizer.NewTiktokenCounter(cfg.LLM.EmbeddingModel)
	}
	e.catalog = catalog.NewService(bootstrap.CatalogConfig(cfg), repo, embedder, jobs, tokens, recorder, logger)
	if e.immediate != nil {
		e.immediate.SetHandler(e.catalog.HandleJob)
	}

	var objects faqsource.Opener
	if cfg.Source.Endpoint != "" && cfg.Source.Bucket != "" {
		src, err := faqsource.NewObjectSource(faqsource.ObjectConfig{
			Endpoint:  cfg.Source.Endpoint,
			AccessKey: cfg.Source.AccessKey,
			SecretKey: cfg.Source.SecretKey,
			Bucket:    cfg.Source.Bucket,
			Region:    cfg.Source.Region,
		}, logger)
		if err != nil {
			logger.Warn("object storage unavailable", "error", err)
		} else {
			objects = src
		}
	}
	e.loader = faqsource.NewLoader(objects)
	return e, nil
}

func (e *env) close() {
	if e.immediate != nil {
		e.immediate.Wait()
	}
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
}
