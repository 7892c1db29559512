package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yanqian/faq-assistant/internal/bootstrap"
	"github.com/yanqian/faq-assistant/internal/domain/faq"
	"github.com/yanqian/faq-assistant/internal/infra/config"
	"github.com/yanqian/faq-assistant/internal/infra/faqrepo"
	"github.com/yanqian/faq-assistant/internal/infra/llm/chatgpt"
	httpiface "github.com/yanqian/faq-assistant/internal/interface/http"
	"github.com/yanqian/faq-assistant/pkg/metrics"
)

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideRecorder(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.NewRecorder(reg)
}

func provideFAQConfig(cfg *config.Config) faq.Config {
	return bootstrap.FAQConfig(cfg)
}

func provideChatGPTClient(cfg *config.Config) (*chatgpt.Client, error) {
	return chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.CallTimeout)
}

func provideCompleter(client *chatgpt.Client, logger *slog.Logger) faq.Completer {
	return chatgpt.NewCompleter(client, logger)
}

func provideRepository(cfg *config.Config, logger *slog.Logger) (faqrepo.Repository, func(), error) {
	return bootstrap.OpenRepository(context.Background(), cfg, logger)
}

func provideCorpus(repo faqrepo.Repository) faq.Corpus {
	return repo
}

func provideHealthChecker(repo faqrepo.Repository) httpiface.HealthChecker {
	return repo
}

func provideEmbedder(cfg *config.Config, recorder *metrics.Recorder, logger *slog.Logger) (faq.Embedder, func()) {
	return bootstrap.NewEmbedder(context.Background(), cfg, recorder, logger)
}
