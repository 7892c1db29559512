//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yanqian/faq-assistant/internal/bootstrap"
	"github.com/yanqian/faq-assistant/internal/domain/faq"
	"github.com/yanqian/faq-assistant/internal/infra/config"
	httpiface "github.com/yanqian/faq-assistant/internal/interface/http"
	"github.com/yanqian/faq-assistant/pkg/logger"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		provideRegistry,
		provideRecorder,
		provideFAQConfig,
		provideChatGPTClient,
		provideCompleter,
		provideRepository,
		provideCorpus,
		provideHealthChecker,
		provideEmbedder,
		faq.NewService,
		wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
