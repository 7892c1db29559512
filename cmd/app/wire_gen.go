// Injector matching wire.go; running the go:generate directive below regenerates it.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package main

import (
	"github.com/yanqian/faq-assistant/internal/bootstrap"
	"github.com/yanqian/faq-assistant/internal/domain/faq"
	"github.com/yanqian/faq-assistant/internal/infra/config"
	"github.com/yanqian/faq-assistant/internal/interface/http"
	"github.com/yanqian/faq-assistant/pkg/logger"
)

// Injectors from wire.go:

func initializeApp() (*bootstrap.App, func(), error) {
	configConfig, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	slogLogger := logger.New()
	faqConfig := provideFAQConfig(configConfig)
	repository, cleanup, err := provideRepository(configConfig, slogLogger)
	if err != nil {
		return nil, nil, err
	}
	corpus := provideCorpus(repository)
	registry := provideRegistry()
	recorder := provideRecorder(registry)
	embedder, cleanup2 := provideEmbedder(configConfig, recorder, slogLogger)
	client, err := provideChatGPTClient(configConfig)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	completer := provideCompleter(client, slogLogger)
	service := faq.NewService(faqConfig, corpus, embedder, completer, recorder, slogLogger)
	healthChecker := provideHealthChecker(repository)
	handler := http.NewHandler(service, healthChecker, slogLogger)
	server := http.NewRouter(configConfig, handler, recorder, registry, slogLogger)
	app := bootstrap.NewApp(configConfig, slogLogger, server)
	return app, func() {
		cleanup2()
		cleanup()
	}, nil
}
