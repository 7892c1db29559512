package faq

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
	"github.com/yanqian/faq-assistant/pkg/metrics"
)

var errEmptyCompletion = errors.New("completion was empty")

// Generator produces a free-form answer when no stored answer is reusable.
type Generator struct {
	completer   Completer
	retrier     *Retrier
	model       string
	prompt      string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
	recorder    *metrics.Recorder
}

// NewGenerator builds the fallback generator.
func NewGenerator(cfg Config, completer Completer, retrier *Retrier, recorder *metrics.Recorder, logger *slog.Logger) *Generator {
	cfg = cfg.withDefaults()
	return &Generator{
		completer:   completer,
		retrier:     retrier,
		model:       cfg.GenerationModel,
		prompt:      cfg.GenerationPrompt,
		temperature: cfg.GenerationTemperature,
		maxTokens:   cfg.GenerationMaxTokens,
		logger:      logger.With("component", "faq.generator"),
		recorder:    recorder,
	}
}

// Generate fails closed: an exhausted retry budget or an empty completion is a
// generation_error, never a placeholder answer.
func (g *Generator) Generate(ctx context.Context, question string) (string, error) {
	start := time.Now()
	answer, err := Retry(ctx, g.retrier, "generate", func(ctx context.Context) (string, error) {
		out, err := g.completer.Complete(ctx, CompletionRequest{
			Model:       g.model,
			System:      g.prompt,
			User:        question,
			Temperature: g.temperature,
			MaxTokens:   g.maxTokens,
		})
		if err != nil {
			return "", err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return "", errEmptyCompletion
		}
		return out, nil
	})
	g.recorder.ObserveStage("generate", time.Since(start), err)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeGeneration, "answer generation failed", err)
	}
	return answer, nil
}
