package faq

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/yanqian/faq-assistant/pkg/metrics"
)

var inDomainMarkers = []string{"IT_RELATED", "YES"}

// Classifier routes a question to InDomain or OffTopic.
type Classifier struct {
	completer Completer
	retrier   *Retrier
	model     string
	prompt    string
	logger    *slog.Logger
	recorder  *metrics.Recorder
}

// NewClassifier builds a classifier on top of a chat completer.
func NewClassifier(cfg Config, completer Completer, retrier *Retrier, recorder *metrics.Recorder, logger *slog.Logger) *Classifier {
	cfg = cfg.withDefaults()
	return &Classifier{
		completer: completer,
		retrier:   retrier,
		model:     cfg.ClassifierModel,
		prompt:    cfg.ClassifierPrompt,
		logger:    logger.With("component", "faq.classifier"),
		recorder:  recorder,
	}
}

// Classify never fails: once retries are exhausted it fails open to InDomain
// so a classifier outage cannot block legitimate questions.
func (c *Classifier) Classify(ctx context.Context, question string) RouteDecision {
	start := time.Now()
	raw, err := Retry(ctx, c.retrier, "classify", func(ctx context.Context) (string, error) {
		return c.completer.Complete(ctx, CompletionRequest{
			Model:       c.model,
			System:      c.prompt,
			User:        "Classify this question: " + question,
			Temperature: classifierTemperature,
			MaxTokens:   classifierMaxTokens,
		})
	})
	c.recorder.ObserveStage("classify", time.Since(start), err)
	if err != nil {
		c.logger.Warn("classification failed, treating question as in-domain", "error", err)
		return InDomain
	}
	decision := parseRoute(raw)
	c.logger.Debug("question classified", "decision", decision.String(), "raw", raw)
	return decision
}

func parseRoute(raw string) RouteDecision {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	for _, marker := range inDomainMarkers {
		if strings.Contains(normalized, marker) {
			return InDomain
		}
	}
	return OffTopic
}
