package faq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
	"github.com/yanqian/faq-assistant/pkg/metrics"
)

// Service answers questions from the stored corpus or the generative fallback.
type Service interface {
	Answer(ctx context.Context, req Request) (AnswerEnvelope, error)
}

type service struct {
	cfg        Config
	classifier *Classifier
	matcher    *Matcher
	generator  *Generator
	logger     *slog.Logger
	recorder   *metrics.Recorder
}

// NewService wires classification, matching and generation into one pipeline.
// Every remote call goes through its own retry loop; the pipeline as a whole is never retried.
func NewService(cfg Config, corpus Corpus, embedder Embedder, completer Completer, recorder *metrics.Recorder, logger *slog.Logger) Service {
	cfg = cfg.withDefaults()
	retrier := NewRetrier(cfg.Retry, recorder, logger)
	return &service{
		cfg:        cfg,
		classifier: NewClassifier(cfg, completer, retrier, recorder, logger),
		matcher:    NewMatcher(corpus, WithRetry(embedder, retrier), cfg.Dimension, recorder, logger),
		generator:  NewGenerator(cfg, completer, retrier, recorder, logger),
		logger:     logger.With("component", "faq.service"),
		recorder:   recorder,
	}
}

func (s *service) Answer(ctx context.Context, req Request) (AnswerEnvelope, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return AnswerEnvelope{}, apperrors.Wrap(apperrors.CodeInvalidInput, "question cannot be empty", nil)
	}
	if n := utf8.RuneCountInString(question); n > s.cfg.MaxQuestionLength {
		return AnswerEnvelope{}, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("question exceeds %d characters", s.cfg.MaxQuestionLength), nil)
	}
	partition := strings.TrimSpace(req.Partition)

	if s.classifier.Classify(ctx, question) == OffTopic {
		return s.finish(AnswerEnvelope{
			Source:          SourceOffTopic,
			MatchedQuestion: NoMatchedQuestion,
			Answer:          s.cfg.ComplianceMessage,
		}), nil
	}

	start := time.Now()
	match, err := s.matcher.BestMatch(ctx, question, partition)
	s.recorder.ObserveStage("match", time.Since(start), err)
	if err != nil {
		return AnswerEnvelope{}, err
	}

	decision := Gate(match, s.cfg.SimilarityThreshold)
	if decision.LocalHit {
		score := match.Score
		s.logger.Info("answered from corpus", "entry_id", match.Candidate.ID, "score", score)
		return s.finish(AnswerEnvelope{
			Source:          SourceLocal,
			MatchedQuestion: match.Candidate.Question,
			Answer:          match.Candidate.Answer,
			SimilarityScore: &score,
		}), nil
	}

	s.logger.Info("no reusable answer, generating", "best_score", match.Score, "has_candidate", match.HasCandidate())
	answer, err := s.generator.Generate(ctx, question)
	if err != nil {
		return AnswerEnvelope{}, err
	}
	env := AnswerEnvelope{
		Source:          SourceGenerated,
		MatchedQuestion: NoMatchedQuestion,
		Answer:          answer,
	}
	if match.HasCandidate() {
		score := match.Score
		env.SimilarityScore = &score
	}
	return s.finish(env), nil
}

func (s *service) finish(env AnswerEnvelope) AnswerEnvelope {
	s.recorder.ObserveAnswer(string(env.Source))
	return env
}
