package faq

import (
	"context"
	"io"
	"log/slog"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetryPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Multiplier:  time.Millisecond,
		Floor:       time.Millisecond,
		Ceiling:     time.Millisecond,
	}
}

type stubCompleter struct {
	completeFn func(ctx context.Context, req CompletionRequest) (string, error)
	requests   []CompletionRequest
}

func (s *stubCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.completeFn != nil {
		return s.completeFn(ctx, req)
	}
	return "", nil
}

type stubEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.embedFn != nil {
		return s.embedFn(ctx, text)
	}
	return []float32{1, 0}, nil
}

type stubCorpus struct {
	entries   []Entry
	err       error
	calls     int
	partition string
}

func (s *stubCorpus) Entries(_ context.Context, partition string) ([]Entry, error) {
	s.calls++
	s.partition = partition
	if s.err != nil {
		return nil, s.err
	}
	return append([]Entry(nil), s.entries...), nil
}

type stubSearcher struct {
	stubCorpus
	nearestFn func(ctx context.Context, vector []float32, partition string) (MatchResult, error)
}

func (s *stubSearcher) Nearest(ctx context.Context, vector []float32, partition string) (MatchResult, error) {
	return s.nearestFn(ctx, vector, partition)
}

// routeCompleter answers classification prompts with verdict and everything else with answer.
func routeCompleter(verdict, answer string) *stubCompleter {
	return &stubCompleter{
		completeFn: func(_ context.Context, req CompletionRequest) (string, error) {
			if req.MaxTokens == classifierMaxTokens {
				return verdict, nil
			}
			return answer, nil
		},
	}
}
