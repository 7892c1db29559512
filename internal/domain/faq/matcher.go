package faq

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
	"github.com/yanqian/faq-assistant/pkg/metrics"
)

// Matcher finds the stored entry closest to a question.
type Matcher struct {
	corpus    Corpus
	embedder  Embedder
	dimension int
	logger    *slog.Logger
	recorder  *metrics.Recorder
}

// NewMatcher builds a matcher. The embedder is called once per question; wrap it
// with WithRetry to get the retry policy.
func NewMatcher(corpus Corpus, embedder Embedder, dimension int, recorder *metrics.Recorder, logger *slog.Logger) *Matcher {
	return &Matcher{
		corpus:    corpus,
		embedder:  embedder,
		dimension: dimension,
		logger:    logger.With("component", "faq.matcher"),
		recorder:  recorder,
	}
}

// BestMatch embeds the question and returns the most similar stored entry.
// An empty corpus is not an error: it yields a MatchResult without candidate.
func (m *Matcher) BestMatch(ctx context.Context, question, partition string) (MatchResult, error) {
	vector, err := m.embedder.Embed(ctx, question)
	if err != nil {
		return MatchResult{}, apperrors.Wrap(apperrors.CodeEmbedding, "embedding request failed", err)
	}
	if err := m.checkQueryVector(vector); err != nil {
		return MatchResult{}, err
	}

	if searcher, ok := m.corpus.(NearestSearcher); ok {
		match, err := searcher.Nearest(ctx, vector, partition)
		if err != nil {
			return MatchResult{}, apperrors.Wrap(apperrors.CodeCorpus, "nearest search failed", err)
		}
		return match, nil
	}

	entries, err := m.corpus.Entries(ctx, partition)
	if err != nil {
		return MatchResult{}, apperrors.Wrap(apperrors.CodeCorpus, "corpus read failed", err)
	}
	return m.scan(vector, entries), nil
}

// scan walks entries in corpus order; only a strictly higher score replaces the
// current best, so the first inserted entry wins ties.
func (m *Matcher) scan(query []float32, entries []Entry) MatchResult {
	var best MatchResult
	for i := range entries {
		entry := &entries[i]
		if !entry.HasEmbedding() {
			continue
		}
		score, err := CosineSimilarity(query, entry.Embedding)
		if err != nil {
			m.logger.Warn("stored entry excluded from matching", "entry_id", entry.ID, "error", err)
			m.recorder.ObserveExcluded(exclusionReason(query, entry.Embedding))
			continue
		}
		if best.Candidate == nil || score > best.Score {
			best = MatchResult{Candidate: entry, Score: score}
		}
	}
	return best
}

func (m *Matcher) checkQueryVector(vector []float32) error {
	if len(vector) == 0 {
		return apperrors.Wrap(apperrors.CodeEmbedding, "embedding response empty", nil)
	}
	if m.dimension > 0 && len(vector) != m.dimension {
		return apperrors.Wrap(apperrors.CodeEmbedding, fmt.Sprintf("embedding has %d dimensions, expected %d", len(vector), m.dimension), nil)
	}
	if vectorNorm(vector) == 0 {
		return apperrors.Wrap(apperrors.CodeEmbedding, "embedding is a zero vector", nil)
	}
	return nil
}

func exclusionReason(query, stored []float32) string {
	if len(query) != len(stored) {
		return "dimension_mismatch"
	}
	return "zero_norm"
}
