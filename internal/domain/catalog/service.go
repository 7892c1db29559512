package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yanqian/faq-assistant/internal/domain/faq"
	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
	"github.com/yanqian/faq-assistant/pkg/metrics"
)

const (
	DefaultCollection       = "default"
	DefaultMaxInputTokens   = 8191
	maxCollectionNameLength = 100
)

// Config drives catalog loading.
type Config struct {
	DefaultCollection string
	Dimension         int
	MaxInputTokens    int
	Retry             faq.RetryPolicy
}

// Service loads and maintains the FAQ corpus.
type Service struct {
	cfg      Config
	store    Store
	embedder faq.Embedder
	queue    JobQueue
	tokens   TokenCounter
	logger   *slog.Logger
}

// NewService constructs a Service. queue and tokens may be nil.
func NewService(cfg Config, store Store, embedder faq.Embedder, queue JobQueue, tokens TokenCounter, recorder *metrics.Recorder, logger *slog.Logger) *Service {
	if cfg.DefaultCollection == "" {
		cfg.DefaultCollection = DefaultCollection
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = DefaultMaxInputTokens
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = faq.DefaultRetryPolicy()
	}
	retrier := faq.NewRetrier(cfg.Retry, recorder, logger)
	return &Service{
		cfg:      cfg,
		store:    store,
		embedder: faq.WithRetry(embedder, retrier),
		queue:    queue,
		tokens:   tokens,
		logger:   logger.With("component", "catalog.service"),
	}
}

// Seed replaces the whole corpus with req.Items.
func (s *Service) Seed(ctx context.Context, req SeedRequest) (Report, error) {
	collection := s.collectionName(req.Collection)
	if err := validateCollectionName(collection); err != nil {
		return Report{}, err
	}
	items, err := s.prepareItems(req.Items)
	if err != nil {
		return Report{}, err
	}
	if req.Async && s.queue == nil && !req.DryRun {
		return Report{}, errNoQueue
	}
	report := Report{Collection: collection, DryRun: req.DryRun, Async: req.Async, Considered: len(items)}

	existing, err := s.store.CountEntries(ctx, "")
	if err != nil {
		return Report{}, apperrors.Wrap(apperrors.CodeCorpus, "failed to count entries", err)
	}
	if existing > 0 && !req.Force {
		return Report{}, apperrors.Wrap(apperrors.CodeConflict, fmt.Sprintf("corpus already holds %d entries", existing), nil)
	}
	if req.DryRun {
		report.Deleted = existing
		report.Inserted = len(items)
		return report, nil
	}
	if existing > 0 {
		deleted, err := s.store.DeleteEntries(ctx, "")
		if err != nil {
			return Report{}, apperrors.Wrap(apperrors.CodeCorpus, "failed to delete existing entries", err)
		}
		report.Deleted = deleted
		s.logger.Info("existing entries deleted", "count", deleted)
	}
	if err := s.insertItems(ctx, collection, items, req.Async, &report); err != nil {
		return report, err
	}
	s.logger.Info("corpus seeded", "collection", collection, "inserted", report.Inserted, "skipped", report.Skipped, "async", req.Async)
	return report, nil
}

// AddCollection loads req.Items into the named collection, creating it when needed.
func (s *Service) AddCollection(ctx context.Context, req AddCollectionRequest) (Report, error) {
	name := strings.TrimSpace(req.Name)
	if err := validateCollectionName(name); err != nil {
		return Report{}, err
	}
	items, err := s.prepareItems(req.Items)
	if err != nil {
		return Report{}, err
	}
	if req.Async && s.queue == nil && !req.DryRun {
		return Report{}, errNoQueue
	}
	report := Report{Collection: name, DryRun: req.DryRun, Async: req.Async, Considered: len(items)}

	_, exists, err := s.store.GetCollection(ctx, name)
	if err != nil {
		return Report{}, apperrors.Wrap(apperrors.CodeCorpus, "failed to load collection", err)
	}
	if exists && !req.AllowExisting {
		return Report{}, apperrors.Wrap(apperrors.CodeConflict, fmt.Sprintf("collection %q already exists", name), nil)
	}
	if req.DryRun {
		report.Inserted = len(items)
		return report, nil
	}
	if !exists {
		if _, err := s.store.CreateCollection(ctx, name, strings.TrimSpace(req.Description)); err != nil {
			return Report{}, apperrors.Wrap(apperrors.CodeCorpus, "failed to create collection", err)
		}
		s.logger.Info("collection created", "collection", name)
	}
	if err := s.insertItems(ctx, name, items, req.Async, &report); err != nil {
		return report, err
	}
	s.logger.Info("collection loaded", "collection", name, "inserted", report.Inserted, "skipped", report.Skipped, "async", req.Async)
	return report, nil
}

// CreateEmbeddings computes embeddings for entries that have none.
func (s *Service) CreateEmbeddings(ctx context.Context, req CreateEmbeddingsRequest) (Report, error) {
	entries, err := s.store.ListEntries(ctx, EntryFilter{Partition: strings.TrimSpace(req.Collection), MissingOnly: true})
	if err != nil {
		return Report{}, apperrors.Wrap(apperrors.CodeCorpus, "failed to list entries", err)
	}
	report := Report{Collection: strings.TrimSpace(req.Collection), DryRun: req.DryRun, Async: req.Async}
	return s.embedEntries(ctx, entries, req.DryRun, req.Async, report)
}

// UpdateEmbeddings recomputes embeddings. Without Force only absent ones are filled.
func (s *Service) UpdateEmbeddings(ctx context.Context, req UpdateEmbeddingsRequest) (Report, error) {
	entries, err := s.store.ListEntries(ctx, EntryFilter{MissingOnly: !req.Force})
	if err != nil {
		return Report{}, apperrors.Wrap(apperrors.CodeCorpus, "failed to list entries", err)
	}
	report := Report{DryRun: req.DryRun, Async: req.Async}
	return s.embedEntries(ctx, entries, req.DryRun, req.Async, report)
}

// Collections lists every collection with entry counts.
func (s *Service) Collections(ctx context.Context) ([]CollectionSummary, error) {
	summaries, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCorpus, "failed to list collections", err)
	}
	return summaries, nil
}

func (s *Service) embedEntries(ctx context.Context, entries []faq.Entry, dryRun, async bool, report Report) (Report, error) {
	report.Considered = len(entries)
	if dryRun {
		return report, nil
	}
	if len(entries) == 0 {
		s.logger.Info("no entries need embeddings")
		return report, nil
	}
	if async {
		if s.queue == nil {
			return Report{}, errNoQueue
		}
		jobID, err := s.enqueueBatch(ctx, targetsFrom(entries))
		if err != nil {
			return report, err
		}
		report.JobIDs = append(report.JobIDs, jobID)
		return report, nil
	}
	for _, entry := range entries {
		if err := s.embedAndStore(ctx, entry.ID, entry.Question); err != nil {
			s.logger.Warn("embedding skipped", "faq_id", entry.ID, "error", err)
			report.Skipped++
			continue
		}
		report.Embedded++
	}
	s.logger.Info("embeddings updated", "embedded", report.Embedded, "skipped", report.Skipped)
	return report, nil
}

func (s *Service) insertItems(ctx context.Context, collection string, items []Item, async bool, report *Report) error {
	for _, item := range items {
		var embedding []float32
		if !async {
			vec, err := s.embed(ctx, item.Question)
			if err != nil {
				s.logger.Warn("item skipped, embedding failed", "question", item.Question, "error", err)
				report.Skipped++
				continue
			}
			embedding = vec
		}
		entry, err := s.store.InsertEntry(ctx, NewEntry{
			Question:  item.Question,
			Answer:    item.Answer,
			Embedding: embedding,
			Partition: collection,
		})
		if err != nil {
			return apperrors.Wrap(apperrors.CodeCorpus, "failed to insert entry", err)
		}
		report.Inserted++
		if embedding != nil {
			report.Embedded++
			continue
		}
		jobID, err := s.enqueueOne(ctx, entry.ID, entry.Question)
		if err != nil {
			return err
		}
		report.JobIDs = append(report.JobIDs, jobID)
	}
	return nil
}

func (s *Service) enqueueOne(ctx context.Context, id int64, question string) (string, error) {
	jobID := uuid.NewString()
	payload := map[string]any{
		"job_id":   jobID,
		"faq_id":   id,
		"question": question,
	}
	if err := s.queue.Enqueue(ctx, JobGenerateEmbedding, payload); err != nil {
		return "", apperrors.Wrap(apperrors.CodeCorpus, "failed to enqueue embedding job", err)
	}
	return jobID, nil
}

func (s *Service) enqueueBatch(ctx context.Context, targets []embedTarget) (string, error) {
	jobID := uuid.NewString()
	items := make([]any, 0, len(targets))
	for _, t := range targets {
		items = append(items, map[string]any{"id": t.ID, "question": t.Question})
	}
	payload := map[string]any{
		"job_id": jobID,
		"items":  items,
	}
	if err := s.queue.Enqueue(ctx, JobGenerateEmbeddingsBatch, payload); err != nil {
		return "", apperrors.Wrap(apperrors.CodeCorpus, "failed to enqueue embedding job", err)
	}
	return jobID, nil
}

func (s *Service) embedAndStore(ctx context.Context, id int64, question string) error {
	vec, err := s.embed(ctx, question)
	if err != nil {
		return err
	}
	if err := s.store.UpdateEmbedding(ctx, id, vec); err != nil {
		return apperrors.Wrap(apperrors.CodeCorpus, "failed to store embedding", err)
	}
	return nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEmbedding, "failed to embed question", err)
	}
	if s.cfg.Dimension > 0 && len(vec) != s.cfg.Dimension {
		return nil, apperrors.Wrap(apperrors.CodeDataIntegrity, fmt.Sprintf("embedding has %d dimensions, expected %d", len(vec), s.cfg.Dimension), nil)
	}
	return vec, nil
}

// prepareItems validates input and drops repeated questions.
func (s *Service) prepareItems(items []Item) ([]Item, error) {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for i, item := range items {
		question := strings.TrimSpace(item.Question)
		answer := strings.TrimSpace(item.Answer)
		if question == "" || answer == "" {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("item %d must have a question and an answer", i), nil)
		}
		if s.tokens != nil {
			n, err := s.tokens.Count(question)
			if err != nil {
				s.logger.Warn("token count unavailable", "error", err)
			} else if n > s.cfg.MaxInputTokens {
				return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("item %d question exceeds %d tokens", i, s.cfg.MaxInputTokens), nil)
			}
		}
		key := dedupeKey(question)
		if _, dup := seen[key]; dup {
			s.logger.Warn("duplicate question dropped", "index", i, "question", question)
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Item{Question: question, Answer: answer})
	}
	if len(out) == 0 {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "no items to load", nil)
	}
	return out, nil
}

func (s *Service) collectionName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return s.cfg.DefaultCollection
	}
	return name
}

func validateCollectionName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > maxCollectionNameLength {
		return apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("collection name must be 1..%d characters", maxCollectionNameLength), nil)
	}
	return nil
}

var errNoQueue = apperrors.Wrap(apperrors.CodeConfiguration, "async mode requires a job queue", nil)
