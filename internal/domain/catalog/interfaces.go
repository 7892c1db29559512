package catalog

import (
	"context"

	"github.com/yanqian/faq-assistant/internal/domain/faq"
)

// Store persists entries and collections.
type Store interface {
	faq.Corpus
	CountEntries(ctx context.Context, partition string) (int, error)
	DeleteEntries(ctx context.Context, partition string) (int, error)
	InsertEntry(ctx context.Context, entry NewEntry) (faq.Entry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]faq.Entry, error)
	UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error
	GetCollection(ctx context.Context, name string) (Collection, bool, error)
	CreateCollection(ctx context.Context, name, description string) (Collection, error)
	ListCollections(ctx context.Context) ([]CollectionSummary, error)
}

// JobQueue enqueues background embedding work.
type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload map[string]any) error
}

// TokenCounter reports how many model tokens text consumes.
type TokenCounter interface {
	Count(text string) (int, error)
}
