package catalog

import (
	"time"

	"github.com/yanqian/faq-assistant/internal/domain/faq"
)

// Item is one question/answer pair read from an input file.
type Item struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Collection names a partition of the corpus.
type Collection struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CollectionSummary reports entry counts for a partition.
type CollectionSummary struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Entries       int    `json:"entries"`
	WithEmbedding int    `json:"withEmbedding"`
}

// EntryFilter narrows ListEntries.
type EntryFilter struct {
	Partition   string
	MissingOnly bool
}

// NewEntry is persisted by InsertEntry. A nil embedding is stored as absent.
type NewEntry struct {
	Question  string
	Answer    string
	Embedding []float32
	Partition string
}

// Report summarizes an administrative operation.
type Report struct {
	Collection string   `json:"collection,omitempty"`
	DryRun     bool     `json:"dryRun"`
	Async      bool     `json:"async"`
	Considered int      `json:"considered"`
	Inserted   int      `json:"inserted"`
	Embedded   int      `json:"embedded"`
	Skipped    int      `json:"skipped"`
	Deleted    int      `json:"deleted"`
	JobIDs     []string `json:"jobIds,omitempty"`
}

// SeedRequest replaces the corpus with Items.
type SeedRequest struct {
	Items      []Item
	Collection string
	Force      bool
	DryRun     bool
	Async      bool
}

// AddCollectionRequest loads Items into a named collection.
type AddCollectionRequest struct {
	Name          string
	Description   string
	Items         []Item
	DryRun        bool
	Async         bool
	AllowExisting bool
}

// CreateEmbeddingsRequest fills in absent embeddings.
type CreateEmbeddingsRequest struct {
	Collection string
	DryRun     bool
	Async      bool
}

// UpdateEmbeddingsRequest recomputes embeddings; Force includes entries that already have one.
type UpdateEmbeddingsRequest struct {
	Force  bool
	DryRun bool
	Async  bool
}

const (
	JobGenerateEmbedding       = "generate_embedding"
	JobGenerateEmbeddingsBatch = "generate_embeddings_batch"
)

type embedTarget struct {
	ID       int64
	Question string
}

func targetsFrom(entries []faq.Entry) []embedTarget {
	out := make([]embedTarget, 0, len(entries))
	for _, e := range entries {
		out = append(out, embedTarget{ID: e.ID, Question: e.Question})
	}
	return out
}
