package faqrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
	"github.com/yanqian/faq-assistant/internal/domain/faq"
	"github.com/yanqian/faq-assistant/pkg/util"
)

// MemoryRepository keeps the corpus in process memory for tests and development.
type MemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	nextCol int64

	entries     []faq.Entry
	collections map[string]catalog.Collection
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID:      1,
		nextCol:     1,
		collections: make(map[string]catalog.Collection),
	}
}

// Entries returns embedded entries in insertion order.
func (r *MemoryRepository) Entries(_ context.Context, partition string) ([]faq.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]faq.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.HasEmbedding() || !inPartition(e, partition) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

// ListEntries returns entries matching filter in insertion order.
func (r *MemoryRepository) ListEntries(_ context.Context, filter catalog.EntryFilter) ([]faq.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []faq.Entry
	for _, e := range r.entries {
		if !inPartition(e, filter.Partition) {
			continue
		}
		if filter.MissingOnly && e.HasEmbedding() {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

// CountEntries counts entries in partition, or all of them when empty.
func (r *MemoryRepository) CountEntries(_ context.Context, partition string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, e := range r.entries {
		if inPartition(e, partition) {
			count++
		}
	}
	return count, nil
}

// DeleteEntries removes entries in partition, or all of them when empty.
func (r *MemoryRepository) DeleteEntries(_ context.Context, partition string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	deleted := 0
	for _, e := range r.entries {
		if inPartition(e, partition) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return deleted, nil
}

// InsertEntry appends a new entry.
func (r *MemoryRepository) InsertEntry(_ context.Context, entry catalog.NewEntry) (faq.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := util.NowUTC()
	stored := faq.Entry{
		ID:        r.nextID,
		Question:  entry.Question,
		Answer:    entry.Answer,
		Embedding: append([]float32(nil), entry.Embedding...),
		Partition: entry.Partition,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(entry.Embedding) == 0 {
		stored.Embedding = nil
	}
	r.nextID++
	r.entries = append(r.entries, stored)
	return cloneEntry(stored), nil
}

// UpdateEmbedding replaces the vector of entry id.
func (r *MemoryRepository) UpdateEmbedding(_ context.Context, id int64, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ID == id {
			r.entries[i].Embedding = append([]float32(nil), embedding...)
			r.entries[i].UpdatedAt = util.NowUTC()
			return nil
		}
	}
	return fmt.Errorf("faq %d: %w", id, ErrNotFound)
}

// GetCollection looks up a collection by name.
func (r *MemoryRepository) GetCollection(_ context.Context, name string) (catalog.Collection, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[name]
	return c, ok, nil
}

// CreateCollection registers a new collection.
func (r *MemoryRepository) CreateCollection(_ context.Context, name, description string) (catalog.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collections[name]; ok {
		return catalog.Collection{}, fmt.Errorf("collection %q: %w", name, ErrDuplicate)
	}
	c := catalog.Collection{
		ID:          r.nextCol,
		Name:        name,
		Description: description,
		CreatedAt:   util.NowUTC(),
	}
	r.nextCol++
	r.collections[name] = c
	return c, nil
}

// ListCollections summarizes registered collections plus any partition that only exists on entries.
func (r *MemoryRepository) ListCollections(_ context.Context) ([]catalog.CollectionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName := make(map[string]*catalog.CollectionSummary)
	for name, c := range r.collections {
		byName[name] = &catalog.CollectionSummary{Name: name, Description: c.Description}
	}
	for _, e := range r.entries {
		s, ok := byName[e.Partition]
		if !ok {
			s = &catalog.CollectionSummary{Name: e.Partition}
			byName[e.Partition] = s
		}
		s.Entries++
		if e.HasEmbedding() {
			s.WithEmbedding++
		}
	}
	out := make([]catalog.CollectionSummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(context.Context) error {
	return nil
}

func inPartition(e faq.Entry, partition string) bool {
	return partition == "" || e.Partition == partition
}

func cloneEntry(e faq.Entry) faq.Entry {
	if e.Embedding != nil {
		e.Embedding = append([]float32(nil), e.Embedding...)
	}
	return e
}

var _ catalog.Store = (*MemoryRepository)(nil)
