package faqrepo

import (
	"context"
	"errors"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
)

var (
	// ErrNotFound is returned when an entry id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique name is reused.
	ErrDuplicate = errors.New("already exists")
)

// Repository is the storage surface the application wires.
type Repository interface {
	catalog.Store
	Ping(ctx context.Context) error
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*SQLiteRepository)(nil)
)
