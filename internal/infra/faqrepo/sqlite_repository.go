package faqrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
	"github.com/yanqian/faq-assistant/internal/domain/faq"
	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
	"github.com/yanqian/faq-assistant/pkg/util"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS faqs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	question        TEXT NOT NULL,
	answer          TEXT NOT NULL,
	embedding       BLOB,
	collection_name TEXT NOT NULL DEFAULT 'default',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS faqs_collection_name_idx ON faqs (collection_name);
`

// SQLiteRepository keeps the corpus in a single SQLite file. Vectors are
// stored as little-endian float32 blobs and matched by linear scan.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens path and applies the schema.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// writers must not overlap
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// VerifyDimension checks the first stored vector against dimension. An empty
// corpus passes; a mismatch is a configuration_error.
func (r *SQLiteRepository) VerifyDimension(ctx context.Context, dimension int) error {
	var (
		id   int64
		size int
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, length(embedding) FROM faqs WHERE embedding IS NOT NULL ORDER BY id LIMIT 1
	`).Scan(&id, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read stored embedding: %w", err)
	}
	if stored := size / 4; size%4 != 0 || stored != dimension {
		return apperrors.Wrap(apperrors.CodeConfiguration, fmt.Sprintf("faq %d stores a %d-byte embedding but the embedding model produces %d dimensions", id, size, dimension), nil)
	}
	return nil
}

// Entries returns embedded entries ordered by id.
func (r *SQLiteRepository) Entries(ctx context.Context, partition string) ([]faq.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, question, answer, embedding, collection_name, created_at, updated_at
		FROM faqs
		WHERE embedding IS NOT NULL AND (? = '' OR collection_name = ?)
		ORDER BY id
	`, partition, partition)
	if err != nil {
		return nil, err
	}
	return collectSQLiteEntries(rows)
}

// ListEntries returns entries matching filter ordered by id.
func (r *SQLiteRepository) ListEntries(ctx context.Context, filter catalog.EntryFilter) ([]faq.Entry, error) {
	query := `
		SELECT id, question, answer, embedding, collection_name, created_at, updated_at
		FROM faqs
		WHERE (? = '' OR collection_name = ?)`
	if filter.MissingOnly {
		query += ` AND embedding IS NULL`
	}
	query += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, filter.Partition, filter.Partition)
	if err != nil {
		return nil, err
	}
	return collectSQLiteEntries(rows)
}

// CountEntries counts entries in partition, or all of them when empty.
func (r *SQLiteRepository) CountEntries(ctx context.Context, partition string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM faqs WHERE (? = '' OR collection_name = ?)`, partition, partition).Scan(&count)
	return count, err
}

// DeleteEntries removes entries in partition, or all of them when empty.
func (r *SQLiteRepository) DeleteEntries(ctx context.Context, partition string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM faqs WHERE (? = '' OR collection_name = ?)`, partition, partition)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// InsertEntry persists a new entry.
func (r *SQLiteRepository) InsertEntry(ctx context.Context, entry catalog.NewEntry) (faq.Entry, error) {
	now := util.NowUTC()
	var blob any
	if len(entry.Embedding) > 0 {
		blob = util.EncodeVector(entry.Embedding)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO faqs (question, answer, embedding, collection_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Question, entry.Answer, blob, entry.Partition, util.Timestamp(now), util.Timestamp(now))
	if err != nil {
		return faq.Entry{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return faq.Entry{}, err
	}
	stored := faq.Entry{
		ID:        id,
		Question:  entry.Question,
		Answer:    entry.Answer,
		Partition: entry.Partition,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(entry.Embedding) > 0 {
		stored.Embedding = append([]float32(nil), entry.Embedding...)
	}
	return stored, nil
}

// UpdateEmbedding replaces the vector of entry id.
func (r *SQLiteRepository) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE faqs SET embedding = ?, updated_at = ? WHERE id = ?
	`, util.EncodeVector(embedding), util.Timestamp(util.NowUTC()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("faq %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetCollection looks up a collection by name.
func (r *SQLiteRepository) GetCollection(ctx context.Context, name string) (catalog.Collection, bool, error) {
	var (
		c       catalog.Collection
		created string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at FROM collections WHERE name = ?
	`, name).Scan(&c.ID, &c.Name, &c.Description, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Collection{}, false, nil
	}
	if err != nil {
		return catalog.Collection{}, false, err
	}
	c.CreatedAt, err = util.ParseTimestamp(created)
	if err != nil {
		return catalog.Collection{}, false, fmt.Errorf("parse created_at: %w", err)
	}
	return c, true, nil
}

// CreateCollection registers a new collection.
func (r *SQLiteRepository) CreateCollection(ctx context.Context, name, description string) (catalog.Collection, error) {
	now := util.NowUTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO collections (name, description, created_at) VALUES (?, ?, ?)
	`, name, description, util.Timestamp(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return catalog.Collection{}, fmt.Errorf("collection %q: %w", name, ErrDuplicate)
		}
		return catalog.Collection{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return catalog.Collection{}, err
	}
	return catalog.Collection{ID: id, Name: name, Description: description, CreatedAt: now}, nil
}

// ListCollections summarizes collections, including partitions without a collection row.
func (r *SQLiteRepository) ListCollections(ctx context.Context) ([]catalog.CollectionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT n.name, COALESCE(c.description, ''),
			COUNT(f.id), COUNT(f.embedding)
		FROM (
			SELECT name FROM collections
			UNION
			SELECT DISTINCT collection_name FROM faqs
		) n
		LEFT JOIN collections c ON c.name = n.name
		LEFT JOIN faqs f ON f.collection_name = n.name
		GROUP BY n.name
		ORDER BY n.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.CollectionSummary
	for rows.Next() {
		var s catalog.CollectionSummary
		if err := rows.Scan(&s.Name, &s.Description, &s.Entries, &s.WithEmbedding); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Ping checks the database handle.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func collectSQLiteEntries(rows *sql.Rows) ([]faq.Entry, error) {
	defer rows.Close()
	var out []faq.Entry
	for rows.Next() {
		var (
			entry            faq.Entry
			blob             []byte
			created, updated string
		)
		if err := rows.Scan(&entry.ID, &entry.Question, &entry.Answer, &blob, &entry.Partition, &created, &updated); err != nil {
			return nil, err
		}
		if len(blob) > 0 {
			vec, err := util.DecodeVector(blob)
			if err != nil {
				return nil, fmt.Errorf("faq %d: %w", entry.ID, err)
			}
			entry.Embedding = vec
		}
		entry.CreatedAt, _ = util.ParseTimestamp(created)
		entry.UpdatedAt, _ = util.ParseTimestamp(updated)
		out = append(out, entry)
	}
	return out, rows.Err()
}

var _ catalog.Store = (*SQLiteRepository)(nil)
