package faqrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
	"github.com/yanqian/faq-assistant/internal/domain/faq"
	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
)

// nearestCandidates bounds the rows pulled by Nearest. Ordering on distance
// alone keeps the HNSW index usable; equal scores are resolved in Go.
const nearestCandidates = 8

// querier is the subset of *pgxpool.Pool the repository uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores the corpus in Postgres with pgvector.
type PostgresRepository struct {
	pool      querier
	dimension int
}

// NewPostgresRepository constructs the repository for vectors of dimension.
func NewPostgresRepository(pool *pgxpool.Pool, dimension int) *PostgresRepository {
	return &PostgresRepository{pool: pool, dimension: dimension}
}

// Migrate creates the extension, tables and cosine index when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS collections (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS faqs (
			id BIGSERIAL PRIMARY KEY,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			embedding vector(%d),
			collection_name VARCHAR(100) NOT NULL DEFAULT 'default',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, r.dimension),
		`CREATE INDEX IF NOT EXISTS faqs_collection_name_idx ON faqs (collection_name)`,
		`CREATE INDEX IF NOT EXISTS faqs_embedding_hnsw_idx ON faqs USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// VerifyDimension compares the persisted vector column with the configured
// dimension. A mismatch is a configuration_error; anything else is returned as is.
func (r *PostgresRepository) VerifyDimension(ctx context.Context) error {
	var typmod int
	err := r.pool.QueryRow(ctx, `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON a.attrelid = c.oid
		WHERE c.relname = 'faqs' AND a.attname = 'embedding' AND NOT a.attisdropped
	`).Scan(&typmod)
	if err != nil {
		return fmt.Errorf("read embedding column: %w", err)
	}
	if typmod > 0 && typmod != r.dimension {
		return apperrors.Wrap(apperrors.CodeConfiguration, fmt.Sprintf("faqs.embedding is vector(%d) but the embedding model produces %d dimensions", typmod, r.dimension), nil)
	}
	return nil
}

// Entries returns embedded entries ordered by id.
func (r *PostgresRepository) Entries(ctx context.Context, partition string) ([]faq.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, question, answer, embedding::text, collection_name, created_at, updated_at
		FROM faqs
		WHERE embedding IS NOT NULL AND ($1 = '' OR collection_name = $1)
		ORDER BY id
	`, partition)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// ListEntries returns entries matching filter ordered by id.
func (r *PostgresRepository) ListEntries(ctx context.Context, filter catalog.EntryFilter) ([]faq.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, question, answer, embedding::text, collection_name, created_at, updated_at
		FROM faqs
		WHERE ($1 = '' OR collection_name = $1) AND (NOT $2 OR embedding IS NULL)
		ORDER BY id
	`, filter.Partition, filter.MissingOnly)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// Nearest ranks by cosine distance in the database. Zero-norm rows are skipped
// and equal scores resolve to the lowest id.
func (r *PostgresRepository) Nearest(ctx context.Context, vector []float32, partition string) (faq.MatchResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, question, answer, embedding::text, collection_name, created_at, updated_at,
			1 - (embedding <=> $1) AS score
		FROM faqs
		WHERE embedding IS NOT NULL
			AND vector_norm(embedding) > 0
			AND ($2 = '' OR collection_name = $2)
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(vector), partition, nearestCandidates)
	if err != nil {
		return faq.MatchResult{}, err
	}
	defer rows.Close()

	var best faq.MatchResult
	for rows.Next() {
		var score float64
		entry, err := scanEntry(rows, &score)
		if err != nil {
			return faq.MatchResult{}, err
		}
		score = clampScore(score)
		if best.Candidate == nil || score > best.Score || (score == best.Score && entry.ID < best.Candidate.ID) {
			candidate := entry
			best = faq.MatchResult{Candidate: &candidate, Score: score}
		}
	}
	if err := rows.Err(); err != nil {
		return faq.MatchResult{}, err
	}
	return best, nil
}

// CountEntries counts entries in partition, or all of them when empty.
func (r *PostgresRepository) CountEntries(ctx context.Context, partition string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM faqs WHERE ($1 = '' OR collection_name = $1)`, partition).Scan(&count)
	return count, err
}

// DeleteEntries removes entries in partition, or all of them when empty.
func (r *PostgresRepository) DeleteEntries(ctx context.Context, partition string) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM faqs WHERE ($1 = '' OR collection_name = $1)`, partition)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// InsertEntry persists a new entry.
func (r *PostgresRepository) InsertEntry(ctx context.Context, entry catalog.NewEntry) (faq.Entry, error) {
	var embedding any
	if len(entry.Embedding) > 0 {
		embedding = pgvector.NewVector(entry.Embedding)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO faqs (question, answer, embedding, collection_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, question, answer, embedding::text, collection_name, created_at, updated_at
	`, entry.Question, entry.Answer, embedding, entry.Partition)
	return scanEntry(row)
}

// UpdateEmbedding replaces the vector of entry id.
func (r *PostgresRepository) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE faqs SET embedding = $2, updated_at = NOW() WHERE id = $1
	`, id, pgvector.NewVector(embedding))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("faq %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetCollection looks up a collection by name.
func (r *PostgresRepository) GetCollection(ctx context.Context, name string) (catalog.Collection, bool, error) {
	var c catalog.Collection
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, created_at FROM collections WHERE name = $1
	`, name).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Collection{}, false, nil
	}
	if err != nil {
		return catalog.Collection{}, false, err
	}
	return c, true, nil
}

// CreateCollection registers a new collection.
func (r *PostgresRepository) CreateCollection(ctx context.Context, name, description string) (catalog.Collection, error) {
	var c catalog.Collection
	err := r.pool.QueryRow(ctx, `
		INSERT INTO collections (name, description) VALUES ($1, $2)
		RETURNING id, name, description, created_at
	`, name, description).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if isUniqueViolation(err) {
		return catalog.Collection{}, fmt.Errorf("collection %q: %w", name, ErrDuplicate)
	}
	return c, err
}

// ListCollections summarizes collections, including partitions without a collection row.
func (r *PostgresRepository) ListCollections(ctx context.Context) ([]catalog.CollectionSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT n.name, COALESCE(c.description, ''),
			COUNT(f.id), COUNT(f.embedding)
		FROM (
			SELECT name FROM collections
			UNION
			SELECT DISTINCT collection_name FROM faqs
		) n
		LEFT JOIN collections c ON c.name = n.name
		LEFT JOIN faqs f ON f.collection_name = n.name
		GROUP BY n.name, c.description
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

// Ping runs a trivial query against the pool.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	var one int
	return r.pool.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectEntries(rows pgx.Rows) ([]faq.Entry, error) {
	defer rows.Close()
	var out []faq.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanEntry(row rowScanner, extras ...any) (faq.Entry, error) {
	var (
		entry     faq.Entry
		embedding sql.NullString
	)
	args := []any{&entry.ID, &entry.Question, &entry.Answer, &embedding, &entry.Partition, &entry.CreatedAt, &entry.UpdatedAt}
	args = append(args, extras...)
	if err := row.Scan(args...); err != nil {
		return faq.Entry{}, err
	}
	vec, err := parseVector(embedding)
	if err != nil {
		return faq.Entry{}, fmt.Errorf("faq %d: %w", entry.ID, err)
	}
	entry.Embedding = vec
	return entry, nil
}

// parseVector decodes pgvector's text form; NULL becomes a nil slice.
func parseVector(text sql.NullString) ([]float32, error) {
	raw := strings.TrimSpace(text.String)
	if !text.Valid || raw == "" {
		return nil, nil
	}
	if len(raw) < 2 || raw[0] != '[' || raw[len(raw)-1] != ']' {
		return nil, fmt.Errorf("parse embedding: malformed vector %q", raw)
	}
	if raw == "[]" {
		return []float32{}, nil
	}
	var v pgvector.Vector
	if err := v.Parse(raw); err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	return v.Slice(), nil
}

func clampScore(score float64) float64 {
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var (
	_ catalog.Store       = (*PostgresRepository)(nil)
	_ faq.NearestSearcher = (*PostgresRepository)(nil)
)
