package faqrepo

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
)

type stubQuerier struct {
	queryFn    func(sql string, args []any) (pgx.Rows, error)
	queryRowFn func(sql string, args []any) pgx.Row
	execFn     func(sql string, args []any) (pgconn.CommandTag, error)
}

func (s *stubQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.execFn(sql, args)
}

func (s *stubQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.queryFn(sql, args)
}

func (s *stubQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return s.queryRowFn(sql, args)
}

// stubRows replays fixed rows; each value is assigned to the matching Scan destination.
type stubRows struct {
	rows   [][]any
	cursor int
	closed bool
	err    error
}

func (r *stubRows) Close()                                       { r.closed = true }
func (r *stubRows) Err() error                                   { return r.err }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	if r.cursor >= len(r.rows) {
		return false
	}
	r.cursor++
	return true
}

func (r *stubRows) Values() ([]any, error) {
	return r.rows[r.cursor-1], nil
}

func (r *stubRows) Scan(dest ...any) error {
	return assignRow(r.rows[r.cursor-1], dest)
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assignRow(r.values, dest)
}

func assignRow(values, dest []any) error {
	if len(values) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, v := range values {
		if scanner, ok := dest[i].(sql.Scanner); ok {
			if err := scanner.Scan(v); err != nil {
				return err
			}
			continue
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func entryRow(id int64, question string, embedding any, partition string, extra ...any) []any {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	row := []any{id, question, "answer " + question, embedding, partition, at, at}
	return append(row, extra...)
}

func TestParseVector(t *testing.T) {
	vec, err := parseVector(sql.NullString{String: "[0.5,1,-2]", Valid: true})
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 1, -2}, vec)

	vec, err = parseVector(sql.NullString{})
	require.NoError(t, err)
	require.Nil(t, vec)

	vec, err = parseVector(sql.NullString{String: "[]", Valid: true})
	require.NoError(t, err)
	require.Empty(t, vec)

	_, err = parseVector(sql.NullString{String: "0.5,1", Valid: true})
	require.Error(t, err)

	_, err = parseVector(sql.NullString{String: "[0.5,x]", Valid: true})
	require.Error(t, err)
}

func TestScanEntryDecodesTextVector(t *testing.T) {
	rows := &stubRows{rows: [][]any{
		entryRow(1, "vpn", "[1,0.25]", "default"),
		entryRow(2, "printer", nil, "default"),
	}}
	entries, err := collectEntries(rows)
	require.NoError(t, err)
	require.True(t, rows.closed)
	require.Len(t, entries, 2)
	require.Equal(t, []float32{1, 0.25}, entries[0].Embedding)
	require.Equal(t, "answer vpn", entries[0].Answer)
	require.Nil(t, entries[1].Embedding)
	require.False(t, entries[1].HasEmbedding())
}

func TestScanEntryRejectsMalformedVector(t *testing.T) {
	_, err := collectEntries(&stubRows{rows: [][]any{entryRow(4, "vpn", "[1,oops]", "default")}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "faq 4")
}

func TestPostgresNearestResolvesTiesToLowestID(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	db := &stubQuerier{queryFn: func(sql string, args []any) (pgx.Rows, error) {
		gotSQL, gotArgs = sql, args
		return &stubRows{rows: [][]any{
			entryRow(7, "seven", "[1,0]", "hr", 0.9),
			entryRow(3, "three", "[1,0]", "hr", 0.9),
			entryRow(9, "nine", "[0,1]", "hr", 0.5),
		}}, nil
	}}
	repo := &PostgresRepository{pool: db, dimension: 2}

	match, err := repo.Nearest(context.Background(), []float32{1, 0}, "hr")
	require.NoError(t, err)
	require.True(t, match.HasCandidate())
	require.Equal(t, int64(3), match.Candidate.ID)
	require.Equal(t, 0.9, match.Score)

	require.Contains(t, gotSQL, "vector_norm(embedding) > 0")
	require.Contains(t, gotSQL, "ORDER BY embedding <=> $1\n")
	require.NotContains(t, gotSQL, "<=> $1, id")
	require.Equal(t, "hr", gotArgs[1])
	require.Equal(t, nearestCandidates, gotArgs[2])
}

func TestPostgresNearestClampsScore(t *testing.T) {
	db := &stubQuerier{queryFn: func(string, []any) (pgx.Rows, error) {
		return &stubRows{rows: [][]any{entryRow(1, "one", "[1,0]", "default", 1.0000002)}}, nil
	}}
	repo := &PostgresRepository{pool: db, dimension: 2}
	match, err := repo.Nearest(context.Background(), []float32{1, 0}, "")
	require.NoError(t, err)
	require.Equal(t, 1.0, match.Score)
}

func TestPostgresNearestEmptyCorpus(t *testing.T) {
	db := &stubQuerier{queryFn: func(string, []any) (pgx.Rows, error) {
		return &stubRows{}, nil
	}}
	repo := &PostgresRepository{pool: db, dimension: 2}
	match, err := repo.Nearest(context.Background(), []float32{1, 0}, "")
	require.NoError(t, err)
	require.False(t, match.HasCandidate())
}

func TestPostgresNearestPropagatesErrors(t *testing.T) {
	boom := errors.New("connection reset")
	repo := &PostgresRepository{pool: &stubQuerier{queryFn: func(string, []any) (pgx.Rows, error) {
		return nil, boom
	}}, dimension: 2}
	_, err := repo.Nearest(context.Background(), []float32{1, 0}, "")
	require.ErrorIs(t, err, boom)

	repo = &PostgresRepository{pool: &stubQuerier{queryFn: func(string, []any) (pgx.Rows, error) {
		return &stubRows{err: boom}, nil
	}}, dimension: 2}
	_, err = repo.Nearest(context.Background(), []float32{1, 0}, "")
	require.ErrorIs(t, err, boom)
}

func TestPostgresEntriesFiltersByPartition(t *testing.T) {
	var gotArgs []any
	db := &stubQuerier{queryFn: func(sql string, args []any) (pgx.Rows, error) {
		require.Contains(t, sql, "embedding IS NOT NULL")
		gotArgs = args
		return &stubRows{rows: [][]any{entryRow(1, "vpn", "[0,1]", "it")}}, nil
	}}
	repo := &PostgresRepository{pool: db, dimension: 2}
	entries, err := repo.Entries(context.Background(), "it")
	require.NoError(t, err)
	require.Equal(t, []any{"it"}, gotArgs)
	require.Len(t, entries, 1)
	require.Equal(t, "it", entries[0].Partition)
	require.Equal(t, []float32{0, 1}, entries[0].Embedding)
}

func TestPostgresInsertEntryReturnsStoredRow(t *testing.T) {
	db := &stubQuerier{queryRowFn: func(sql string, args []any) pgx.Row {
		require.True(t, strings.Contains(sql, "RETURNING"))
		require.Equal(t, "vpn", args[0])
		require.NotNil(t, args[2])
		return stubRow{values: entryRow(11, "vpn", "[0.5,0.5]", "default")}
	}}
	repo := &PostgresRepository{pool: db, dimension: 2}
	entry, err := repo.InsertEntry(context.Background(), catalog.NewEntry{Question: "vpn", Answer: "a", Embedding: []float32{0.5, 0.5}, Partition: "default"})
	require.NoError(t, err)
	require.Equal(t, int64(11), entry.ID)
	require.Equal(t, []float32{0.5, 0.5}, entry.Embedding)
}

func TestPostgresVerifyDimension(t *testing.T) {
	repoWith := func(typmod int, err error) *PostgresRepository {
		return &PostgresRepository{pool: &stubQuerier{queryRowFn: func(string, []any) pgx.Row {
			return stubRow{values: []any{typmod}, err: err}
		}}, dimension: 1536}
	}

	require.NoError(t, repoWith(1536, nil).VerifyDimension(context.Background()))
	require.NoError(t, repoWith(-1, nil).VerifyDimension(context.Background()))

	err := repoWith(3, nil).VerifyDimension(context.Background())
	require.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))

	err = repoWith(0, pgx.ErrNoRows).VerifyDimension(context.Background())
	require.Error(t, err)
	require.False(t, apperrors.IsCode(err, apperrors.CodeConfiguration))
}
