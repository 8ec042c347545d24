package chunkstore

import (
	"context"
	"fmt"
	"strings"

	"ragdocs/internal/models"
	"ragdocs/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Queryer is the subset of pgxpool.Pool used by PGVectorStore.
type Queryer interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGVectorStore keeps chunks in a Postgres table with a vector column.
type PGVectorStore struct {
	q        Queryer
	table    string
	distance Distance
}

func NewPGVectorStore(q Queryer, table string) *PGVectorStore {
	return &PGVectorStore{q: q, table: table, distance: DistanceCosine}
}

func (s *PGVectorStore) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *PGVectorStore) EnsureSchema(ctx context.Context, dim int, distance Distance) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive", util.ErrStore)
	}
	if distance != "" {
		s.distance = distance
	}
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin schema tx: %w", util.ErrStore, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	// serializes concurrent schema creation across processes
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.table); err != nil {
		return fmt.Errorf("%w: lock schema: %w", util.ErrStore, err)
	}
	for _, stmt := range schemaStatements(s.table, dim) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %w", util.ErrStore, err)
		}
	}
	var existing int
	err = tx.QueryRow(ctx, `
SELECT a.atttypmod
FROM pg_attribute a
WHERE a.attrelid = to_regclass($1) AND a.attname = 'embedding'`, s.ident()).Scan(&existing)
	if err == nil && existing > 0 && existing != dim {
		return fmt.Errorf("%w: table %s has dimension %d, want %d", util.ErrStore, s.table, existing, dim)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit schema tx: %w", util.ErrStore, err)
	}
	return nil
}

func schemaStatements(table string, dim int) []string {
	ident := pgx.Identifier{table}.Sanitize()
	docIdx := pgx.Identifier{table + "_document_id_idx"}.Sanitize()
	srcIdx := pgx.Identifier{table + "_source_idx"}.Sanitize()
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id uuid PRIMARY KEY,
  seq bigserial,
  document_id text NOT NULL,
  source text NOT NULL,
  page integer,
  chunk_index integer NOT NULL,
  text text NOT NULL,
  embedding vector(%d) NOT NULL
)`, ident, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`, docIdx, ident),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (source)`, srcIdx, ident),
	}
}

func (s *PGVectorStore) UpsertBatch(ctx context.Context, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin upsert tx: %w", util.ErrStore, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (id, document_id, source, page, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7::vector)`, s.ident())
	for _, c := range chunks {
		_, err := tx.Exec(ctx, query,
			uuid.NewString(), c.Chunk.DocumentID, c.Chunk.Source, c.Chunk.Page, c.Chunk.Index, c.Chunk.Text,
			pgvector.NewVector(c.Vector),
		)
		if err != nil {
			return fmt.Errorf("%w: insert chunk %s#%d: %w", util.ErrStore, c.Chunk.DocumentID, c.Chunk.Index, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit upsert tx: %w", util.ErrStore, err)
	}
	return nil
}

func (s *PGVectorStore) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]models.RetrievalResult, error) {
	query, args := searchQuery(s.table, s.distance, pgvector.NewVector(vector), opts)
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %w", util.ErrStore, err)
	}
	defer rows.Close()

	items := make([]scored, 0, opts.TopK)
	for rows.Next() {
		var (
			it  scored
			idx int
		)
		if err := rows.Scan(&it.result.Text, &it.result.Source, &it.result.DocumentID, &it.result.Page, &idx, &it.result.Score, &it.seq); err != nil {
			return nil, fmt.Errorf("%w: scan search row: %w", util.ErrStore, err)
		}
		it.result.Index = &idx
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate search rows: %w", util.ErrStore, err)
	}
	return rank(items, opts), nil
}

// searchQuery builds the similarity query; the score expression follows the
// distance metric so higher always means closer.
func searchQuery(table string, distance Distance, vec pgvector.Vector, opts SearchOptions) (string, []any) {
	var scoreExpr, orderExpr string
	switch distance {
	case DistanceDot:
		scoreExpr = "-(embedding <#> $1::vector)"
		orderExpr = "embedding <#> $1::vector"
	case DistanceEuclid:
		scoreExpr = "-(embedding <-> $1::vector)"
		orderExpr = "embedding <-> $1::vector"
	default:
		scoreExpr = "1 - (embedding <=> $1::vector)"
		orderExpr = "embedding <=> $1::vector"
	}
	args := []any{vec}
	var b strings.Builder
	fmt.Fprintf(&b, `
SELECT text, source, document_id, page, chunk_index, %s AS score, seq
FROM %s`, scoreExpr, pgx.Identifier{table}.Sanitize())
	if opts.ScoreThreshold != nil {
		args = append(args, *opts.ScoreThreshold)
		fmt.Fprintf(&b, "\nWHERE %s >= $%d", scoreExpr, len(args))
	}
	fmt.Fprintf(&b, "\nORDER BY %s, seq DESC", orderExpr)
	if opts.TopK > 0 {
		args = append(args, opts.TopK)
		fmt.Fprintf(&b, "\nLIMIT $%d", len(args))
	}
	return b.String(), args
}

func (s *PGVectorStore) DeleteByDocumentID(ctx context.Context, documentID string) error {
	_, err := s.q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.ident()), documentID)
	if err != nil {
		return fmt.Errorf("%w: delete chunks for %s: %w", util.ErrStore, documentID, err)
	}
	return nil
}

func (s *PGVectorStore) FindByDocumentID(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	rows, err := s.q.Query(ctx, fmt.Sprintf(`
SELECT text, source, document_id, page, chunk_index
FROM %s
WHERE document_id = $1
ORDER BY page NULLS FIRST, chunk_index ASC`, s.ident()), documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks for %s: %w", util.ErrStore, documentID, err)
	}
	defer rows.Close()
	out := make([]models.DocumentChunk, 0, 64)
	for rows.Next() {
		var c models.DocumentChunk
		if err := rows.Scan(&c.Text, &c.Source, &c.DocumentID, &c.Page, &c.Index); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %w", util.ErrStore, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chunks: %w", util.ErrStore, err)
	}
	return out, nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PGVectorStore) Close() error {
	return nil
}
