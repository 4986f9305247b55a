// Package tmindex implements the translation-memory index (spec 4.4, C4): a
// Postgres-backed store of aligned (source, target) segment pairs with
// hybrid dense-vector + lexical retrieval.
package tmindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hieromt/hieromt/pkg/types"
)

const schemaTmpl = `
CREATE TABLE IF NOT EXISTS tm_entries (
	id             BIGSERIAL PRIMARY KEY,
	source_text    TEXT NOT NULL,
	target_text    TEXT NOT NULL,
	src_lang       TEXT NOT NULL,
	tgt_lang       TEXT NOT NULL,
	lexical_tokens TEXT[] NOT NULL DEFAULT '{}',
	embedding      vector(%d),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_text, target_text, src_lang, tgt_lang)
);

CREATE INDEX IF NOT EXISTS tm_entries_pair_idx ON tm_entries (src_lang, tgt_lang);

CREATE INDEX IF NOT EXISTS tm_entries_embedding_hnsw_idx
	ON tm_entries USING hnsw (embedding vector_cosine_ops);
`

// DB is the subset of *pgxpool.Pool used by Store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists [types.TMEntry] rows in Postgres with a pgvector column.
type Store struct {
	db  DB
	dim int
}

// NewStore wraps an existing pool.
func NewStore(db DB, dim int) *Store {
	return &Store{db: db, dim: dim}
}

// NewPoolStore opens a new connection pool to dsn and wraps it.
func NewPoolStore(ctx context.Context, dsn string, dim int) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("tmindex: connect: %w", err)
	}
	return NewStore(pool, dim), pool, nil
}

// Migrate creates the tm_entries table and its indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(schemaTmpl, s.dim)); err != nil {
		return fmt.Errorf("tmindex: migrate: %w", err)
	}
	return nil
}

// Upsert idempotently inserts entry, refreshing its embedding and lexical
// tokens in place when the (source, target, pair) triple already exists.
func (s *Store) Upsert(ctx context.Context, entry types.TMEntry) error {
	var pgvec *pgvector.Vector
	if entry.DenseVector != nil {
		v := pgvector.NewVector(entry.DenseVector)
		pgvec = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO tm_entries (source_text, target_text, src_lang, tgt_lang, lexical_tokens, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_text, target_text, src_lang, tgt_lang) DO UPDATE SET
			lexical_tokens = EXCLUDED.lexical_tokens,
			embedding      = COALESCE(EXCLUDED.embedding, tm_entries.embedding)
	`, entry.SourceText, entry.TargetText, entry.Pair.Src, entry.Pair.Tgt, entry.LexicalTokens, pgvec)
	if err != nil {
		return fmt.Errorf("tmindex: upsert: %w", err)
	}
	return nil
}

// VectorSearch returns the k nearest neighbours to vector by cosine
// similarity within pair.
func (s *Store) VectorSearch(ctx context.Context, vector []float32, pair types.LanguagePair, k int) ([]types.TMHit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT source_text, target_text, lexical_tokens, 1 - (embedding <=> $1) AS similarity
		FROM tm_entries
		WHERE src_lang = $2 AND tgt_lang = $3 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $4
	`, pgvector.NewVector(vector), pair.Src, pair.Tgt, k)
	if err != nil {
		return nil, fmt.Errorf("tmindex: vector search: %w", err)
	}
	defer rows.Close()

	var hits []types.TMHit
	for rows.Next() {
		var e types.TMEntry
		var sim float64
		e.Pair = pair
		if err := rows.Scan(&e.SourceText, &e.TargetText, &e.LexicalTokens, &sim); err != nil {
			return nil, fmt.Errorf("tmindex: scan vector hit: %w", err)
		}
		hits = append(hits, types.TMHit{Entry: e, Score: sim})
	}
	return hits, rows.Err()
}

// AllForPair returns every entry registered for pair, used as the candidate
// set for in-process lexical scoring.
func (s *Store) AllForPair(ctx context.Context, pair types.LanguagePair) ([]types.TMEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT source_text, target_text, lexical_tokens
		FROM tm_entries WHERE src_lang = $1 AND tgt_lang = $2
	`, pair.Src, pair.Tgt)
	if err != nil {
		return nil, fmt.Errorf("tmindex: list for pair: %w", err)
	}
	defer rows.Close()

	var out []types.TMEntry
	for rows.Next() {
		var e types.TMEntry
		e.Pair = pair
		if err := rows.Scan(&e.SourceText, &e.TargetText, &e.LexicalTokens); err != nil {
			return nil, fmt.Errorf("tmindex: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
