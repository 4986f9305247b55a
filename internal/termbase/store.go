// Package termbase implements the persisted legal-domain term store and its
// three-pass lookup contract (spec 4.3, C3): exact match, Jaro-Winkler fuzzy
// match, and pgvector dense-vector similarity, with rank-preserving
// de-duplication across passes.
package termbase

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hieromt/hieromt/pkg/types"
)

// schemaTmpl is the DDL for the term table, including the HNSW cosine index used
// by the dense-vector pass. %d is the embedding dimension, fixed at process
// startup from config.
const schemaTmpl = `
CREATE TABLE IF NOT EXISTS terms (
	id               BIGSERIAL PRIMARY KEY,
	source_form      TEXT NOT NULL,
	target_form      TEXT NOT NULL,
	src_lang         TEXT NOT NULL,
	tgt_lang         TEXT NOT NULL,
	definition       TEXT NOT NULL DEFAULT '',
	domain           TEXT NOT NULL DEFAULT '',
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	example_contexts JSONB NOT NULL DEFAULT '[]',
	embedding        vector(%d),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_form, target_form, src_lang, tgt_lang)
);

CREATE INDEX IF NOT EXISTS terms_src_lang_idx ON terms (src_lang, tgt_lang, source_form);

CREATE INDEX IF NOT EXISTS terms_embedding_hnsw_idx
	ON terms USING hnsw (embedding vector_cosine_ops);
`

// DB is the subset of *pgxpool.Pool used by Store, duck-typed so tests can
// swap in a *pgx.Conn or a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists [types.TermEntry] rows in Postgres with a pgvector column.
type Store struct {
	db  DB
	dim int
}

// NewStore wraps an existing pool. dim must match the configured embedding
// provider's output dimensionality.
func NewStore(db DB, dim int) *Store {
	return &Store{db: db, dim: dim}
}

// NewPoolStore opens a new connection pool to dsn and wraps it.
func NewPoolStore(ctx context.Context, dsn string, dim int) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("termbase: connect: %w", err)
	}
	return NewStore(pool, dim), pool, nil
}

// Migrate creates the terms table and its indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(schemaTmpl, s.dim))
	if err != nil {
		return fmt.Errorf("termbase: migrate: %w", err)
	}
	return nil
}

// Upsert inserts entry, or updates it in place when a row with the same
// (source_form, target_form, pair) already exists — an idempotent ingest
// contract (spec 4.3, 4.11): re-ingesting the same pair only refreshes
// metadata, it never creates a duplicate alternative translation.
func (s *Store) Upsert(ctx context.Context, entry types.TermEntry, vec []float32) error {
	var pgvec *pgvector.Vector
	if vec != nil {
		v := pgvector.NewVector(vec)
		pgvec = &v
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO terms (source_form, target_form, src_lang, tgt_lang, definition, domain, confidence, occurrence_count, example_contexts, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_form, target_form, src_lang, tgt_lang) DO UPDATE SET
			definition       = EXCLUDED.definition,
			domain           = EXCLUDED.domain,
			confidence       = GREATEST(terms.confidence, EXCLUDED.confidence),
			occurrence_count = terms.occurrence_count + EXCLUDED.occurrence_count,
			example_contexts = EXCLUDED.example_contexts,
			embedding        = COALESCE(EXCLUDED.embedding, terms.embedding),
			updated_at       = now()
	`,
		entry.SourceForm, entry.TargetForm, entry.Pair.Src, entry.Pair.Tgt,
		entry.Definition, entry.Domain, entry.Confidence, entry.OccurrenceCount,
		contextsToJSON(entry.ExampleContexts), pgvec,
	)
	if err != nil {
		return fmt.Errorf("termbase: upsert %q->%q: %w", entry.SourceForm, entry.TargetForm, err)
	}
	return nil
}

// ExactLookup returns every term entry whose source form matches sourceForm
// exactly (case-sensitive) for the given language pair.
func (s *Store) ExactLookup(ctx context.Context, sourceForm string, pair types.LanguagePair) ([]types.TermEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT source_form, target_form, definition, domain, confidence, occurrence_count, example_contexts
		FROM terms WHERE source_form = $1 AND src_lang = $2 AND tgt_lang = $3
	`, sourceForm, pair.Src, pair.Tgt)
	if err != nil {
		return nil, fmt.Errorf("termbase: exact lookup: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows, pair)
}

// AllForPair returns every term entry registered for pair, used by the
// in-process fuzzy pass. For large termbases this should be replaced with a
// trigram-indexed candidate prefilter; the spec does not mandate a specific
// candidate-generation strategy for the fuzzy pass.
func (s *Store) AllForPair(ctx context.Context, pair types.LanguagePair) ([]types.TermEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT source_form, target_form, definition, domain, confidence, occurrence_count, example_contexts
		FROM terms WHERE src_lang = $1 AND tgt_lang = $2
	`, pair.Src, pair.Tgt)
	if err != nil {
		return nil, fmt.Errorf("termbase: list for pair: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows, pair)
}

// VectorLookup returns the k nearest neighbours to vector by cosine distance
// within pair, using the HNSW index.
func (s *Store) VectorLookup(ctx context.Context, vector []float32, pair types.LanguagePair, k int) ([]types.TermLookupHit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT source_form, target_form, definition, domain, confidence, occurrence_count, example_contexts,
		       1 - (embedding <=> $1) AS similarity
		FROM terms
		WHERE src_lang = $2 AND tgt_lang = $3 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $4
	`, pgvector.NewVector(vector), pair.Src, pair.Tgt, k)
	if err != nil {
		return nil, fmt.Errorf("termbase: vector lookup: %w", err)
	}
	defer rows.Close()

	var hits []types.TermLookupHit
	for rows.Next() {
		var e types.TermEntry
		var ctxJSON []byte
		var similarity float64
		e.Pair = pair
		if err := rows.Scan(&e.SourceForm, &e.TargetForm, &e.Definition, &e.Domain, &e.Confidence, &e.OccurrenceCount, &ctxJSON, &similarity); err != nil {
			return nil, fmt.Errorf("termbase: scan vector hit: %w", err)
		}
		e.ExampleContexts = contextsFromJSON(ctxJSON)
		hits = append(hits, types.TermLookupHit{Entry: e, Similarity: similarity, Source: types.TermMatchVector})
	}
	return hits, rows.Err()
}

func scanEntries(rows pgx.Rows, pair types.LanguagePair) ([]types.TermEntry, error) {
	var out []types.TermEntry
	for rows.Next() {
		var e types.TermEntry
		var ctxJSON []byte
		e.Pair = pair
		if err := rows.Scan(&e.SourceForm, &e.TargetForm, &e.Definition, &e.Domain, &e.Confidence, &e.OccurrenceCount, &ctxJSON); err != nil {
			return nil, fmt.Errorf("termbase: scan entry: %w", err)
		}
		e.ExampleContexts = contextsFromJSON(ctxJSON)
		out = append(out, e)
	}
	return out, rows.Err()
}
