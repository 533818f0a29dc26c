package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// PgxPool is the subset of *pgxpool.Pool used by PostgresIndex. Defined on the
// consumer side so tests can substitute a fake.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresIndex is the durable Index implementation over PostgreSQL with the
// pgvector extension. Cosine distance is computed by the database; upserts key
// on (chunk_id, model_version) so re-ingestion overwrites rather than
// duplicates.
//
// Safe for concurrent use; visibility per entry is atomic because each entry
// is a single row.
type PostgresIndex struct {
	pool   PgxPool
	logger *slog.Logger
}

// NewPostgresIndex creates a PostgresIndex over an existing connection pool.
// The pool's lifecycle is owned by the caller.
func NewPostgresIndex(pool PgxPool, logger *slog.Logger) *PostgresIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresIndex{pool: pool, logger: logger}
}

const upsertEntrySQL = `
INSERT INTO index_entries
    (chunk_id, model_version, document_id, namespace, content, sequence_index, source_name, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (chunk_id, model_version) DO UPDATE SET
    document_id    = EXCLUDED.document_id,
    namespace      = EXCLUDED.namespace,
    content        = EXCLUDED.content,
    sequence_index = EXCLUDED.sequence_index,
    source_name    = EXCLUDED.source_name,
    embedding      = EXCLUDED.embedding`

// Upsert writes entries in one batch round trip.
func (p *PostgresIndex) Upsert(ctx context.Context, entries []IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		vec := pgvector.NewVector(normalize(e.Vector))
		batch.Queue(upsertEntrySQL,
			e.ChunkID.String(),
			e.ModelVersion,
			e.DocumentID.String(),
			e.Namespace,
			e.Text,
			e.SequenceIndex,
			e.SourceName,
			vec,
		)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer func() {
		if err := results.Close(); err != nil {
			p.logger.Warn("failed to close batch results", "error", err)
		}
	}()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%w: upsert: %v", ErrIndexUnavailable, err)
		}
	}

	p.logger.Debug("upserted index entries", "count", len(entries))
	return nil
}

const searchEntriesSQL = `
SELECT chunk_id, document_id, namespace, content, sequence_index, source_name, model_version,
       1 - (embedding <=> $1) AS similarity
FROM index_entries
WHERE namespace = $2
  AND ($3 = '' OR model_version = $3)
  AND 1 - (embedding <=> $1) >= $4
ORDER BY similarity DESC, chunk_id
LIMIT $5`

// Search queries the namespace by cosine similarity. Returned entries carry no
// vector; retrieval consumers only need the denormalized chunk data.
func (p *PostgresIndex) Search(ctx context.Context, query []float32, namespace string, opts ...SearchOption) ([]Scored, error) {
	cfg := buildSearchConfig(opts)
	qvec := pgvector.NewVector(normalize(query))

	rows, err := p.pool.Query(ctx, searchEntriesSQL,
		qvec, namespace, cfg.modelVersion, cfg.threshold, cfg.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var results []Scored
	for rows.Next() {
		var (
			chunkID, documentID string
			s                   Scored
		)
		if err := rows.Scan(
			&chunkID,
			&documentID,
			&s.Entry.Namespace,
			&s.Entry.Text,
			&s.Entry.SequenceIndex,
			&s.Entry.SourceName,
			&s.Entry.ModelVersion,
			&s.Score,
		); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrIndexUnavailable, err)
		}
		if s.Entry.ChunkID, err = uuid.Parse(chunkID); err != nil {
			return nil, fmt.Errorf("%w: invalid chunk id %q: %v", ErrIndexUnavailable, chunkID, err)
		}
		if s.Entry.DocumentID, err = uuid.Parse(documentID); err != nil {
			return nil, fmt.Errorf("%w: invalid document id %q: %v", ErrIndexUnavailable, documentID, err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return results, nil
}
