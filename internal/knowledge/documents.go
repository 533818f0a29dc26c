package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/erasmolabs/erasmo/internal/log"
)

// Execer is the write surface of pgxpool.Pool the document store needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresDocuments persists ingested document metadata and raw text, so
// the index stays rebuildable after an embedding model change.
type PostgresDocuments struct {
	db     Execer
	logger log.Logger
}

// NewPostgresDocuments creates a document store backed by db.
func NewPostgresDocuments(db Execer, logger log.Logger) *PostgresDocuments {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresDocuments{db: db, logger: logger}
}

const saveDocumentSQL = `
INSERT INTO documents (id, source_name, namespace, raw_text, ingested_at)
VALUES ($1, $2, $3, $4, $5)`

// SaveDocument inserts the document row. Documents are immutable, so a
// duplicate ID is an error rather than an upsert.
func (d *PostgresDocuments) SaveDocument(ctx context.Context, doc Document) error {
	_, err := d.db.Exec(ctx, saveDocumentSQL,
		doc.ID.String(), doc.SourceName, doc.Namespace, doc.RawText, doc.IngestedAt)
	if err != nil {
		return fmt.Errorf("%w: save document: %v", ErrIndexUnavailable, err)
	}
	d.logger.Debug("document saved", "document_id", doc.ID, "namespace", doc.Namespace)
	return nil
}
