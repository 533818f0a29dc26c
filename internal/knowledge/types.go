package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Document is an ingested knowledge source. Documents are immutable once
// stored; re-ingesting the same source produces a new Document under a new ID.
type Document struct {
	ID         uuid.UUID
	SourceName string
	RawText    string // cleaned text, the input to chunking
	Namespace  string
	IngestedAt time.Time
}

// NewDocument builds a Document with a fresh ID and the current time.
func NewDocument(sourceName, cleanText, namespace string) Document {
	return Document{
		ID:         uuid.New(),
		SourceName: sourceName,
		RawText:    cleanText,
		Namespace:  namespace,
		IngestedAt: time.Now().UTC(),
	}
}

// Chunk is a bounded segment of a document's text, the retrieval unit.
// Chunks are created by Split and read-only afterward. Offsets are rune
// positions into the owning document's cleaned text.
type Chunk struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	Text          string
	SequenceIndex int
	StartOffset   int
	EndOffset     int
}

// IndexEntry is the stored unit of the vector index: an embedding plus the
// denormalized chunk text and document metadata, so a search result needs no
// join back to a document store. Entries are derived data, rebuildable from
// documents and embeddings.
type IndexEntry struct {
	ChunkID       uuid.UUID
	DocumentID    uuid.UUID
	Namespace     string
	Text          string
	SequenceIndex int
	SourceName    string
	ModelVersion  string
	Vector        []float32
}

// Scored pairs an index entry with its cosine similarity to a query vector.
type Scored struct {
	Entry IndexEntry
	Score float32
}

// SearchOption configures index search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK         int
	threshold    float32
	modelVersion string
}

// DefaultTopK is the number of results returned when WithTopK is not given.
const DefaultTopK = 5

// WithTopK caps the number of results. Values < 1 are ignored.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k >= 1 {
			c.topK = k
		}
	}
}

// WithThreshold excludes results whose similarity is below t.
func WithThreshold(t float32) SearchOption {
	return func(c *searchConfig) {
		c.threshold = t
	}
}

// WithModelVersion pins the search to entries embedded under one model
// version. Embeddings from different model versions are not comparable, so
// callers should always pin the version they queried with.
func WithModelVersion(v string) SearchOption {
	return func(c *searchConfig) {
		c.modelVersion = v
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{topK: DefaultTopK}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
