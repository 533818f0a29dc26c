package knowledge

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Index stores vectors with their denormalized chunk data and answers
// nearest-neighbor queries within a namespace. The backing store is pluggable;
// this contract is all the rest of the core may assume.
//
// Invariants every implementation must keep:
//   - Upsert is idempotent per (chunk ID, model version): re-insert
//     overwrites, never duplicates.
//   - Search with namespace N never returns entries inserted under M != N.
//   - Results are ordered by descending similarity with a deterministic
//     tie-break, and never include scores below the threshold.
//   - A reader never observes a partially written entry.
type Index interface {
	Upsert(ctx context.Context, entries []IndexEntry) error
	Search(ctx context.Context, query []float32, namespace string, opts ...SearchOption) ([]Scored, error)
}

// MemoryIndex is the in-process Index implementation: cosine similarity over
// normalized vectors, ties broken by chunk ID. Suitable for tests, small
// corpora, and as the reference for the contract above.
//
// Safe for concurrent readers and writers.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[memoryKey]IndexEntry
}

type memoryKey struct {
	chunkID      string
	modelVersion string
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[memoryKey]IndexEntry)}
}

// Upsert stores entries, overwriting any existing entry with the same chunk ID
// and model version. Vectors are normalized on the way in so search reduces to
// a dot product. Each entry becomes visible atomically.
func (m *MemoryIndex) Upsert(_ context.Context, entries []IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		e.Vector = normalize(e.Vector)
		m.entries[memoryKey{e.ChunkID.String(), e.ModelVersion}] = e
	}
	return nil
}

// Search returns up to topK entries from the namespace, descending by cosine
// similarity, excluding scores below the threshold. Equal scores order by
// chunk ID so results are reproducible.
func (m *MemoryIndex) Search(_ context.Context, query []float32, namespace string, opts ...SearchOption) ([]Scored, error) {
	cfg := buildSearchConfig(opts)
	q := normalize(query)

	m.mu.RLock()
	scored := make([]Scored, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Namespace != namespace {
			continue
		}
		if cfg.modelVersion != "" && e.ModelVersion != cfg.modelVersion {
			continue
		}
		s := dot(q, e.Vector)
		if s < cfg.threshold {
			continue
		}
		scored = append(scored, Scored{Entry: e, Score: s})
	}
	m.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.ChunkID.String() < scored[j].Entry.ChunkID.String()
	})

	if len(scored) > cfg.topK {
		scored = scored[:cfg.topK]
	}
	return scored, nil
}

// Len returns the number of stored entries across all namespaces.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// normalize returns a unit-length copy of v. Zero vectors are returned as a
// copy unchanged to avoid dividing by zero.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// dot computes the dot product over the shared prefix of a and b. For unit
// vectors this equals cosine similarity.
func dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := range n {
		sum += a[i] * b[i]
	}
	return sum
}
