package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// DefaultMockDimension is the vector size MockEmbedder produces.
const DefaultMockDimension = 64

// MockEmbedder produces deterministic embeddings for tests. By default a
// text maps to a normalized bag-of-words vector, so texts sharing words
// have positive cosine similarity and unrelated texts score near zero.
// Explicit vectors and errors can be injected. Thread-safe.
type MockEmbedder struct {
	mu      sync.Mutex
	dim     int
	vectors map[string][]float32
	err     error
}

// NewMockEmbedder creates a mock embedder. dim < 1 uses
// DefaultMockDimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim < 1 {
		dim = DefaultMockDimension
	}
	return &MockEmbedder{dim: dim, vectors: make(map[string][]float32)}
}

// SetVector pins an exact vector for one input text, overriding the
// bag-of-words default. Use it to control similarity precisely.
func (e *MockEmbedder) SetVector(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

// SetError makes every subsequent embed call fail with err. Pass nil to
// restore normal behavior.
func (e *MockEmbedder) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// RegisterEmbedder registers the mock as the genkit embedder
// "mock/test-embedder".
func (e *MockEmbedder) RegisterEmbedder(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/test-embedder", &ai.EmbedderOptions{
		Label:      "Mock Test Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		text := documentText(doc)
		vec, ok := e.vectors[text]
		if !ok {
			vec = bagOfWordsVector(text, e.dim)
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// bagOfWordsVector hashes each lowercase word into one dimension and
// normalizes the result. The same text always yields the same vector.
func bagOfWordsVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(dim)]++
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = float32(math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
