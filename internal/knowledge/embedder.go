package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/erasmolabs/erasmo/internal/backoff"
)

// DefaultEmbedBatchSize is the number of texts sent per provider call when the
// configuration does not say otherwise. Batching amortizes network cost; it is
// a throughput knob, not a correctness constraint.
const DefaultEmbedBatchSize = 20

// EmbedderConfig configures an Embedder.
type EmbedderConfig struct {
	// ModelVersion identifies the embedding model. Vectors from different
	// model versions are never compared against each other.
	ModelVersion string

	// Dimension is the expected vector dimensionality. When > 0 the provider
	// is asked to truncate its output to this size and every returned vector
	// is checked against it.
	Dimension int

	// BatchSize is the number of texts per provider call.
	// Zero means DefaultEmbedBatchSize.
	BatchSize int

	// Timeout bounds each provider call. Zero means no per-call deadline
	// beyond the caller's context.
	Timeout time.Duration

	// Retry controls backoff for transient provider failures.
	Retry backoff.Config
}

// Embedder converts texts into fixed-dimension vectors through an external
// embedding provider. It batches inputs, retries transient failures with
// bounded backoff, and maps failures onto the knowledge error taxonomy.
//
// Embedder is safe for concurrent use.
type Embedder struct {
	provider ai.Embedder
	cfg      EmbedderConfig
	logger   *slog.Logger
}

// NewEmbedder creates an Embedder over a genkit embedding provider.
func NewEmbedder(provider ai.Embedder, cfg EmbedderConfig, logger *slog.Logger) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{provider: provider, cfg: cfg, logger: logger}
}

// ModelVersion returns the configured embedding model identifier.
func (e *Embedder) ModelVersion() string { return e.cfg.ModelVersion }

// EmbedTexts returns one vector per input text, in input order. An empty input
// yields an empty result without touching the provider.
//
// Errors: ErrUpstreamTimeout when a call exceeds its deadline,
// ErrDimensionMismatch when the provider returns vectors of the wrong size,
// ErrEmbeddingProvider for any other upstream failure.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	e.logger.Debug("embedded texts",
		"count", len(texts),
		"model_version", e.cfg.ModelVersion,
	)
	return vectors, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := &ai.EmbedRequest{
		Input: make([]*ai.Document, len(texts)),
	}
	for i, text := range texts {
		req.Input[i] = ai.DocumentFromText(text, nil)
	}
	if e.cfg.Dimension > 0 {
		dim := int32(e.cfg.Dimension) // #nosec G115 -- validated by config
		req.Options = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	var resp *ai.EmbedResponse
	err := backoff.Do(ctx, e.cfg.Retry, e.logger, func(ctx context.Context) error {
		return backoff.CallWithTimeout(ctx, e.cfg.Timeout, func(ctx context.Context) error {
			var callErr error
			resp, callErr = e.provider.Embed(ctx, req)
			return callErr
		})
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding %d texts: %v", ErrUpstreamTimeout, len(texts), err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmbeddingProvider, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrEmbeddingProvider, i)
		}
		if e.cfg.Dimension > 0 && len(emb.Embedding) != e.cfg.Dimension {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d",
				ErrDimensionMismatch, len(emb.Embedding), e.cfg.Dimension)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}
