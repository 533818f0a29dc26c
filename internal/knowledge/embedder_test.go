package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/erasmolabs/erasmo/internal/backoff"
	"github.com/erasmolabs/erasmo/internal/log"
)

// mockProvider implements ai.Embedder for testing.
type mockProvider struct {
	dim        int           // dimension of returned vectors
	embedErr   error         // error returned by every call
	failUntil  int           // fail the first N calls with embedErr
	delay      time.Duration // simulated latency per call
	slowUntil  int           // apply delay to the first N calls only
	callCount  int
	batchSizes []int // input sizes observed per call
}

func (m *mockProvider) Name() string            { return "mock-provider" }
func (m *mockProvider) Register(_ api.Registry) {}

func (m *mockProvider) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	m.batchSizes = append(m.batchSizes, len(req.Input))

	if m.delay > 0 && (m.slowUntil == 0 || m.callCount <= m.slowUntil) {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.embedErr != nil && (m.failUntil == 0 || m.callCount <= m.failUntil) {
		return nil, m.embedErr
	}

	resp := &ai.EmbedResponse{}
	for i := range req.Input {
		vec := make([]float32, m.dim)
		vec[0] = float32(i + 1) // distinct per position so order is observable
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: vec})
	}
	return resp, nil
}

func fastRetry() backoff.Config {
	return backoff.Config{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestEmbedTextsOrderPreserving(t *testing.T) {
	provider := &mockProvider{dim: 4}
	e := NewEmbedder(provider, EmbedderConfig{ModelVersion: "test-embed-1", Dimension: 4, Retry: fastRetry()}, log.NewNop())

	vectors, err := e.EmbedTexts(context.Background(), []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != 4 {
			t.Errorf("vector %d has dimension %d, want 4", i, len(v))
		}
		if v[0] != float32(i+1) {
			t.Errorf("vector %d out of order: marker = %v", i, v[0])
		}
	}
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	provider := &mockProvider{dim: 4}
	e := NewEmbedder(provider, EmbedderConfig{ModelVersion: "test-embed-1"}, log.NewNop())

	vectors, err := e.EmbedTexts(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected no vectors, got %d", len(vectors))
	}
	if provider.callCount != 0 {
		t.Errorf("provider must not be called for empty input, got %d calls", provider.callCount)
	}
}

func TestEmbedTextsBatches(t *testing.T) {
	provider := &mockProvider{dim: 2}
	e := NewEmbedder(provider, EmbedderConfig{ModelVersion: "test-embed-1", BatchSize: 2, Retry: fastRetry()}, log.NewNop())

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := e.EmbedTexts(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	want := []int{2, 2, 1}
	if len(provider.batchSizes) != len(want) {
		t.Fatalf("expected %d provider calls, got %v", len(want), provider.batchSizes)
	}
	for i, n := range want {
		if provider.batchSizes[i] != n {
			t.Errorf("batch %d size = %d, want %d", i, provider.batchSizes[i], n)
		}
	}
}

func TestEmbedTextsProviderError(t *testing.T) {
	provider := &mockProvider{dim: 2, embedErr: errors.New("invalid api key")}
	e := NewEmbedder(provider, EmbedderConfig{ModelVersion: "test-embed-1", Retry: fastRetry()}, log.NewNop())

	_, err := e.EmbedTexts(context.Background(), []string{"a"})
	if !errors.Is(err, ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider, got %v", err)
	}
	if provider.callCount != 1 {
		t.Errorf("non-retryable error must not be retried, got %d calls", provider.callCount)
	}
}

func TestEmbedTextsRetriesTransient(t *testing.T) {
	provider := &mockProvider{dim: 2, embedErr: errors.New("503 unavailable"), failUntil: 2}
	e := NewEmbedder(provider, EmbedderConfig{ModelVersion: "test-embed-1", Retry: fastRetry()}, log.NewNop())

	vectors, err := e.EmbedTexts(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if provider.callCount != 3 {
		t.Errorf("expected 3 calls (2 failures + success), got %d", provider.callCount)
	}
}

func TestEmbedTextsTimeout(t *testing.T) {
	provider := &mockProvider{dim: 2, delay: 50 * time.Millisecond}
	e := NewEmbedder(provider, EmbedderConfig{
		ModelVersion: "test-embed-1",
		Timeout:      5 * time.Millisecond,
		Retry:        fastRetry(),
	}, log.NewNop())

	_, err := e.EmbedTexts(context.Background(), []string{"a"})
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
	if provider.callCount != 3 { // per-call timeouts are retried before giving up
		t.Errorf("expected 3 calls, got %d", provider.callCount)
	}
}

func TestEmbedTextsRetriesTimeout(t *testing.T) {
	provider := &mockProvider{dim: 2, delay: 50 * time.Millisecond, slowUntil: 1}
	e := NewEmbedder(provider, EmbedderConfig{
		ModelVersion: "test-embed-1",
		Timeout:      5 * time.Millisecond,
		Retry:        fastRetry(),
	}, log.NewNop())

	vectors, err := e.EmbedTexts(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("expected success after one slow attempt, got %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if provider.callCount != 2 {
		t.Errorf("expected 2 calls (timeout then success), got %d", provider.callCount)
	}
}

func TestEmbedTextsDimensionMismatch(t *testing.T) {
	provider := &mockProvider{dim: 3}
	e := NewEmbedder(provider, EmbedderConfig{ModelVersion: "test-embed-1", Dimension: 8, Retry: fastRetry()}, log.NewNop())

	_, err := e.EmbedTexts(context.Background(), []string{"a"})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}
