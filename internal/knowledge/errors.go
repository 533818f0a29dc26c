package knowledge

import "errors"

// Sentinel errors for the knowledge layer. These are part of the public API
// and should be checked with errors.Is().
var (
	// ErrEmbeddingProvider indicates the embedding provider failed for a
	// non-transient reason (or exhausted its retry budget).
	ErrEmbeddingProvider = errors.New("embedding provider failure")

	// ErrUpstreamTimeout indicates an external call exceeded its deadline.
	// Retryable by the caller, unlike ErrEmbeddingProvider.
	ErrUpstreamTimeout = errors.New("upstream call timed out")

	// ErrIndexUnavailable indicates the vector index backend cannot be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrInvalidChunking indicates chunking parameters violate
	// 0 <= overlapTokens < maxTokens.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrDimensionMismatch indicates the provider returned a vector whose
	// dimensionality differs from the configured model version.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
