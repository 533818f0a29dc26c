package advisor

import (
	"errors"
	"fmt"

	"github.com/erasmolabs/erasmo/internal/knowledge"
	"github.com/erasmolabs/erasmo/internal/session"
)

// Sentinel errors for pipeline stages. Callers check these with errors.Is().
var (
	// ErrValidation indicates the request itself was malformed, for
	// example an empty message or empty source text.
	ErrValidation = errors.New("invalid request")

	// ErrSynthesis indicates the model produced output that failed
	// structural validation even after one repair attempt.
	ErrSynthesis = errors.New("synthesis failed")
)

// Kind is a stable machine-readable failure category.
type Kind string

// Failure kinds, one per pipeline stage that can fail.
const (
	KindValidation        Kind = "validation_error"
	KindEmbeddingProvider Kind = "embedding_provider_error"
	KindUpstreamTimeout   Kind = "upstream_timeout_error"
	KindIndexUnavailable  Kind = "index_unavailable_error"
	KindSessionStore      Kind = "session_store_error"
	KindSynthesis         Kind = "synthesis_error"
	KindInternal          Kind = "internal_error"
)

// ErrorResponse is the failure shape callers receive from the pipeline.
// Message is safe to show to an end user; the wrapped cause is for logs.
type ErrorResponse struct {
	Kind    Kind
	Message string
	err     error
}

func (e *ErrorResponse) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is and errors.As.
func (e *ErrorResponse) Unwrap() error { return e.err }

// newErrorResponse classifies err into a Kind by its sentinel and wraps it.
// An error that is already an *ErrorResponse passes through unchanged.
func newErrorResponse(err error) *ErrorResponse {
	var resp *ErrorResponse
	if errors.As(err, &resp) {
		return resp
	}

	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, knowledge.ErrInvalidChunking):
		return &ErrorResponse{Kind: KindValidation, Message: "the request is invalid", err: err}
	case errors.Is(err, knowledge.ErrUpstreamTimeout):
		return &ErrorResponse{Kind: KindUpstreamTimeout, Message: "an upstream provider timed out, try again", err: err}
	case errors.Is(err, knowledge.ErrEmbeddingProvider):
		return &ErrorResponse{Kind: KindEmbeddingProvider, Message: "the embedding provider rejected the request", err: err}
	case errors.Is(err, knowledge.ErrIndexUnavailable):
		return &ErrorResponse{Kind: KindIndexUnavailable, Message: "the knowledge index is unavailable", err: err}
	case errors.Is(err, session.ErrStoreUnavailable):
		return &ErrorResponse{Kind: KindSessionStore, Message: "conversation storage is unavailable", err: err}
	case errors.Is(err, ErrSynthesis), errors.Is(err, ErrCircuitOpen):
		return &ErrorResponse{Kind: KindSynthesis, Message: "could not produce a well-formed answer", err: err}
	default:
		return &ErrorResponse{Kind: KindInternal, Message: "internal error", err: err}
	}
}
