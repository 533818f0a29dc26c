package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/erasmolabs/erasmo/internal/advisor"
	"github.com/erasmolabs/erasmo/internal/log"
)

// writeJSON writes a JSON response with the given status code. Encoding
// failures after WriteHeader cannot reach the client and are only logged.
func writeJSON(logger log.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError maps a pipeline error to an HTTP status and a safe JSON body.
// Unclassified errors become opaque 500s.
func writeError(logger log.Logger, w http.ResponseWriter, err error) {
	var resp *advisor.ErrorResponse
	if !errors.As(err, &resp) {
		logger.Error("unclassified error", "error", err)
		writeJSON(logger, w, http.StatusInternalServerError,
			errorBody{Error: string(advisor.KindInternal), Message: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch resp.Kind {
	case advisor.KindValidation:
		status = http.StatusBadRequest
	case advisor.KindUpstreamTimeout:
		status = http.StatusGatewayTimeout
	case advisor.KindEmbeddingProvider, advisor.KindSynthesis:
		status = http.StatusBadGateway
	case advisor.KindIndexUnavailable, advisor.KindSessionStore:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "kind", resp.Kind, "error", err)
	}
	writeJSON(logger, w, status, errorBody{Error: string(resp.Kind), Message: resp.Message})
}
