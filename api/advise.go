package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/erasmolabs/erasmo/internal/advisor"
	"github.com/erasmolabs/erasmo/internal/knowledge"
	"github.com/erasmolabs/erasmo/internal/log"
)

// Request size limits.
const (
	MaxAdviseBody = 64 << 10 // 64 KiB of question is plenty
	MaxIngestBody = 4 << 20
)

// AdvisorService is the advisor surface the HTTP layer consumes.
// Satisfied by *advisor.Advisor.
type AdvisorService interface {
	Answer(ctx context.Context, sessionID, message string) (*advisor.Reply, error)
	Ingest(ctx context.Context, namespace, sourceName, rawText string) (*knowledge.Document, error)
}

// AdviseHandler handles the advise and ingest endpoints.
type AdviseHandler struct {
	advisor AdvisorService
	logger  log.Logger
}

// NewAdviseHandler creates the handler.
func NewAdviseHandler(advisor AdvisorService, logger log.Logger) *AdviseHandler {
	return &AdviseHandler{advisor: advisor, logger: logger}
}

// RegisterRoutes registers the advise routes on the given mux.
func (h *AdviseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/advise", h.advise)
	mux.HandleFunc("POST /api/ingest", h.ingest)
}

type adviseRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type clarificationBody struct {
	Reason    string   `json:"reason"`
	Questions []string `json:"questions"`
}

type answerBody struct {
	Conceptual string   `json:"conceptual"`
	ActionPlan []string `json:"action_plan"`
	Priority   string   `json:"priority,omitempty"`
	Timeline   string   `json:"timeline,omitempty"`
	Confidence float64  `json:"confidence"`
	Citations  []string `json:"citations"`
}

type adviseResponse struct {
	SessionID     string             `json:"session_id"`
	Answer        *answerBody        `json:"answer,omitempty"`
	Clarification *clarificationBody `json:"clarification,omitempty"`
}

func (h *AdviseHandler) advise(w http.ResponseWriter, r *http.Request) {
	var req adviseRequest
	body := http.MaxBytesReader(w, r.Body, MaxAdviseBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(h.logger, w, http.StatusBadRequest,
			errorBody{Error: string(advisor.KindValidation), Message: "malformed JSON body"})
		return
	}

	reply, err := h.advisor.Answer(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	resp := adviseResponse{SessionID: reply.SessionID}
	if reply.Answer != nil {
		citations := make([]string, len(reply.Answer.Citations))
		for i, id := range reply.Answer.Citations {
			citations[i] = id.String()
		}
		resp.Answer = &answerBody{
			Conceptual: reply.Answer.Conceptual,
			ActionPlan: reply.Answer.ActionPlan,
			Priority:   reply.Answer.Priority,
			Timeline:   reply.Answer.Timeline,
			Confidence: reply.Answer.Confidence,
			Citations:  citations,
		}
	}
	if reply.Clarification != nil {
		resp.Clarification = &clarificationBody{
			Reason:    string(reply.Clarification.Reason),
			Questions: reply.Clarification.Questions,
		}
	}
	writeJSON(h.logger, w, http.StatusOK, resp)
}

type ingestRequest struct {
	Namespace  string `json:"namespace,omitempty"`
	SourceName string `json:"source_name"`
	Text       string `json:"text"`
}

type ingestResponse struct {
	DocumentID string `json:"document_id"`
	SourceName string `json:"source_name"`
	Namespace  string `json:"namespace"`
}

func (h *AdviseHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	body := http.MaxBytesReader(w, r.Body, MaxIngestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(h.logger, w, http.StatusBadRequest,
			errorBody{Error: string(advisor.KindValidation), Message: "malformed JSON body"})
		return
	}

	doc, err := h.advisor.Ingest(r.Context(), req.Namespace, req.SourceName, req.Text)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusCreated, ingestResponse{
		DocumentID: doc.ID.String(),
		SourceName: doc.SourceName,
		Namespace:  doc.Namespace,
	})
}
