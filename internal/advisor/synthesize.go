package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/erasmolabs/erasmo/internal/backoff"
	"github.com/erasmolabs/erasmo/internal/knowledge"
	"github.com/erasmolabs/erasmo/internal/log"
	"github.com/erasmolabs/erasmo/internal/session"
)

// Answer priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// StructuredAnswer is the two-tier advisory answer: a conceptual analysis
// grounded in cited evidence, plus a concrete action plan.
type StructuredAnswer struct {
	Conceptual string
	ActionPlan []string
	Priority   string
	Timeline   string
	Confidence float64
	Citations  []uuid.UUID
}

// SynthesisRequest carries everything the model needs for one answer.
type SynthesisRequest struct {
	Query    string
	History  []session.Turn
	Evidence []knowledge.Scored
}

// answerPayload is the JSON contract the model must produce.
type answerPayload struct {
	Conceptual string   `json:"conceptual"`
	ActionPlan []string `json:"action_plan"`
	Priority   string   `json:"priority"`
	Timeline   string   `json:"timeline"`
	Confidence float64  `json:"confidence"`
	Citations  []string `json:"citations"`
}

const systemPrompt = `You are a strategic advisor for business and leadership questions.
Ground every claim in the numbered context passages when they are provided, and cite
the chunk IDs you used. If no context passages are provided, say so explicitly in the
conceptual analysis, cite nothing, and keep confidence at 0.3 or below.

Reply with a single JSON object and nothing else, using exactly these fields:
  "conceptual": string, the analysis of the situation
  "action_plan": array of strings, concrete next steps in order
  "priority": "high" | "medium" | "low"
  "timeline": string, a realistic horizon such as "2-4 weeks"
  "confidence": number between 0 and 1
  "citations": array of chunk ID strings taken from the context passages`

// SynthesizerConfig configures a Synthesizer. Zero values take defaults.
type SynthesizerConfig struct {
	// Timeout bounds a single model call. Zero disables the bound.
	Timeout time.Duration
	// Retry controls transient-error retries around the model call.
	Retry backoff.Config
	// RateLimit and RateBurst shape proactive provider rate limiting.
	// Zero means 10 req/s sustained with a burst of 30.
	RateLimit rate.Limit
	RateBurst int
	// Circuit configures the breaker in front of the provider.
	Circuit CircuitConfig
}

// Synthesizer turns retrieved evidence and conversation history into a
// validated StructuredAnswer. One malformed model reply triggers a single
// repair round trip; a second failure is ErrSynthesis.
//
// Synthesizer is safe for concurrent use.
type Synthesizer struct {
	g       *genkit.Genkit
	model   ai.Model
	schema  *jsonschema.Resolved
	limiter *rate.Limiter
	breaker *CircuitBreaker
	retry   backoff.Config
	timeout time.Duration
	logger  log.Logger
}

// NewSynthesizer creates a Synthesizer for the given model.
func NewSynthesizer(g *genkit.Genkit, model ai.Model, cfg SynthesizerConfig, logger log.Logger) (*Synthesizer, error) {
	if g == nil || model == nil {
		return nil, fmt.Errorf("%w: synthesizer needs a genkit instance and a model", ErrValidation)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 30
	}

	resolved, err := answerSchema()
	if err != nil {
		return nil, fmt.Errorf("build answer schema: %w", err)
	}

	return &Synthesizer{
		g:       g,
		model:   model,
		schema:  resolved,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		breaker: NewCircuitBreaker(cfg.Circuit),
		retry:   cfg.Retry,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// answerSchema builds the JSON Schema the model output is validated against.
func answerSchema() (*jsonschema.Resolved, error) {
	schema, err := jsonschema.For[answerPayload](nil)
	if err != nil {
		return nil, err
	}
	if p, ok := schema.Properties["priority"]; ok {
		p.Enum = []any{PriorityHigh, PriorityMedium, PriorityLow}
	}
	if p, ok := schema.Properties["confidence"]; ok {
		p.Minimum = f64(0)
		p.Maximum = f64(1)
	}
	return schema.Resolve(nil)
}

func f64(v float64) *float64 { return &v }

// Generate produces a validated answer for the request.
func (s *Synthesizer) Generate(ctx context.Context, req SynthesisRequest) (*StructuredAnswer, error) {
	msgs := s.buildMessages(req)

	for attempt := range 2 {
		resp, err := s.callModel(ctx, msgs)
		if err != nil {
			return nil, err
		}

		answer, perr := s.parse(resp.Text(), req.Evidence)
		if perr == nil {
			return answer, nil
		}

		if attempt == 0 {
			s.logger.Warn("model output rejected, requesting repair", "error", perr)
			msgs = append(msgs,
				ai.NewModelMessage(ai.NewTextPart(resp.Text())),
				ai.NewUserMessage(ai.NewTextPart(
					"That reply was rejected: "+perr.Error()+
						". Respond again with only the corrected JSON object.")),
			)
			continue
		}
		return nil, fmt.Errorf("%w: after repair attempt: %v", ErrSynthesis, perr)
	}
	return nil, ErrSynthesis
}

// buildMessages maps the conversation and evidence into model messages.
// Evidence and query travel in the final user message so the model sees
// them adjacent.
func (s *Synthesizer) buildMessages(req SynthesisRequest) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(req.History)+1)
	for _, turn := range req.History {
		switch turn.Role {
		case session.RoleUser:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(turn.Text)))
		case session.RoleAssistant:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(turn.Text)))
		}
	}

	var b strings.Builder
	if len(req.Evidence) > 0 {
		b.WriteString("Context passages:\n")
		for i, ev := range req.Evidence {
			fmt.Fprintf(&b, "%d. [chunk %s] %s\n", i+1, ev.Entry.ChunkID, ev.Entry.Text)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No context passages are available for this question.\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(req.Query)

	return append(msgs, ai.NewUserMessage(ai.NewTextPart(b.String())))
}

// callModel runs one rate-limited, retried, breaker-guarded model call.
func (s *Synthesizer) callModel(ctx context.Context, msgs []*ai.Message) (*ai.ModelResponse, error) {
	if err := s.breaker.Allow(); err != nil {
		s.logger.Warn("rejecting model call", "circuit", s.breaker.State().String())
		return nil, err
	}

	var resp *ai.ModelResponse
	err := backoff.Do(ctx, s.retry, s.logger, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		return backoff.CallWithTimeout(ctx, s.timeout, func(ctx context.Context) error {
			r, err := genkit.Generate(ctx, s.g,
				ai.WithModel(s.model),
				ai.WithSystem(systemPrompt),
				ai.WithMessages(msgs...),
			)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
	})
	if err != nil {
		// A canceled or expired caller context is not a provider fault
		// and must not count against the breaker.
		if ctx.Err() == nil {
			s.breaker.Failure()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: model call: %v", knowledge.ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("%w: model call: %v", ErrSynthesis, err)
	}
	s.breaker.Success()
	return resp, nil
}

// parse validates raw model output against the schema and the evidence.
func (s *Synthesizer) parse(raw string, evidence []knowledge.Scored) (*StructuredAnswer, error) {
	text := stripCodeFences(raw)

	var instance map[string]any
	if err := json.Unmarshal([]byte(text), &instance); err != nil {
		return nil, fmt.Errorf("output is not a JSON object: %w", err)
	}
	if err := s.schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("output violates answer schema: %w", err)
	}

	var payload answerPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("decode answer payload: %w", err)
	}
	if strings.TrimSpace(payload.Conceptual) == "" {
		return nil, errors.New("conceptual analysis is empty")
	}

	retrieved := make(map[uuid.UUID]bool, len(evidence))
	for _, ev := range evidence {
		retrieved[ev.Entry.ChunkID] = true
	}

	citations := make([]uuid.UUID, 0, len(payload.Citations))
	for _, raw := range payload.Citations {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("citation %q is not a chunk ID", raw)
		}
		if !retrieved[id] {
			return nil, fmt.Errorf("citation %s does not match any retrieved chunk", id)
		}
		citations = append(citations, id)
	}
	if len(evidence) > 0 && len(citations) == 0 {
		return nil, errors.New("answer cites no retrieved evidence")
	}
	if len(evidence) == 0 && len(citations) > 0 {
		return nil, errors.New("answer cites evidence that was never retrieved")
	}

	return &StructuredAnswer{
		Conceptual: payload.Conceptual,
		ActionPlan: payload.ActionPlan,
		Priority:   payload.Priority,
		Timeline:   payload.Timeline,
		Confidence: payload.Confidence,
		Citations:  citations,
	}, nil
}

// stripCodeFences removes a surrounding markdown code fence if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
