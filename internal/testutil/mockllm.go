// Package testutil provides shared test doubles and infrastructure:
// a deterministic mock model and embedder registered through genkit, and
// a pgvector-enabled PostgreSQL container for integration tests.
package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic model responses for tests. It matches the
// last user message against registered patterns and returns the paired
// response. Thread-safe.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	errQueue []error
	calls    []MockCall
}

type mockRule struct {
	pattern  string
	response string
}

// MockCall records one call to the mock model.
type MockCall struct {
	UserMessage string
	Response    string
}

// NewMockLLM creates a mock model that returns fallback when no pattern
// matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. The response is returned
// when the last user message contains pattern (case-insensitive); first
// registered match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), response: response})
}

// FailWith queues errors returned by subsequent calls, one per call,
// before any pattern matching happens.
func (m *MockLLM) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errQueue = append(m.errQueue, errs...)
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// RegisterModel registers the mock as the genkit model "mock/test-model".
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}

	m.mu.Lock()
	if len(m.errQueue) > 0 {
		err := m.errQueue[0]
		m.errQueue = m.errQueue[1:]
		m.mu.Unlock()
		return nil, err
	}

	responseText := m.fallback
	lower := strings.ToLower(userText)
	for _, rule := range m.rules {
		if strings.Contains(lower, rule.pattern) {
			responseText = rule.response
			break
		}
	}
	m.calls = append(m.calls, MockCall{UserMessage: userText, Response: responseText})
	m.mu.Unlock()

	if cb != nil {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		})
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
	}, nil
}

// AnswerJSON builds a minimal well-formed structured answer payload for
// mock model responses.
func AnswerJSON(conceptual string, citations ...string) string {
	if citations == nil {
		citations = []string{}
	}
	payload := map[string]any{
		"conceptual":  conceptual,
		"action_plan": []string{"Write down the decision and revisit it in one week."},
		"priority":    "medium",
		"timeline":    "2-4 weeks",
		"confidence":  0.8,
		"citations":   citations,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return string(raw)
}
