package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/erasmolabs/erasmo/internal/backoff"
	"github.com/erasmolabs/erasmo/internal/knowledge"
	"github.com/erasmolabs/erasmo/internal/log"
	"github.com/erasmolabs/erasmo/internal/testutil"
)

func fastRetry() backoff.Config {
	return backoff.Config{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func newTestSynthesizer(t *testing.T, mock *testutil.MockLLM, cfg SynthesizerConfig) *Synthesizer {
	t.Helper()
	g := genkit.Init(context.Background())
	model := mock.RegisterModel(g)
	if cfg.Retry == (backoff.Config{}) {
		cfg.Retry = fastRetry()
	}
	synth, err := NewSynthesizer(g, model, cfg, log.NewNop())
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}
	return synth
}

func evidenceFor(texts ...string) []knowledge.Scored {
	out := make([]knowledge.Scored, len(texts))
	for i, text := range texts {
		out[i] = knowledge.Scored{
			Entry: knowledge.IndexEntry{
				ChunkID:    uuid.New(),
				DocumentID: uuid.New(),
				Namespace:  "leadership",
				Text:       text,
			},
			Score: 0.9,
		}
	}
	return out
}

func TestGenerateValidAnswer(t *testing.T) {
	evidence := evidenceFor("Leadership requires clear communication and consistent follow-through.")
	mock := testutil.NewMockLLM(testutil.AnswerJSON(
		"Consistent communication is the foundation of leadership.",
		evidence[0].Entry.ChunkID.String(),
	))
	synth := newTestSynthesizer(t, mock, SynthesizerConfig{})

	answer, err := synth.Generate(context.Background(), SynthesisRequest{
		Query:    "How do I improve my leadership?",
		Evidence: evidence,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer.Conceptual == "" {
		t.Error("conceptual analysis is empty")
	}
	if len(answer.Citations) != 1 || answer.Citations[0] != evidence[0].Entry.ChunkID {
		t.Errorf("citations = %v, want the retrieved chunk", answer.Citations)
	}
	if answer.Priority != PriorityMedium {
		t.Errorf("priority = %q", answer.Priority)
	}
	if answer.Confidence <= 0 || answer.Confidence > 1 {
		t.Errorf("confidence = %v out of range", answer.Confidence)
	}
	if len(mock.Calls()) != 1 {
		t.Errorf("model calls = %d, want 1", len(mock.Calls()))
	}
}

func TestGenerateRepairsMalformedOutput(t *testing.T) {
	evidence := evidenceFor("Delegation scales a team.")
	mock := testutil.NewMockLLM("I think the answer is delegation, plain and simple.")
	// The repair prompt mentions the rejection; only then return valid JSON.
	mock.AddResponse("rejected", testutil.AnswerJSON(
		"Delegation scales a team.", evidence[0].Entry.ChunkID.String()))
	synth := newTestSynthesizer(t, mock, SynthesizerConfig{})

	answer, err := synth.Generate(context.Background(), SynthesisRequest{
		Query:    "Why should I delegate more of my work?",
		Evidence: evidence,
	})
	if err != nil {
		t.Fatalf("Generate after repair: %v", err)
	}
	if len(answer.Citations) != 1 {
		t.Errorf("citations = %v", answer.Citations)
	}
	if got := len(mock.Calls()); got != 2 {
		t.Errorf("model calls = %d, want 2 (initial + repair)", got)
	}
}

func TestGenerateFailsAfterRepair(t *testing.T) {
	mock := testutil.NewMockLLM("still not valid JSON")
	synth := newTestSynthesizer(t, mock, SynthesizerConfig{})

	_, err := synth.Generate(context.Background(), SynthesisRequest{
		Query:    "Why should I delegate more of my work?",
		Evidence: evidenceFor("Delegation scales a team."),
	})
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if got := len(mock.Calls()); got != 2 {
		t.Errorf("model calls = %d, want 2", got)
	}
}

func TestGenerateRejectsUnretrievedCitation(t *testing.T) {
	// Cites a chunk that was never retrieved, both times.
	mock := testutil.NewMockLLM(testutil.AnswerJSON("Looks grounded but is not.", uuid.NewString()))
	synth := newTestSynthesizer(t, mock, SynthesizerConfig{})

	_, err := synth.Generate(context.Background(), SynthesisRequest{
		Query:    "Why should I delegate more of my work?",
		Evidence: evidenceFor("Delegation scales a team."),
	})
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis for fabricated citation, got %v", err)
	}
}

func TestGenerateWithoutEvidence(t *testing.T) {
	mock := testutil.NewMockLLM(testutil.AnswerJSON(
		"No reference material is available on this topic, so this is general guidance."))
	synth := newTestSynthesizer(t, mock, SynthesizerConfig{})

	answer, err := synth.Generate(context.Background(), SynthesisRequest{
		Query: "How should I approach pricing negotiations with enterprise buyers?",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(answer.Citations) != 0 {
		t.Errorf("citations = %v, want none without evidence", answer.Citations)
	}
}

func TestGenerateCircuitBreakerTrips(t *testing.T) {
	mock := testutil.NewMockLLM("unused")
	synth := newTestSynthesizer(t, mock, SynthesizerConfig{
		// MaxRetries 1 means two provider attempts per call, but "provider down"
		// is not retryable so each call fails once.
		Circuit: CircuitConfig{FailureThreshold: 3, Cooldown: time.Hour},
	})
	for range 3 {
		mock.FailWith(errors.New("provider down"))
	}

	req := SynthesisRequest{
		Query:    "Why should I delegate more of my work?",
		Evidence: evidenceFor("Delegation scales a team."),
	}
	for i := range 3 {
		if _, err := synth.Generate(context.Background(), req); err == nil {
			t.Fatalf("call %d: expected provider error", i)
		}
	}

	_, err := synth.Generate(context.Background(), req)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after repeated failures, got %v", err)
	}
	if got := len(mock.Calls()); got != 0 {
		t.Errorf("open circuit still reached the model %d times", got)
	}
}

func TestGenerateCanceledCallerLeavesBreakerClosed(t *testing.T) {
	mock := testutil.NewMockLLM("unused")
	synth := newTestSynthesizer(t, mock, SynthesizerConfig{
		Circuit: CircuitConfig{FailureThreshold: 1, Cooldown: time.Hour},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := SynthesisRequest{
		Query:    "Why should I delegate more of my work?",
		Evidence: evidenceFor("Delegation scales a team."),
	}
	if _, err := synth.Generate(ctx, req); err == nil {
		t.Fatal("expected an error for a canceled caller")
	}
	if got := synth.breaker.State(); got != CircuitClosed {
		t.Errorf("breaker state after caller cancellation = %v, want %v", got, CircuitClosed)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripCodeFences(tc.in); got != tc.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
