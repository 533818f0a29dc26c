package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erasmolabs/erasmo/internal/knowledge"
	"github.com/erasmolabs/erasmo/internal/log"
	"github.com/erasmolabs/erasmo/internal/session"
)

// Pipeline defaults.
const (
	DefaultTopK               = 5
	DefaultScoreThreshold     = 0.7
	DefaultChunkMaxTokens     = 180
	DefaultChunkOverlapTokens = 36
)

// Embedder is the embedding surface the pipeline needs.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	ModelVersion() string
}

// Synth produces structured answers. Satisfied by *Synthesizer.
type Synth interface {
	Generate(ctx context.Context, req SynthesisRequest) (*StructuredAnswer, error)
}

// DocumentStore optionally persists ingested document metadata.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc knowledge.Document) error
}

// Clarification asks the user to narrow an ambiguous question.
type Clarification struct {
	Reason    ReasonCode
	Questions []string
}

// Reply is the tagged result of Answer: exactly one of Answer or
// Clarification is set.
type Reply struct {
	SessionID     string
	Answer        *StructuredAnswer
	Clarification *Clarification
}

// Config tunes the pipeline. Zero values take defaults.
type Config struct {
	// Namespace is the knowledge partition queried and written.
	Namespace string
	// TopK and ScoreThreshold shape retrieval.
	TopK           int
	ScoreThreshold float32
	// ChunkMaxTokens and ChunkOverlapTokens shape ingestion chunking.
	ChunkMaxTokens     int
	ChunkOverlapTokens int
}

func (c *Config) withDefaults() {
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = DefaultScoreThreshold
	}
	if c.ChunkMaxTokens <= 0 {
		c.ChunkMaxTokens = DefaultChunkMaxTokens
	}
	if c.ChunkOverlapTokens <= 0 {
		c.ChunkOverlapTokens = DefaultChunkOverlapTokens
	}
}

// Advisor runs the full question answering pipeline over one knowledge
// namespace. Safe for concurrent use.
type Advisor struct {
	embedder   Embedder
	index      knowledge.Index
	memory     *session.Memory
	classifier Classifier
	synth      Synth
	docs       DocumentStore
	cfg        Config
	logger     log.Logger
	tracer     trace.Tracer
}

// New creates an Advisor. docs may be nil when document metadata need not
// be persisted.
func New(embedder Embedder, index knowledge.Index, memory *session.Memory, synth Synth, docs DocumentStore, cfg Config, logger log.Logger) (*Advisor, error) {
	if embedder == nil || index == nil || memory == nil || synth == nil {
		return nil, fmt.Errorf("%w: advisor needs an embedder, an index, a memory and a synthesizer", ErrValidation)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	cfg.withDefaults()

	return &Advisor{
		embedder: embedder,
		index:    index,
		memory:   memory,
		synth:    synth,
		docs:     docs,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("erasmo/advisor"),
	}, nil
}

// Answer runs one message through classification, retrieval and synthesis.
// An empty sessionID starts a new session; a previously persisted one is
// resumed with its stored history. Failures are *ErrorResponse.
func (a *Advisor) Answer(ctx context.Context, sessionID, message string) (*Reply, error) {
	ctx, span := a.tracer.Start(ctx, "advisor.Answer")
	defer span.End()

	reply, err := a.answer(ctx, sessionID, message)
	if err != nil {
		resp := newErrorResponse(err)
		span.RecordError(resp)
		span.SetStatus(codes.Error, string(resp.Kind))
		a.logger.Error("answer failed", "session_id", sessionID, "kind", resp.Kind, "error", err)
		return nil, resp
	}
	return reply, nil
}

func (a *Advisor) answer(ctx context.Context, sessionID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if err := a.memory.Resume(ctx, sessionID); err != nil {
		return nil, err
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("knowledge.namespace", a.cfg.Namespace),
	)

	history := a.memory.History(sessionID)
	if err := a.memory.Append(ctx, sessionID, session.NewTurn(session.RoleUser, message, nil)); err != nil {
		return nil, err
	}

	if verdict := a.classifier.Classify(message, history); verdict.State == StateAmbiguous {
		return a.clarify(ctx, sessionID, verdict)
	}

	vectors, err := a.embedder.EmbedTexts(ctx, []string{message})
	if err != nil {
		return nil, err
	}

	results, err := a.index.Search(ctx, vectors[0], a.cfg.Namespace,
		knowledge.WithTopK(a.cfg.TopK),
		knowledge.WithThreshold(a.cfg.ScoreThreshold),
		knowledge.WithModelVersion(a.embedder.ModelVersion()),
	)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.hits", len(results)))

	if len(results) == 0 {
		a.logger.Info("no evidence above threshold", "session_id", sessionID)
		return a.clarify(ctx, sessionID, a.classifier.InsufficientContext())
	}

	answer, err := a.synth.Generate(ctx, SynthesisRequest{
		Query:    message,
		History:  history,
		Evidence: results,
	})
	if err != nil {
		return nil, err
	}

	turn := session.NewTurn(session.RoleAssistant, renderAnswer(answer), answer.Citations)
	if err := a.memory.Append(ctx, sessionID, turn); err != nil {
		return nil, err
	}

	a.logger.Info("answered",
		"session_id", sessionID,
		"hits", len(results),
		"confidence", answer.Confidence,
		"priority", answer.Priority,
	)
	return &Reply{SessionID: sessionID, Answer: answer}, nil
}

// clarify records the clarification as an assistant turn and returns it.
func (a *Advisor) clarify(ctx context.Context, sessionID string, verdict Verdict) (*Reply, error) {
	clar := &Clarification{Reason: verdict.Reason, Questions: verdict.Questions}

	turn := session.NewTurn(session.RoleAssistant, renderClarification(clar), nil)
	if err := a.memory.Append(ctx, sessionID, turn); err != nil {
		return nil, err
	}

	a.logger.Info("asked for clarification", "session_id", sessionID, "reason", verdict.Reason)
	return &Reply{SessionID: sessionID, Clarification: clar}, nil
}

// Ingest cleans, chunks, embeds and indexes one source document. No index
// entries become visible unless every chunk embedded successfully. An
// empty namespace uses the configured one. Failures are *ErrorResponse.
func (a *Advisor) Ingest(ctx context.Context, namespace, sourceName, rawText string) (*knowledge.Document, error) {
	ctx, span := a.tracer.Start(ctx, "advisor.Ingest")
	defer span.End()

	doc, err := a.ingest(ctx, namespace, sourceName, rawText)
	if err != nil {
		resp := newErrorResponse(err)
		span.RecordError(resp)
		span.SetStatus(codes.Error, string(resp.Kind))
		a.logger.Error("ingest failed", "source", sourceName, "kind", resp.Kind, "error", err)
		return nil, resp
	}
	return doc, nil
}

func (a *Advisor) ingest(ctx context.Context, namespace, sourceName, rawText string) (*knowledge.Document, error) {
	if namespace == "" {
		namespace = a.cfg.Namespace
	}
	clean := knowledge.CleanText(rawText)
	if clean == "" {
		return nil, fmt.Errorf("%w: source text is empty", ErrValidation)
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("knowledge.namespace", namespace),
		attribute.String("document.source", sourceName),
	)

	chunks, err := knowledge.Split(clean, a.cfg.ChunkMaxTokens, a.cfg.ChunkOverlapTokens)
	if err != nil {
		return nil, err
	}

	doc := knowledge.NewDocument(sourceName, clean, namespace)
	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].ID = uuid.New()
		chunks[i].DocumentID = doc.ID
		texts[i] = chunks[i].Text
	}

	// All chunks embed before anything is written, so a provider failure
	// leaves no partial document in the index.
	vectors, err := a.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}

	entries := make([]knowledge.IndexEntry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = knowledge.IndexEntry{
			ChunkID:       chunk.ID,
			DocumentID:    doc.ID,
			Namespace:     namespace,
			Text:          chunk.Text,
			SequenceIndex: chunk.SequenceIndex,
			SourceName:    sourceName,
			ModelVersion:  a.embedder.ModelVersion(),
			Vector:        vectors[i],
		}
	}
	if err := a.index.Upsert(ctx, entries); err != nil {
		return nil, err
	}

	if a.docs != nil {
		if err := a.docs.SaveDocument(ctx, doc); err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("document.chunks", len(chunks)))
	a.logger.Info("ingested document",
		"document_id", doc.ID,
		"source", sourceName,
		"namespace", namespace,
		"chunks", len(chunks),
	)
	return &doc, nil
}

// renderAnswer formats a structured answer as the conversational text
// recorded in session history.
func renderAnswer(ans *StructuredAnswer) string {
	var b strings.Builder
	b.WriteString("## Conceptual Analysis\n")
	b.WriteString(ans.Conceptual)
	b.WriteString("\n\n## Action Plan\n")
	for _, step := range ans.ActionPlan {
		b.WriteString("- ")
		b.WriteString(step)
		b.WriteString("\n")
	}
	if ans.Priority != "" {
		fmt.Fprintf(&b, "\nPriority: %s", ans.Priority)
	}
	if ans.Timeline != "" {
		fmt.Fprintf(&b, " | Timeline: %s", ans.Timeline)
	}
	return strings.TrimSpace(b.String())
}

func renderClarification(clar *Clarification) string {
	var b strings.Builder
	b.WriteString("I need a bit more detail to give a useful answer.\n")
	for _, q := range clar.Questions {
		b.WriteString("- ")
		b.WriteString(q)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
