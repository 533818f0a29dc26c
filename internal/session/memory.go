package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erasmolabs/erasmo/internal/log"
)

// DefaultMaxTurns caps how many turns each session retains in memory.
const DefaultMaxTurns = 200

// Memory keeps bounded per-session conversation history in process.
//
// Sessions are created lazily on first append. When a session exceeds its
// turn cap the oldest turns are evicted first, so History always returns
// the most recent window in chronological order.
//
// Memory is safe for concurrent use by multiple goroutines.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	maxTurns int
	store    Store
	logger   log.Logger
}

type sessionState struct {
	mu        sync.Mutex
	meta      Session
	turns     []Turn
	persisted bool
}

// MemoryOption configures a Memory.
type MemoryOption func(*Memory)

// WithStore enables write-through persistence. Every appended turn is
// forwarded to store; a store failure fails the append.
func WithStore(store Store) MemoryOption {
	return func(m *Memory) { m.store = store }
}

// WithMaxTurns overrides the per-session turn cap. Values below 1 keep
// the default.
func WithMaxTurns(n int) MemoryOption {
	return func(m *Memory) {
		if n >= 1 {
			m.maxTurns = n
		}
	}
}

// NewMemory creates an empty Memory.
func NewMemory(logger log.Logger, opts ...MemoryOption) *Memory {
	if logger == nil {
		logger = log.NewNop()
	}
	m := &Memory{
		sessions: make(map[string]*sessionState),
		maxTurns: DefaultMaxTurns,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Append records a turn in the session, creating the session if needed.
// The session title is derived from the first user turn.
func (m *Memory) Append(ctx context.Context, sessionID string, turn Turn) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	state := m.ensure(sessionID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if m.store != nil && !state.persisted {
		if err := m.store.CreateSession(ctx, state.meta); err != nil {
			return fmt.Errorf("create session %s: %w", sessionID, err)
		}
		state.persisted = true
	}

	if state.meta.Title == "" && turn.Role == RoleUser {
		state.meta.Title = deriveTitle(turn.Text)
	}

	if m.store != nil {
		if err := m.store.AppendTurn(ctx, sessionID, turn); err != nil {
			return fmt.Errorf("append turn to session %s: %w", sessionID, err)
		}
	}

	state.turns = append(state.turns, turn)
	if over := len(state.turns) - m.maxTurns; over > 0 {
		state.turns = append([]Turn(nil), state.turns[over:]...)
		m.logger.Debug("evicted oldest turns", "session_id", sessionID, "evicted", over)
	}
	state.meta.TurnCount = len(state.turns)

	return nil
}

// History returns a copy of the retained turns in chronological order.
// An unknown session yields an empty history.
func (m *Memory) History(sessionID string) []Turn {
	m.mu.RLock()
	state, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return []Turn{}
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	out := make([]Turn, len(state.turns))
	copy(out, state.turns)
	return out
}

// Info returns session metadata, or false if the session does not exist.
func (m *Memory) Info(sessionID string) (Session, bool) {
	m.mu.RLock()
	state, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.meta, true
}

// Resume hydrates a session from the store when it is not already held in
// memory, so a resumed conversation keeps its history across restarts.
// An ID the store has never seen is not an error; the session starts fresh
// on the first append. Without a store Resume is a no-op.
func (m *Memory) Resume(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if m.store == nil {
		return nil
	}
	if _, ok := m.Info(sessionID); ok {
		return nil
	}

	meta, err := m.store.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	turns, err := m.store.RecentTurns(ctx, sessionID, m.maxTurns)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}

	// Install only when still absent so a concurrent append is not lost.
	state := m.restoredState(sessionID, meta, turns)
	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.sessions[sessionID] = state
	}
	m.mu.Unlock()

	m.logger.Debug("session resumed", "session_id", sessionID, "turns", len(state.turns))
	return nil
}

// Restore seeds a session from previously persisted turns, replacing any
// in-memory state. Only the most recent maxTurns are kept.
func (m *Memory) Restore(sessionID string, meta Session, turns []Turn) {
	if sessionID == "" {
		return
	}
	state := m.restoredState(sessionID, meta, turns)

	m.mu.Lock()
	m.sessions[sessionID] = state
	m.mu.Unlock()
}

func (m *Memory) restoredState(sessionID string, meta Session, turns []Turn) *sessionState {
	if over := len(turns) - m.maxTurns; over > 0 {
		turns = turns[over:]
	}

	// Restored sessions already exist in the store.
	state := &sessionState{meta: meta, persisted: true}
	state.meta.ID = sessionID
	state.meta.TurnCount = len(turns)
	state.turns = append([]Turn(nil), turns...)
	return state
}

// ensure returns the session state, creating it if absent.
func (m *Memory) ensure(sessionID string) *sessionState {
	m.mu.RLock()
	state, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return state
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[sessionID]; ok {
		return state
	}
	state = &sessionState{
		meta: Session{ID: sessionID, CreatedAt: time.Now().UTC()},
	}
	m.sessions[sessionID] = state
	return state
}
