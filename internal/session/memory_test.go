package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/erasmolabs/erasmo/internal/log"
)

// mockStore is a configurable in-memory Store for tests.
type mockStore struct {
	mu        sync.Mutex
	createErr error
	appendErr error
	sessions  map[string]Session
	turns     map[string][]Turn
	createCnt int
	appendCnt int
}

func newMockStore() *mockStore {
	return &mockStore{
		sessions: make(map[string]Session),
		turns:    make(map[string][]Turn),
	}
}

func (s *mockStore) CreateSession(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCnt++
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.sessions[sess.ID]; !ok {
		s.sessions[sess.ID] = sess
	}
	return nil
}

func (s *mockStore) AppendTurn(_ context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCnt++
	if s.appendErr != nil {
		return s.appendErr
	}
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

func (s *mockStore) RecentTurns(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *mockStore) GetSession(_ context.Context, sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	sess.TurnCount = len(s.turns[sessionID])
	return sess, nil
}

func TestMemoryAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(log.NewNop())

	if err := m.Append(ctx, "s1", NewTurn(RoleUser, "How do I delegate?", nil)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.Append(ctx, "s1", NewTurn(RoleAssistant, "Start with low-risk tasks.", nil)); err != nil {
		t.Fatalf("append: %v", err)
	}

	history := m.History("s1")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != RoleUser || history[1].Role != RoleAssistant {
		t.Errorf("history out of order: %v, %v", history[0].Role, history[1].Role)
	}
}

func TestMemoryUnknownSession(t *testing.T) {
	m := NewMemory(log.NewNop())

	if got := m.History("missing"); len(got) != 0 {
		t.Errorf("unknown session history = %d turns, want 0", len(got))
	}
	if _, ok := m.Info("missing"); ok {
		t.Error("Info reported an unknown session as existing")
	}
}

func TestMemoryEmptySessionID(t *testing.T) {
	m := NewMemory(log.NewNop())

	err := m.Append(context.Background(), "", NewTurn(RoleUser, "hi", nil))
	if !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
}

func TestMemoryFIFOEviction(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(log.NewNop(), WithMaxTurns(5))

	for i := range 12 {
		turn := NewTurn(RoleUser, fmt.Sprintf("message %d", i), nil)
		if err := m.Append(ctx, "s1", turn); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	history := m.History("s1")
	if len(history) != 5 {
		t.Fatalf("history length = %d, want 5", len(history))
	}
	// Oldest evicted first: the window is messages 7..11.
	for i, turn := range history {
		want := fmt.Sprintf("message %d", 7+i)
		if turn.Text != want {
			t.Errorf("history[%d].Text = %q, want %q", i, turn.Text, want)
		}
	}
}

func TestMemoryTitleFromFirstUserTurn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(log.NewNop())

	long := strings.Repeat("delegation ", 20)
	if err := m.Append(ctx, "s1", NewTurn(RoleUser, long, nil)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.Append(ctx, "s1", NewTurn(RoleUser, "something else entirely", nil)); err != nil {
		t.Fatalf("append: %v", err)
	}

	info, ok := m.Info("s1")
	if !ok {
		t.Fatal("session missing")
	}
	if got := len([]rune(info.Title)); got > MaxTitleLength {
		t.Errorf("title length = %d, exceeds %d", got, MaxTitleLength)
	}
	if !strings.HasPrefix(long, info.Title) {
		t.Errorf("title %q is not a prefix of the first user turn", info.Title)
	}
}

func TestMemoryHistoryReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(log.NewNop())

	if err := m.Append(ctx, "s1", NewTurn(RoleUser, "original", nil)); err != nil {
		t.Fatalf("append: %v", err)
	}

	history := m.History("s1")
	history[0].Text = "mutated"

	if got := m.History("s1")[0].Text; got != "original" {
		t.Errorf("internal state mutated through returned slice: %q", got)
	}
}

func TestMemoryWriteThrough(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	m := NewMemory(log.NewNop(), WithStore(store))

	if err := m.Append(ctx, "s1", NewTurn(RoleUser, "hello", nil)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.Append(ctx, "s1", NewTurn(RoleAssistant, "hi", nil)); err != nil {
		t.Fatalf("append: %v", err)
	}

	if store.createCnt != 1 {
		t.Errorf("CreateSession calls = %d, want 1", store.createCnt)
	}
	persisted, _ := store.RecentTurns(ctx, "s1", 0)
	if len(persisted) != 2 {
		t.Errorf("persisted turns = %d, want 2", len(persisted))
	}
}

func TestMemoryStoreFailureFailsAppend(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	store.appendErr = errors.New("connection refused")
	m := NewMemory(log.NewNop(), WithStore(store))

	err := m.Append(ctx, "s1", NewTurn(RoleUser, "hello", nil))
	if err == nil {
		t.Fatal("expected append to fail when store fails")
	}
	// The failed turn must not linger in memory either.
	if got := m.History("s1"); len(got) != 0 {
		t.Errorf("failed append left %d turns in memory", len(got))
	}
}

func TestMemoryRestore(t *testing.T) {
	m := NewMemory(log.NewNop(), WithMaxTurns(3))

	turns := []Turn{
		NewTurn(RoleUser, "one", nil),
		NewTurn(RoleAssistant, "two", nil),
		NewTurn(RoleUser, "three", nil),
		NewTurn(RoleAssistant, "four", nil),
	}
	m.Restore("s1", Session{Title: "restored"}, turns)

	history := m.History("s1")
	if len(history) != 3 {
		t.Fatalf("restored history length = %d, want 3", len(history))
	}
	if history[0].Text != "two" {
		t.Errorf("restore kept wrong window: first turn %q", history[0].Text)
	}
	info, _ := m.Info("s1")
	if info.Title != "restored" || info.ID != "s1" {
		t.Errorf("restored metadata = %+v", info)
	}
}

func TestMemoryResumeLoadsPersistedTurns(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()

	first := NewMemory(log.NewNop(), WithStore(store))
	if err := first.Append(ctx, "s1", NewTurn(RoleUser, "How do I delegate?", nil)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := first.Append(ctx, "s1", NewTurn(RoleAssistant, "Start with low-risk tasks.", nil)); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A fresh process starts with only the store.
	m := NewMemory(log.NewNop(), WithStore(store))
	if err := m.Resume(ctx, "s1"); err != nil {
		t.Fatalf("resume: %v", err)
	}

	history := m.History("s1")
	if len(history) != 2 {
		t.Fatalf("resumed history = %d turns, want 2", len(history))
	}
	if history[0].Text != "How do I delegate?" || history[1].Role != RoleAssistant {
		t.Errorf("resumed turns out of order: %+v", history)
	}

	// Appending to a resumed session must not recreate it.
	if err := m.Append(ctx, "s1", NewTurn(RoleUser, "Which tasks first?", nil)); err != nil {
		t.Fatalf("append after resume: %v", err)
	}
	if store.createCnt != 1 {
		t.Errorf("CreateSession calls = %d, want 1", store.createCnt)
	}
	persisted, _ := store.RecentTurns(ctx, "s1", 0)
	if len(persisted) != 3 {
		t.Errorf("persisted turns = %d, want 3", len(persisted))
	}
}

func TestMemoryResumeUnknownSession(t *testing.T) {
	m := NewMemory(log.NewNop(), WithStore(newMockStore()))

	if err := m.Resume(context.Background(), "missing"); err != nil {
		t.Fatalf("resume of unknown session: %v", err)
	}
	if _, ok := m.Info("missing"); ok {
		t.Error("resume materialized a session the store never saw")
	}
}

func TestMemoryResumeKeepsInMemoryState(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	m := NewMemory(log.NewNop(), WithStore(store))

	if err := m.Append(ctx, "s1", NewTurn(RoleUser, "hello", nil)); err != nil {
		t.Fatalf("append: %v", err)
	}
	// A turn written by another process.
	_ = store.AppendTurn(ctx, "s1", NewTurn(RoleAssistant, "elsewhere", nil))

	if err := m.Resume(ctx, "s1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := len(m.History("s1")); got != 1 {
		t.Errorf("resume replaced live in-memory state: %d turns", got)
	}
}

func TestMemoryResumeEmptySessionID(t *testing.T) {
	m := NewMemory(log.NewNop(), WithStore(newMockStore()))

	if err := m.Resume(context.Background(), ""); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
}

func TestMemoryConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(log.NewNop(), WithMaxTurns(50))

	var wg sync.WaitGroup
	for g := range 4 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("s%d", g%2)
			for i := range 25 {
				_ = m.Append(ctx, sessionID, NewTurn(RoleUser, fmt.Sprintf("g%d-%d", g, i), nil))
			}
		}(g)
	}
	wg.Wait()

	for _, id := range []string{"s0", "s1"} {
		if got := len(m.History(id)); got != 50 {
			t.Errorf("session %s history = %d turns, want 50", id, got)
		}
	}
}
