package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/erasmolabs/erasmo/internal/log"
)

// Store persists conversation turns so a session survives restarts.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateSession records a session. Creating an existing session is a
	// no-op, not an error.
	CreateSession(ctx context.Context, sess Session) error

	// AppendTurn persists one turn of an existing session.
	AppendTurn(ctx context.Context, sessionID string, turn Turn) error

	// RecentTurns returns up to limit of the newest turns in
	// chronological order.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// GetSession loads session metadata. Returns ErrSessionNotFound for
	// an unknown session.
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists sessions and turns in PostgreSQL.
type PostgresStore struct {
	db     DB
	logger log.Logger
}

// NewPostgresStore creates a store backed by db.
func NewPostgresStore(db DB, logger log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

const createSessionSQL = `
INSERT INTO sessions (id, title, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`

// CreateSession inserts the session row if it does not already exist.
func (s *PostgresStore) CreateSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return ErrEmptySessionID
	}
	if _, err := s.db.Exec(ctx, createSessionSQL, sess.ID, sess.Title, sess.CreatedAt); err != nil {
		return fmt.Errorf("%w: create session: %v", ErrStoreUnavailable, err)
	}
	s.logger.Debug("session persisted", "session_id", sess.ID)
	return nil
}

const appendTurnSQL = `
INSERT INTO session_turns (id, session_id, role, content, retrieved_chunk_ids, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

const setTitleSQL = `
UPDATE sessions SET title = $2 WHERE id = $1 AND title = ''`

// AppendTurn inserts the turn. The first user turn also becomes the
// session title when none is set yet.
func (s *PostgresStore) AppendTurn(ctx context.Context, sessionID string, turn Turn) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	chunkIDs := make([]string, len(turn.RetrievedChunkIDs))
	for i, id := range turn.RetrievedChunkIDs {
		chunkIDs[i] = id.String()
	}

	_, err := s.db.Exec(ctx, appendTurnSQL,
		turn.ID.String(), sessionID, string(turn.Role), turn.Text, chunkIDs, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: append turn: %v", ErrStoreUnavailable, err)
	}

	if turn.Role == RoleUser {
		if _, err := s.db.Exec(ctx, setTitleSQL, sessionID, deriveTitle(turn.Text)); err != nil {
			return fmt.Errorf("%w: set title: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

const recentTurnsSQL = `
SELECT id, role, content, retrieved_chunk_ids, created_at
FROM (
    SELECT id, role, content, retrieved_chunk_ids, created_at
    FROM session_turns
    WHERE session_id = $1
    ORDER BY created_at DESC, id DESC
    LIMIT $2
) newest
ORDER BY created_at ASC, id ASC`

// RecentTurns loads the newest turns of a session in chronological order.
func (s *PostgresStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	if limit <= 0 {
		limit = DefaultMaxTurns
	}

	rows, err := s.db.Query(ctx, recentTurnsSQL, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent turns: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			turn     Turn
			idStr    string
			role     string
			chunkIDs []string
		)
		if err := rows.Scan(&idStr, &role, &turn.Text, &chunkIDs, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan turn: %v", ErrStoreUnavailable, err)
		}
		if turn.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("%w: parse turn id: %v", ErrStoreUnavailable, err)
		}
		turn.Role = Role(role)
		turn.RetrievedChunkIDs = make([]uuid.UUID, 0, len(chunkIDs))
		for _, raw := range chunkIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: parse chunk id: %v", ErrStoreUnavailable, err)
			}
			turn.RetrievedChunkIDs = append(turn.RetrievedChunkIDs, id)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: recent turns: %v", ErrStoreUnavailable, err)
	}
	return turns, nil
}

const getSessionSQL = `
SELECT s.id, s.title, s.created_at, count(t.id)
FROM sessions s
LEFT JOIN session_turns t ON t.session_id = s.id
WHERE s.id = $1
GROUP BY s.id, s.title, s.created_at`

// GetSession loads session metadata. Returns ErrSessionNotFound for an
// unknown ID.
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, ErrEmptySessionID
	}

	var sess Session
	var count int64
	err := s.db.QueryRow(ctx, getSessionSQL, sessionID).
		Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: get session: %v", ErrStoreUnavailable, err)
	}
	sess.TurnCount = int(count)
	return sess, nil
}

const listSessionsSQL = `
SELECT s.id, s.title, s.created_at, count(t.id)
FROM sessions s
LEFT JOIN session_turns t ON t.session_id = s.id
GROUP BY s.id, s.title, s.created_at
ORDER BY s.created_at DESC
LIMIT $1`

// ListSessions returns the newest sessions with their turn counts.
func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(ctx, listSessionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var count int64
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &count); err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", ErrStoreUnavailable, err)
		}
		sess.TurnCount = int(count)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrStoreUnavailable, err)
	}
	return sessions, nil
}
