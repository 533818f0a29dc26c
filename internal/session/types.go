package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

// Valid turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MaxTitleLength bounds the auto-derived session title.
const MaxTitleLength = 80

// Turn is a single utterance in a conversation.
//
// RetrievedChunkIDs records which knowledge chunks grounded an assistant
// turn. It is empty for user turns and for clarification replies.
type Turn struct {
	ID                uuid.UUID
	Role              Role
	Text              string
	Timestamp         time.Time
	RetrievedChunkIDs []uuid.UUID
}

// Session is the metadata view of one conversation.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	TurnCount int
}

// NewTurn builds a turn with a fresh ID and the current time.
func NewTurn(role Role, text string, chunkIDs []uuid.UUID) Turn {
	return Turn{
		ID:                uuid.New(),
		Role:              role,
		Text:              text,
		Timestamp:         time.Now().UTC(),
		RetrievedChunkIDs: chunkIDs,
	}
}

// deriveTitle produces a session title from the first user message,
// truncated at a rune boundary.
func deriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxTitleLength {
		return text
	}
	return string(runes[:MaxTitleLength])
}
