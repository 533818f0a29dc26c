package session

import "errors"

// Sentinel errors for session operations. Callers check these with errors.Is().
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptySessionID indicates an operation was called with an empty session ID.
	ErrEmptySessionID = errors.New("session id is empty")

	// ErrStoreUnavailable indicates the persistence backend rejected the operation.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
