// Package session holds per-conversation state: an in-process bounded
// history of turns, optionally written through to PostgreSQL.
//
// Memory is the authoritative working set during a conversation. It caps
// each session at a fixed number of turns and evicts the oldest first, so
// long-running conversations cannot grow without bound. A Store, when
// configured, receives every turn as it is appended and can replay recent
// turns after a restart.
package session
