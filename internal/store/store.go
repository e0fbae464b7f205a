// ABOUTME: Store interfaces and data types for stream-relay persistence.
// ABOUTME: Defines StreamSession, BufferedEvent and the StreamBuffer interface.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// SessionStatus is the lifecycle state of a buffered stream session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// StreamSession represents one buffered response generation, keyed by the
// session key chosen at creation time. Sessions expire after a TTL.
type StreamSession struct {
	Key       string
	Status    SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BufferedEvent is one mirrored chunk in a session's ordered event log.
// Seq starts at 1 and increases without gaps within a session.
type BufferedEvent struct {
	SessionKey string
	Seq        int64
	Payload    []byte
	CreatedAt  time.Time
}

// StreamBuffer is the durable buffer behind resumable streams. Each session
// key is exclusive to one producer, so implementations only need atomic
// append-per-key, no cross-session coordination.
type StreamBuffer interface {
	// CreateSession registers a new active session. Re-creating an existing
	// key resets it (the previous generation's buffer is discarded).
	CreateSession(ctx context.Context, key string) error

	// GetSession returns session metadata. Returns ErrNotFound if the key
	// has never been registered or has expired.
	GetSession(ctx context.Context, key string) (*StreamSession, error)

	// CompleteSession marks a session completed so no further events are
	// buffered for it.
	CompleteSession(ctx context.Context, key string) error

	// AppendEvent adds one event to the session's log at the given sequence.
	AppendEvent(ctx context.Context, key string, seq int64, payload []byte) error

	// ReadEvents returns events with Seq > afterSeq in ascending order.
	ReadEvents(ctx context.Context, key string, afterSeq int64) ([]*BufferedEvent, error)

	// DeleteExpiredSessions removes sessions (and their events) whose last
	// update is older than the TTL. Returns the number of sessions removed.
	DeleteExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Close releases any resources held by the buffer
	Close() error
}
