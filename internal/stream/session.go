// ABOUTME: In-memory state for one live resumable stream session.
// ABOUTME: Tracks the sequence counter and fans chunks out to attached subscribers.

package stream

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/stream-relay/internal/wire"
)

const (
	// subscriberBufferSize is the channel buffer for each attached consumer.
	subscriberBufferSize = 64
)

// session holds the live side of one stream. The durable side lives in the
// StreamBuffer; this struct exists only while the producer is running in
// this process.
type session struct {
	key string

	mu          sync.Mutex
	lastSeq     int64
	subscribers map[string]chan wire.Chunk
	completed   bool
	degraded    bool // durable mirroring gave up for this session

	logger *slog.Logger
}

func newSession(key string, degraded bool, logger *slog.Logger) *session {
	return &session{
		key:         key,
		subscribers: make(map[string]chan wire.Chunk),
		degraded:    degraded,
		logger:      logger,
	}
}

// attach registers a live subscriber and returns its channel and id.
// Must be called with s.mu held so no chunk slips between a buffer replay
// and the attach.
func (s *session) attachLocked() (chan wire.Chunk, string) {
	subID := uuid.New().String()
	ch := make(chan wire.Chunk, subscriberBufferSize)
	s.subscribers[subID] = ch
	return ch, subID
}

// detach removes a subscriber and closes its channel.
func (s *session) detach(subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[subID]; ok {
		delete(s.subscribers, subID)
		close(ch)
	}
}

// publishLocked fans a chunk out to all subscribers. Non-blocking: chunks
// are dropped for subscribers whose channels are full.
// Must be called with s.mu held.
func (s *session) publishLocked(c wire.Chunk) {
	for subID, ch := range s.subscribers {
		select {
		case ch <- c:
		default:
			s.logger.Debug("dropped chunk for slow subscriber",
				"session_key", s.key,
				"sub_id", subID)
		}
	}
}

// closeSubscribersLocked closes every subscriber channel.
// Must be called with s.mu held.
func (s *session) closeSubscribersLocked() {
	for subID, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, subID)
	}
}
