// ABOUTME: Manager mirrors producing chunk streams into a durable buffer and serves resumes.
// ABOUTME: Durable-store failures degrade to plain pass-through, logged once, never fatal.

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/stream-relay/internal/store"
	"github.com/2389/stream-relay/internal/wire"
)

// ErrNotFound is returned by Resume when no session exists for the key,
// either because it never existed or because its buffer expired.
var ErrNotFound = errors.New("stream session not found")

// CompletionMode selects how a manager decides that a session's work is
// complete. The buffering contract is otherwise identical.
type CompletionMode int

const (
	// CompleteOnClose marks the session completed when the producer channel
	// closes. This is the interactive request/response case.
	CompleteOnClose CompletionMode = iota

	// CompleteOnFinish marks the session completed only when an explicit
	// finish or error chunk arrives. Background/batch producers may close
	// and re-attach without ending the session.
	CompleteOnFinish
)

// Options tunes a Manager. Zero values get defaults.
type Options struct {
	// TTL is how long an untouched session buffer is kept. Default 15m.
	TTL time.Duration
	// SweepInterval is how often expired sessions are removed. Default 1m.
	SweepInterval time.Duration
}

// Stream is the consumer's view of a created or resumed session.
type Stream struct {
	// Events delivers chunks in order. Closed when the session's producer
	// is done or, for a replay of a finished session, after the replay.
	Events <-chan wire.Chunk
	// Resumable is false when the durable buffer is unavailable and the
	// stream is a plain pass-through.
	Resumable bool
	// Status is the session status at resume time.
	Status store.SessionStatus
}

// Manager wraps producing chunk streams, mirroring every emitted chunk into
// the durable buffer under its session key while forwarding it live.
// Resumability is a best-effort enhancement: when the buffer errors, the
// manager degrades to direct pass-through and keeps serving.
type Manager struct {
	buffer store.StreamBuffer
	mode   CompletionMode
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session

	degradeLog sync.Once
	done       chan struct{}
	closeOnce  sync.Once
}

// NewManager creates a manager over the given buffer. A nil buffer is
// allowed and yields a manager that always passes through. Pass nil logger
// for default.
func NewManager(buffer store.StreamBuffer, mode CompletionMode, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}

	m := &Manager{
		buffer:   buffer,
		mode:     mode,
		ttl:      opts.TTL,
		logger:   logger.With("component", "stream"),
		sessions: make(map[string]*session),
		done:     make(chan struct{}),
	}
	if buffer != nil {
		go m.sweep(opts.SweepInterval)
	}
	return m
}

// Create registers a producing stream under sessionKey and returns the live
// consumer channel. Every chunk is mirrored into the durable buffer while
// being forwarded; if mirroring fails the session keeps streaming without
// it. Re-creating an existing key starts a new generation and discards the
// old buffer.
func (m *Manager) Create(ctx context.Context, sessionKey string, producer <-chan wire.Chunk) <-chan wire.Chunk {
	degraded := m.buffer == nil
	if !degraded {
		if err := m.buffer.CreateSession(ctx, sessionKey); err != nil {
			degraded = true
			m.logDegraded(err)
		}
	}

	sess := newSession(sessionKey, degraded, m.logger)

	m.mu.Lock()
	m.sessions[sessionKey] = sess
	m.mu.Unlock()

	out := make(chan wire.Chunk, subscriberBufferSize)
	go m.pump(ctx, sess, producer, out)

	m.logger.Debug("stream session created",
		"session_key", sessionKey,
		"resumable", !degraded)
	return out
}

// pump moves chunks from the producer to the consumer, mirroring and
// fanning out along the way.
func (m *Manager) pump(ctx context.Context, sess *session, producer <-chan wire.Chunk, out chan<- wire.Chunk) {
	defer func() {
		sess.mu.Lock()
		needComplete := m.mode == CompleteOnClose && !sess.completed
		if needComplete {
			sess.completed = true
		}
		sess.closeSubscribersLocked()
		sess.mu.Unlock()

		if needComplete {
			m.markCompleted(sess)
		}

		m.mu.Lock()
		if m.sessions[sess.key] == sess {
			delete(m.sessions, sess.key)
		}
		m.mu.Unlock()

		// Closed last so a consumer observing EOF sees the recorded status.
		close(out)
	}()

	for {
		select {
		case c, ok := <-producer:
			if !ok {
				return
			}
			if c == nil {
				continue
			}
			m.mirror(sess, c)

			select {
			case out <- c:
			case <-ctx.Done():
				m.drainAndComplete(sess, producer)
				return
			}

			if wire.Terminal(c) && m.mode == CompleteOnFinish {
				m.setCompleted(sess)
				m.markCompleted(sess)
			}

		case <-ctx.Done():
			m.drainAndComplete(sess, producer)
			return
		}
	}
}

// drainAndComplete handles consumer cancellation: the session is marked
// completed so no further buffering occurs, and the producer is drained so
// it never blocks.
func (m *Manager) drainAndComplete(sess *session, producer <-chan wire.Chunk) {
	m.setCompleted(sess)
	m.markCompleted(sess)
	go func() {
		for range producer {
		}
	}()
}

// mirror assigns the next sequence number, appends to the durable buffer,
// and fans the chunk out to attached subscribers. A buffer failure flips
// the session to degraded and mirroring stops for good.
func (m *Manager) mirror(sess *session, c wire.Chunk) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.lastSeq++

	if !sess.degraded && !sess.completed {
		payload, err := wire.Marshal(c)
		if err != nil {
			m.logger.Warn("unencodable chunk not mirrored",
				"session_key", sess.key,
				"error", err)
		} else {
			appendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = m.buffer.AppendEvent(appendCtx, sess.key, sess.lastSeq, payload)
			cancel()
			if err != nil {
				sess.degraded = true
				m.logDegraded(err)
			}
		}
	}

	sess.publishLocked(c)
}

// Resume returns a continuation of the session past skipOffset: buffered
// chunks are replayed first, then the stream attaches live if production is
// still ongoing in this process. When the durable buffer is unavailable the
// result degrades to a live-only pass-through; the lookup fails fast and is
// never retried here.
func (m *Manager) Resume(ctx context.Context, sessionKey string, skipOffset int64) (*Stream, error) {
	m.mu.RLock()
	sess := m.sessions[sessionKey]
	m.mu.RUnlock()

	if m.buffer == nil {
		return m.degradedAttach(ctx, sess)
	}

	stored, err := m.buffer.GetSession(ctx, sessionKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		m.logDegraded(err)
		return m.degradedAttach(ctx, sess)
	}

	if sess != nil {
		return m.replayAndAttach(ctx, sess, stored, skipOffset)
	}

	// No live producer in this process: replay whatever the buffer holds.
	events, err := m.buffer.ReadEvents(ctx, sessionKey, skipOffset)
	if err != nil {
		m.logDegraded(err)
		return nil, fmt.Errorf("reading buffered events: %w", err)
	}

	out := make(chan wire.Chunk, subscriberBufferSize)
	go func() {
		defer close(out)
		for _, evt := range events {
			c, err := wire.Unmarshal(evt.Payload)
			if err != nil || c == nil {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Stream{Events: out, Resumable: true, Status: stored.Status}, nil
}

// replayAndAttach reads the buffered backlog and attaches a live subscriber
// under the session lock, so no chunk can slip into the gap between the two.
func (m *Manager) replayAndAttach(ctx context.Context, sess *session, stored *store.StreamSession, skipOffset int64) (*Stream, error) {
	sess.mu.Lock()
	events, err := m.buffer.ReadEvents(ctx, sess.key, skipOffset)
	if err != nil {
		sess.mu.Unlock()
		m.logDegraded(err)
		return m.degradedAttach(ctx, sess)
	}

	var live chan wire.Chunk
	var subID string
	if !sess.completed {
		live, subID = sess.attachLocked()
	}
	sess.mu.Unlock()

	out := make(chan wire.Chunk, subscriberBufferSize)
	go func() {
		defer close(out)
		for _, evt := range events {
			c, err := wire.Unmarshal(evt.Payload)
			if err != nil || c == nil {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				if live != nil {
					sess.detach(subID)
				}
				return
			}
		}
		if live == nil {
			return
		}
		for c := range live {
			select {
			case out <- c:
			case <-ctx.Done():
				sess.detach(subID)
				for range live {
				}
				return
			}
		}
	}()

	return &Stream{Events: out, Resumable: true, Status: stored.Status}, nil
}

// degradedAttach serves a resume request without the durable buffer. If the
// producer is live in this process the caller gets a non-resumable
// pass-through from the current position; otherwise there is nothing to
// serve.
func (m *Manager) degradedAttach(ctx context.Context, sess *session) (*Stream, error) {
	if sess == nil {
		return nil, ErrNotFound
	}

	sess.mu.Lock()
	if sess.completed {
		sess.mu.Unlock()
		return nil, ErrNotFound
	}
	live, subID := sess.attachLocked()
	sess.mu.Unlock()

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		sess.detach(subID)
	}()

	return &Stream{Events: live, Resumable: false, Status: store.SessionActive}, nil
}

// Complete marks a session completed so no further chunks are buffered.
// Chunks still streaming from the producer keep passing through live.
func (m *Manager) Complete(ctx context.Context, sessionKey string) {
	m.mu.RLock()
	sess := m.sessions[sessionKey]
	m.mu.RUnlock()

	if sess != nil {
		m.setCompleted(sess)
		m.markCompleted(sess)
		return
	}

	if m.buffer != nil {
		if err := m.buffer.CompleteSession(ctx, sessionKey); err != nil && !errors.Is(err, store.ErrNotFound) {
			m.logger.Debug("failed to complete session", "session_key", sessionKey, "error", err)
		}
	}
}

func (m *Manager) setCompleted(sess *session) {
	sess.mu.Lock()
	sess.completed = true
	sess.mu.Unlock()
}

// markCompleted records completion in the durable buffer, best effort.
func (m *Manager) markCompleted(sess *session) {
	sess.mu.Lock()
	degraded := sess.degraded
	sess.mu.Unlock()
	if m.buffer == nil || degraded {
		return
	}

	completeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.buffer.CompleteSession(completeCtx, sess.key); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Debug("failed to complete session", "session_key", sess.key, "error", err)
	}
}

// logDegraded logs the first durable-buffer failure. Degradation is silent
// after that: resumability is an enhancement, not a dependency.
func (m *Manager) logDegraded(err error) {
	m.degradeLog.Do(func() {
		m.logger.Warn("durable stream buffer unavailable, degrading to pass-through",
			"error", err)
	})
}

// sweep runs in a background goroutine, periodically expiring sessions
// whose buffers have outlived the TTL.
func (m *Manager) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := m.buffer.DeleteExpiredSessions(sweepCtx, m.ttl); err != nil {
				m.logger.Debug("session expiry sweep failed", "error", err)
			}
			cancel()
		case <-m.done:
			return
		}
	}
}

// Close stops the expiry sweep. It does not interrupt in-flight sessions.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}
