// ABOUTME: Coordinator holds messages submitted while a response is streaming.
// ABOUTME: Strict FIFO per conversation, capped at five, drained one send at a time.

package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/stream-relay/internal/ident"
	"github.com/2389/stream-relay/internal/kv"
)

const (
	// MaxQueued is the fixed queue cap. Enqueueing beyond it is silently
	// rejected.
	MaxQueued = 5

	// Namespace prefixes durable queue record keys.
	Namespace = "queue"
)

// FileRef points at an attachment accompanying a queued message.
type FileRef struct {
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// QueuedMessage is one message waiting for the current response to finish.
type QueuedMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Files     []FileRef `json:"files,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SendFunc is the send capability supplied by the surrounding chat runtime.
type SendFunc func(ctx context.Context, content string, files []FileRef) error

// Options tunes coordinator timing. Zero values get defaults. The intervals
// are empirically tuned, not derived; the defaults match what feels right
// in the UI.
type Options struct {
	// PersistDebounce delays durable writes after a queue mutation. Default 150ms.
	PersistDebounce time.Duration
	// SettleDelay runs between the streaming true→false edge and the first
	// drain, letting the final response state land first. Default 75ms.
	SettleDelay time.Duration
	// DrainDelay spaces consecutive drains so the UI gets a render cycle
	// between sends. Default 75ms.
	DrainDelay time.Duration
}

func (o *Options) applyDefaults() {
	if o.PersistDebounce <= 0 {
		o.PersistDebounce = 150 * time.Millisecond
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 75 * time.Millisecond
	}
	if o.DrainDelay <= 0 {
		o.DrainDelay = 75 * time.Millisecond
	}
}

// Coordinator owns the outbound queue for one client instance. At most one
// send is in flight at a time; the queue only advances past the head when
// its send succeeds.
type Coordinator struct {
	kv     kv.Store
	send   SendFunc
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	identity  ident.ConversationID
	items     []QueuedMessage
	sending   bool
	streaming bool

	persistTimer *time.Timer
	drainTimer   *time.Timer
	closed       bool
}

// NewCoordinator creates a coordinator for the given identity, loading any
// queue persisted under it. Pass nil logger for default.
func NewCoordinator(kvStore kv.Store, send SendFunc, identity ident.ConversationID, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()

	c := &Coordinator{
		kv:       kvStore,
		send:     send,
		opts:     opts,
		logger:   logger.With("component", "queue"),
		identity: identity,
	}
	c.items = c.load(identity)
	return c
}

// Enqueue appends a message. Once the cap is reached further calls are
// no-ops; the submission is dropped without surfacing an error.
func (c *Coordinator) Enqueue(content string, files []FileRef) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if len(c.items) >= MaxQueued {
		c.logger.Debug("queue full, rejecting message",
			"identity", c.identity,
			"cap", MaxQueued)
		return
	}

	c.items = append(c.items, QueuedMessage{
		ID:        uuid.New().String(),
		Content:   content,
		Files:     files,
		CreatedAt: time.Now(),
	})
	c.schedulePersistLocked()
}

// Remove deletes a queued message by id.
func (c *Coordinator) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, msg := range c.items {
		if msg.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.schedulePersistLocked()
			return
		}
	}
}

// Edit replaces the content of a queued message by id.
func (c *Coordinator) Edit(id, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Content = content
			c.schedulePersistLocked()
			return
		}
	}
}

// Items returns a snapshot of the queue in FIFO order.
func (c *Coordinator) Items() []QueuedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]QueuedMessage, len(c.items))
	copy(out, c.items)
	return out
}

// ProcessQueue sends exactly the head item. No-op if the queue is empty or
// a send is already in flight. The head is removed only on success; on
// failure it stays for retry and the queue does not advance.
func (c *Coordinator) ProcessQueue(ctx context.Context) {
	c.mu.Lock()
	if c.sending || len(c.items) == 0 {
		c.mu.Unlock()
		return
	}
	c.sending = true
	head := c.items[0]
	c.mu.Unlock()

	err := c.send(ctx, head.Content, head.Files)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false

	if err != nil {
		c.logger.Warn("queued send failed, keeping item for retry",
			"identity", c.identity,
			"message_id", head.ID,
			"error", err)
		return
	}

	if len(c.items) > 0 && c.items[0].ID == head.ID {
		c.items = c.items[1:]
	}
	c.schedulePersistLocked()
}

// SetStreaming feeds the coordinator the "currently streaming" signal. The
// true→false edge schedules a drain after the settle delay; going back to
// true cancels any pending drain.
func (c *Coordinator) SetStreaming(streaming bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasStreaming := c.streaming
	c.streaming = streaming

	if streaming {
		if c.drainTimer != nil {
			c.drainTimer.Stop()
			c.drainTimer = nil
		}
		return
	}

	if wasStreaming && !c.closed {
		c.scheduleDrainLocked(c.opts.SettleDelay)
	}
}

// scheduleDrainLocked arms the drain timer. Must be called with mu held.
func (c *Coordinator) scheduleDrainLocked(delay time.Duration) {
	if c.drainTimer != nil {
		c.drainTimer.Stop()
	}
	c.drainTimer = time.AfterFunc(delay, c.drainOnce)
}

// drainOnce sends one queued item and, if more remain, schedules the next
// drain on a delay rather than looping, giving the UI a render cycle
// between sends.
func (c *Coordinator) drainOnce() {
	c.mu.Lock()
	if c.closed || c.streaming {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.ProcessQueue(context.Background())

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) > 0 && !c.streaming && !c.closed {
		c.scheduleDrainLocked(c.opts.DrainDelay)
	}
}

// SetIdentity switches the coordinator to a new conversation identity. The
// old queue is flushed to its own record and a fresh queue is loaded for
// the new key — queues never carry over between identities.
func (c *Coordinator) SetIdentity(identity ident.ConversationID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if identity == c.identity {
		return
	}

	c.flushPersistLocked()
	c.identity = identity
	c.items = c.load(identity)
}

// Flush persists the queue immediately, bypassing the debounce.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushPersistLocked()
}

// Close cancels timers and flushes pending persistence.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.drainTimer != nil {
		c.drainTimer.Stop()
		c.drainTimer = nil
	}
	c.flushPersistLocked()
}

// schedulePersistLocked arms the debounced persist. Must be called with mu
// held.
func (c *Coordinator) schedulePersistLocked() {
	if c.persistTimer != nil {
		c.persistTimer.Stop()
	}
	c.persistTimer = time.AfterFunc(c.opts.PersistDebounce, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.persistLocked()
	})
}

// flushPersistLocked cancels the debounce and persists now.
func (c *Coordinator) flushPersistLocked() {
	if c.persistTimer != nil {
		c.persistTimer.Stop()
		c.persistTimer = nil
	}
	c.persistLocked()
}

// persistLocked writes the queue under the identity key, or removes the
// record when the queue is empty. Failures are logged and ignored: the
// in-memory queue stays authoritative, only persistence across reload is
// lost.
func (c *Coordinator) persistLocked() {
	key := ident.Key(Namespace, c.identity)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(c.items) == 0 {
		if err := c.kv.Delete(ctx, key); err != nil {
			c.logger.Debug("failed to clear queue record", "key", key, "error", err)
		}
		return
	}

	data, err := json.Marshal(c.items)
	if err != nil {
		c.logger.Debug("failed to encode queue", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, string(data)); err != nil {
		c.logger.Debug("failed to persist queue", "key", key, "error", err)
	}
}

// load reads the queue persisted under an identity key. Missing or corrupt
// records yield an empty queue.
func (c *Coordinator) load(identity ident.ConversationID) []QueuedMessage {
	key := ident.Key(Namespace, identity)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	value, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.logger.Debug("failed to load queue record", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var items []QueuedMessage
	if err := json.Unmarshal([]byte(value), &items); err != nil {
		c.logger.Debug("corrupt queue record, starting empty", "key", key, "error", err)
		return nil
	}
	return items
}
