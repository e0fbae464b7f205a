// ABOUTME: Tests for the outbound message queue coordinator.
// ABOUTME: Covers the cap, head-only sends, retry on failure, auto-drain, persistence.

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/stream-relay/internal/ident"
	"github.com/2389/stream-relay/internal/kv"
)

// recordingSender captures sends and returns scripted errors.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
	errs []error // popped per send; empty means success
}

func (r *recordingSender) send(_ context.Context, content string, _ []FileRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if len(r.errs) > 0 {
		err = r.errs[0]
		r.errs = r.errs[1:]
	}
	if err == nil {
		r.sent = append(r.sent, content)
	}
	return err
}

func (r *recordingSender) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// fastOpts keeps test timers short.
var fastOpts = Options{
	PersistDebounce: 5 * time.Millisecond,
	SettleDelay:     10 * time.Millisecond,
	DrainDelay:      10 * time.Millisecond,
}

func TestCoordinator_CapIsFive(t *testing.T) {
	sender := &recordingSender{}
	c := NewCoordinator(kv.NewMemory(), sender.send, "conn-1", fastOpts, nil)
	defer c.Close()

	for i := range 6 {
		c.Enqueue(string(rune('a'+i)), nil)
	}

	items := c.Items()
	require.Len(t, items, MaxQueued, "sixth enqueue must be a silent no-op")
	assert.Equal(t, "a", items[0].Content)
	assert.Equal(t, "e", items[4].Content)
}

func TestCoordinator_ProcessQueueSendsExactlyTheHead(t *testing.T) {
	sender := &recordingSender{}
	c := NewCoordinator(kv.NewMemory(), sender.send, "conn-1", fastOpts, nil)
	defer c.Close()

	c.Enqueue("first", nil)
	c.Enqueue("second", nil)

	c.ProcessQueue(t.Context())

	assert.Equal(t, []string{"first"}, sender.sent)
	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "second", items[0].Content)
}

func TestCoordinator_ProcessQueueEmptyIsNoOp(t *testing.T) {
	sender := &recordingSender{}
	c := NewCoordinator(kv.NewMemory(), sender.send, "conn-1", fastOpts, nil)
	defer c.Close()

	c.ProcessQueue(t.Context())
	assert.Empty(t, sender.sent)
}

func TestCoordinator_FailedSendKeepsHead(t *testing.T) {
	sender := &recordingSender{errs: []error{errors.New("network down")}}
	c := NewCoordinator(kv.NewMemory(), sender.send, "conn-1", fastOpts, nil)
	defer c.Close()

	c.Enqueue("retry me", nil)
	c.ProcessQueue(t.Context())

	items := c.Items()
	require.Len(t, items, 1, "failed head must stay queued")
	assert.Equal(t, "retry me", items[0].Content)

	// Retry succeeds and advances the queue
	c.ProcessQueue(t.Context())
	assert.Equal(t, []string{"retry me"}, sender.sent)
	assert.Empty(t, c.Items())
}

func TestCoordinator_RemoveAndEdit(t *testing.T) {
	sender := &recordingSender{}
	c := NewCoordinator(kv.NewMemory(), sender.send, "conn-1", fastOpts, nil)
	defer c.Close()

	c.Enqueue("one", nil)
	c.Enqueue("two", nil)
	c.Enqueue("three", nil)

	items := c.Items()
	c.Remove(items[1].ID)
	c.Edit(items[2].ID, "three, edited")

	items = c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "one", items[0].Content)
	assert.Equal(t, "three, edited", items[1].Content)
}

func TestCoordinator_AutoDrainSendsOnePerCycle(t *testing.T) {
	sender := &recordingSender{}
	opts := fastOpts
	opts.DrainDelay = 500 * time.Millisecond // keep the second drain out of the window
	c := NewCoordinator(kv.NewMemory(), sender.send, "conn-1", opts, nil)
	defer c.Close()

	c.SetStreaming(true)
	for i := range 5 {
		c.Enqueue(string(rune('a'+i)), nil)
	}
	require.Len(t, c.Items(), 5)

	c.SetStreaming(false)

	require.Eventually(t, func() bool {
		return sender.sentCount() == 1 && len(c.Items()) == 4
	}, time.Second, 5*time.Millisecond)

	// No second send inside the drain-delay window
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sender.sentCount(), "exactly one item drains per cycle")
}

func TestCoordinator_AutoDrainEventuallyEmptiesQueue(t *testing.T) {
	sender := &recordingSender{}
	c := NewCoordinator(kv.NewMemory(), sender.send, "conn-1", fastOpts, nil)
	defer c.Close()

	c.SetStreaming(true)
	c.Enqueue("a", nil)
	c.Enqueue("b", nil)
	c.Enqueue("c", nil)
	c.SetStreaming(false)

	require.Eventually(t, func() bool {
		return len(c.Items()) == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, sender.sent, "FIFO order preserved")
}

func TestCoordinator_StreamingRestartCancelsPendingDrain(t *testing.T) {
	sender := &recordingSender{}
	opts := fastOpts
	opts.SettleDelay = 50 * time.Millisecond
	c := NewCoordinator(kv.NewMemory(), sender.send, "conn-1", opts, nil)
	defer c.Close()

	c.SetStreaming(true)
	c.Enqueue("held", nil)
	c.SetStreaming(false)
	c.SetStreaming(true) // next response started before the settle delay ran

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, sender.sentCount(), "drain must not fire while streaming")
	assert.Len(t, c.Items(), 1)
}

func TestCoordinator_PersistsPerIdentityKey(t *testing.T) {
	mem := kv.NewMemory()
	sender := &recordingSender{}
	c := NewCoordinator(mem, sender.send, "conn-1", fastOpts, nil)

	c.Enqueue("persisted", nil)
	c.Close() // flushes the debounce

	value, ok, err := mem.Get(t.Context(), ident.Key(Namespace, "conn-1"))
	require.NoError(t, err)
	require.True(t, ok)

	var items []QueuedMessage
	require.NoError(t, json.Unmarshal([]byte(value), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "persisted", items[0].Content)
}

func TestCoordinator_LoadsPersistedQueueOnConstruction(t *testing.T) {
	mem := kv.NewMemory()
	sender := &recordingSender{}

	first := NewCoordinator(mem, sender.send, ident.Pending, fastOpts, nil)
	first.Enqueue("survives reload", nil)
	first.Close()

	second := NewCoordinator(mem, sender.send, ident.Pending, fastOpts, nil)
	defer second.Close()

	items := second.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "survives reload", items[0].Content)
}

func TestCoordinator_IdentitySwitchLoadsFreshQueue(t *testing.T) {
	mem := kv.NewMemory()
	sender := &recordingSender{}
	c := NewCoordinator(mem, sender.send, "conn-1", fastOpts, nil)
	defer c.Close()

	c.Enqueue("belongs to conn-1", nil)
	c.SetIdentity("conn-2")

	assert.Empty(t, c.Items(), "queues never carry over between identities")

	// The old queue was flushed under its own key
	value, ok, err := mem.Get(t.Context(), ident.Key(Namespace, "conn-1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, value, "belongs to conn-1")

	// Switching back restores it
	c.SetIdentity("conn-1")
	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "belongs to conn-1", items[0].Content)
}

// brokenKV fails every operation.
type brokenKV struct{}

func (brokenKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("quota exceeded")
}
func (brokenKV) Set(context.Context, string, string) error { return errors.New("quota exceeded") }
func (brokenKV) Delete(context.Context, string) error      { return errors.New("quota exceeded") }

func TestCoordinator_PersistenceFailureIsIgnored(t *testing.T) {
	sender := &recordingSender{}
	c := NewCoordinator(brokenKV{}, sender.send, "conn-1", fastOpts, nil)
	defer c.Close()

	c.Enqueue("still here", nil)
	c.Flush()

	items := c.Items()
	require.Len(t, items, 1, "in-memory queue stays authoritative")
	assert.Equal(t, "still here", items[0].Content)

	c.ProcessQueue(t.Context())
	assert.Equal(t, []string{"still here"}, sender.sent)
}
