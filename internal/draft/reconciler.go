// ABOUTME: Reconciler persists unsent input per conversation and resolves it across identity changes.
// ABOUTME: The pending→concrete transition keeps in-flight typing; concrete→concrete clears it.

package draft

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/2389/stream-relay/internal/ident"
	"github.com/2389/stream-relay/internal/kv"
)

const (
	// Namespace prefixes durable draft record keys.
	Namespace = "draft"

	// MinLength is the floor below which a draft is not persisted. Shorter
	// text removes any existing record for the key instead.
	MinLength = 3
)

// Options tunes reconciler timing. Zero values get defaults.
type Options struct {
	// SaveDebounce delays persistence after an input change. Default 150ms.
	SaveDebounce time.Duration
}

// Reconciler owns the visible input box state for one client instance and
// its durable draft record. Persistence failures are swallowed; the
// in-memory input is authoritative regardless.
type Reconciler struct {
	kv     kv.Store
	opts   Options
	logger *slog.Logger

	mu               sync.Mutex
	identity         ident.ConversationID
	input            string
	recovered        bool
	lastProcessedKey string
	saveTimer        *time.Timer
	closed           bool
}

// NewReconciler creates a reconciler and resolves the visible input for the
// initial identity, restoring any persisted draft. Pass nil logger for
// default.
func NewReconciler(kvStore kv.Store, identity ident.ConversationID, opts Options, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = 150 * time.Millisecond
	}

	r := &Reconciler{
		kv:     kvStore,
		opts:   opts,
		logger: logger.With("component", "draft"),
	}
	r.Reconcile(identity)
	return r
}

// Reconcile resolves the visible input against a (possibly new) identity:
//
//  1. A persisted draft exists for the new key: restore it and flag
//     "recovered".
//  2. No draft, and the key changed between two concrete identities: clear
//     the input so text never leaks between unrelated conversations.
//  3. No draft, and the key moved from the pending sentinel to a newly
//     assigned concrete id: leave the input untouched — the user is
//     mid-keystroke in the same conversation session.
//
// Calling it again with the same key is a no-op, so render/callback cycles
// can invoke it freely.
func (r *Reconciler) Reconcile(identity ident.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ident.Key(Namespace, identity)
	if key == r.lastProcessedKey {
		return
	}

	prev := r.identity
	r.identity = identity
	r.lastProcessedKey = key

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	value, ok, err := r.kv.Get(ctx, key)
	cancel()
	if err != nil {
		r.logger.Debug("failed to read draft record", "key", key, "error", err)
		ok = false
	}

	if ok {
		r.input = value
		r.recovered = true
		return
	}

	r.recovered = false
	if prev.IsConcrete() && identity.IsConcrete() {
		r.input = ""
	}
	// pending→concrete, or first mount: keep whatever is typed.
}

// OnInputChange records the visible input and arms the debounced save.
func (r *Reconciler) OnInputChange(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.input = text
	if r.closed {
		return
	}

	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	r.saveTimer = time.AfterFunc(r.opts.SaveDebounce, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.persistLocked()
	})
}

// SaveImmediately persists the current input now, bypassing the debounce.
// For flush-before-navigation cases.
func (r *Reconciler) SaveImmediately() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveTimer != nil {
		r.saveTimer.Stop()
		r.saveTimer = nil
	}
	r.persistLocked()
}

// ClearDraft clears the visible input and the persisted record, and resets
// the recovered flag. Call it after a successful send from this
// conversation.
func (r *Reconciler) ClearDraft() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveTimer != nil {
		r.saveTimer.Stop()
		r.saveTimer = nil
	}
	r.input = ""
	r.recovered = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.kv.Delete(ctx, ident.Key(Namespace, r.identity)); err != nil {
		r.logger.Debug("failed to clear draft record", "error", err)
	}
}

// Input returns the visible input text.
func (r *Reconciler) Input() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.input
}

// Recovered reports whether the current input was restored from a
// persisted draft.
func (r *Reconciler) Recovered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recovered
}

// Close cancels the pending save. It does not flush; use SaveImmediately
// first when the draft should survive.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.saveTimer != nil {
		r.saveTimer.Stop()
		r.saveTimer = nil
	}
}

// persistLocked writes the draft under the active identity key, or removes
// the record when the text is under the minimum length. Failures are
// logged and ignored. Must be called with mu held.
func (r *Reconciler) persistLocked() {
	key := ident.Key(Namespace, r.identity)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if utf8.RuneCountInString(r.input) < MinLength {
		if err := r.kv.Delete(ctx, key); err != nil {
			r.logger.Debug("failed to remove short draft", "key", key, "error", err)
		}
		return
	}

	if err := r.kv.Set(ctx, key, r.input); err != nil {
		r.logger.Debug("failed to persist draft", "key", key, "error", err)
	}
}
