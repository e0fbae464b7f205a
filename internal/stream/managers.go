// ABOUTME: Process-wide manager instances for the two execution contexts.
// ABOUTME: Lazy init-once accessors with an explicit reset hook for tests.

package stream

import (
	"log/slog"
	"sync"

	"github.com/2389/stream-relay/internal/store"
)

var (
	managersMu     sync.Mutex
	interactiveMgr *Manager
	backgroundMgr  *Manager
)

// Interactive returns the process-wide manager for interactive
// request/response streams, creating it on first call. Later calls return
// the same instance regardless of arguments.
func Interactive(buffer store.StreamBuffer, opts Options, logger *slog.Logger) *Manager {
	managersMu.Lock()
	defer managersMu.Unlock()

	if interactiveMgr == nil {
		interactiveMgr = NewManager(buffer, CompleteOnClose, opts, logger)
	}
	return interactiveMgr
}

// Background returns the process-wide manager for background/batch streams,
// creating it on first call. It differs from Interactive only in how
// completion is signaled: a background session ends on an explicit finish
// or error chunk, not on producer close.
func Background(buffer store.StreamBuffer, opts Options, logger *slog.Logger) *Manager {
	managersMu.Lock()
	defer managersMu.Unlock()

	if backgroundMgr == nil {
		backgroundMgr = NewManager(buffer, CompleteOnFinish, opts, logger)
	}
	return backgroundMgr
}

// ResetManagers discards both process-wide managers. Test hook.
func ResetManagers() {
	managersMu.Lock()
	defer managersMu.Unlock()

	if interactiveMgr != nil {
		interactiveMgr.Close()
		interactiveMgr = nil
	}
	if backgroundMgr != nil {
		backgroundMgr.Close()
		backgroundMgr = nil
	}
}
