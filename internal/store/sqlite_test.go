// ABOUTME: Tests for the SQLite-backed stream buffer and client record store.
// ABOUTME: Covers session lifecycle, event ordering, key reset, expiry, and kv operations.

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateSession(ctx, "sess-1"))

	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.Key)
	assert.Equal(t, SessionActive, sess.Status)
	assert.False(t, sess.CreatedAt.IsZero())

	require.NoError(t, s.CompleteSession(ctx, "sess-1"))

	sess, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, sess.Status)
}

func TestSQLiteStore_GetSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CompleteSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.CompleteSession(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_AppendAndReadEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateSession(ctx, "sess-1"))
	require.NoError(t, s.AppendEvent(ctx, "sess-1", 1, []byte(`{"type":"text-delta","delta":"a"}`)))
	require.NoError(t, s.AppendEvent(ctx, "sess-1", 2, []byte(`{"type":"text-delta","delta":"b"}`)))
	require.NoError(t, s.AppendEvent(ctx, "sess-1", 3, []byte(`{"type":"finish"}`)))

	events, err := s.ReadEvents(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, evt := range events {
		assert.Equal(t, int64(i+1), evt.Seq)
		assert.Equal(t, "sess-1", evt.SessionKey)
	}
}

func TestSQLiteStore_ReadEventsAfterSeq(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateSession(ctx, "sess-1"))
	for seq := int64(1); seq <= 5; seq++ {
		require.NoError(t, s.AppendEvent(ctx, "sess-1", seq, []byte(`{}`)))
	}

	events, err := s.ReadEvents(ctx, "sess-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].Seq)
	assert.Equal(t, int64(5), events[1].Seq)
}

func TestSQLiteStore_ReadEventsEmptySession(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateSession(ctx, "sess-1"))

	events, err := s.ReadEvents(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLiteStore_RecreateResetsSession(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateSession(ctx, "sess-1"))
	require.NoError(t, s.AppendEvent(ctx, "sess-1", 1, []byte(`stale`)))
	require.NoError(t, s.CompleteSession(ctx, "sess-1"))

	// Same key, new generation: the old buffer must be gone.
	require.NoError(t, s.CreateSession(ctx, "sess-1"))

	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, SessionActive, sess.Status)

	events, err := s.ReadEvents(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, events, "stale events must not survive a key reset")
}

func TestSQLiteStore_DeleteExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateSession(ctx, "sess-old"))
	require.NoError(t, s.AppendEvent(ctx, "sess-old", 1, []byte(`{}`)))

	// Nothing is older than an hour
	deleted, err := s.DeleteExpiredSessions(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	// A zero TTL expires everything touched up to now
	deleted, err = s.DeleteExpiredSessions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.GetSession(ctx, "sess-old")
	assert.ErrorIs(t, err, ErrNotFound)

	events, err := s.ReadEvents(ctx, "sess-old", 0)
	require.NoError(t, err)
	assert.Empty(t, events, "expiry removes the event log with the session")
}

func TestSQLiteStore_ClientRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	_, ok, err := s.Get(ctx, "draft:conn-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "draft:conn-1", "hello"))
	require.NoError(t, s.Set(ctx, "draft:conn-1", "hello world"))

	value, ok, err := s.Get(ctx, "draft:conn-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello world", value, "last write wins")

	require.NoError(t, s.Delete(ctx, "draft:conn-1"))
	require.NoError(t, s.Delete(ctx, "draft:conn-1"), "deleting a missing key is not an error")

	_, ok, err = s.Get(ctx, "draft:conn-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	ctx := t.Context()

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.CreateSession(ctx, "sess-1"))
	require.NoError(t, first.AppendEvent(ctx, "sess-1", 1, []byte(`survives`)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	events, err := second.ReadEvents(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []byte(`survives`), events[0].Payload)
}
