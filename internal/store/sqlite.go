// ABOUTME: SQLite implementation of StreamBuffer and kv.Store using modernc.org/sqlite.
// ABOUTME: Provides stream session/event persistence with automatic schema creation.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/stream-relay/internal/kv"
)

// SQLiteStore implements StreamBuffer plus the client record key-value
// capability on a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS stream_sessions (
			session_key TEXT PRIMARY KEY,
			status      TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			CHECK (status IN ('active', 'completed'))
		);

		CREATE INDEX IF NOT EXISTS idx_stream_sessions_updated
			ON stream_sessions(updated_at);

		CREATE TABLE IF NOT EXISTS stream_events (
			session_key TEXT NOT NULL,
			seq         INTEGER NOT NULL,
			payload     BLOB NOT NULL,
			created_at  TEXT NOT NULL,

			PRIMARY KEY (session_key, seq)
		);

		CREATE TABLE IF NOT EXISTS client_records (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateSession registers a new active session under the given key.
// An existing session with the same key is reset and its buffered events
// discarded; the key belongs to the new generation from here on.
func (s *SQLiteStore) CreateSession(ctx context.Context, key string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning session transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stream_events WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("clearing stale events: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO stream_sessions (session_key, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, key, SessionActive, now, now); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session transaction: %w", err)
	}

	s.logger.Debug("created stream session", "session_key", key)
	return nil
}

// GetSession retrieves session metadata by key.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) GetSession(ctx context.Context, key string) (*StreamSession, error) {
	query := `
		SELECT session_key, status, created_at, updated_at
		FROM stream_sessions
		WHERE session_key = ?
	`

	var sess StreamSession
	var status, createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&sess.Key,
		&status,
		&createdAtStr,
		&updatedAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	sess.Status = SessionStatus(status)
	sess.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	sess.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &sess, nil
}

// CompleteSession marks a session completed.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) CompleteSession(ctx context.Context, key string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx, `
		UPDATE stream_sessions SET status = ?, updated_at = ? WHERE session_key = ?
	`, SessionCompleted, now, key)
	if err != nil {
		return fmt.Errorf("completing session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("completed stream session", "session_key", key)
	return nil
}

// AppendEvent adds one event to a session's ordered log and refreshes the
// session's updated_at so active sessions don't expire mid-generation.
func (s *SQLiteStore) AppendEvent(ctx context.Context, key string, seq int64, payload []byte) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_events (session_key, seq, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, key, seq, payload, now)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE stream_sessions SET updated_at = ? WHERE session_key = ?
	`, now, key); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}

	return nil
}

// ReadEvents returns buffered events past afterSeq in sequence order.
func (s *SQLiteStore) ReadEvents(ctx context.Context, key string, afterSeq int64) ([]*BufferedEvent, error) {
	query := `
		SELECT session_key, seq, payload, created_at
		FROM stream_events
		WHERE session_key = ? AND seq > ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, key, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*BufferedEvent
	for rows.Next() {
		var evt BufferedEvent
		var createdAtStr string

		if err := rows.Scan(&evt.SessionKey, &evt.Seq, &evt.Payload, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}

		evt.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing event created_at: %w", err)
		}

		events = append(events, &evt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	return events, nil
}

// DeleteExpiredSessions removes sessions not touched within the TTL,
// along with their buffered events.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl).UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning expiry transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM stream_events WHERE session_key IN (
			SELECT session_key FROM stream_sessions WHERE updated_at <= ?
		)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("deleting expired events: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM stream_sessions WHERE updated_at <= ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing expiry transaction: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired stream sessions", "count", rowsAffected)
	}
	return rowsAffected, nil
}

// Get returns the client record for a key, implementing kv.Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_records WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying client record: %w", err)
	}
	return value, true, nil
}

// Set writes a client record, last write wins.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO client_records (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("saving client record: %w", err)
	}
	return nil
}

// Delete removes a client record. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM client_records WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting client record: %w", err)
	}
	return nil
}

// Ensure SQLiteStore implements StreamBuffer and the client record capability
var (
	_ StreamBuffer = (*SQLiteStore)(nil)
	_ kv.Store     = (*SQLiteStore)(nil)
)
