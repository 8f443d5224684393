// Package threads maps chat conversations to remote assistant threads and
// decides which conversations may use the bot.
package threads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/observability"
)

// ThreadCreator opens a new remote conversation thread.
type ThreadCreator interface {
	CreateThread(ctx context.Context) (string, error)
}

// Mapping is one persisted conversation to thread row.
type Mapping struct {
	ConversationID string
	ThreadID       string
	CreatedAt      time.Time
}

// Config configures a Store.
type Config struct {
	// Driver is "sqlite", "sqlite3" or "postgres".
	Driver string
	DSN    string

	Allowlist *Allowlist
	Creator   ThreadCreator
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Store persists conversation to thread mappings.
//
// The chats table is created on first use. Creation is idempotent, so
// several processes starting against the same database is safe.
type Store struct {
	db      *sql.DB
	dialect dialect
	allow   *Allowlist
	creator ThreadCreator
	logger  *slog.Logger
	metrics *observability.Metrics

	schemaMu    sync.Mutex
	schemaReady bool
}

// Open connects to the configured database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("thread store dsn is required")
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if d.isSQLite() {
		// One writer at a time, and :memory: databases are per connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &StorageError{Op: "connect", Err: err}
	}

	return newStore(db, d, cfg), nil
}

// New wraps an existing database handle.
func New(db *sql.DB, cfg Config) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return newStore(db, d, cfg), nil
}

func newStore(db *sql.DB, d dialect, cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	allow := cfg.Allowlist
	if allow == nil {
		allow = NewAllowlist(nil)
	}
	return &Store{
		db:      db,
		dialect: d,
		allow:   allow,
		creator: cfg.Creator,
		logger:  logger.With("component", "threads"),
		metrics: cfg.Metrics,
	}
}

// Allowlist returns the allow-list consulted by Resolve.
func (s *Store) Allowlist() *Allowlist {
	return s.allow
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Resolve returns the thread for conversationID, creating and persisting one
// on first contact.
//
// Conversations not on the allow-list fail with *AuthorizationError before
// anything else happens. Database failures are *StorageError. When two
// callers race to create the first thread for a conversation, both receive
// the thread that was stored first.
func (s *Store) Resolve(ctx context.Context, conversationID string) (string, error) {
	conversationID = strings.TrimSpace(conversationID)
	if !s.allow.Allowed(conversationID) {
		s.metrics.ThreadResolved("unauthorized")
		s.logger.WarnContext(ctx, "unauthorized conversation", "conversation_id", conversationID)
		return "", &AuthorizationError{ConversationID: conversationID}
	}

	if err := s.EnsureSchema(ctx); err != nil {
		s.metrics.ThreadResolved("error")
		return "", err
	}

	threadID, found, err := s.Lookup(ctx, conversationID)
	if err != nil {
		s.metrics.ThreadResolved("error")
		return "", err
	}
	if found {
		s.metrics.ThreadResolved("hit")
		s.logger.DebugContext(ctx, "existing thread found", "conversation_id", conversationID, "thread_id", threadID)
		return threadID, nil
	}

	if s.creator == nil {
		s.metrics.ThreadResolved("error")
		return "", errors.New("thread store has no thread creator")
	}
	created, err := s.creator.CreateThread(ctx)
	if err != nil {
		s.metrics.ThreadResolved("error")
		return "", fmt.Errorf("create thread: %w", err)
	}

	inserted, err := s.insert(ctx, conversationID, created)
	if err != nil {
		s.metrics.ThreadResolved("error")
		return "", err
	}
	if inserted {
		s.metrics.ThreadResolved("created")
		s.logger.InfoContext(ctx, "new thread created", "conversation_id", conversationID, "thread_id", created)
		return created, nil
	}

	winner, found, err := s.Lookup(ctx, conversationID)
	if err != nil {
		s.metrics.ThreadResolved("error")
		return "", err
	}
	if !found {
		s.metrics.ThreadResolved("error")
		return "", &StorageError{Op: "insert", Err: errors.New("conflicting row vanished before read-back")}
	}
	s.metrics.ThreadResolved("raced")
	s.logger.InfoContext(ctx, "lost thread creation race, using stored thread",
		"conversation_id", conversationID, "thread_id", winner, "discarded_thread_id", created)
	return winner, nil
}

// EnsureSchema creates the chats table if it does not exist. A failed
// attempt is retried on the next call.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}

	const ddl = `CREATE TABLE IF NOT EXISTS chats (
	chat_id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		// Concurrent CREATE TABLE IF NOT EXISTS can still fail on some
		// databases when another process wins; accept it if the table is there.
		if _, probeErr := s.db.ExecContext(ctx, "SELECT 1 FROM chats WHERE 1 = 0"); probeErr != nil {
			return &StorageError{Op: "init schema", Err: err}
		}
	}
	s.schemaReady = true
	return nil
}

// Lookup returns the stored thread for conversationID.
func (s *Store) Lookup(ctx context.Context, conversationID string) (string, bool, error) {
	var threadID string
	err := s.db.QueryRowContext(ctx,
		s.dialect.bind("SELECT thread_id FROM chats WHERE chat_id = ?"),
		conversationID,
	).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "lookup", Err: err}
	}
	return threadID, true, nil
}

// insert stores the mapping unless one already exists and reports whether
// this call's row was written.
func (s *Store) insert(ctx context.Context, conversationID, threadID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.dialect.bind("INSERT INTO chats (chat_id, thread_id) VALUES (?, ?) ON CONFLICT (chat_id) DO NOTHING"),
		conversationID, threadID,
	)
	if err != nil {
		return false, &StorageError{Op: "insert", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "insert", Err: err}
	}
	return n > 0, nil
}

// List returns every stored mapping ordered by conversation id.
func (s *Store) List(ctx context.Context) ([]Mapping, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT chat_id, thread_id, created_at FROM chats ORDER BY chat_id")
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var (
			m       Mapping
			created string
		)
		if err := rows.Scan(&m.ConversationID, &m.ThreadID, &created); err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		m.CreatedAt = parseTimestamp(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return out, nil
}

// Forget removes the mapping for conversationID so the next message starts a
// fresh thread. It reports whether a row was removed.
func (s *Store) Forget(ctx context.Context, conversationID string) (bool, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		s.dialect.bind("DELETE FROM chats WHERE chat_id = ?"),
		strings.TrimSpace(conversationID),
	)
	if err != nil {
		return false, &StorageError{Op: "forget", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "forget", Err: err}
	}
	return n > 0, nil
}

// parseTimestamp accepts the text forms drivers hand back for created_at.
// database/sql renders driver time.Time values as RFC 3339 when scanning
// into a string; SQLite stores CURRENT_TIMESTAMP as "2006-01-02 15:04:05".
func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
