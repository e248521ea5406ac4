// Package history provides SQLite-backed local persistence of completed
// transcript messages, so a returning visitor sees earlier conversations.
// Sessions themselves are never persisted; only finished messages are.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/workspace/chat-client/internal/transcript"
)

// Store persists transcript messages per agent, backed by SQLite.
// All methods are nil-safe: a nil *Store is a no-op, used when the
// history database cannot be opened.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the history database at the given path, creating
// parent directories as needed.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: set busy timeout: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_agent ON messages(agent_id, created_at);
	`)
	return err
}

// Append records one completed message. INSERT OR IGNORE keeps the call
// idempotent on the message id.
func (s *Store) Append(agentID string, msg transcript.Message) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO messages (id, agent_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, agentID, string(msg.Role), msg.Content,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: insert message: %w", err)
	}
	return nil
}

// Recent returns up to limit of the agent's most recent messages, oldest
// first so they can seed a transcript directly.
func (s *Store) Recent(agentID string, limit int) ([]transcript.Message, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, role, content, created_at FROM messages
		 WHERE agent_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query messages: %w", err)
	}
	defer rows.Close()

	var newestFirst []transcript.Message
	for rows.Next() {
		var msg transcript.Message
		var role, createdAt string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan message: %w", err)
		}
		msg.Role = transcript.Role(role)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			msg.CreatedAt = ts
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate messages: %w", err)
	}

	// Reverse into chronological order.
	out := make([]transcript.Message, len(newestFirst))
	for i, msg := range newestFirst {
		out[len(out)-1-i] = msg
	}
	return out, nil
}

// Prune deletes all but the newest keep messages per agent. Called at
// startup so the database stays bounded.
func (s *Store) Prune(agentID string, keep int) error {
	if s == nil || keep <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`DELETE FROM messages WHERE agent_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE agent_id = ?
			ORDER BY created_at DESC LIMIT ?
		)`,
		agentID, agentID, keep,
	)
	if err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	return nil
}
