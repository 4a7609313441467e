// Package sqlite is the durable conversation store backend. It owns the
// conversations and messages tables in the memory database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/plantops/factory-mcp/factorydb"
	"github.com/plantops/factory-mcp/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    ts TEXT NOT NULL,
    FOREIGN KEY(conversation_id) REFERENCES conversations(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id, id);
`

// Store is the SQLite-backed memory.Store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the memory database at path, applies the
// schema, and returns the store. The handle is read-write with WAL
// enabled: the chat loop writes on every exchange while listings read
// concurrently.
func Open(path string) (*Store, error) {
	db, err := factorydb.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateConversation(ctx context.Context, convID, title string) error {
	now := memory.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, summary, created_at, updated_at)
		VALUES (?, ?, '', ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at`,
		convID, title, now, now,
	)
	if err != nil {
		return fmt.Errorf("memory: create conversation: %w", err)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, convID, role, content string) error {
	ts := memory.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Idempotent lazy create: a conversation must exist before any
	// message referencing it, and two concurrent first-appends must
	// not race each other into a failure.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, summary, created_at, updated_at)
		VALUES (?, '', '', ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		convID, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("memory: ensure conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, ts)
		VALUES (?, ?, ?, ?)`,
		convID, role, content, ts,
	)
	if err != nil {
		return fmt.Errorf("memory: insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		ts, convID,
	)
	if err != nil {
		return fmt.Errorf("memory: touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("memory: commit append: %w", err)
	}
	return nil
}

func (s *Store) LoadMessages(ctx context.Context, convID string, limit int) ([]memory.Message, error) {
	if limit <= 0 {
		limit = memory.DefaultLoadLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, ts
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		convID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: load messages: %w", err)
	}
	defer rows.Close()

	var msgs []memory.Message
	for rows.Next() {
		var m memory.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.TS); err != nil {
			return nil, fmt.Errorf("memory: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: load messages: %w", err)
	}

	// The query selects newest-first; the contract is oldest-first
	// within the window.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) GetSummary(ctx context.Context, convID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM conversations WHERE id = ?`, convID,
	).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: get summary: %w", err)
	}
	return summary, nil
}

func (s *Store) SetSummary(ctx context.Context, convID, summary string) error {
	// No-op when the conversation does not exist: the WHERE clause
	// simply matches nothing.
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET summary = ?, updated_at = ?
		WHERE id = ?`,
		summary, memory.Now(), convID,
	)
	if err != nil {
		return fmt.Errorf("memory: set summary: %w", err)
	}
	return nil
}

func (s *Store) ClearConversation(ctx context.Context, convID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?`, convID,
	); err != nil {
		return fmt.Errorf("memory: delete messages: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET summary = '', updated_at = ?
		WHERE id = ?`,
		memory.Now(), convID,
	); err != nil {
		return fmt.Errorf("memory: reset summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("memory: commit clear: %w", err)
	}
	return nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]memory.ConversationListing, error) {
	if limit <= 0 {
		limit = memory.DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, substr(summary, 1, ?) AS summary_preview, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT ?`,
		memory.SummaryPreviewLength, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: list conversations: %w", err)
	}
	defer rows.Close()

	var listings []memory.ConversationListing
	for rows.Next() {
		var l memory.ConversationListing
		if err := rows.Scan(&l.ID, &l.Title, &l.SummaryPreview, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan conversation: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: list conversations: %w", err)
	}
	return listings, nil
}

var _ memory.Store = (*Store)(nil)
