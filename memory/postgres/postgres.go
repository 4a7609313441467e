// Package postgres is an alternative conversation store backend for
// deployments that already run PostgreSQL instead of keeping a local
// SQLite file. Semantics match the sqlite backend.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantops/factory-mcp/memory"
)

// Store implements memory.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store over an existing pool. Run Migration against the
// database before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migration is the DDL for the tables this store owns.
const Migration = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id BIGSERIAL PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    ts TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id, id);
`

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, convID, title string) error {
	now := memory.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, title, summary, created_at, updated_at)
		VALUES ($1, $2, '', $3, $3)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			updated_at = EXCLUDED.updated_at`,
		convID, title, now,
	)
	if err != nil {
		return fmt.Errorf("memory: create conversation: %w", err)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, convID, role, content string) error {
	ts := memory.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("memory: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, title, summary, created_at, updated_at)
		VALUES ($1, '', '', $2, $2)
		ON CONFLICT (id) DO NOTHING`,
		convID, ts,
	)
	if err != nil {
		return fmt.Errorf("memory: ensure conversation: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (conversation_id, role, content, ts)
		VALUES ($1, $2, $3, $4)`,
		convID, role, content, ts,
	)
	if err != nil {
		return fmt.Errorf("memory: insert message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
		ts, convID,
	)
	if err != nil {
		return fmt.Errorf("memory: touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("memory: commit append: %w", err)
	}
	return nil
}

func (s *Store) LoadMessages(ctx context.Context, convID string, limit int) ([]memory.Message, error) {
	if limit <= 0 {
		limit = memory.DefaultLoadLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, ts
		FROM messages
		WHERE conversation_id = $1
		ORDER BY id DESC
		LIMIT $2`,
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

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) GetSummary(ctx context.Context, convID string) (string, error) {
	var summary string
	err := s.pool.QueryRow(ctx,
		`SELECT summary FROM conversations WHERE id = $1`, convID,
	).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: get summary: %w", err)
	}
	return summary, nil
}

func (s *Store) SetSummary(ctx context.Context, convID, summary string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET summary = $1, updated_at = $2
		WHERE id = $3`,
		summary, memory.Now(), convID,
	)
	if err != nil {
		return fmt.Errorf("memory: set summary: %w", err)
	}
	return nil
}

func (s *Store) ClearConversation(ctx context.Context, convID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("memory: begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE conversation_id = $1`, convID,
	); err != nil {
		return fmt.Errorf("memory: delete messages: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversations
		SET summary = '', updated_at = $1
		WHERE id = $2`,
		memory.Now(), convID,
	); err != nil {
		return fmt.Errorf("memory: reset summary: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("memory: commit clear: %w", err)
	}
	return nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]memory.ConversationListing, error) {
	if limit <= 0 {
		limit = memory.DefaultListLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, left(summary, $1) AS summary_preview, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT $2`,
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
