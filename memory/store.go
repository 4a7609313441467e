// Package memory defines the conversation persistence contract: an
// append-only per-conversation message log plus one mutable summary
// slot per conversation. Backends live in the sqlite and postgres
// subpackages; an in-memory implementation in this package backs tests
// and ephemeral runs.
package memory

import (
	"context"
	"time"
)

// TimeLayout is the timestamp format persisted by every backend. It is
// fixed-width UTC with microsecond precision so that lexical order on
// the stored text equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Now returns the current UTC time in TimeLayout.
func Now() string {
	return time.Now().UTC().Format(TimeLayout)
}

// Message is one entry in a conversation's log. IDs are assigned by the
// store in insertion order; TS is assigned at append time, so ordering
// by ID and by TS coincide within a conversation.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	TS             string `json:"ts"`
}

// Conversation is the per-conversation metadata row. IDs are supplied
// by the caller, never generated by the store.
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ConversationListing is one entry returned by ListConversations. The
// summary is truncated to a preview; full summaries come from
// GetSummary.
type ConversationListing struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	SummaryPreview string `json:"summary_preview"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// SummaryPreviewLength is how much of a summary ListConversations
// returns.
const SummaryPreviewLength = 80

// DefaultLoadLimit is the message window size when the caller passes a
// non-positive limit to LoadMessages.
const DefaultLoadLimit = 50

// DefaultListLimit is the listing size when the caller passes a
// non-positive limit to ListConversations.
const DefaultListLimit = 20

// Store is the conversation persistence contract.
//
// Missing conversations are never a fault: GetSummary degrades to an
// empty string, SetSummary and ClearConversation to no-ops, and
// AppendMessage materializes the conversation instead. Returned errors
// are reserved for infrastructure failures.
type Store interface {
	// CreateConversation upserts a conversation: on conflict the title
	// and updated_at are refreshed, created_at and summary survive.
	CreateConversation(ctx context.Context, convID, title string) error

	// AppendMessage inserts a message with a store-assigned id and
	// timestamp, and refreshes the conversation's updated_at in the
	// same transaction. A missing conversation is created implicitly
	// with an empty title.
	AppendMessage(ctx context.Context, convID, role, content string) error

	// LoadMessages returns the most recent limit messages in
	// chronological order: the oldest message of the selected window
	// comes first.
	LoadMessages(ctx context.Context, convID string, limit int) ([]Message, error)

	// GetSummary returns the stored summary, or "" when the
	// conversation does not exist or has none.
	GetSummary(ctx context.Context, convID string) (string, error)

	// SetSummary overwrites the summary and refreshes updated_at. It
	// does not create a missing conversation.
	SetSummary(ctx context.Context, convID, summary string) error

	// ClearConversation deletes every message and resets the summary,
	// keeping the conversation row itself. Atomic; no-op on a missing
	// conversation.
	ClearConversation(ctx context.Context, convID string) error

	// ListConversations returns conversations by recency of activity,
	// most recently updated first.
	ListConversations(ctx context.Context, limit int) ([]ConversationListing, error)

	// Close releases the backend's resources.
	Close() error
}

// Preview truncates a summary for listing output.
func Preview(summary string) string {
	if len(summary) > SummaryPreviewLength {
		return summary[:SummaryPreviewLength]
	}
	return summary
}
