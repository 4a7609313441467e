package memory

import (
	"context"
	"sort"
	"sync"
)

// memStore is an in-memory Store. State is lost on process exit; it
// exists for tests and for running the chat loop without a database
// file.
type memStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]Message
	nextID        int64
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() Store {
	return &memStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
	}
}

func (s *memStore) CreateConversation(ctx context.Context, convID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := Now()
	if conv, ok := s.conversations[convID]; ok {
		conv.Title = title
		conv.UpdatedAt = now
		return nil
	}
	s.conversations[convID] = &Conversation{
		ID:        convID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *memStore) AppendMessage(ctx context.Context, convID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := Now()
	conv, ok := s.conversations[convID]
	if !ok {
		conv = &Conversation{ID: convID, CreatedAt: ts, UpdatedAt: ts}
		s.conversations[convID] = conv
	}

	s.nextID++
	s.messages[convID] = append(s.messages[convID], Message{
		ID:             s.nextID,
		ConversationID: convID,
		Role:           role,
		Content:        content,
		TS:             ts,
	})
	conv.UpdatedAt = ts
	return nil
}

func (s *memStore) LoadMessages(ctx context.Context, convID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultLoadLimit
	}

	msgs := s.messages[convID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *memStore) GetSummary(ctx context.Context, convID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[convID]
	if !ok {
		return "", nil
	}
	return conv.Summary, nil
}

func (s *memStore) SetSummary(ctx context.Context, convID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[convID]
	if !ok {
		return nil
	}
	conv.Summary = summary
	conv.UpdatedAt = Now()
	return nil
}

func (s *memStore) ClearConversation(ctx context.Context, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, convID)
	if conv, ok := s.conversations[convID]; ok {
		conv.Summary = ""
		conv.UpdatedAt = Now()
	}
	return nil
}

func (s *memStore) ListConversations(ctx context.Context, limit int) ([]ConversationListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultListLimit
	}

	listings := make([]ConversationListing, 0, len(s.conversations))
	for _, conv := range s.conversations {
		listings = append(listings, ConversationListing{
			ID:             conv.ID,
			Title:          conv.Title,
			SummaryPreview: Preview(conv.Summary),
			CreatedAt:      conv.CreatedAt,
			UpdatedAt:      conv.UpdatedAt,
		})
	}

	sort.Slice(listings, func(i, j int) bool {
		return listings[i].UpdatedAt > listings[j].UpdatedAt
	})
	if len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

func (s *memStore) Close() error {
	return nil
}

var _ Store = (*memStore)(nil)
