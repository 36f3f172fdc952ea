package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/branchchat/tot/model"
)

// MemStore keeps search records and conversations in memory. Data is lost
// when the process exits; use it for tests and single-process development.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]SearchRecord
	closed  bool

	conversations map[int64]Conversation
	messages      map[int64]Message
	lastID        int64
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		records:       make(map[string]SearchRecord),
		conversations: make(map[int64]Conversation),
		messages:      make(map[int64]Message),
	}
}

// SaveSearch implements Store.
func (m *MemStore) SaveSearch(ctx context.Context, rec SearchRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records[rec.RunID] = rec
	return nil
}

// LoadSearch implements Store.
func (m *MemStore) LoadSearch(ctx context.Context, runID string) (SearchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return SearchRecord{}, ErrClosed
	}
	rec, ok := m.records[runID]
	if !ok {
		return SearchRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListSearches implements Store.
func (m *MemStore) ListSearches(ctx context.Context, limit int) ([]SearchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make([]SearchRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements Store.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CreateConversation implements ConversationStore.
func (m *MemStore) CreateConversation(ctx context.Context, name string, branchFrom *int64) (Conversation, error) {
	if err := validateConversationName(name); err != nil {
		return Conversation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Conversation{}, ErrClosed
	}
	if branchFrom != nil {
		if _, ok := m.messages[*branchFrom]; !ok {
			return Conversation{}, fmt.Errorf("branch message %d: %w", *branchFrom, ErrNotFound)
		}
	}

	m.lastID++
	conv := Conversation{ID: m.lastID, Name: name, MessageID: copyID(branchFrom), CreatedAt: now()}
	m.conversations[conv.ID] = conv
	return conv, nil
}

// GetConversation implements ConversationStore.
func (m *MemStore) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Conversation{}, ErrClosed
	}
	conv, ok := m.conversations[id]
	if !ok {
		return Conversation{}, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	return conv, nil
}

// ListConversations implements ConversationStore.
func (m *MemStore) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make([]Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBranches implements ConversationStore.
func (m *MemStore) ListBranches(ctx context.Context, conversationID int64) ([]Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := []Conversation{}
	for _, conv := range m.conversations {
		if conv.MessageID == nil {
			continue
		}
		if parent, ok := m.messages[*conv.MessageID]; ok && parent.ConversationID == conversationID {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddMessage implements ConversationStore.
func (m *MemStore) AddMessage(ctx context.Context, msg Message) (Message, error) {
	if err := validateMessage(msg); err != nil {
		return Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Message{}, ErrClosed
	}
	conv, ok := m.conversations[msg.ConversationID]
	if !ok {
		return Message{}, fmt.Errorf("conversation %d: %w", msg.ConversationID, ErrNotFound)
	}

	m.lastID++
	msg.ID = m.lastID
	msg.CreatedAt = now()
	msg.NumOfChildren = 0
	msg.ReferredMessageID = copyID(msg.ReferredMessageID)
	m.messages[msg.ID] = msg

	if conv.MessageID != nil && msg.Role == model.RoleAssistant {
		if parent, ok := m.messages[*conv.MessageID]; ok {
			parent.NumOfChildren++
			m.messages[parent.ID] = parent
		}
	}
	return msg, nil
}

// GetMessage implements ConversationStore.
func (m *MemStore) GetMessage(ctx context.Context, id int64) (Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Message{}, ErrClosed
	}
	msg, ok := m.messages[id]
	if !ok {
		return Message{}, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	msg.ReferredMessageID = copyID(msg.ReferredMessageID)
	return msg, nil
}

// UpdateMessage implements ConversationStore.
func (m *MemStore) UpdateMessage(ctx context.Context, id int64, content, reasoningSummary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	msg, ok := m.messages[id]
	if !ok {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	msg.Content = content
	msg.ReasoningSummary = reasoningSummary
	m.messages[id] = msg
	return nil
}

// ListMessages implements ConversationStore.
func (m *MemStore) ListMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := []Message{}
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			msg.ReferredMessageID = copyID(msg.ReferredMessageID)
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
