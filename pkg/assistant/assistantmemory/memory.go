// Package assistantmemory is an in-process ConversationStore for tests and
// single-node development.
package assistantmemory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryan12324/openassistant/pkg/assistant"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

type threadKey struct {
	userID         kernel.UserID
	source         string
	externalChatID string
}

type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[string]*assistant.Conversation
	byThread map[threadKey]string
	messages map[string][]assistant.Message
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:    make(map[string]*assistant.Conversation),
		byThread: make(map[threadKey]string),
		messages: make(map[string][]assistant.Message),
		now:      time.Now,
	}
}

func (s *MemoryStore) FindOrCreate(ctx context.Context, userID kernel.UserID, source, externalChatID string) (*assistant.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := threadKey{userID, source, externalChatID}
	if id, ok := s.byThread[key]; ok {
		c := *s.convs[id]
		return &c, nil
	}

	now := s.now().UTC()
	conv := &assistant.Conversation{
		ID:             uuid.NewString(),
		UserID:         userID,
		Source:         source,
		ExternalChatID: externalChatID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.convs[conv.ID] = conv
	s.byThread[key] = conv.ID

	c := *conv
	return &c, nil
}

func (s *MemoryStore) Get(ctx context.Context, conversationID string) (*assistant.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, assistant.ConversationNotFound(conversationID)
	}
	c := *conv
	return &c, nil
}

func (s *MemoryStore) Append(ctx context.Context, conversationID string, msgs ...assistant.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return assistant.ConversationNotFound(conversationID)
	}

	now := s.now().UTC()
	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		m.ToolCalls = slices.Clone(m.ToolCalls)
		s.messages[conversationID] = append(s.messages[conversationID], m)
	}
	conv.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Messages(ctx context.Context, conversationID string) ([]assistant.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.convs[conversationID]; !ok {
		return nil, assistant.ConversationNotFound(conversationID)
	}
	return slices.Clone(s.messages[conversationID]), nil
}

func (s *MemoryStore) Compact(ctx context.Context, conversationID string, n int, summary assistant.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[conversationID]; !ok {
		return assistant.ConversationNotFound(conversationID)
	}

	history := s.messages[conversationID]
	n = min(n, len(history))
	if summary.CreatedAt.IsZero() {
		if n > 0 {
			summary.CreatedAt = history[n-1].CreatedAt
		} else {
			summary.CreatedAt = s.now().UTC()
		}
	}

	out := make([]assistant.Message, 0, len(history)-n+1)
	out = append(out, summary)
	out = append(out, history[n:]...)
	s.messages[conversationID] = out
	return nil
}
