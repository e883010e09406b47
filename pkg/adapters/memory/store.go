// Package memory provides an in-process conversation store.
package memory

import (
	"context"
	"sync"

	"github.com/aretw0/finchat/pkg/domain"
)

// Store implements ports.ConversationStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Conversation
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Conversation),
	}
}

// Save persists a copy of the conversation.
func (s *Store) Save(ctx context.Context, conv *domain.Conversation) error {
	copied := conv.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[conv.ID] = copied
	return nil
}

// Load returns a copy so callers cannot mutate stored conversations.
func (s *Store) Load(ctx context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.data[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return conv.Snapshot(), nil
}

// Delete removes the conversation.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns stored conversation IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}
