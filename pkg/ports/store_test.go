package ports_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
)

// mockStore is a map-backed ConversationStore that copies on every access to
// simulate serialization.
type mockStore struct {
	mu   sync.Mutex
	data map[string]*domain.Conversation
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]*domain.Conversation)}
}

func (m *mockStore) Save(_ context.Context, conv *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[conv.ID] = conv.Snapshot()
	return nil
}

func (m *mockStore) Load(_ context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.data[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return conv.Snapshot(), nil
}

func (m *mockStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *mockStore) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestConversationStore_Contract(t *testing.T) {
	ports.RunConversationStoreContract(t, newMockStore())
}
