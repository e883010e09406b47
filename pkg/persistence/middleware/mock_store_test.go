package middleware_test

import (
	"context"

	"github.com/aretw0/finchat/pkg/domain"
)

// MockStore is a simple map-based store for testing middleware.
type MockStore struct {
	data map[string]*domain.Conversation
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.Conversation),
	}
}

func (m *MockStore) Save(ctx context.Context, conv *domain.Conversation) error {
	m.data[conv.ID] = conv.Snapshot()
	return nil
}

func (m *MockStore) Load(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, ok := m.data[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return conv.Snapshot(), nil
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	delete(m.data, id)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}
