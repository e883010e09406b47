package ports

import (
	"context"

	"github.com/aretw0/finchat/pkg/domain"
)

// ConversationStore defines the interface for persisting conversation histories.
// This allows multi-turn chats to survive process restarts and span replicas.
type ConversationStore interface {
	// Save persists the conversation under its ID.
	Save(ctx context.Context, conv *domain.Conversation) error

	// Load retrieves the conversation for a given ID.
	// Returns domain.ErrConversationNotFound if the conversation does not exist.
	Load(ctx context.Context, id string) (*domain.Conversation, error)

	// Delete removes the conversation. Deleting a missing conversation is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored conversations.
	List(ctx context.Context) ([]string, error)
}
