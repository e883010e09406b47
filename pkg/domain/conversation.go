package domain

import (
	"fmt"
	"regexp"
	"time"
)

// conversationIDPattern matches the IDs clients may choose. It leaves out the
// separators stores use to build keys and paths.
var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidateConversationID reports ErrInvalidConversationID for IDs a store
// cannot hold safely.
func ValidateConversationID(id string) error {
	if !conversationIDPattern.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidConversationID, id)
	}
	return nil
}

// Conversation is a persisted multi-turn chat.
type Conversation struct {
	ID        string    `json:"id"`
	History   History   `json:"history"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Sealed holds the encrypted form of History when the store encrypts at rest.
	Sealed []byte `json:"sealed,omitempty"`
}

// NewConversation creates an empty conversation.
func NewConversation(id string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot returns a copy that shares no mutable state with c.
func (c *Conversation) Snapshot() *Conversation {
	cp := *c
	cp.History = NewHistory(c.History.Messages()...)
	return &cp
}
