package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/finchat/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunConversationStoreContract runs a suite of tests to verify that a ConversationStore
// implementation adheres to the defined interface contract.
func RunConversationStoreContract(t *testing.T, store ConversationStore) {
	ctx := context.Background()
	convID := "contract-test-conv-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		conv := domain.NewConversation(convID)
		conv.History = domain.NewHistory(
			domain.NewUserMessage("what is my balance?"),
			domain.Message{
				Role:      domain.RoleAssistant,
				ToolCalls: []domain.ToolCall{{ID: "call_1", Name: "get_balance", Arguments: `{"account":"main"}`}},
			},
			domain.NewToolMessage(domain.ToolCall{ID: "call_1", Name: "get_balance"}, `{"balance":12.5}`, false),
		)

		require.NoError(t, store.Save(ctx, conv), "Save should not return error")

		loaded, err := store.Load(ctx, convID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, convID, loaded.ID)
		require.Equal(t, 3, loaded.History.Len())
		assert.Equal(t, "what is my balance?", loaded.History.At(0).Content)
		assert.Equal(t, "get_balance", loaded.History.At(1).ToolCalls[0].Name)
		assert.JSONEq(t, `{"account":"main"}`, loaded.History.At(1).ToolCalls[0].Arguments)
		assert.Equal(t, "call_1", loaded.History.At(2).ToolCallID)
		assert.Empty(t, loaded.History.PendingToolCalls())
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+convID)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewConversation(convID)))

		require.NoError(t, store.Delete(ctx, convID), "Delete should not return error")

		_, err := store.Load(ctx, convID)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound, "Load after Delete should return ErrConversationNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := convID + "-1"
		id2 := convID + "-2"
		require.NoError(t, store.Save(ctx, domain.NewConversation(id1)))
		require.NoError(t, store.Save(ctx, domain.NewConversation(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
