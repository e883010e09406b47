package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/finchat/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_AppendDoesNotAlias(t *testing.T) {
	base := domain.NewHistory(domain.NewDeveloperMessage("be terse"))
	// Give the parent spare capacity so a naive append would share it.
	base = base.Append(domain.NewUserMessage("q1"))

	a := base.Append(domain.NewUserMessage("from a"))
	b := base.Append(domain.NewUserMessage("from b"))

	assert.Equal(t, 2, base.Len())
	assert.Equal(t, "from a", a.At(2).Content)
	assert.Equal(t, "from b", b.At(2).Content)
}

func TestHistory_MessagesReturnsCopy(t *testing.T) {
	h := domain.NewHistory(domain.NewUserMessage("hello"))
	msgs := h.Messages()
	msgs[0].Content = "mutated"

	assert.Equal(t, "hello", h.At(0).Content)
}

func TestHistory_PendingToolCalls(t *testing.T) {
	call1 := domain.ToolCall{ID: "c1", Name: "get_balance"}
	call2 := domain.ToolCall{ID: "c2", Name: "list_transactions"}

	h := domain.NewHistory(
		domain.NewUserMessage("q"),
		domain.Message{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{call1, call2}},
	)
	assert.Equal(t, []string{"c1", "c2"}, h.PendingToolCalls())

	h = h.Append(domain.NewToolMessage(call1, "42", false))
	assert.Equal(t, []string{"c2"}, h.PendingToolCalls())

	h = h.Append(domain.NewToolMessage(call2, "[]", false))
	assert.Empty(t, h.PendingToolCalls())
}

func TestHistory_JSON(t *testing.T) {
	var empty domain.History
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	var decoded domain.History
	require.NoError(t, json.Unmarshal([]byte(`[{"role":"user","content":"hi"}]`), &decoded))
	require.Equal(t, 1, decoded.Len())
	assert.Equal(t, domain.RoleUser, decoded.At(0).Role)
}

func TestToolCall_DecodeArguments(t *testing.T) {
	args, err := domain.ToolCall{Arguments: " "}.DecodeArguments()
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = domain.ToolCall{Arguments: `{"limit":5}`}.DecodeArguments()
	require.NoError(t, err)
	assert.EqualValues(t, 5, args["limit"])

	_, err = domain.ToolCall{Arguments: `{broken`}.DecodeArguments()
	assert.Error(t, err)
}
