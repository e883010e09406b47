package domain

import (
	"encoding/json"
	"slices"
)

// History is an append-only sequence of messages.
//
// Append never writes into the receiver's backing array, so two histories
// derived from the same parent never observe each other's messages.
type History struct {
	messages []Message
}

// NewHistory creates a history holding a copy of msgs.
func NewHistory(msgs ...Message) History {
	return History{messages: slices.Clone(msgs)}
}

// Append returns a new history with msgs added at the end.
func (h History) Append(msgs ...Message) History {
	out := make([]Message, 0, len(h.messages)+len(msgs))
	out = append(out, h.messages...)
	out = append(out, msgs...)
	return History{messages: out}
}

// Len returns the number of messages.
func (h History) Len() int {
	return len(h.messages)
}

// IsEmpty reports whether the history has no messages.
func (h History) IsEmpty() bool {
	return len(h.messages) == 0
}

// Messages returns a copy of the messages.
func (h History) Messages() []Message {
	return slices.Clone(h.messages)
}

// At returns the i-th message.
func (h History) At(i int) Message {
	return h.messages[i]
}

// Last returns the final message and false when the history is empty.
func (h History) Last() (Message, bool) {
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// PendingToolCalls returns the IDs of assistant tool calls that no tool
// message has answered yet, in request order.
func (h History) PendingToolCalls() []string {
	answered := make(map[string]bool)
	for _, m := range h.messages {
		if m.Role == RoleTool {
			answered[m.ToolCallID] = true
		}
	}
	var pending []string
	for _, m := range h.messages {
		for _, c := range m.ToolCalls {
			if !answered[c.ID] {
				pending = append(pending, c.ID)
			}
		}
	}
	return pending
}

// MarshalJSON encodes the history as a plain message array.
func (h History) MarshalJSON() ([]byte, error) {
	if h.messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.messages)
}

// UnmarshalJSON decodes a plain message array.
func (h *History) UnmarshalJSON(data []byte) error {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return err
	}
	h.messages = msgs
	return nil
}
