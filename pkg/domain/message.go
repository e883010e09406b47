package domain

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversation entry.
//
// Assistant messages may carry ToolCalls instead of (or alongside) Content.
// Tool messages answer exactly one ToolCall and must set ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// HasToolCalls reports whether the message requests at least one tool invocation.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ToolCall is a request from the model to invoke a tool.
// Arguments hold the raw JSON text sent by the model, which may be malformed.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// DecodeArguments parses the raw arguments into a map.
// Blank arguments decode to an empty map, matching what models send for
// parameterless tools.
func (c ToolCall) DecodeArguments() (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(c.Arguments) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(c.Arguments), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// NewDeveloperMessage builds the instruction message that opens a conversation.
func NewDeveloperMessage(content string) Message {
	return Message{Role: RoleDeveloper, Content: content}
}

// NewSystemMessage builds a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage builds a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewToolMessage builds the answer to a ToolCall.
func NewToolMessage(call ToolCall, content string, isError bool) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
		IsError:    isError,
	}
}
