package runtime_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
)

// scriptedChat answers each submission with respond and records every request.
type scriptedChat struct {
	mu       sync.Mutex
	requests []ports.ChatRequest
	respond  func(n int, req ports.ChatRequest) (*ports.ChatResponse, error)
}

func (c *scriptedChat) Complete(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	n := len(c.requests) - 1
	c.mu.Unlock()
	return c.respond(n, req)
}

func (c *scriptedChat) Requests() []ports.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.ChatRequest(nil), c.requests...)
}

// sequence replays responses in order and repeats the last one.
func sequence(responses ...*ports.ChatResponse) func(int, ports.ChatRequest) (*ports.ChatResponse, error) {
	return func(n int, _ ports.ChatRequest) (*ports.ChatResponse, error) {
		if n >= len(responses) {
			n = len(responses) - 1
		}
		return responses[n], nil
	}
}

func text(s string) *ports.ChatResponse {
	return &ports.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: s}, FinishReason: "stop"}
}

func toolCalls(calls ...domain.ToolCall) *ports.ChatResponse {
	return &ports.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, ToolCalls: calls}, FinishReason: "tool_calls"}
}

func call(id, name, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: args}
}

type invocation struct {
	Name string
	Args map[string]any
}

// fakeTools serves a fixed tool list and dispatches calls to handlers.
type fakeTools struct {
	mu       sync.Mutex
	tools    []domain.ToolDescriptor
	handlers map[string]func(ctx context.Context, args map[string]any) (*domain.ToolOutput, error)
	calls    []invocation
	listErr  error
}

func newFakeTools() *fakeTools {
	return &fakeTools{
		tools: []domain.ToolDescriptor{
			{
				Name:        "get_balance",
				Description: "Current balance of an account",
				Parameters:  domain.ToolParameters{Properties: map[string]any{"account": map[string]any{"type": "string"}}},
			},
			{
				Name:        "run_sparql",
				Description: "Run a SPARQL query",
				Parameters: domain.ToolParameters{
					Properties: map[string]any{"query": map[string]any{"type": "string"}},
					Required:   []string{"query"},
				},
			},
		},
		handlers: map[string]func(context.Context, map[string]any) (*domain.ToolOutput, error){},
	}
}

func (f *fakeTools) handle(name string, fn func(ctx context.Context, args map[string]any) (*domain.ToolOutput, error)) *fakeTools {
	f.handlers[name] = fn
	return f
}

func (f *fakeTools) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeTools) CallTool(ctx context.Context, name string, args map[string]any) (*domain.ToolOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, invocation{Name: name, Args: args})
	h, ok := f.handlers[name]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return h(ctx, args)
}

func (f *fakeTools) Calls() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invocation(nil), f.calls...)
}

func okOutput(s string) func(context.Context, map[string]any) (*domain.ToolOutput, error) {
	return func(context.Context, map[string]any) (*domain.ToolOutput, error) {
		return &domain.ToolOutput{Content: s}, nil
	}
}

func messagesWithRole(msgs []domain.Message, role domain.Role) []domain.Message {
	var out []domain.Message
	for _, m := range msgs {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}
