package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSubmit     EventType = "submit"
	EventHop        EventType = "hop"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
	EventAnswer     EventType = "answer"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
}

// SubmitEvent is emitted before each chat-completion submission.
type SubmitEvent struct {
	EventBase
	Messages  int  `json:"messages"`
	Tools     int  `json:"tools"`
	Remaining int  `json:"remaining"`
	Forced    bool `json:"forced,omitempty"`
}

// HopEvent is emitted after a tool round has been answered and a hop spent.
type HopEvent struct {
	EventBase
	Hop       int `json:"hop"`
	Calls     int `json:"calls"`
	Remaining int `json:"remaining"`
}

// ToolEvent represents a tool execution. Advertised is false when the model
// named a tool it was not offered.
type ToolEvent struct {
	EventBase
	CallID     string        `json:"call_id"`
	ToolName   string        `json:"tool_name"`
	Advertised bool          `json:"advertised"`
	Input      string        `json:"input,omitempty"`
	Output     string        `json:"output,omitempty"`
	IsError    bool          `json:"is_error,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// AnswerEvent is emitted once per query, whatever the outcome.
type AnswerEvent struct {
	EventBase
	Hops   int   `json:"hops"`
	Forced bool  `json:"forced,omitempty"`
	Err    error `json:"-"`
}

// LifecycleHooks defines callbacks for driver observability.
// Nil callbacks are skipped.
type LifecycleHooks struct {
	OnSubmit     func(context.Context, *SubmitEvent)
	OnHop        func(context.Context, *HopEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
	OnAnswer     func(context.Context, *AnswerEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnSubmit:     chain(h.OnSubmit, other.OnSubmit),
		OnHop:        chain(h.OnHop, other.OnHop),
		OnToolCall:   chain(h.OnToolCall, other.OnToolCall),
		OnToolReturn: chain(h.OnToolReturn, other.OnToolReturn),
		OnAnswer:     chain(h.OnAnswer, other.OnAnswer),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

type requestIDKey struct{}

// ContextWithRequestID tags ctx with a request identifier carried into emitted events.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the identifier set by ContextWithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
