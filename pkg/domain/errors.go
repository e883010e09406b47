package domain

import (
	"errors"
	"fmt"
)

// ErrUpstream is the class of failures talking to the chat-completion service
// or the tool provider. Match it with errors.Is.
var ErrUpstream = errors.New("upstream service error")

// ErrEmptyResponse is returned when the model answers with neither text nor tool calls.
var ErrEmptyResponse = errors.New("empty response from model")

// ErrBudgetExhausted is returned when the model keeps requesting tools after the hop budget is spent.
var ErrBudgetExhausted = errors.New("hop budget exhausted")

// ErrToolInvocation marks a single tool call that failed. The driver absorbs it into history.
var ErrToolInvocation = errors.New("tool invocation failed")

// ErrUnknownIntent is returned when a query matches none of the configured intents.
var ErrUnknownIntent = errors.New("unknown intent")

// ErrMissingParameter is returned when a classified intent lacks a required parameter.
var ErrMissingParameter = errors.New("missing required parameter")

// ErrConversationNotFound is returned when a conversation ID cannot be found in the store.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrInvalidConversationID is returned for IDs outside [A-Za-z0-9._-]{1,128}.
var ErrInvalidConversationID = errors.New("invalid conversation id")

// UpstreamError wraps a failure from an external service.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Service, ErrUpstream)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// NewUpstreamError wraps err as a failure of service.
func NewUpstreamError(service string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Err: err}
}

// ToolInvocationError describes a failed tool call.
type ToolInvocationError struct {
	CallID string
	Tool   string
	Err    error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %q (call %s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolInvocationError) Unwrap() error { return e.Err }

func (e *ToolInvocationError) Is(target error) bool { return target == ErrToolInvocation }

// BudgetExhaustedError carries what the driver had when it gave up.
type BudgetExhaustedError struct {
	// Partial is the last assistant text, possibly empty.
	Partial string
	History History
}

func (e *BudgetExhaustedError) Error() string {
	return ErrBudgetExhausted.Error()
}

func (e *BudgetExhaustedError) Is(target error) bool { return target == ErrBudgetExhausted }
