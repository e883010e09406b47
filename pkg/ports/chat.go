package ports

import (
	"context"

	"github.com/aretw0/finchat/pkg/domain"
)

// ChatRequest is one submission to the chat-completion service.
// An empty Tools slice means the model is not offered any tools.
type ChatRequest struct {
	Messages []domain.Message
	Tools    []domain.ToolDescriptor
}

// ChatResponse is the first choice returned by the service.
type ChatResponse struct {
	Message      domain.Message
	FinishReason string
}

// ChatCompleter submits a conversation to a chat-completion service.
// Implementations must wrap failures in *domain.UpstreamError and must not retry.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
