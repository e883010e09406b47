package ports

import (
	"context"

	"github.com/aretw0/finchat/pkg/domain"
)

// ToolProvider exposes the tools the model may call.
type ToolProvider interface {
	// ListTools returns the advertised tools. Implementations may cache the list.
	ListTools(ctx context.Context) ([]domain.ToolDescriptor, error)

	// CallTool invokes name with the decoded arguments.
	// A tool that ran but reported failure returns an output with IsError set and a nil error.
	CallTool(ctx context.Context, name string, args map[string]any) (*domain.ToolOutput, error)
}
