package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/finchat/pkg/domain"
)

// Option configures a Driver.
type Option func(*Driver)

// WithMaxHops sets the number of tool-bearing round trips allowed per query.
func WithMaxHops(n int) Option {
	return func(d *Driver) {
		d.maxHops = n
	}
}

// WithInstructions sets the developer message that opens a fresh conversation.
func WithInstructions(text string) Option {
	return func(d *Driver) {
		d.instructions = text
	}
}

// WithChatTimeout bounds each chat-completion round trip. Zero disables the bound.
func WithChatTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		d.chatTimeout = timeout
	}
}

// WithToolTimeout bounds each tool invocation. Zero disables the bound.
func WithToolTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		d.toolTimeout = timeout
	}
}

// WithToolConcurrency lets up to n calls of the same hop run at once.
// Results are still appended in request order. Values below 2 keep execution sequential.
func WithToolConcurrency(n int) Option {
	return func(d *Driver) {
		d.concurrency = n
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(d *Driver) {
		d.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the driver.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}
