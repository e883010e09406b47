package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/finchat"
	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/internal/presentation/tui"
	"github.com/aretw0/finchat/pkg/domain"
)

// Asker answers queries within a conversation.
type Asker interface {
	Ask(ctx context.Context, conversationID, query string) (*finchat.Answer, error)
}

// ChatOptions configure the interactive loop.
type ChatOptions struct {
	ConversationID string
	Render         tui.Renderer
	Prompt         string
	Logger         *slog.Logger
}

// Chat reads queries line by line from in and writes answers to out until
// "exit", "quit", end of input or cancellation. Query failures are reported
// and the loop continues.
func Chat(ctx context.Context, agent Asker, in io.Reader, out io.Writer, opts ChatOptions) error {
	if opts.Render == nil {
		opts.Render = tui.PlainRenderer
	}
	if opts.Prompt == "" {
		opts.Prompt = "> "
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printSystemMessage(out, "Conversation '%s' active. Type 'exit' to quit.", opts.ConversationID)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		readErr <- err
	}()

	for {
		fmt.Fprint(out, opts.Prompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "[CTRL+C]")
			return ctx.Err()
		case err := <-readErr:
			fmt.Fprintln(out)
			return err
		case line = <-lines:
		}

		query := strings.TrimSpace(line)
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit":
			printSystemMessage(out, "Bye!")
			return nil
		}

		answer, err := agent.Ask(ctx, opts.ConversationID, query)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			opts.Logger.ErrorContext(ctx, "Query failed", "err", err)
			printSystemMessage(out, "%s", describe(err))
			continue
		}

		rendered, err := opts.Render(answer.Text)
		if err != nil {
			rendered = answer.Text + "\n"
		}
		fmt.Fprint(out, rendered)
		opts.Logger.DebugContext(ctx, "Answered", "hops", answer.Hops, "tool_calls", len(answer.ToolCalls))
	}
}

// describe turns a query error into a message for the terminal user.
func describe(err error) string {
	var budget *domain.BudgetExhaustedError
	var upstream *domain.UpstreamError
	switch {
	case errors.As(err, &budget):
		if budget.Partial != "" {
			return "No final answer within the hop budget. Last reply: " + budget.Partial
		}
		return "No final answer within the hop budget."
	case errors.As(err, &upstream):
		return fmt.Sprintf("The %s service failed: %v", upstream.Service, upstream.Err)
	default:
		return "Error: " + err.Error()
	}
}
