// Package runtime implements the bounded tool-calling conversation loop.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/internal/prompt"
	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
	"golang.org/x/sync/errgroup"
)

const (
	serviceChat  = "chat-completion"
	serviceTools = "tool-provider"
)

// Driver runs one query at a time against a chat-completion service, executing
// the tool calls the model requests until it answers in plain text.
//
// A Driver keeps no conversation state. The history is passed into Run and the
// extended history is returned, so one Driver can serve concurrent requests.
type Driver struct {
	chat  ports.ChatCompleter
	tools ports.ToolProvider

	instructions string
	maxHops      int
	chatTimeout  time.Duration
	toolTimeout  time.Duration
	concurrency  int
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
}

// Result is the outcome of a successful Run.
type Result struct {
	Answer      string
	History     domain.History
	ToolCalls   []domain.ToolCallRecord
	Hops        int
	Submissions int
	// Forced is set when the answer came from the tool-less submission made after the budget ran out.
	Forced bool
}

// NewDriver creates a driver with dependencies.
func NewDriver(chat ports.ChatCompleter, tools ports.ToolProvider, opts ...Option) *Driver {
	d := &Driver{
		chat:         chat,
		tools:        tools,
		instructions: prompt.Developer(),
		maxHops:      domain.DefaultMaxHops,
		concurrency:  1,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxHops returns the configured hop budget.
func (d *Driver) MaxHops() int {
	return domain.NewHopBudget(d.maxHops).Max()
}

// Run answers query in the context of history.
//
// An empty history starts a new conversation with the developer instructions.
// Failed tool calls are reported to the model and never abort the run.
// Errors match domain.ErrUpstream or domain.ErrBudgetExhausted.
func (d *Driver) Run(ctx context.Context, history domain.History, query string) (res *Result, err error) {
	budget := domain.NewHopBudget(d.maxHops)
	res = &Result{}
	defer func() {
		d.emitAnswer(ctx, res, budget, err)
		if err != nil {
			res = nil
		}
	}()

	if history.IsEmpty() && d.instructions != "" {
		history = history.Append(domain.NewDeveloperMessage(d.instructions))
	}
	history = history.Append(domain.NewUserMessage(query))

	descriptors, err := d.tools.ListTools(ctx)
	if err != nil {
		return res, asUpstream(serviceTools, fmt.Errorf("list tools: %w", err))
	}
	advertised := make(map[string]bool, len(descriptors))
	for _, t := range descriptors {
		advertised[t.Name] = true
	}

	for {
		forced := budget.Exhausted()
		var offered []domain.ToolDescriptor
		if !forced {
			offered = descriptors
		}

		msg, err := d.submit(ctx, history, offered, budget, forced)
		res.Submissions++
		if err != nil {
			return res, err
		}
		history = history.Append(msg)
		res.History = history

		if !msg.HasToolCalls() {
			if strings.TrimSpace(msg.Content) == "" {
				if forced {
					return res, &domain.BudgetExhaustedError{History: history}
				}
				return res, domain.NewUpstreamError(serviceChat, domain.ErrEmptyResponse)
			}
			res.Answer = msg.Content
			res.Forced = forced
			return res, nil
		}

		if forced {
			// Keep the history valid: every call gets an answer even though none runs.
			for _, call := range msg.ToolCalls {
				history = history.Append(domain.NewToolMessage(call, prompt.BudgetExhaustedToolResult, true))
			}
			res.History = history
			d.logger.WarnContext(ctx, "model requested tools after budget was spent",
				"calls", len(msg.ToolCalls), "max_hops", budget.Max())
			return res, &domain.BudgetExhaustedError{Partial: msg.Content, History: history}
		}

		hop := budget.Used() + 1
		records := d.dispatch(ctx, hop, msg.ToolCalls, advertised)
		for i, rec := range records {
			history = history.Append(domain.NewToolMessage(msg.ToolCalls[i], rec.Result, rec.IsError))
		}
		res.ToolCalls = append(res.ToolCalls, records...)

		budget.Spend()
		res.Hops = budget.Used()
		history = history.Append(domain.NewSystemMessage(prompt.HopNudge(budget.Remaining())))
		res.History = history

		if d.hooks.OnHop != nil {
			d.hooks.OnHop(ctx, &domain.HopEvent{
				EventBase: d.event(ctx, domain.EventHop),
				Hop:       hop,
				Calls:     len(records),
				Remaining: budget.Remaining(),
			})
		}
		d.logger.DebugContext(ctx, "hop complete", "hop", hop, "calls", len(records), "remaining", budget.Remaining())
	}
}

func (d *Driver) submit(ctx context.Context, history domain.History, tools []domain.ToolDescriptor, budget domain.HopBudget, forced bool) (domain.Message, error) {
	if d.hooks.OnSubmit != nil {
		d.hooks.OnSubmit(ctx, &domain.SubmitEvent{
			EventBase: d.event(ctx, domain.EventSubmit),
			Messages:  history.Len(),
			Tools:     len(tools),
			Remaining: budget.Remaining(),
			Forced:    forced,
		})
	}

	if d.chatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.chatTimeout)
		defer cancel()
	}

	resp, err := d.chat.Complete(ctx, ports.ChatRequest{
		Messages: history.Messages(),
		Tools:    tools,
	})
	if err != nil {
		return domain.Message{}, asUpstream(serviceChat, err)
	}
	if resp == nil {
		return domain.Message{}, domain.NewUpstreamError(serviceChat, domain.ErrEmptyResponse)
	}

	msg := resp.Message
	msg.Role = domain.RoleAssistant
	return msg, nil
}

// dispatch executes calls and returns one record per call, in request order.
func (d *Driver) dispatch(ctx context.Context, hop int, calls []domain.ToolCall, advertised map[string]bool) []domain.ToolCallRecord {
	records := make([]domain.ToolCallRecord, len(calls))
	if d.concurrency < 2 || len(calls) < 2 {
		for i, call := range calls {
			records[i] = d.invoke(ctx, hop, call, advertised[call.Name])
		}
		return records
	}

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			records[i] = d.invoke(ctx, hop, call, advertised[call.Name])
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func (d *Driver) invoke(ctx context.Context, hop int, call domain.ToolCall, advertised bool) domain.ToolCallRecord {
	rec := domain.ToolCallRecord{
		Hop:       hop,
		CallID:    call.ID,
		ToolName:  call.Name,
		Arguments: call.Arguments,
	}

	if d.hooks.OnToolCall != nil {
		d.hooks.OnToolCall(ctx, &domain.ToolEvent{
			EventBase:  d.event(ctx, domain.EventToolCall),
			CallID:     call.ID,
			ToolName:   call.Name,
			Advertised: advertised,
			Input:      rec.Arguments,
		})
	}

	start := time.Now()
	out, err := d.callTool(ctx, call)
	switch {
	case err != nil:
		rec.Err = &domain.ToolInvocationError{CallID: call.ID, Tool: call.Name, Err: err}
		rec.Result = errorPayload(err.Error())
		rec.IsError = true
	case out.IsError:
		rec.Err = &domain.ToolInvocationError{CallID: call.ID, Tool: call.Name, Err: errors.New(out.Content)}
		rec.Result = out.Content
		if strings.TrimSpace(rec.Result) == "" {
			rec.Result = errorPayload("tool reported an error")
		}
		rec.IsError = true
	default:
		rec.Result = out.Content
	}
	elapsed := time.Since(start)

	if rec.Err != nil {
		d.logger.WarnContext(ctx, "tool call failed", "tool", call.Name, "call_id", call.ID, "error", rec.Err)
	} else {
		d.logger.DebugContext(ctx, "tool call succeeded", "tool", call.Name, "call_id", call.ID, "duration", elapsed)
	}

	if d.hooks.OnToolReturn != nil {
		d.hooks.OnToolReturn(ctx, &domain.ToolEvent{
			EventBase:  d.event(ctx, domain.EventToolReturn),
			CallID:     call.ID,
			ToolName:   call.Name,
			Advertised: advertised,
			Input:      rec.Arguments,
			Output:     rec.Result,
			IsError:    rec.IsError,
			Duration:   elapsed,
		})
	}
	return rec
}

func (d *Driver) callTool(ctx context.Context, call domain.ToolCall) (*domain.ToolOutput, error) {
	args, err := call.DecodeArguments()
	if err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}

	if d.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.toolTimeout)
		defer cancel()
	}

	out, err := d.tools.CallTool(ctx, call.Name, args)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return &domain.ToolOutput{}, nil
	}
	return out, nil
}

func (d *Driver) emitAnswer(ctx context.Context, res *Result, budget domain.HopBudget, err error) {
	if err != nil {
		d.logger.ErrorContext(ctx, "query failed", "hops", budget.Used(), "submissions", res.Submissions, "error", err)
	} else {
		d.logger.InfoContext(ctx, "query answered", "hops", res.Hops, "submissions", res.Submissions, "forced", res.Forced)
	}
	if d.hooks.OnAnswer != nil {
		d.hooks.OnAnswer(ctx, &domain.AnswerEvent{
			EventBase: d.event(ctx, domain.EventAnswer),
			Hops:      budget.Used(),
			Forced:    res.Forced,
			Err:       err,
		})
	}
}

func (d *Driver) event(ctx context.Context, t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: time.Now(),
		Type:      t,
		RequestID: domain.RequestIDFromContext(ctx),
	}
}

// asUpstream wraps err unless it already carries a service attribution.
func asUpstream(service string, err error) error {
	var up *domain.UpstreamError
	if errors.As(err, &up) {
		return err
	}
	return domain.NewUpstreamError(service, err)
}

func errorPayload(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}
