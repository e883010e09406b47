package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/finchat/internal/prompt"
	"github.com/aretw0/finchat/internal/runtime"
	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_BalanceScenario(t *testing.T) {
	chat := &scriptedChat{respond: sequence(
		toolCalls(call("call_1", "get_balance", `{}`)),
		text("Your balance is 1000 CHF."),
	)}
	tools := newFakeTools().handle("get_balance", okOutput(`{"balance": 1000, "currency": "CHF"}`))

	driver := runtime.NewDriver(chat, tools)
	res, err := driver.Run(context.Background(), domain.History{}, "What is my balance?")
	require.NoError(t, err)

	assert.Equal(t, "Your balance is 1000 CHF.", res.Answer)
	assert.Len(t, tools.Calls(), 1)
	assert.Equal(t, 1, res.Hops)
	assert.Equal(t, 2, res.Submissions)
	assert.False(t, res.Forced)

	reqs := chat.Requests()
	require.Len(t, reqs, 2)
	toolMsgs := messagesWithRole(reqs[1].Messages, domain.RoleTool)
	require.Len(t, toolMsgs, 1)
	assert.Equal(t, "call_1", toolMsgs[0].ToolCallID)
	assert.Equal(t, "get_balance", toolMsgs[0].Name)
	assert.JSONEq(t, `{"balance": 1000, "currency": "CHF"}`, toolMsgs[0].Content)
	assert.Empty(t, res.History.PendingToolCalls())
}

func TestDriver_PlainAnswerSkipsTools(t *testing.T) {
	chat := &scriptedChat{respond: sequence(text("Hello!"))}
	tools := newFakeTools()

	res, err := runtime.NewDriver(chat, tools).Run(context.Background(), domain.History{}, "hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello!", res.Answer)
	assert.Empty(t, tools.Calls())
	assert.Equal(t, 0, res.Hops)
	assert.Equal(t, 1, res.Submissions)

	reqs := chat.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Tools, 2, "tools are advertised on the first submission")
	require.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, domain.RoleDeveloper, reqs[0].Messages[0].Role)
	assert.Equal(t, prompt.Developer(), reqs[0].Messages[0].Content)
	assert.Equal(t, domain.NewUserMessage("hi"), reqs[0].Messages[1])
}

func TestDriver_ContinuationSkipsInstructions(t *testing.T) {
	chat := &scriptedChat{respond: sequence(text("Second answer"))}
	prior := domain.NewHistory(
		domain.NewDeveloperMessage("persona"),
		domain.NewUserMessage("first"),
		domain.Message{Role: domain.RoleAssistant, Content: "First answer"},
	)

	res, err := runtime.NewDriver(chat, newFakeTools()).Run(context.Background(), prior, "second")
	require.NoError(t, err)

	msgs := chat.Requests()[0].Messages
	require.Len(t, msgs, 4)
	assert.Len(t, messagesWithRole(msgs, domain.RoleDeveloper), 1)
	assert.Equal(t, "second", msgs[3].Content)
	assert.Equal(t, 5, res.History.Len())
	assert.Equal(t, 3, prior.Len())
}

func TestDriver_AnswersEveryCallInOrder(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			chat := &scriptedChat{respond: sequence(
				toolCalls(
					call("a", "get_balance", `{"account":"a"}`),
					call("b", "get_balance", `{"account":"b"}`),
					call("c", "get_balance", `{"account":"c"}`),
				),
				text("done"),
			)}
			tools := newFakeTools().handle("get_balance", func(ctx context.Context, args map[string]any) (*domain.ToolOutput, error) {
				// Later calls finish first when run concurrently.
				if args["account"] == "a" {
					time.Sleep(20 * time.Millisecond)
				}
				return &domain.ToolOutput{Content: fmt.Sprintf("balance of %v", args["account"])}, nil
			})

			driver := runtime.NewDriver(chat, tools, runtime.WithToolConcurrency(concurrency))
			res, err := driver.Run(context.Background(), domain.History{}, "balances?")
			require.NoError(t, err)

			toolMsgs := messagesWithRole(chat.Requests()[1].Messages, domain.RoleTool)
			require.Len(t, toolMsgs, 3)
			for i, id := range []string{"a", "b", "c"} {
				assert.Equal(t, id, toolMsgs[i].ToolCallID)
				assert.Equal(t, "balance of "+id, toolMsgs[i].Content)
			}
			require.Len(t, res.ToolCalls, 3)
			assert.Equal(t, 1, res.Hops, "several calls in one round spend one hop")
		})
	}
}

func TestDriver_BudgetExhausted(t *testing.T) {
	chat := &scriptedChat{respond: sequence(toolCalls(call("loop", "get_balance", `{}`)))}
	tools := newFakeTools().handle("get_balance", okOutput(`{"balance": 1}`))

	driver := runtime.NewDriver(chat, tools, runtime.WithMaxHops(4))
	res, err := driver.Run(context.Background(), domain.History{}, "keep going")

	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrBudgetExhausted)

	assert.Len(t, tools.Calls(), 4, "never a fifth tool round")
	reqs := chat.Requests()
	require.Len(t, reqs, 5)
	for i := 0; i < 4; i++ {
		assert.NotEmpty(t, reqs[i].Tools, "submission %d offers tools", i)
	}
	assert.Empty(t, reqs[4].Tools, "forced submission offers no tools")

	var budgetErr *domain.BudgetExhaustedError
	require.True(t, errors.As(err, &budgetErr))
	assert.Empty(t, budgetErr.History.PendingToolCalls())
	last, ok := budgetErr.History.Last()
	require.True(t, ok)
	assert.Equal(t, domain.RoleTool, last.Role)
	assert.Equal(t, prompt.BudgetExhaustedToolResult, last.Content)
}

func TestDriver_ForcedFinalAnswer(t *testing.T) {
	chat := &scriptedChat{respond: func(n int, req ports.ChatRequest) (*ports.ChatResponse, error) {
		if len(req.Tools) == 0 {
			return text("Best effort answer."), nil
		}
		return toolCalls(call(fmt.Sprintf("c%d", n), "get_balance", `{}`)), nil
	}}
	tools := newFakeTools().handle("get_balance", okOutput("1"))

	res, err := runtime.NewDriver(chat, tools, runtime.WithMaxHops(2)).Run(context.Background(), domain.History{}, "q")
	require.NoError(t, err)

	assert.Equal(t, "Best effort answer.", res.Answer)
	assert.True(t, res.Forced)
	assert.Equal(t, 2, res.Hops)
	assert.Equal(t, 3, res.Submissions)
	assert.Len(t, tools.Calls(), 2)
}

func TestDriver_HopNudgeCountsDown(t *testing.T) {
	chat := &scriptedChat{respond: func(n int, req ports.ChatRequest) (*ports.ChatResponse, error) {
		if n < 3 {
			return toolCalls(call(fmt.Sprintf("c%d", n), "get_balance", `{}`)), nil
		}
		return text("ok"), nil
	}}
	tools := newFakeTools().handle("get_balance", okOutput("1"))

	res, err := runtime.NewDriver(chat, tools, runtime.WithMaxHops(4)).Run(context.Background(), domain.History{}, "q")
	require.NoError(t, err)

	var nudges []string
	for _, m := range messagesWithRole(res.History.Messages(), domain.RoleSystem) {
		nudges = append(nudges, m.Content)
	}
	assert.Equal(t, []string{prompt.HopNudge(3), prompt.HopNudge(2), prompt.HopNudge(1)}, nudges)
	assert.Equal(t, 3, res.Hops)
}

func TestDriver_ToolFailureIsAbsorbed(t *testing.T) {
	chat := &scriptedChat{respond: sequence(
		toolCalls(call("c1", "run_sparql", `{"query":"SELECT"}`)),
		text("Sorry, I could not read the database."),
	)}
	tools := newFakeTools().handle("run_sparql", func(context.Context, map[string]any) (*domain.ToolOutput, error) {
		return nil, errors.New("endpoint unreachable")
	})

	res, err := runtime.NewDriver(chat, tools).Run(context.Background(), domain.History{}, "q")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I could not read the database.", res.Answer)

	toolMsgs := messagesWithRole(chat.Requests()[1].Messages, domain.RoleTool)
	require.Len(t, toolMsgs, 1)
	assert.True(t, toolMsgs[0].IsError)
	assert.Equal(t, "c1", toolMsgs[0].ToolCallID)
	assert.Contains(t, toolMsgs[0].Content, "endpoint unreachable")

	require.Len(t, res.ToolCalls, 1)
	assert.ErrorIs(t, res.ToolCalls[0].Err, domain.ErrToolInvocation)
}

func TestDriver_ToolFailureModes(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		handler func(context.Context, map[string]any) (*domain.ToolOutput, error)
		opts    []runtime.Option
		want    string
	}{
		{
			name:    "tool reports error",
			args:    `{}`,
			handler: func(context.Context, map[string]any) (*domain.ToolOutput, error) { return &domain.ToolOutput{Content: "no such account", IsError: true}, nil },
			want:    "no such account",
		},
		{
			name:    "malformed arguments",
			args:    `{"account":`,
			handler: okOutput("unused"),
			want:    "decode arguments",
		},
		{
			name: "timeout",
			args: `{}`,
			handler: func(ctx context.Context, _ map[string]any) (*domain.ToolOutput, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			opts: []runtime.Option{runtime.WithToolTimeout(10 * time.Millisecond)},
			want: "deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &scriptedChat{respond: sequence(toolCalls(call("c1", "get_balance", tt.args)), text("answer"))}
			tools := newFakeTools().handle("get_balance", tt.handler)

			res, err := runtime.NewDriver(chat, tools, tt.opts...).Run(context.Background(), domain.History{}, "q")
			require.NoError(t, err)
			assert.Equal(t, "answer", res.Answer)

			toolMsgs := messagesWithRole(chat.Requests()[1].Messages, domain.RoleTool)
			require.Len(t, toolMsgs, 1)
			assert.True(t, toolMsgs[0].IsError)
			assert.Contains(t, toolMsgs[0].Content, tt.want)
		})
	}
}

func TestDriver_UpstreamFailures(t *testing.T) {
	t.Run("empty response", func(t *testing.T) {
		chat := &scriptedChat{respond: sequence(text("   "))}
		_, err := runtime.NewDriver(chat, newFakeTools()).Run(context.Background(), domain.History{}, "q")
		assert.ErrorIs(t, err, domain.ErrUpstream)
		assert.ErrorIs(t, err, domain.ErrEmptyResponse)
	})

	t.Run("chat error is not retried", func(t *testing.T) {
		chat := &scriptedChat{respond: func(int, ports.ChatRequest) (*ports.ChatResponse, error) {
			return nil, errors.New("401 unauthorized")
		}}
		_, err := runtime.NewDriver(chat, newFakeTools()).Run(context.Background(), domain.History{}, "q")
		assert.ErrorIs(t, err, domain.ErrUpstream)
		assert.Len(t, chat.Requests(), 1)

		var up *domain.UpstreamError
		require.True(t, errors.As(err, &up))
		assert.Equal(t, "chat-completion", up.Service)
	})

	t.Run("tool list failure", func(t *testing.T) {
		chat := &scriptedChat{respond: sequence(text("unused"))}
		tools := newFakeTools()
		tools.listErr = errors.New("subprocess exited")

		_, err := runtime.NewDriver(chat, tools).Run(context.Background(), domain.History{}, "q")
		assert.ErrorIs(t, err, domain.ErrUpstream)
		assert.Empty(t, chat.Requests())

		var up *domain.UpstreamError
		require.True(t, errors.As(err, &up))
		assert.Equal(t, "tool-provider", up.Service)
	})

	t.Run("chat timeout", func(t *testing.T) {
		chat := &scriptedChat{respond: func(int, ports.ChatRequest) (*ports.ChatResponse, error) {
			time.Sleep(50 * time.Millisecond)
			return nil, context.DeadlineExceeded
		}}
		_, err := runtime.NewDriver(chat, newFakeTools(), runtime.WithChatTimeout(time.Millisecond)).
			Run(context.Background(), domain.History{}, "q")
		assert.ErrorIs(t, err, domain.ErrUpstream)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestDriver_ConcurrentRunsDoNotShareHistory(t *testing.T) {
	// Echo the last user message after one tool round so that any cross-talk
	// between runs shows up in the answers.
	chat := &scriptedChat{respond: func(_ int, req ports.ChatRequest) (*ports.ChatResponse, error) {
		users := messagesWithRole(req.Messages, domain.RoleUser)
		last := users[len(users)-1].Content
		if len(messagesWithRole(req.Messages, domain.RoleTool)) == 0 {
			return toolCalls(call("id-"+last, "get_balance", `{}`)), nil
		}
		return text("echo: " + last), nil
	}}
	tools := newFakeTools().handle("get_balance", okOutput("1"))
	driver := runtime.NewDriver(chat, tools, runtime.WithToolConcurrency(2))

	base := domain.NewHistory(domain.NewDeveloperMessage("persona"))
	const workers = 16

	var wg sync.WaitGroup
	results := make([]*runtime.Result, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = driver.Run(context.Background(), base, fmt.Sprintf("query-%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		q := fmt.Sprintf("query-%d", i)
		assert.Equal(t, "echo: "+q, results[i].Answer)

		users := messagesWithRole(results[i].History.Messages(), domain.RoleUser)
		require.Len(t, users, 1)
		assert.Equal(t, q, users[0].Content)
		for _, m := range messagesWithRole(results[i].History.Messages(), domain.RoleTool) {
			assert.Equal(t, "id-"+q, m.ToolCallID)
		}
	}
	assert.Equal(t, 1, base.Len())
}

func TestDriver_LifecycleHooks(t *testing.T) {
	chat := &scriptedChat{respond: sequence(
		toolCalls(call("c1", "get_balance", `{}`), call("c2", "run_sparql", `{"query":"x"}`)),
		text("done"),
	)}
	tools := newFakeTools().
		handle("get_balance", okOutput("1")).
		handle("run_sparql", func(context.Context, map[string]any) (*domain.ToolOutput, error) { return nil, errors.New("bad query") })

	var submits, hops, answers atomic.Int32
	var mu sync.Mutex
	var returned []string
	hooks := domain.LifecycleHooks{
		OnSubmit: func(ctx context.Context, e *domain.SubmitEvent) { submits.Add(1) },
		OnHop: func(ctx context.Context, e *domain.HopEvent) {
			hops.Add(1)
			assert.Equal(t, 2, e.Calls)
			assert.Equal(t, "req-7", e.RequestID)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			mu.Lock()
			defer mu.Unlock()
			returned = append(returned, fmt.Sprintf("%s:%v", e.ToolName, e.IsError))
		},
		OnAnswer: func(ctx context.Context, e *domain.AnswerEvent) {
			answers.Add(1)
			assert.NoError(t, e.Err)
			assert.Equal(t, 1, e.Hops)
		},
	}

	ctx := domain.ContextWithRequestID(context.Background(), "req-7")
	_, err := runtime.NewDriver(chat, tools, runtime.WithLifecycleHooks(hooks)).Run(ctx, domain.History{}, "q")
	require.NoError(t, err)

	assert.EqualValues(t, 2, submits.Load())
	assert.EqualValues(t, 1, hops.Load())
	assert.EqualValues(t, 1, answers.Load())
	assert.Equal(t, []string{"get_balance:false", "run_sparql:true"}, returned)
}

func TestDriver_ToolEventsFlagUnofferedTools(t *testing.T) {
	chat := &scriptedChat{respond: sequence(
		toolCalls(call("c1", "get_balance", `{}`), call("c2", "transfer_money", `{}`)),
		text("done"),
	)}
	tools := newFakeTools().handle("get_balance", okOutput("1"))

	var mu sync.Mutex
	advertised := map[string]bool{}
	hooks := domain.LifecycleHooks{
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			mu.Lock()
			defer mu.Unlock()
			advertised[e.ToolName] = e.Advertised
		},
	}

	res, err := runtime.NewDriver(chat, tools, runtime.WithLifecycleHooks(hooks)).Run(context.Background(), domain.History{}, "q")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	assert.Equal(t, map[string]bool{"get_balance": true, "transfer_money": false}, advertised)
	assert.True(t, res.ToolCalls[1].IsError, "the provider still reports the unknown tool")
}
