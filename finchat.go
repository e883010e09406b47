package finchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/internal/runtime"
	"github.com/aretw0/finchat/pkg/adapters/memory"
	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/intent"
	"github.com/aretw0/finchat/pkg/ports"
	"github.com/aretw0/finchat/pkg/session"
)

// Version is set at build time.
var Version = "dev"

// ErrNoClassifier is returned by Classify when no intent catalog was configured.
var ErrNoClassifier = errors.New("intent classification is not configured")

// Agent answers financial questions with a chat-completion model and the
// tools of one tool provider. It is safe for concurrent use.
type Agent struct {
	chat  ports.ChatCompleter
	tools ports.ToolProvider

	driver     *runtime.Driver
	sessions   *session.Manager
	classifier *intent.Classifier

	store      ports.ConversationStore
	locker     ports.DistributedLocker
	lockTTL    time.Duration
	catalog    *intent.Catalog
	driverOpts []runtime.Option
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
}

// Answer is the result of Ask.
type Answer struct {
	Text           string                  `json:"result"`
	ConversationID string                  `json:"conversation_id,omitempty"`
	Hops           int                     `json:"hops"`
	Forced         bool                    `json:"forced,omitempty"`
	ToolCalls      []domain.ToolCallRecord `json:"-"`
	History        domain.History          `json:"-"`
}

// Option configures the Agent.
type Option func(*Agent)

// WithStore persists conversations that are asked with an ID. Defaults to an in-memory store.
func WithStore(store ports.ConversationStore) Option {
	return func(a *Agent) {
		a.store = store
	}
}

// WithLocker serializes same-conversation requests across processes.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(a *Agent) {
		a.locker = locker
		a.lockTTL = ttl
	}
}

// WithIntents enables Classify over the given catalog.
func WithIntents(catalog *intent.Catalog) Option {
	return func(a *Agent) {
		a.catalog = catalog
	}
}

// WithMaxHops sets the hop budget per query.
func WithMaxHops(n int) Option {
	return func(a *Agent) {
		a.driverOpts = append(a.driverOpts, runtime.WithMaxHops(n))
	}
}

// WithInstructions replaces the built-in developer prompt.
func WithInstructions(text string) Option {
	return func(a *Agent) {
		a.driverOpts = append(a.driverOpts, runtime.WithInstructions(text))
	}
}

// WithChatTimeout bounds each chat-completion round trip.
func WithChatTimeout(d time.Duration) Option {
	return func(a *Agent) {
		a.driverOpts = append(a.driverOpts, runtime.WithChatTimeout(d))
	}
}

// WithToolTimeout bounds each tool invocation.
func WithToolTimeout(d time.Duration) Option {
	return func(a *Agent) {
		a.driverOpts = append(a.driverOpts, runtime.WithToolTimeout(d))
	}
}

// WithToolConcurrency lets up to n tool calls of one hop run at once.
func WithToolConcurrency(n int) Option {
	return func(a *Agent) {
		a.driverOpts = append(a.driverOpts, runtime.WithToolConcurrency(n))
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls are merged.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Agent) {
		a.hooks = a.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Agent.
func New(chat ports.ChatCompleter, tools ports.ToolProvider, opts ...Option) (*Agent, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat completer is required")
	}
	if tools == nil {
		return nil, fmt.Errorf("tool provider is required")
	}

	a := &Agent{
		chat:   chat,
		tools:  tools,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		a.store = memory.NewStore()
	}

	driverOpts := append([]runtime.Option{
		runtime.WithLogger(logging.Component(a.logger, "driver")),
		runtime.WithLifecycleHooks(a.hooks),
	}, a.driverOpts...)
	a.driver = runtime.NewDriver(chat, tools, driverOpts...)

	sessionOpts := []session.Option{session.WithLogger(logging.Component(a.logger, "session"))}
	if a.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(a.locker), session.WithLockTTL(a.lockTTL))
	}
	a.sessions = session.NewManager(a.store, sessionOpts...)

	if a.catalog != nil {
		classifier, err := intent.NewClassifier(chat, a.catalog,
			intent.WithLogger(logging.Component(a.logger, "intent")))
		if err != nil {
			return nil, err
		}
		a.classifier = classifier
	}
	return a, nil
}

// MaxHops returns the effective hop budget.
func (a *Agent) MaxHops() int {
	return a.driver.MaxHops()
}

// Ask answers query.
//
// With an empty conversationID the query runs on a fresh history that is not
// stored. Otherwise the stored conversation is continued under its lock and the
// extended history is saved once the query succeeds.
func (a *Agent) Ask(ctx context.Context, conversationID, query string) (*Answer, error) {
	if conversationID == "" {
		res, err := a.driver.Run(ctx, domain.History{}, query)
		if err != nil {
			return nil, err
		}
		return newAnswer("", res), nil
	}

	var answer *Answer
	err := a.sessions.Run(ctx, conversationID, func(ctx context.Context, conv *domain.Conversation) error {
		res, err := a.driver.Run(ctx, conv.History, query)
		if err != nil {
			return err
		}
		conv.History = res.History
		answer = newAnswer(conversationID, res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return answer, nil
}

func newAnswer(id string, res *runtime.Result) *Answer {
	return &Answer{
		Text:           res.Answer,
		ConversationID: id,
		Hops:           res.Hops,
		Forced:         res.Forced,
		ToolCalls:      res.ToolCalls,
		History:        res.History,
	}
}

// Classify maps query to one intent of the configured catalog.
func (a *Agent) Classify(ctx context.Context, query string) (*intent.Classification, error) {
	if a.classifier == nil {
		return nil, ErrNoClassifier
	}
	return a.classifier.Classify(ctx, query)
}

// Conversation returns a stored conversation.
func (a *Agent) Conversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return a.sessions.Load(ctx, id)
}

// DeleteConversation removes a stored conversation.
func (a *Agent) DeleteConversation(ctx context.Context, id string) error {
	return a.sessions.Delete(ctx, id)
}

// Conversations lists the stored conversation IDs.
func (a *Agent) Conversations(ctx context.Context) ([]string, error) {
	return a.sessions.List(ctx)
}

// Tools lists the tools the model is offered.
func (a *Agent) Tools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	return a.tools.ListTools(ctx)
}

// Close releases the tool provider and the store when they hold resources.
func (a *Agent) Close() error {
	var errs []error
	if c, ok := a.tools.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := a.store.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
