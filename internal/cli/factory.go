package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/finchat"
	"github.com/aretw0/finchat/internal/config"
	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/internal/metrics"
	"github.com/aretw0/finchat/internal/prompt"
	"github.com/aretw0/finchat/pkg/adapters/file"
	"github.com/aretw0/finchat/pkg/adapters/mcp"
	"github.com/aretw0/finchat/pkg/adapters/memory"
	"github.com/aretw0/finchat/pkg/adapters/openai"
	"github.com/aretw0/finchat/pkg/adapters/redis"
	"github.com/aretw0/finchat/pkg/intent"
	"github.com/aretw0/finchat/pkg/persistence/middleware"
	"github.com/aretw0/finchat/pkg/ports"
	"github.com/aretw0/finchat/pkg/speech"
)

// BuildOptions select what Build wires beyond the configuration.
type BuildOptions struct {
	// FixtureLedger runs the built-in ledger MCP server in-process instead of launching mcp.command.
	FixtureLedger string
	Debug         bool
	WithMetrics   bool
}

// App is a fully wired agent plus the resources the commands need.
type App struct {
	Agent     *finchat.Agent
	Metrics   *metrics.Metrics
	Publisher *speech.Publisher
	Health    func(context.Context) error
	Model     string

	closers []func() error
}

// Close releases the agent and the store connection.
func (a *App) Close() error {
	errs := []error{a.Agent.Close()}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Build wires an App from cfg.
func Build(cfg *config.Config, logger *slog.Logger, opts BuildOptions) (*App, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}

	chat, err := openai.New(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, openai.WithLogger(logging.Component(logger, "openai")))
	if err != nil {
		return nil, err
	}

	tools, err := NewToolProvider(cfg.MCP, opts.FixtureLedger, logger)
	if err != nil {
		return nil, err
	}

	app := &App{Model: chat.Model()}
	store, locker, closer, err := NewStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	app.Health = func(ctx context.Context) error {
		if _, err := store.List(ctx); err != nil {
			return fmt.Errorf("conversation store: %w", err)
		}
		if _, err := app.Agent.Tools(ctx); err != nil {
			return fmt.Errorf("tool provider: %w", err)
		}
		return nil
	}

	instructions, err := prompt.LoadDeveloper(cfg.Agent.SystemPromptFile)
	if err != nil {
		return nil, err
	}
	catalog, err := intent.Load(cfg.Intents.File)
	if err != nil {
		return nil, err
	}

	agentOpts := []finchat.Option{
		finchat.WithLogger(logger),
		finchat.WithStore(store),
		finchat.WithIntents(catalog),
		finchat.WithInstructions(instructions),
		finchat.WithMaxHops(cfg.Agent.MaxHops),
		finchat.WithChatTimeout(cfg.LLM.Timeout),
		finchat.WithToolTimeout(cfg.Agent.ToolTimeout),
		finchat.WithToolConcurrency(cfg.Agent.ToolConcurrency),
	}
	if locker != nil {
		agentOpts = append(agentOpts, finchat.WithLocker(locker, cfg.Store.Redis.LockTTL))
	}
	if opts.Debug {
		agentOpts = append(agentOpts, finchat.WithLifecycleHooks(DebugHooks(logger)))
	}
	if opts.WithMetrics {
		app.Metrics = metrics.New()
		agentOpts = append(agentOpts, finchat.WithLifecycleHooks(app.Metrics.Hooks()))
	}

	app.Agent, err = finchat.New(chat, tools, agentOpts...)
	if err != nil {
		return nil, err
	}

	if cfg.Speech.Enabled {
		tts := speech.NewGoogleTTS(speech.WithEndpoint(cfg.Speech.Endpoint))
		app.Publisher = speech.NewPublisher(tts, cfg.HTTP.StaticDir, cfg.Speech.DefaultLang,
			logging.Component(logger, "speech"))
	}
	return app, nil
}

// NewToolProvider returns the MCP session pool for cfg, or for the fixture ledger when one is given.
func NewToolProvider(cfg config.MCPConfig, fixtureLedger string, logger *slog.Logger) (*mcp.Pool, error) {
	poolOpts := []mcp.PoolOption{
		mcp.WithToolCacheTTL(cfg.ToolCacheTTL),
		mcp.WithClientInfo("finchat", finchat.Version),
		mcp.WithLogger(logging.Component(logger, "mcp")),
	}

	if fixtureLedger != "" {
		ledger, err := mcp.LoadLedger(fixtureLedger)
		if err != nil {
			return nil, err
		}
		srv := mcp.NewServer(ledger, finchat.Version, logging.Component(logger, "fixture"))
		return mcp.NewPool(mcp.InProcessDialer(srv), poolOpts...), nil
	}

	if err := (&config.Config{MCP: cfg}).RequireMCP(); err != nil {
		return nil, err
	}
	launch := mcp.LaunchConfig{
		Command: cfg.Command,
		Args:    cfg.LaunchArgs(),
		Env:     cfg.Env,
	}
	logger.Debug("Tool provider configured", "command", launch.String())
	return mcp.NewPool(mcp.StdioDialer(launch), poolOpts...), nil
}

// NewStore builds the conversation store for cfg, wrapped in the configured
// redaction and encryption middleware. The locker is only set for redis.
func NewStore(cfg config.StoreConfig) (ports.ConversationStore, ports.DistributedLocker, func() error, error) {
	var (
		store  ports.ConversationStore
		locker ports.DistributedLocker
		closer func() error
	)

	switch cfg.Driver {
	case config.DriverMemory, "":
		store = memory.NewStore()
	case config.DriverFile:
		store = file.New(cfg.File.Dir)
	case config.DriverRedis:
		rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithTTL(cfg.Redis.TTL), redis.WithPrefix(cfg.Redis.Prefix))
		store, locker, closer = rs, redis.NewLocker(rs.Client(), cfg.Redis.Prefix), rs.Close
	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	var mws []middleware.Middleware
	if cfg.Redact {
		mws = append(mws, middleware.NewRedactionMiddleware())
	}
	if cfg.EncryptionKeyset != "" {
		handle, err := middleware.LoadKeyset(cfg.EncryptionKeyset)
		if err != nil {
			return nil, nil, nil, err
		}
		encrypt, err := middleware.NewEncryptionMiddleware(handle)
		if err != nil {
			return nil, nil, nil, err
		}
		mws = append(mws, encrypt)
	}
	return middleware.Chain(store, mws...), locker, closer, nil
}
