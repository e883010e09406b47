package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const serviceName = "tool-provider"

// ErrPoolClosed is returned by calls made after Close.
var ErrPoolClosed = errors.New("tool provider pool closed")

// Session is the subset of the mcp-go client used by the pool.
type Session interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens a new, not yet initialized, session.
type Dialer func(ctx context.Context) (Session, error)

// LaunchConfig describes the tool-provider subprocess.
type LaunchConfig struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Environ renders Env as KEY=VALUE pairs in a stable order.
func (c LaunchConfig) Environ() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}

func (c LaunchConfig) String() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// StdioDialer launches the configured command and speaks MCP over its stdin/stdout.
// The subprocess inherits the current environment plus cfg.Env.
func StdioDialer(cfg LaunchConfig) Dialer {
	return func(ctx context.Context) (Session, error) {
		if cfg.Command == "" {
			return nil, errors.New("tool provider command is not configured")
		}
		c, err := client.NewStdioMCPClient(cfg.Command, cfg.Environ(), cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("launch %q: %w", cfg.String(), err)
		}
		return c, nil
	}
}

// Pool implements ports.ToolProvider over a single lazily established MCP session.
//
// The session is opened on first use and shared by all callers. A failed
// handshake is retried on the next call. When a call fails and the session no
// longer answers pings, the session is dropped and reopened on the next use.
type Pool struct {
	dial       Dialer
	clientInfo mcp.Implementation
	cacheTTL   time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	session   Session
	tools     []domain.ToolDescriptor
	fetchedAt time.Time
	closed    bool
}

var _ ports.ToolProvider = (*Pool)(nil)

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithToolCacheTTL sets how long a fetched tool list is reused. Zero keeps it for the life of the session.
func WithToolCacheTTL(ttl time.Duration) PoolOption {
	return func(p *Pool) {
		p.cacheTTL = ttl
	}
}

// WithClientInfo sets the implementation name and version sent in the handshake.
func WithClientInfo(name, version string) PoolOption {
	return func(p *Pool) {
		p.clientInfo = mcp.Implementation{Name: name, Version: version}
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a pool. No subprocess is started until the first call.
func NewPool(dial Dialer, opts ...PoolOption) *Pool {
	p := &Pool{
		dial:       dial,
		clientInfo: mcp.Implementation{Name: "finchat", Version: "dev"},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect opens the session eagerly. It is optional; every call connects on demand.
func (p *Pool) Connect(ctx context.Context) error {
	_, err := p.ListTools(ctx)
	return err
}

// ListTools returns the tool list, fetching it when the cache is empty or stale.
func (p *Pool) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.acquireLocked(ctx)
	if err != nil {
		return nil, err
	}
	if p.tools != nil && (p.cacheTTL <= 0 || time.Since(p.fetchedAt) < p.cacheTTL) {
		return p.tools, nil
	}

	res, err := session.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		p.dropLocked(session)
		return nil, domain.NewUpstreamError(serviceName, fmt.Errorf("list tools: %w", err))
	}

	tools := make([]domain.ToolDescriptor, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, toDescriptor(t))
	}
	p.tools = tools
	p.fetchedAt = time.Now()
	p.logger.DebugContext(ctx, "tool list fetched", "tools", len(tools))
	return tools, nil
}

// CallTool invokes a tool. Tool-reported failures come back as an output with IsError set.
func (p *Pool) CallTool(ctx context.Context, name string, args map[string]any) (*domain.ToolOutput, error) {
	p.mu.Lock()
	session, err := p.acquireLocked(ctx)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := session.CallTool(ctx, req)
	if err != nil {
		p.checkHealth(session)
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	return toOutput(res), nil
}

// Close terminates the session and its subprocess. Later calls fail with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	p.tools = nil
	return err
}

func (p *Pool) acquireLocked(ctx context.Context) (Session, error) {
	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.session != nil {
		return p.session, nil
	}

	session, err := p.dial(ctx)
	if err != nil {
		return nil, domain.NewUpstreamError(serviceName, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = p.clientInfo
	info, err := session.Initialize(ctx, req)
	if err != nil {
		_ = session.Close()
		return nil, domain.NewUpstreamError(serviceName, fmt.Errorf("initialize: %w", err))
	}

	p.logger.InfoContext(ctx, "tool provider connected",
		"server", info.ServerInfo.Name, "version", info.ServerInfo.Version, "protocol", info.ProtocolVersion)
	p.session = session
	p.tools = nil
	return session, nil
}

// checkHealth drops session when it no longer answers.
func (p *Pool) checkHealth(session Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := session.Ping(ctx); err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLocked(session)
}

func (p *Pool) dropLocked(session Session) {
	if p.session != session {
		return
	}
	p.logger.Warn("dropping tool provider session")
	_ = session.Close()
	p.session = nil
	p.tools = nil
}

func toDescriptor(t mcp.Tool) domain.ToolDescriptor {
	params := domain.ToolParameters{
		Properties: t.InputSchema.Properties,
		Required:   t.InputSchema.Required,
	}
	if len(t.RawInputSchema) > 0 {
		var raw struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if err := json.Unmarshal(t.RawInputSchema, &raw); err == nil {
			params = domain.ToolParameters{Properties: raw.Properties, Required: raw.Required}
		}
	}
	return domain.ToolDescriptor{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}

func toOutput(res *mcp.CallToolResult) *domain.ToolOutput {
	if res == nil {
		return &domain.ToolOutput{}
	}
	var parts []string
	for _, c := range res.Content {
		if text, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(data))
		}
	}
	return &domain.ToolOutput{
		Content: strings.Join(parts, "\n"),
		IsError: res.IsError,
	}
}
