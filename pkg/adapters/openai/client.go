// Package openai adapts OpenAI-compatible chat-completion services (OpenAI,
// OpenRouter, local gateways) to ports.ChatCompleter.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-5-nano"

const serviceName = "chat-completion"

// Config holds the connection settings of a chat-completion service.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Temperature is sent only when non-nil; some reasoning models reject it.
	Temperature *float64
	MaxTokens   int64
	Timeout     time.Duration
}

// Client implements ports.ChatCompleter with openai-go.
type Client struct {
	client openai.Client
	cfg    Config
	logger *slog.Logger
}

var _ ports.ChatCompleter = (*Client)(nil)

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger      *slog.Logger
	requestOpts []option.RequestOption
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithRequestOptions appends raw openai-go request options, e.g. option.WithHTTPClient.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(o *clientOptions) {
		o.requestOpts = append(o.requestOpts, opts...)
	}
}

// New creates a chat-completion client. Retries are disabled: a failed
// submission surfaces to the caller as an upstream error.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("chat-completion API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	o := clientOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	reqOpts = append(reqOpts, o.requestOpts...)

	return &Client{
		client: openai.NewClient(reqOpts...),
		cfg:    cfg,
		logger: o.logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete submits the conversation and returns the first choice.
func (c *Client) Complete(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.cfg.Model),
		Messages: toMessageParams(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = toToolParams(req.Tools)
	}
	if c.cfg.Temperature != nil {
		params.Temperature = openai.Float(*c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.cfg.MaxTokens)
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.logger.ErrorContext(ctx, "chat completion rejected", "status", apiErr.StatusCode, "model", c.cfg.Model, "error", err)
			return nil, domain.NewUpstreamError(serviceName, fmt.Errorf("status %d: %w", apiErr.StatusCode, err))
		}
		c.logger.ErrorContext(ctx, "chat completion failed", "model", c.cfg.Model, "error", err)
		return nil, domain.NewUpstreamError(serviceName, err)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.NewUpstreamError(serviceName, domain.ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	c.logger.DebugContext(ctx, "chat completion",
		"model", resp.Model,
		"finish_reason", choice.FinishReason,
		"tool_calls", len(choice.Message.ToolCalls),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start),
	)

	return &ports.ChatResponse{
		Message:      fromMessage(choice.Message),
		FinishReason: choice.FinishReason,
	}, nil
}
