package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/internal/prompt"
	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// Classification is the model's reading of a query.
type Classification struct {
	Intent     string            `json:"intent"`
	Parameters map[string]string `json:"parameters"`
	Sparql     string            `json:"sparql,omitempty"`
	Response   string            `json:"response,omitempty"`
}

// Classifier maps queries to intents of a Catalog.
type Classifier struct {
	chat    ports.ChatCompleter
	catalog *Catalog
	prompt  string
	logger  *slog.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithLogger sets the classifier logger.
func WithLogger(logger *slog.Logger) ClassifierOption {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClassifier builds the classification prompt for catalog.
func NewClassifier(chat ports.ChatCompleter, catalog *Catalog, opts ...ClassifierOption) (*Classifier, error) {
	tmpl, err := template.New("intent").Funcs(funcs).Parse(prompt.IntentTemplate())
	if err != nil {
		return nil, fmt.Errorf("failed to parse intent prompt: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, catalog); err != nil {
		return nil, fmt.Errorf("failed to render intent prompt: %w", err)
	}

	c := &Classifier{
		chat:    chat,
		catalog: catalog,
		prompt:  strings.TrimSpace(sb.String()),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// reply is the JSON object the model is asked to produce.
type reply struct {
	Intent     string         `json:"intent"`
	Parameters map[string]any `json:"parameters"`
}

// Classify makes one tool-less submission and validates the answer against the catalog.
// Errors match domain.ErrUpstream, domain.ErrUnknownIntent or domain.ErrMissingParameter.
func (c *Classifier) Classify(ctx context.Context, query string) (*Classification, error) {
	resp, err := c.chat.Complete(ctx, ports.ChatRequest{
		Messages: []domain.Message{
			domain.NewDeveloperMessage(c.prompt),
			domain.NewUserMessage(query),
		},
	})
	if err != nil {
		return nil, err
	}

	var r reply
	if err := json.Unmarshal([]byte(stripFence(resp.Message.Content)), &r); err != nil {
		c.logger.WarnContext(ctx, "unparseable classification", "content", resp.Message.Content, "err", err)
		return nil, fmt.Errorf("%w: model reply is not a classification", domain.ErrUnknownIntent)
	}

	in, ok := c.catalog.Lookup(strings.TrimSpace(r.Intent))
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownIntent, r.Intent)
	}

	params := map[string]string{}
	if err := mapstructure.WeakDecode(r.Parameters, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnknownIntent, err)
	}
	for _, name := range in.RequiredParameters {
		if strings.TrimSpace(params[name]) == "" {
			return nil, fmt.Errorf("%w: %s requires %q", domain.ErrMissingParameter, in.Name, name)
		}
	}
	for _, name := range in.OptionalParameters {
		if _, ok := params[name]; !ok {
			params[name] = ""
		}
	}

	out := &Classification{Intent: in.Name, Parameters: params}
	if out.Sparql, err = in.RenderSparql(params); err != nil {
		return nil, err
	}
	if out.Response, err = in.RenderResponse(params); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "query classified", "intent", in.Name, "parameters", len(params))
	return out, nil
}

// stripFence removes a markdown code fence around a JSON reply.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
