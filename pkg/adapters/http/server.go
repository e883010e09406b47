package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/finchat"
	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/intent"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

//go:embed openapi.yaml
var rawSpec []byte

const maxBodyBytes = 1 << 20

// Agent is the part of finchat.Agent the HTTP boundary depends on.
type Agent interface {
	Ask(ctx context.Context, conversationID, query string) (*finchat.Answer, error)
	Classify(ctx context.Context, query string) (*intent.Classification, error)
	Conversation(ctx context.Context, id string) (*domain.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// AudioPublisher turns an answer into a served audio file.
type AudioPublisher interface {
	Publish(ctx context.Context, text string) (string, error)
}

// Server serves the finchat API.
type Server struct {
	agent     Agent
	schemas   openapi3.Schemas
	publisher AudioPublisher
	staticDir string
	metrics   http.Handler
	health    func(context.Context) error
	info      map[string]any
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithPublisher attaches audio to query answers.
func WithPublisher(p AudioPublisher) Option {
	return func(s *Server) {
		s.publisher = p
	}
}

// WithStaticDir serves dir under /static/.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithMetrics serves h under /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithHealthCheck makes /health report 503 when check fails.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) {
		s.health = check
	}
}

// WithInfo adds fields to the /info document.
func WithInfo(info map[string]any) Option {
	return func(s *Server) {
		for k, v := range info {
			s.info[k] = v
		}
	}
}

// WithQueryTimeout bounds a whole /api/query request.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler creates the HTTP handler for agent.
func NewHandler(agent Agent, opts ...Option) (http.Handler, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}

	s := &Server{
		agent:   agent,
		schemas: schemas,
		info:    map[string]any{"name": "finchat", "version": finchat.Version},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Post("/api/query", s.Query)
	r.Post("/api/intent", s.Intent)
	r.Get("/api/conversations/{id}", s.GetConversation)
	r.Delete("/api/conversations/{id}", s.DeleteConversation)
	r.Get("/health", s.Health)
	r.Get("/info", s.Info)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.staticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	}

	return enableCORS(r), nil
}

func loadSchemas() (openapi3.Schemas, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	return doc.Components.Schemas, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(domain.ContextWithRequestID(r.Context(), id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", domain.RequestIDFromContext(r.Context()),
		)
	})
}

type queryRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type queryResponse struct {
	Result         string `json:"result"`
	ConversationID string `json:"conversation_id,omitempty"`
	Hops           int    `json:"hops"`
	Forced         bool   `json:"forced,omitempty"`
	AudioURL       string `json:"audio_url,omitempty"`
}

// Query handles POST /api/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	if !s.decode(w, r, "QueryRequest", &body) {
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	answer, err := s.agent.Ask(ctx, body.ConversationID, body.Query)
	if err != nil {
		s.fail(w, r, "Query failed", err)
		return
	}

	resp := queryResponse{
		Result:         answer.Text,
		ConversationID: answer.ConversationID,
		Hops:           answer.Hops,
		Forced:         answer.Forced,
	}
	if s.publisher != nil {
		url, err := s.publisher.Publish(ctx, answer.Text)
		if err != nil {
			s.logger.WarnContext(ctx, "Speech synthesis failed, answering without audio", "error", err)
		} else {
			resp.AudioURL = url
		}
	}
	s.respond(w, r, http.StatusOK, resp)
}

type intentRequest struct {
	Query string `json:"query"`
}

// Intent handles POST /api/intent.
func (s *Server) Intent(w http.ResponseWriter, r *http.Request) {
	var body intentRequest
	if !s.decode(w, r, "IntentRequest", &body) {
		return
	}
	c, err := s.agent.Classify(r.Context(), body.Query)
	if err != nil {
		s.fail(w, r, "Classification failed", err)
		return
	}
	s.respond(w, r, http.StatusOK, c)
}

// GetConversation handles GET /api/conversations/{id}.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.agent.Conversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "Load conversation failed", err)
		return
	}
	s.respond(w, r, http.StatusOK, conv)
}

// DeleteConversation handles DELETE /api/conversations/{id}.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, "Delete conversation failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Health check failed", "error", err)
			s.respond(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Info handles GET /info.
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, s.info)
}

// decode reads the body, validates it against the named schema and unmarshals it into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, schema string, v any) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.reject(w, r, err)
		return false
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		s.reject(w, r, err)
		return false
	}
	if ref, ok := s.schemas[schema]; ok && ref.Value != nil {
		if err := ref.Value.VisitJSON(doc); err != nil {
			s.reject(w, r, err)
			return false
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.reject(w, r, err)
		return false
	}
	return true
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.WarnContext(r.Context(), "Invalid request body", "path", r.URL.Path, "error", err)
	s.respond(w, r, http.StatusBadRequest, errorBody{Error: "invalid request body"})
}

type errorBody struct {
	Error string `json:"error"`
}

// fail maps err to a status with a generic message. Details go to the log only.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, text := StatusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, msg, "status", status, "error", err)
	s.respond(w, r, status, errorBody{Error: text})
}

// StatusFor maps an error to the HTTP status and the message shown to clients.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		return http.StatusNotFound, "conversation not found"
	case errors.Is(err, domain.ErrInvalidConversationID):
		return http.StatusBadRequest, "invalid conversation id"
	case errors.Is(err, domain.ErrUnknownIntent), errors.Is(err, domain.ErrMissingParameter):
		return http.StatusUnprocessableEntity, "query could not be classified"
	case errors.Is(err, finchat.ErrNoClassifier):
		return http.StatusNotImplemented, "intent classification is not enabled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream timeout"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.ErrorContext(r.Context(), "Response encode failed", "error", err)
	}
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>finchat API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`
