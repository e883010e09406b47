package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/finchat/internal/logging"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server exposes a Ledger as an MCP tool provider. It stands in for the
// production knowledge-graph server in development and end-to-end tests.
type Server struct {
	ledger    *Ledger
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new fixture MCP Server instance.
func NewServer(ledger *Ledger, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	mcpServer := server.NewMCPServer("finchat-ledger", strings.TrimSpace(version),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s := &Server{ledger: ledger, mcpServer: mcpServer, logger: logger}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. for an in-process client.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// InProcessDialer connects a Pool to s without a subprocess.
func InProcessDialer(s *Server) Dialer {
	return func(ctx context.Context) (Session, error) {
		c, err := client.NewInProcessClient(s.mcpServer)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_balance",
		mcp.WithDescription("Get the current balance of the user's accounts. Omit account to get all accounts."),
		mcp.WithString("account", mcp.Description("Account ID (optional)")),
	), s.handleGetBalance)

	s.mcpServer.AddTool(mcp.NewTool("list_transactions",
		mcp.WithDescription("List the user's transactions, newest first."),
		mcp.WithString("account", mcp.Description("Account ID (optional)")),
		mcp.WithString("category", mcp.Description("Spending category such as groceries (optional)")),
		mcp.WithString("since", mcp.Description("Earliest booking date, YYYY-MM-DD (optional)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of transactions (optional)")),
	), s.handleListTransactions)

	s.mcpServer.AddTool(mcp.NewTool("run_sparql",
		mcp.WithDescription("Run a read-only SPARQL SELECT query against the user's financial knowledge graph."),
		mcp.WithString("query", mcp.Required(), mcp.Description("SPARQL SELECT query")),
	), s.handleRunSparql)
}

type balance struct {
	Account  string  `json:"account"`
	Name     string  `json:"name"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

func (s *Server) handleGetBalance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("account", "")
	var out []balance
	for _, a := range s.ledger.Accounts {
		if id != "" && a.ID != id {
			continue
		}
		out = append(out, balance{Account: a.ID, Name: a.Name, Balance: a.Balance, Currency: s.ledger.Currency})
	}
	if id != "" && len(out) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("unknown account %q", id)), nil
	}
	if len(out) == 1 {
		return jsonResult(out[0])
	}
	return jsonResult(out)
}

func (s *Server) handleListTransactions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := TransactionFilter{
		Account:  request.GetString("account", ""),
		Category: request.GetString("category", ""),
		Since:    request.GetString("since", ""),
		Limit:    request.GetInt("limit", 0),
	}
	if filter.Account != "" {
		if _, ok := s.ledger.Account(filter.Account); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown account %q", filter.Account)), nil
		}
	}
	return jsonResult(s.ledger.Filter(filter))
}

// handleRunSparql answers any SELECT with every transaction in SPARQL JSON results form.
// It does not evaluate the query.
func (s *Server) handleRunSparql(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !strings.Contains(strings.ToUpper(query), "SELECT") {
		return mcp.NewToolResultError("only SELECT queries are supported"), nil
	}
	s.logger.DebugContext(ctx, "sparql query", "query", query)

	vars := []string{"transaction", "date", "amount", "merchant", "category"}
	bindings := make([]map[string]map[string]string, 0, len(s.ledger.Transactions))
	for _, t := range s.ledger.Filter(TransactionFilter{}) {
		bindings = append(bindings, map[string]map[string]string{
			"transaction": {"type": "literal", "value": t.ID},
			"date":        {"type": "literal", "value": t.Date},
			"amount":      {"type": "literal", "value": fmt.Sprintf("%.2f", t.Amount)},
			"merchant":    {"type": "literal", "value": t.Merchant},
			"category":    {"type": "literal", "value": t.Category},
		})
	}
	return jsonResult(map[string]any{
		"head":    map[string]any{"vars": vars},
		"results": map[string]any{"bindings": bindings},
	})
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("finchat://ledger", "Ledger summary",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(map[string]any{
			"owner":        s.ledger.Owner,
			"currency":     s.ledger.Currency,
			"accounts":     len(s.ledger.Accounts),
			"transactions": len(s.ledger.Transactions),
		})
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "finchat://ledger",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
