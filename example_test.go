package finchat_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/finchat"
	"github.com/aretw0/finchat/pkg/adapters/mcp"
	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
)

// cannedModel lists the transactions once and then summarises them.
type cannedModel struct{}

func (cannedModel) Complete(_ context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	last := req.Messages[len(req.Messages)-1]
	if last.Role == domain.RoleUser {
		return &ports.ChatResponse{Message: domain.Message{
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{
				{ID: "call_1", Name: "list_transactions", Arguments: `{"category":"groceries","limit":1}`},
			},
		}}, nil
	}
	return &ports.ChatResponse{Message: domain.Message{
		Role:    domain.RoleAssistant,
		Content: "Your latest grocery purchase was at Coop.",
	}}, nil
}

func ExampleAgent_Ask() {
	ledger, err := mcp.LoadLedger("pkg/adapters/mcp/testdata/ledger.yaml")
	if err != nil {
		log.Fatal(err)
	}
	tools := mcp.NewPool(mcp.InProcessDialer(mcp.NewServer(ledger, "example", nil)))

	agent, err := finchat.New(cannedModel{}, tools)
	if err != nil {
		log.Fatal(err)
	}
	defer agent.Close()

	answer, err := agent.Ask(context.Background(), "", "Where did I last buy groceries?")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(answer.Text)
	fmt.Println("hops:", answer.Hops)
	fmt.Println("tool:", answer.ToolCalls[0].ToolName, "error:", answer.ToolCalls[0].IsError)
	// Output:
	// Your latest grocery purchase was at Coop.
	// hops: 1
	// tool: list_transactions error: false
}
