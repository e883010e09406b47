/*
Package finchat answers natural-language questions about a user's finances.

A query is forwarded to a chat-completion model together with the tools of a
tool provider (an MCP server that reaches the user's financial knowledge
graph). Whenever the model asks for tools, finchat runs them, appends their
results to the conversation and resubmits, until the model answers in plain
text or the hop budget is spent.

# Usage

	chat, err := openai.New(openai.Config{APIKey: os.Getenv("OPENROUTER_API_KEY")})
	if err != nil {
		log.Fatal(err)
	}

	tools := mcp.NewPool(mcp.StdioDialer(mcp.LaunchConfig{
		Command: "uv",
		Args:    []string{"--directory", dir, "run", "src/spendcast_mcp/server.py"},
	}))

	agent, err := finchat.New(chat, tools, finchat.WithMaxHops(4))
	if err != nil {
		log.Fatal(err)
	}
	defer agent.Close()

	answer, err := agent.Ask(ctx, "", "What is my current balance?")

# Conversations

Ask with an empty conversation ID is stateless: every call starts from the
developer prompt. Passing an ID continues a stored conversation. Requests for
the same ID are serialized, locally and, with WithLocker, across replicas.

# Errors

Failures of individual tools never fail a query; the model is told about them
and may react. Ask fails with an error matching domain.ErrUpstream when the
chat-completion service or the tool provider cannot be used, and with
domain.ErrBudgetExhausted when the model still wants tools after the budget
is spent.
*/
package finchat
