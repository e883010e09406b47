// Package prompt holds the fixed texts sent to the model.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed developer.md
var developer string

//go:embed intent.tmpl
var intentTemplate string

// Developer returns the built-in instruction message that opens every conversation.
func Developer() string {
	return strings.TrimSpace(developer)
}

// IntentTemplate returns the text/template source used to build the classification prompt.
func IntentTemplate() string {
	return intentTemplate
}

// LoadDeveloper returns the contents of path, or the built-in prompt when path is empty.
func LoadDeveloper(path string) (string, error) {
	if path == "" {
		return Developer(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("system prompt %s is empty", path)
	}
	return text, nil
}

// HopNudge is the system message appended after each tool round.
func HopNudge(remaining int) string {
	return fmt.Sprintf("You have %d hops remaining before the conversation will be cut off.", remaining)
}

// BudgetExhaustedToolResult answers a tool call requested after the hop budget ran out.
const BudgetExhaustedToolResult = `{"error":"not executed: hop budget exhausted"}`
