package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/finchat/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	up := domain.NewUpstreamError("chat-completion", context.DeadlineExceeded)
	wrapped := fmt.Errorf("query: %w", up)

	assert.ErrorIs(t, wrapped, domain.ErrUpstream)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)

	var target *domain.UpstreamError
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "chat-completion", target.Service)

	toolErr := &domain.ToolInvocationError{CallID: "c1", Tool: "run_sparql", Err: errors.New("boom")}
	assert.ErrorIs(t, toolErr, domain.ErrToolInvocation)
	assert.NotErrorIs(t, toolErr, domain.ErrUpstream)
	assert.Contains(t, toolErr.Error(), "run_sparql")

	budget := &domain.BudgetExhaustedError{Partial: "partial"}
	assert.ErrorIs(t, fmt.Errorf("x: %w", budget), domain.ErrBudgetExhausted)
}

func TestValidateConversationID(t *testing.T) {
	for _, id := range []string{"c1", "index", "tmp-1", "a.b_c-D", "x"} {
		assert.NoError(t, domain.ValidateConversationID(id), id)
	}
	for _, id := range []string{"", "lock:abc", "a/b", `a\b`, ".", "..", "with space"} {
		assert.ErrorIs(t, domain.ValidateConversationID(id), domain.ErrInvalidConversationID, id)
	}
}
