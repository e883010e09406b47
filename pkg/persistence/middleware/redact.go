package middleware

import (
	"context"
	"regexp"
	"strings"

	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

var (
	ibanPattern = regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`)
	cardPattern = regexp.MustCompile(`\b(?:[0-9][ -]?){12,18}[0-9]\b`)
)

type redactMiddleware struct {
	next     ports.ConversationStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware masks IBANs, payment card numbers and any extra patterns
// in message content and tool arguments before they reach the store.
// The in-memory conversation is never modified.
func NewRedactionMiddleware(extra ...string) Middleware {
	patterns := make([]*regexp.Regexp, 0, len(extra))
	for _, p := range extra {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &redactMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactMiddleware) Save(ctx context.Context, conv *domain.Conversation) error {
	cloned := conv.Snapshot()
	msgs := cloned.History.Messages()
	for i := range msgs {
		msgs[i].Content = m.Redact(msgs[i].Content)
		if len(msgs[i].ToolCalls) > 0 {
			calls := make([]domain.ToolCall, len(msgs[i].ToolCalls))
			for j, c := range msgs[i].ToolCalls {
				c.Arguments = m.Redact(c.Arguments)
				calls[j] = c
			}
			msgs[i].ToolCalls = calls
		}
	}
	cloned.History = domain.NewHistory(msgs...)
	return m.next.Save(ctx, cloned)
}

func (m *redactMiddleware) Load(ctx context.Context, id string) (*domain.Conversation, error) {
	return m.next.Load(ctx, id)
}

func (m *redactMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Redact masks every sensitive substring of s.
func (m *redactMiddleware) Redact(s string) string {
	return redact(s, m.patterns)
}

func redact(s string, extra []*regexp.Regexp) string {
	if s == "" {
		return s
	}
	s = ibanPattern.ReplaceAllString(s, Mask)
	s = cardPattern.ReplaceAllStringFunc(s, func(match string) string {
		if luhnValid(match) {
			return Mask
		}
		return match
	})
	for _, p := range extra {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}

// luhnValid reports whether the digits of s pass the Luhn checksum used by card numbers.
func luhnValid(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
