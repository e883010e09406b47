package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer formats an answer for display.
type Renderer func(markdown string) (string, error)

// NewRenderer renders markdown with glamour when f is a terminal and returns
// the text unchanged otherwise, so piped output stays plain.
func NewRenderer(f *os.File) Renderer {
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return PlainRenderer
	}
	width := 100
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
		width = w - 4
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return PlainRenderer
	}
	return r.Render
}

// PlainRenderer appends a newline and nothing else.
func PlainRenderer(markdown string) (string, error) {
	return markdown + "\n", nil
}
