package cli

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

type Renderer interface {
	Render(text string) string
}

type PlainRenderer struct{}

func (PlainRenderer) Render(text string) string {
	return text
}

// MarkdownRenderer formats answers as terminal markdown and falls back to the
// plain text when rendering fails.
type MarkdownRenderer struct {
	term *glamour.TermRenderer
}

func NewMarkdownRenderer(width int) (*MarkdownRenderer, error) {
	if width <= 0 || width > 120 {
		width = 120
	}
	term, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &MarkdownRenderer{term: term}, nil
}

func (m *MarkdownRenderer) Render(text string) string {
	rendered, err := m.term.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(rendered)
}
