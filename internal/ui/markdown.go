package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const defaultWidth = 80

// markdownRenderer wraps glamour for rendering model answers.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// newMarkdownRenderer creates a renderer with the given word wrap width.
// If glamour initialization fails, the renderer falls back to plain text.
func newMarkdownRenderer(width int) *markdownRenderer {
	if width <= 0 {
		width = defaultWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		// Degrade to plain text rather than fail the session.
		return &markdownRenderer{renderer: nil, width: width}
	}

	return &markdownRenderer{renderer: renderer, width: width}
}

// Render converts markdown to styled terminal output.
// Returns the original content unchanged if rendering is unavailable.
func (m *markdownRenderer) Render(content string) string {
	if m == nil || m.renderer == nil {
		return content
	}

	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimSuffix(rendered, "\n")
}
