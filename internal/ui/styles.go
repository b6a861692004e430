package ui

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Go gopher cyan for the docent wordmark
const goCyan = "#00ADD8"

// DOCENT ASCII art (filled block style)
var docentArt = []string{
	"  ██████╗  ██████╗  ██████╗███████╗███╗   ██╗████████╗",
	"  ██╔══██╗██╔═══██╗██╔════╝██╔════╝████╗  ██║╚══██╔══╝",
	"  ██║  ██║██║   ██║██║     █████╗  ██╔██╗ ██║   ██║   ",
	"  ██║  ██║██║   ██║██║     ██╔══╝  ██║╚██╗██║   ██║   ",
	"  ██████╔╝╚██████╔╝╚██████╗███████╗██║ ╚████║   ██║   ",
	"  ╚═════╝  ╚═════╝  ╚═════╝╚══════╝╚═╝  ╚═══╝   ╚═╝   ",
}

// Styles contains all lipgloss styles for the console.
type Styles struct {
	Banner    lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Tips      lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(goCyan)),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Tips:      lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
	}
}

// RenderBanner returns the DOCENT ASCII art banner as a styled string.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	for _, line := range docentArt {
		_, _ = b.WriteString(s.Banner.Render(line))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// welcomeTips contains getting started tips displayed under the banner.
var welcomeTips = []string{
	"Tips for getting started:",
	"  • Ask questions about your ingested documents",
	"  • Add documents with: docent ingest <file>",
	"  • Type quit to end the session",
}

// RenderWelcomeTips returns styled welcome tips.
func (s Styles) RenderWelcomeTips() string {
	var b strings.Builder
	for _, tip := range welcomeTips {
		_, _ = b.WriteString(s.Tips.Render(tip))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}
