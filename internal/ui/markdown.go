package ui

import (
	"charm.land/glamour/v2"
	"github.com/muesli/termenv"
)

// maxReadableWidth caps word wrap on wide terminals.
const maxReadableWidth = 100

// RenderMarkdown renders markdown for the terminal with glamour.
// Returns the original text when color is off or rendering fails, so piped
// output stays plain markdown.
func RenderMarkdown(markdown string) string {
	if !ShouldUseColor() {
		return markdown
	}

	wrapWidth := TerminalWidth(80)
	if wrapWidth > maxReadableWidth {
		wrapWidth = maxReadableWidth
	}

	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return markdown
	}

	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
