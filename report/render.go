package report

import (
	"github.com/charmbracelet/glamour"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// DefaultWordWrap is the terminal width used when none is given.
const DefaultWordWrap = 100

// Render formats Markdown for a terminal. style is a glamour standard style
// name ("dark", "light", "notty", ...); empty picks one from the terminal
// background.
func Render(markdown, style string, width int) (string, error) {
	if width <= 0 {
		width = DefaultWordWrap
	}
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return "", errors.Wrap(err, "creating markdown renderer")
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", errors.Wrap(err, "rendering report")
	}
	return out, nil
}
