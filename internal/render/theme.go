// Package render draws the projected session state for a terminal and
// exports it as json, yaml or markdown.
package render

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Theme is the colour palette used when the output is a terminal.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
}

func DefaultTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("12"),
		Secondary: lipgloss.Color("14"),
		Success:   lipgloss.Color("10"),
		Warning:   lipgloss.Color("11"),
		Error:     lipgloss.Color("9"),
		Muted:     lipgloss.Color("240"),
	}
}

type styles struct {
	color bool

	panel    lipgloss.Style
	title    lipgloss.Style
	muted    lipgloss.Style
	speaker  lipgloss.Style
	done     lipgloss.Style
	pending  lipgloss.Style
	critical lipgloss.Style
	warning  lipgloss.Style
	info     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, th Theme, color bool) styles {
	if !color {
		plain := r.NewStyle()
		return styles{
			panel: plain, title: plain, muted: plain, speaker: plain,
			done: plain, pending: plain, critical: plain, warning: plain, info: plain,
		}
	}
	return styles{
		color: true,
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(th.Muted).
			Padding(0, 1),
		title:    r.NewStyle().Bold(true).Foreground(th.Primary),
		muted:    r.NewStyle().Foreground(th.Muted).Italic(true),
		speaker:  r.NewStyle().Bold(true).Foreground(th.Secondary),
		done:     r.NewStyle().Foreground(th.Success),
		pending:  r.NewStyle().Foreground(th.Warning),
		critical: r.NewStyle().Bold(true).Foreground(th.Error),
		warning:  r.NewStyle().Bold(true).Foreground(th.Warning),
		info:     r.NewStyle().Foreground(th.Secondary),
	}
}

// IsTerminal reports whether w is an interactive terminal. NO_COLOR forces
// false.
func IsTerminal(w io.Writer) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
