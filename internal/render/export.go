package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/callassist/internal/api"
	"github.com/danmuck/callassist/internal/projection"
	"gopkg.in/yaml.v3"
)

var ErrUnknownFormat = errors.New("render: unknown export format")

type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// Extension returns the file extension for f.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// Report is what gets exported: the final state plus the summary when the
// session was ended.
type Report struct {
	Session projection.SessionState `json:"session" yaml:"session"`
	Summary *api.SessionSummary     `json:"summary,omitempty" yaml:"summary,omitempty"`
}

func Export(w io.Writer, f Format, rep Report) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(rep)
	case FormatMarkdown:
		return writeMarkdown(w, rep)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

func writeMarkdown(w io.Writer, rep Report) error {
	s := rep.Session
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", s.SessionID)
	fmt.Fprintf(&b, "**Status:** %s\n\n", s.Status)

	if rep.Summary != nil {
		b.WriteString("## Summary\n\n")
		fmt.Fprintf(&b, "**Disposition:** %s\n\n", orDash(rep.Summary.Disposition))
		fmt.Fprintf(&b, "%s\n\n", escapeMarkdown(orDash(rep.Summary.Summary)))
	}

	if len(s.Alerts) > 0 {
		b.WriteString("## Alerts\n\n")
		for _, a := range s.Alerts {
			fmt.Fprintf(&b, "- **%s** %s (`%s`)\n", strings.ToUpper(a.Severity), escapeMarkdown(a.Message), a.RuleID)
		}
		b.WriteString("\n")
	}

	if qs := s.Questions(); len(qs) > 0 {
		b.WriteString("## Required questions\n\n")
		for _, q := range qs {
			mark := " "
			if q.Satisfied {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, escapeMarkdown(q.Label))
		}
		b.WriteString("\n")
	}

	if s.SuggestedReply != nil {
		b.WriteString("## Suggested reply\n\n")
		fmt.Fprintf(&b, "> %s\n\n", escapeMarkdown(s.SuggestedReply.Text))
		if s.SuggestedReply.Rationale != "" {
			fmt.Fprintf(&b, "_%s_\n\n", escapeMarkdown(s.SuggestedReply.Rationale))
		}
	}

	if len(s.Transcript) > 0 {
		b.WriteString("## Transcript\n\n")
		for _, e := range s.Transcript {
			label := ""
			if e.Timestamp != "" {
				label = " (" + e.Timestamp + ")"
			}
			fmt.Fprintf(&b, "**%s:**%s %s\n\n", e.Speaker, label, escapeMarkdown(e.Text))
		}
	}

	if s.FullTranscript != nil {
		b.WriteString("## Full transcript\n\n")
		fmt.Fprintf(&b, "%s\n", escapeMarkdown(*s.FullTranscript))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "\\*\\*")
	return strings.ReplaceAll(text, "__", "\\_\\_")
}
