package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/danmuck/callassist/internal/api"
	"github.com/danmuck/callassist/internal/projection"
)

const defaultTranscriptLines = 12

// Renderer turns session snapshots into terminal text.
type Renderer struct {
	st styles
	// TranscriptLines caps how many of the newest transcript entries are
	// drawn; 0 draws all of them.
	TranscriptLines int
}

// New returns a renderer for w, styled only when w is a terminal.
func New(w io.Writer) *Renderer {
	return newRenderer(w, IsTerminal(w))
}

// Plain returns an unstyled renderer.
func Plain() *Renderer {
	return newRenderer(io.Discard, false)
}

func newRenderer(w io.Writer, color bool) *Renderer {
	return &Renderer{
		st:              newStyles(lipgloss.NewRenderer(w), DefaultTheme(), color),
		TranscriptLines: defaultTranscriptLines,
	}
}

// Session renders every panel for state.
func (r *Renderer) Session(state projection.SessionState) string {
	parts := []string{
		r.header(state),
		r.panel("Transcript", r.transcript(state)),
		r.panel("Alerts", r.alerts(state.Alerts)),
		r.panel("Required questions", r.questions(state.Questions())),
		r.panel("Suggested reply", r.reply(state.SuggestedReply)),
	}
	return strings.Join(parts, "\n") + "\n"
}

// Summary renders the end-session result.
func (r *Renderer) Summary(s api.SessionSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.st.speaker.Render("Disposition:"), orDash(s.Disposition))
	b.WriteString(orDash(s.Summary))
	return r.panel("Summary", b.String()) + "\n"
}

func (r *Renderer) header(state projection.SessionState) string {
	status := string(state.Status)
	switch state.Status {
	case projection.StatusActive:
		status = r.st.done.Render(status)
	case projection.StatusProcessing:
		status = r.st.pending.Render(status)
	case projection.StatusEnded:
		status = r.st.critical.Render(status)
	default:
		status = r.st.muted.Render(status)
	}
	return fmt.Sprintf("%s  %s", r.st.title.Render("Session "+state.SessionID), status)
}

func (r *Renderer) panel(title, body string) string {
	content := r.st.title.Render(title) + "\n" + body
	if !r.st.color {
		return "== " + title + " ==\n" + body
	}
	return r.st.panel.Render(content)
}

func (r *Renderer) transcript(state projection.SessionState) string {
	entries := state.Transcript
	if r.TranscriptLines > 0 && len(entries) > r.TranscriptLines {
		entries = entries[len(entries)-r.TranscriptLines:]
	}
	if len(entries) == 0 && state.FullTranscript == nil {
		return r.st.muted.Render("waiting for transcript")
	}
	lines := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		label := ""
		if e.Timestamp != "" {
			label = r.st.muted.Render("["+e.Timestamp+"]") + " "
		}
		lines = append(lines, fmt.Sprintf("%s%s %s", label, r.st.speaker.Render(e.Speaker+":"), e.Text))
	}
	if state.FullTranscript != nil {
		lines = append(lines, r.st.done.Render("final transcript received"))
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) alerts(alerts []projection.Alert) string {
	if len(alerts) == 0 {
		return r.st.muted.Render("no alerts")
	}
	lines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		line := fmt.Sprintf("%s %s %s", r.severity(a.Severity), a.Message, r.st.muted.Render("("+a.RuleID+")"))
		if a.MatchedPattern != nil {
			line += r.st.muted.Render(fmt.Sprintf(" matched %q", *a.MatchedPattern))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) severity(sev string) string {
	badge := "[" + strings.ToUpper(sev) + "]"
	switch strings.ToLower(sev) {
	case "critical", "high", "error":
		return r.st.critical.Render(badge)
	case "warning", "warn", "medium":
		return r.st.warning.Render(badge)
	default:
		return r.st.info.Render(badge)
	}
}

func (r *Renderer) questions(qs []projection.RequiredQuestion) string {
	if len(qs) == 0 {
		return r.st.muted.Render("no required questions")
	}
	lines := make([]string, 0, len(qs))
	for _, q := range qs {
		if q.Satisfied {
			lines = append(lines, r.st.done.Render("[x]")+" "+q.Label)
			continue
		}
		lines = append(lines, r.st.pending.Render("[ ]")+" "+q.Label)
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) reply(reply *projection.SuggestedReply) string {
	if reply == nil {
		return r.st.muted.Render("no guidance yet")
	}
	var b strings.Builder
	b.WriteString(reply.Text)
	if reply.Rationale != "" {
		b.WriteString("\n" + r.st.muted.Render(reply.Rationale))
	}
	fmt.Fprintf(&b, "\n%s", r.st.info.Render(fmt.Sprintf("confidence %.0f%%", reply.Confidence*100)))
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
