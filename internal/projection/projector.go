package projection

import (
	"fmt"
	"strings"

	"github.com/danmuck/callassist/internal/protocol/event"
)

// Effect reports what a fold did beyond mutating state.
type Effect struct {
	Changed bool
	// TranscriptFinalized is set for every transcript_final event, either
	// origin. The lifecycle controller counts these as end-session signals.
	TranscriptFinalized bool
}

// Apply folds one admitted event into state. It never fails; unknown types
// leave state untouched.
func Apply(state *SessionState, env event.Envelope) Effect {
	switch p := event.Decode(env).(type) {
	case event.TranscriptSegment:
		state.Transcript = append(state.Transcript, TranscriptEntry{
			Speaker:   p.Speaker,
			Text:      p.Text,
			Timestamp: timestampLabel(p, env),
			IsFinal:   false,
		})
		return Effect{Changed: true}
	case event.TranscriptFinal:
		setStatus(state, StatusProcessing)
		text := p.Text
		state.FullTranscript = &text
		return Effect{Changed: true, TranscriptFinalized: true}
	case event.RuleAlert:
		alert := Alert{
			RuleID:         p.RuleID,
			Kind:           p.Kind,
			Severity:       p.Severity,
			Message:        p.Message,
			MatchedPattern: p.MatchedPattern,
		}
		for _, existing := range state.Alerts {
			if existing.sameAs(alert) {
				return Effect{}
			}
		}
		state.Alerts = append([]Alert{alert}, state.Alerts...)
		return Effect{Changed: true}
	case event.RequiredQuestionStatus:
		upsertQuestion(state, p)
		return Effect{Changed: true}
	case event.GuidanceUpdate:
		state.SuggestedReply = &SuggestedReply{
			Text:       p.SuggestedReply,
			Rationale:  p.Rationale,
			Confidence: p.Confidence,
		}
		return Effect{Changed: true}
	default:
		return Effect{}
	}
}

// setStatus moves state to next unless it already reached a terminal status.
func setStatus(state *SessionState, next Status) bool {
	if state.Status.Terminal() || state.Status == next {
		return false
	}
	state.Status = next
	return true
}

func upsertQuestion(state *SessionState, p event.RequiredQuestionStatus) {
	if state.RequiredQuestions == nil {
		state.RequiredQuestions = map[string]RequiredQuestion{}
	}
	existing, ok := state.RequiredQuestions[p.RuleID]
	label := existing.Label
	switch {
	case p.Question != nil:
		label = *p.Question
	case !ok || label == "":
		label = DeriveLabel(p.RuleID)
	}
	state.RequiredQuestions[p.RuleID] = RequiredQuestion{
		RuleID:    p.RuleID,
		Satisfied: p.Satisfied,
		Label:     label,
	}
	if !ok {
		state.QuestionOrder = append([]string{p.RuleID}, state.QuestionOrder...)
	}
}

// DeriveLabel turns a rule id such as "water_heater" into "water heater".
func DeriveLabel(ruleID string) string {
	return strings.ReplaceAll(ruleID, "_", " ")
}

func timestampLabel(seg event.TranscriptSegment, env event.Envelope) string {
	if seg.TimestampMS != nil {
		return fmt.Sprintf("%.1fs", *seg.TimestampMS/1000)
	}
	if env.CreatedAt.IsZero() {
		return ""
	}
	return env.CreatedAt.Local().Format("15:04:05")
}
