package projection

type Status string

const (
	StatusIdle       Status = "idle"
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusEnded      Status = "ended"
)

// Terminal reports whether s ends the view. Terminal statuses are sticky
// until the state is reset.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusEnded
}

type TranscriptEntry struct {
	Speaker   string `json:"speaker" yaml:"speaker"`
	Text      string `json:"text" yaml:"text"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	IsFinal   bool   `json:"is_final" yaml:"is_final"`
}

type Alert struct {
	RuleID         string  `json:"rule_id" yaml:"rule_id"`
	Kind           string  `json:"kind" yaml:"kind"`
	Severity       string  `json:"severity" yaml:"severity"`
	Message        string  `json:"message" yaml:"message"`
	MatchedPattern *string `json:"matched_pattern,omitempty" yaml:"matched_pattern,omitempty"`
}

func (a Alert) sameAs(b Alert) bool {
	if a.RuleID != b.RuleID || a.Message != b.Message {
		return false
	}
	if a.MatchedPattern == nil || b.MatchedPattern == nil {
		return a.MatchedPattern == nil && b.MatchedPattern == nil
	}
	return *a.MatchedPattern == *b.MatchedPattern
}

type RequiredQuestion struct {
	RuleID    string `json:"rule_id" yaml:"rule_id"`
	Satisfied bool   `json:"satisfied" yaml:"satisfied"`
	Label     string `json:"label" yaml:"label"`
}

type SuggestedReply struct {
	Text       string  `json:"text" yaml:"text"`
	Rationale  string  `json:"rationale" yaml:"rationale"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// SessionState is the UI-facing projection of one session's event stream.
type SessionState struct {
	SessionID         string                      `json:"session_id" yaml:"session_id"`
	Status            Status                      `json:"status" yaml:"status"`
	Transcript        []TranscriptEntry           `json:"transcript" yaml:"transcript"`
	FullTranscript    *string                     `json:"full_transcript,omitempty" yaml:"full_transcript,omitempty"`
	Alerts            []Alert                     `json:"alerts" yaml:"alerts"`
	RequiredQuestions map[string]RequiredQuestion `json:"required_questions" yaml:"required_questions"`
	// QuestionOrder lists rule ids newest-inserted first.
	QuestionOrder  []string        `json:"question_order" yaml:"question_order"`
	SuggestedReply *SuggestedReply `json:"suggested_reply,omitempty" yaml:"suggested_reply,omitempty"`
}

// NewSessionState returns the reset state for sessionID.
func NewSessionState(sessionID string) SessionState {
	return SessionState{
		SessionID:         sessionID,
		Status:            StatusIdle,
		Transcript:        []TranscriptEntry{},
		Alerts:            []Alert{},
		RequiredQuestions: map[string]RequiredQuestion{},
		QuestionOrder:     []string{},
	}
}

// Questions returns required questions in display order.
func (s SessionState) Questions() []RequiredQuestion {
	out := make([]RequiredQuestion, 0, len(s.QuestionOrder))
	for _, id := range s.QuestionOrder {
		if q, ok := s.RequiredQuestions[id]; ok {
			out = append(out, q)
		}
	}
	return out
}

// Clone returns a deep copy.
func (s SessionState) Clone() SessionState {
	out := s
	out.Transcript = append([]TranscriptEntry{}, s.Transcript...)
	out.Alerts = make([]Alert, len(s.Alerts))
	for i, a := range s.Alerts {
		if a.MatchedPattern != nil {
			p := *a.MatchedPattern
			a.MatchedPattern = &p
		}
		out.Alerts[i] = a
	}
	out.RequiredQuestions = make(map[string]RequiredQuestion, len(s.RequiredQuestions))
	for k, v := range s.RequiredQuestions {
		out.RequiredQuestions[k] = v
	}
	out.QuestionOrder = append([]string{}, s.QuestionOrder...)
	if s.FullTranscript != nil {
		text := *s.FullTranscript
		out.FullTranscript = &text
	}
	if s.SuggestedReply != nil {
		reply := *s.SuggestedReply
		out.SuggestedReply = &reply
	}
	return out
}
