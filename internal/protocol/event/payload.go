package event

// Payload is the typed view of an envelope payload, selected by Type.
type Payload interface {
	payloadType() Type
}

// TranscriptSegment is one non-final utterance.
type TranscriptSegment struct {
	Speaker string
	Text    string
	// TimestampMS is the offset into the call, set only when the payload
	// carried a numeric timestamp_ms.
	TimestampMS *float64
	IsFinal     bool
}

// TranscriptFinal carries the finalized full transcript text.
type TranscriptFinal struct {
	Origin Type
	Text   string
}

type RuleAlert struct {
	RuleID         string
	Kind           string
	Severity       string
	Message        string
	MatchedPattern *string
}

type RequiredQuestionStatus struct {
	RuleID    string
	Satisfied bool
	// Question is the display label, nil when the payload did not supply one.
	Question *string
}

type GuidanceUpdate struct {
	SuggestedReply string
	Rationale      string
	Confidence     float64
}

type Resume struct {
	LastServerSeq int64
}

type Ack struct {
	Acknowledged bool
}

// Opaque holds payloads that have no projection effect (ping, pong, resync,
// and types this client does not know).
type Opaque struct {
	Type   Type
	Fields map[string]any
}

func (TranscriptSegment) payloadType() Type      { return TypeTranscriptSegment }
func (p TranscriptFinal) payloadType() Type      { return p.Origin }
func (RuleAlert) payloadType() Type              { return TypeRuleAlert }
func (RequiredQuestionStatus) payloadType() Type { return TypeRequiredQuestionStatus }
func (GuidanceUpdate) payloadType() Type         { return TypeGuidanceUpdate }
func (Resume) payloadType() Type                 { return TypeResume }
func (Ack) payloadType() Type                    { return TypeAck }
func (p Opaque) payloadType() Type               { return p.Type }

// Defaults applied when payload fields are absent.
const (
	DefaultSpeaker        = "unknown"
	DefaultRuleID         = "unknown_rule"
	DefaultAlertKind      = "rule_alert"
	DefaultSeverity       = "info"
	DefaultAlertMessage   = "Rule alert triggered"
	DefaultQuestionRuleID = "unknown_question"
)

// Decode returns the typed payload for env. It never fails: absent or
// mistyped fields are coerced to safe defaults.
func Decode(env Envelope) Payload {
	p := env.Payload
	switch env.Type {
	case TypeTranscriptSegment:
		seg := TranscriptSegment{
			Speaker: stringOr(p, "speaker", DefaultSpeaker),
			Text:    stringOr(p, "text", ""),
			IsFinal: truthy(p["is_final"]),
		}
		if ms, ok := p["timestamp_ms"].(float64); ok {
			seg.TimestampMS = &ms
		}
		return seg
	case TypeClientTranscriptFinal, TypeServerTranscriptFinal:
		return TranscriptFinal{Origin: env.Type, Text: stringOr(p, "text", "")}
	case TypeRuleAlert:
		alert := RuleAlert{
			RuleID:   stringOr(p, "rule_id", DefaultRuleID),
			Kind:     stringOr(p, "kind", DefaultAlertKind),
			Severity: stringOr(p, "severity", DefaultSeverity),
			Message:  stringOr(p, "message", DefaultAlertMessage),
		}
		if v, ok := p["matched_pattern"]; ok && v != nil {
			pattern := coerceString(v)
			alert.MatchedPattern = &pattern
		}
		return alert
	case TypeRequiredQuestionStatus:
		status := RequiredQuestionStatus{
			RuleID:    stringOr(p, "rule_id", DefaultQuestionRuleID),
			Satisfied: truthy(p["satisfied"]),
		}
		if v := p["question"]; truthy(v) {
			label := coerceString(v)
			status.Question = &label
		}
		return status
	case TypeGuidanceUpdate:
		return GuidanceUpdate{
			SuggestedReply: stringOr(p, "suggested_reply", ""),
			Rationale:      stringOr(p, "rationale", ""),
			Confidence:     coerceNumber(p["confidence"]),
		}
	case TypeResume:
		return Resume{LastServerSeq: int64(coerceNumber(p["last_server_seq"]))}
	case TypeAck:
		return Ack{Acknowledged: truthy(p["acknowledged"])}
	default:
		return Opaque{Type: env.Type, Fields: p}
	}
}

// ResumePayload is the client->server resume payload.
func ResumePayload(lastServerSeq int64) map[string]any {
	return map[string]any{"last_server_seq": lastServerSeq}
}

// SegmentPayload is the client->server transcript segment payload.
func SegmentPayload(seg TranscriptSegment) map[string]any {
	out := map[string]any{
		"speaker":  seg.Speaker,
		"text":     seg.Text,
		"is_final": seg.IsFinal,
	}
	if seg.TimestampMS != nil {
		out["timestamp_ms"] = *seg.TimestampMS
	}
	return out
}
