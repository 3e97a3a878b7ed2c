package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every client-originated event.
const SchemaVersion = "1.0"

// Type is the closed tag set carried in the envelope "type" field.
type Type string

const (
	TypeTranscriptSegment      Type = "client.transcript_segment"
	TypeClientTranscriptFinal  Type = "client.transcript_final"
	TypeServerTranscriptFinal  Type = "server.transcript_final"
	TypeResume                 Type = "client.resume"
	TypeAck                    Type = "server.ack"
	TypeRuleAlert              Type = "server.rule_alert"
	TypeGuidanceUpdate         Type = "server.guidance_update"
	TypeRequiredQuestionStatus Type = "server.required_question_status"
	TypePing                   Type = "system.ping"
	TypePong                   Type = "system.pong"
	TypeResync                 Type = "system.resync"
)

var ErrMalformedEvent = errors.New("event: malformed envelope")

// IsTranscriptFinal reports whether t is either origin of transcript_final.
func (t Type) IsTranscriptFinal() bool {
	return t == TypeClientTranscriptFinal || t == TypeServerTranscriptFinal
}

// Known reports whether t is one of the tags this client understands.
func (t Type) Known() bool {
	switch t {
	case TypeTranscriptSegment, TypeClientTranscriptFinal, TypeServerTranscriptFinal,
		TypeResume, TypeAck, TypeRuleAlert, TypeGuidanceUpdate,
		TypeRequiredQuestionStatus, TypePing, TypePong, TypeResync:
		return true
	default:
		return false
	}
}

// Envelope is one session event as it travels over the channel.
type Envelope struct {
	EventID       string         `json:"event_id"`
	SessionID     string         `json:"session_id"`
	Type          Type           `json:"type"`
	CreatedAt     Timestamp      `json:"ts_created"`
	SchemaVersion string         `json:"schema_version"`
	Payload       map[string]any `json:"payload"`
	ClientSeq     *int64         `json:"client_seq"`
	ServerSeq     *int64         `json:"server_seq"`
}

// HasServerSeq reports whether the envelope carries a usable server sequence.
func (e Envelope) HasServerSeq() bool {
	return e.ServerSeq != nil && *e.ServerSeq > 0
}

// NewClientEvent builds a client-originated envelope with a fresh event id.
func NewClientEvent(sessionID string, typ Type, clientSeq int64, payload map[string]any, now time.Time) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	seq := clientSeq
	return Envelope{
		EventID:       uuid.NewString(),
		SessionID:     sessionID,
		Type:          typ,
		CreatedAt:     Timestamp{Time: now.UTC()},
		SchemaVersion: SchemaVersion,
		Payload:       payload,
		ClientSeq:     &seq,
		ServerSeq:     nil,
	}
}

// Parse decodes one inbound frame. Only frames that are not a JSON object
// fail; missing or mistyped fields decode to zero values.
func Parse(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: not a json object", ErrMalformedEvent)
	}
	var fields map[string]any
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	env := Envelope{
		EventID:       stringOr(fields, "event_id", ""),
		SessionID:     stringOr(fields, "session_id", ""),
		Type:          Type(stringOr(fields, "type", "")),
		SchemaVersion: stringOr(fields, "schema_version", ""),
		ClientSeq:     coerceSeq(fields["client_seq"]),
		ServerSeq:     coerceSeq(fields["server_seq"]),
	}
	if raw, ok := fields["ts_created"].(string); ok {
		env.CreatedAt = Timestamp{Time: parseTimestamp(raw)}
	}
	if payload, ok := fields["payload"].(map[string]any); ok {
		env.Payload = payload
	} else {
		env.Payload = map[string]any{}
	}
	return env, nil
}

// coerceSeq accepts integral numbers and numeric strings. Anything else,
// including zero and negatives, means no sequence.
func coerceSeq(v any) *int64 {
	if v == nil {
		return nil
	}
	f := coerceNumber(v)
	if f <= 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return nil
	}
	seq := int64(f)
	return &seq
}

// Encode marshals an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	if strings.TrimSpace(string(env.Type)) == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if env.Payload == nil {
		env.Payload = map[string]any{}
	}
	return json.Marshal(env)
}

// Timestamp tolerates the timestamp shapes servers emit. Values that cannot
// be parsed decode to the zero time rather than failing the frame.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = parseTimestamp(raw)
	return nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
