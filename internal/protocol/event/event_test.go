package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/callassist/internal/testutil/testlog"
)

func TestParseServerEvent(t *testing.T) {
	testlog.Start(t)
	raw := `{
		"event_id": "e-1",
		"session_id": "s-1",
		"type": "server.rule_alert",
		"ts_created": "2025-03-01T10:00:00.123456+00:00",
		"schema_version": "1.0",
		"payload": {"rule_id": "r1", "message": "m", "future_field": {"x": 1}},
		"client_seq": null,
		"server_seq": 7
	}`
	env, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Type != TypeRuleAlert || env.SessionID != "s-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if !env.HasServerSeq() || *env.ServerSeq != 7 {
		t.Fatalf("unexpected server_seq: %v", env.ServerSeq)
	}
	if env.ClientSeq != nil {
		t.Fatalf("expected nil client_seq")
	}
	want := time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC)
	if !env.CreatedAt.Equal(want) {
		t.Fatalf("unexpected ts_created: %v", env.CreatedAt)
	}
}

func TestParseToleratesNaiveAndBrokenTimestamps(t *testing.T) {
	testlog.Start(t)
	env, err := Parse([]byte(`{"type":"system.ping","ts_created":"2025-03-01T10:00:00"}`))
	if err != nil {
		t.Fatalf("parse naive: %v", err)
	}
	if env.CreatedAt.IsZero() {
		t.Fatalf("expected naive timestamp to parse")
	}
	env, err = Parse([]byte(`{"type":"system.ping","ts_created":"yesterday"}`))
	if err != nil {
		t.Fatalf("parse broken: %v", err)
	}
	if !env.CreatedAt.IsZero() {
		t.Fatalf("expected zero time for broken timestamp")
	}
	if env.Payload == nil {
		t.Fatalf("expected empty payload map")
	}
}

func TestParseRejectsNonObjects(t *testing.T) {
	testlog.Start(t)
	for _, raw := range []string{"", "null", "[1,2]", "not json", `{"type":`} {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("Parse(%q) err=%v want ErrMalformedEvent", raw, err)
		}
	}
}

func TestParseCoercesMistypedEnvelopeFields(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name      string
		raw       string
		eventID   string
		serverSeq int64
		payload   int
	}{
		{name: "string server_seq", raw: `{"event_id":"e-1","type":"server.rule_alert","server_seq":"3","payload":{"rule_id":"r1"}}`, eventID: "e-1", serverSeq: 3, payload: 1},
		{name: "numeric event_id", raw: `{"event_id":42,"type":"server.rule_alert","server_seq":4,"payload":{"rule_id":"r1"}}`, eventID: "42", serverSeq: 4, payload: 1},
		{name: "array payload", raw: `{"event_id":"e-2","type":"server.guidance_update","server_seq":5,"payload":["x"]}`, eventID: "e-2", serverSeq: 5, payload: 0},
		{name: "float server_seq", raw: `{"event_id":"e-3","type":"server.ack","server_seq":3.0}`, eventID: "e-3", serverSeq: 3, payload: 0},
		{name: "zero server_seq", raw: `{"event_id":"e-4","type":"server.ack","server_seq":0}`, eventID: "e-4"},
		{name: "non-numeric server_seq", raw: `{"event_id":"e-5","type":"server.ack","server_seq":"later"}`, eventID: "e-5"},
		{name: "fractional server_seq", raw: `{"event_id":"e-6","type":"server.ack","server_seq":2.5,"ts_created":7}`, eventID: "e-6"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := Parse([]byte(tc.raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if env.EventID != tc.eventID {
				t.Fatalf("event_id=%q want %q", env.EventID, tc.eventID)
			}
			if tc.serverSeq == 0 {
				if env.HasServerSeq() {
					t.Fatalf("expected no server_seq, got %d", *env.ServerSeq)
				}
			} else if !env.HasServerSeq() || *env.ServerSeq != tc.serverSeq {
				t.Fatalf("server_seq=%v want %d", env.ServerSeq, tc.serverSeq)
			}
			if env.Payload == nil || len(env.Payload) != tc.payload {
				t.Fatalf("unexpected payload: %v", env.Payload)
			}
		})
	}
}

func TestNewClientEventEncodesWireShape(t *testing.T) {
	testlog.Start(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	env := NewClientEvent("s-1", TypeResume, 3, ResumePayload(42), now)
	data, err := Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["type"] != "client.resume" || body["schema_version"] != "1.0" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["client_seq"] != float64(3) {
		t.Fatalf("unexpected client_seq: %v", body["client_seq"])
	}
	if v, ok := body["server_seq"]; !ok || v != nil {
		t.Fatalf("server_seq must be present and null: %v", body)
	}
	payload := body["payload"].(map[string]any)
	if payload["last_server_seq"] != float64(42) {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if body["ts_created"] != "2025-03-01T10:00:00Z" {
		t.Fatalf("unexpected ts_created: %v", body["ts_created"])
	}
	if body["event_id"] == "" {
		t.Fatalf("expected event id")
	}
}

func TestDecodeDefaults(t *testing.T) {
	testlog.Start(t)

	seg := Decode(Envelope{Type: TypeTranscriptSegment, Payload: map[string]any{}}).(TranscriptSegment)
	if seg.Speaker != DefaultSpeaker || seg.Text != "" || seg.TimestampMS != nil {
		t.Fatalf("unexpected segment defaults: %+v", seg)
	}

	alert := Decode(Envelope{Type: TypeRuleAlert, Payload: map[string]any{"matched_pattern": nil}}).(RuleAlert)
	if alert.RuleID != DefaultRuleID || alert.Kind != DefaultAlertKind ||
		alert.Severity != DefaultSeverity || alert.Message != DefaultAlertMessage {
		t.Fatalf("unexpected alert defaults: %+v", alert)
	}
	if alert.MatchedPattern != nil {
		t.Fatalf("null matched_pattern must be absent")
	}

	q := Decode(Envelope{Type: TypeRequiredQuestionStatus, Payload: map[string]any{"question": ""}}).(RequiredQuestionStatus)
	if q.RuleID != DefaultQuestionRuleID || q.Satisfied || q.Question != nil {
		t.Fatalf("unexpected question defaults: %+v", q)
	}

	g := Decode(Envelope{Type: TypeGuidanceUpdate, Payload: map[string]any{}}).(GuidanceUpdate)
	if g.SuggestedReply != "" || g.Rationale != "" || g.Confidence != 0 {
		t.Fatalf("unexpected guidance defaults: %+v", g)
	}

	if _, ok := Decode(Envelope{Type: "server.future_thing", Payload: map[string]any{"a": 1}}).(Opaque); !ok {
		t.Fatalf("unknown type must decode to Opaque")
	}
}

func TestDecodeCoercion(t *testing.T) {
	testlog.Start(t)

	seg := Decode(Envelope{Type: TypeTranscriptSegment, Payload: map[string]any{
		"speaker":      42.0,
		"text":         true,
		"timestamp_ms": "1500",
	}}).(TranscriptSegment)
	if seg.Speaker != "42" || seg.Text != "true" {
		t.Fatalf("unexpected string coercion: %+v", seg)
	}
	if seg.TimestampMS != nil {
		t.Fatalf("string timestamp_ms must be ignored")
	}

	alert := Decode(Envelope{Type: TypeRuleAlert, Payload: map[string]any{"matched_pattern": 3.5}}).(RuleAlert)
	if alert.MatchedPattern == nil || *alert.MatchedPattern != "3.5" {
		t.Fatalf("unexpected matched_pattern: %v", alert.MatchedPattern)
	}

	tests := []struct {
		name       string
		satisfied  any
		confidence any
		wantSat    bool
		wantConf   float64
	}{
		{name: "bools", satisfied: true, confidence: true, wantSat: true, wantConf: 1},
		{name: "numbers", satisfied: 0.0, confidence: 0.75, wantSat: false, wantConf: 0.75},
		{name: "strings", satisfied: "no", confidence: " 0.5 ", wantSat: true, wantConf: 0.5},
		{name: "garbage", satisfied: nil, confidence: "high", wantSat: false, wantConf: 0},
		{name: "objects", satisfied: map[string]any{}, confidence: []any{1.0}, wantSat: true, wantConf: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := Decode(Envelope{Type: TypeRequiredQuestionStatus, Payload: map[string]any{"satisfied": tc.satisfied}}).(RequiredQuestionStatus)
			if q.Satisfied != tc.wantSat {
				t.Fatalf("satisfied=%v want %v", q.Satisfied, tc.wantSat)
			}
			g := Decode(Envelope{Type: TypeGuidanceUpdate, Payload: map[string]any{"confidence": tc.confidence}}).(GuidanceUpdate)
			if g.Confidence != tc.wantConf {
				t.Fatalf("confidence=%v want %v", g.Confidence, tc.wantConf)
			}
		})
	}
}

func TestTypeHelpers(t *testing.T) {
	testlog.Start(t)
	if !TypeClientTranscriptFinal.IsTranscriptFinal() || !TypeServerTranscriptFinal.IsTranscriptFinal() {
		t.Fatalf("expected both transcript_final origins")
	}
	if TypeTranscriptSegment.IsTranscriptFinal() {
		t.Fatalf("segment is not final")
	}
	if Type("server.unknown").Known() || !TypeResync.Known() {
		t.Fatalf("unexpected Known() results")
	}
}
