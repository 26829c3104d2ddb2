package agui

import (
	"encoding/json"
	"testing"
)

func TestMarshalIncludesTypeDiscriminator(t *testing.T) {
	data, err := Marshal(RunStartedEvent{ThreadID: "t1", RunID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != TypeRunStarted {
		t.Errorf("type = %v, want %v", m["type"], TypeRunStarted)
	}
	if m["threadId"] != "t1" {
		t.Errorf("threadId = %v, want t1", m["threadId"])
	}
	if _, present := m["displayName"]; present {
		t.Errorf("displayName should be omitted when empty")
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := TextMessageContentEvent{MessageID: "m1", Delta: "hello"}
	data, err := Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	parsed, err := Parse(raw, "")
	if err != nil {
		t.Fatal(err)
	}
	got, ok := parsed.(TextMessageContentEvent)
	if !ok {
		t.Fatalf("parsed = %T, want TextMessageContentEvent", parsed)
	}
	if got != orig {
		t.Errorf("got %+v, want %+v", got, orig)
	}
}

func TestParseFallsBackToEventTypeHeader(t *testing.T) {
	raw := map[string]any{"threadId": "t1", "runId": "r1"}
	parsed, err := Parse(raw, TypeRunStarted)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Kind() != TypeRunStarted {
		t.Errorf("Kind() = %q, want %q", parsed.Kind(), TypeRunStarted)
	}
}

func TestParseUnknownTypeIsPassthrough(t *testing.T) {
	raw := map[string]any{"type": "TOOL_CALL_START", "toolCallId": "x"}
	parsed, err := Parse(raw, "")
	if err != nil {
		t.Fatal(err)
	}
	p, ok := parsed.(Passthrough)
	if !ok {
		t.Fatalf("parsed = %T, want Passthrough", parsed)
	}
	if p.Raw["toolCallId"] != "x" {
		t.Errorf("raw fields not preserved: %+v", p.Raw)
	}
}

func TestParseNoTypeAnywhereErrors(t *testing.T) {
	_, err := Parse(map[string]any{"foo": "bar"}, "")
	if err == nil {
		t.Fatal("expected error when no type field is available")
	}
}

func TestWithDisplayNameOnlyAffectsRunStarted(t *testing.T) {
	started := WithDisplayName(RunStartedEvent{ThreadID: "t1", RunID: "r1"}, "My Agent")
	rs, ok := started.(RunStartedEvent)
	if !ok || rs.DisplayName != "My Agent" {
		t.Fatalf("WithDisplayName did not set DisplayName: %+v", started)
	}

	other := WithDisplayName(RunFinishedEvent{ThreadID: "t1", RunID: "r1"}, "My Agent")
	if _, ok := other.(RunFinishedEvent); !ok {
		t.Fatalf("WithDisplayName changed event type: %T", other)
	}
}
