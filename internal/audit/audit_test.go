package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/falox/observability-assistant-router/internal/agui"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestLogRoutingDecisionEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(newTestLogger(&buf), "req-1", "thread-1", true)
	score := float32(0.87654)
	logger.LogRoutingDecision("agent-1", "Agent One", "semantic", &score, false)

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if parsed["event_type"] != "routing_decision" {
		t.Errorf("event_type = %v, want routing_decision", parsed["event_type"])
	}
	if parsed["agent_id"] != "agent-1" {
		t.Errorf("agent_id = %v, want agent-1", parsed["agent_id"])
	}
	if parsed["confidence_score"] != 0.8765 {
		t.Errorf("confidence_score = %v, want 0.8765", parsed["confidence_score"])
	}
}

func TestDisabledLoggerEmitsNothing(t *testing.T) {
	var buf bytes.Buffer
	logger := New(newTestLogger(&buf), "req-1", "thread-1", false)
	logger.LogRequestReceived(3, true, "hello")
	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got %q", buf.String())
	}
}

func TestLogRequestReceivedTruncatesPreview(t *testing.T) {
	var buf bytes.Buffer
	logger := New(newTestLogger(&buf), "req-1", "thread-1", true)
	longMsg := strings.Repeat("a", 200)
	logger.LogRequestReceived(1, false, longMsg)

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatal(err)
	}
	preview, _ := parsed["user_message_preview"].(string)
	if len(preview) != 100 {
		t.Errorf("preview length = %d, want 100", len(preview))
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	log := NewLogger(slog.LevelInfo)
	if log == nil {
		t.Fatal("NewLogger returned nil")
	}
}

func TestBufferReassemblesMessage(t *testing.T) {
	buf := NewBuffer("t1", "r1", "req1", 1_000_000, slog.New(slog.NewTextHandler(io.Discard, nil)))

	buf.Observe(agui.TextMessageStartEvent{MessageID: "m1", Role: "assistant"})
	buf.Observe(agui.TextMessageContentEvent{MessageID: "m1", Delta: "hello "})
	buf.Observe(agui.TextMessageContentEvent{MessageID: "m1", Delta: "world"})
	buf.Observe(agui.TextMessageEndEvent{MessageID: "m1"})

	msg := buf.Message()
	if msg == nil {
		t.Fatal("expected a buffered message")
	}
	if !msg.Complete {
		t.Error("expected message to be complete")
	}
	if msg.AccumulatedContent != "hello world" {
		t.Errorf("AccumulatedContent = %q, want %q", msg.AccumulatedContent, "hello world")
	}
	if len(msg.Frames) != 4 {
		t.Errorf("len(Frames) = %d, want 4", len(msg.Frames))
	}
}

func TestBufferTruncatesAtMaxContentSize(t *testing.T) {
	buf := NewBuffer("t1", "r1", "req1", 5, slog.New(slog.NewTextHandler(io.Discard, nil)))
	buf.Observe(agui.TextMessageStartEvent{MessageID: "m1"})
	buf.Observe(agui.TextMessageContentEvent{MessageID: "m1", Delta: "hello world"})

	msg := buf.Message()
	if msg.AccumulatedContent != "hello" {
		t.Errorf("AccumulatedContent = %q, want %q (truncated to 5 bytes)", msg.AccumulatedContent, "hello")
	}
}

func TestBufferHandlesContentWithoutStart(t *testing.T) {
	buf := NewBuffer("t1", "r1", "req1", 100, slog.New(slog.NewTextHandler(io.Discard, nil)))
	buf.Observe(agui.TextMessageContentEvent{MessageID: "m1", Delta: "no start first"})

	msg := buf.Message()
	if msg == nil {
		t.Fatal("expected buffer to synthesize a message on content-without-start")
	}
	if msg.AccumulatedContent != "no start first" {
		t.Errorf("AccumulatedContent = %q", msg.AccumulatedContent)
	}
}
