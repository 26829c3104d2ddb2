package agui

import (
	"encoding/json"
	"testing"
)

func TestChatRequestAcceptsCamelCase(t *testing.T) {
	var req ChatRequest
	err := json.Unmarshal([]byte(`{"threadId":"t1","messages":[{"id":"m1","role":"user","content":"hi"}]}`), &req)
	if err != nil {
		t.Fatal(err)
	}
	if req.ThreadID != "t1" {
		t.Errorf("ThreadID = %q, want t1", req.ThreadID)
	}
}

func TestChatRequestAcceptsSnakeCase(t *testing.T) {
	var req ChatRequest
	err := json.Unmarshal([]byte(`{"thread_id":"t1","messages":[{"id":"m1","role":"user","content":"hi"}]}`), &req)
	if err != nil {
		t.Fatal(err)
	}
	if req.ThreadID != "t1" {
		t.Errorf("ThreadID = %q, want t1", req.ThreadID)
	}
}

func TestMessageContentAsPartsList(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"id":"m1","role":"user","content":[{"text":"hello "},{"text":"world"}]}`), &m)
	if err != nil {
		t.Fatal(err)
	}
	if m.Text != "hello world" {
		t.Errorf("Text = %q, want %q", m.Text, "hello world")
	}
}

func TestValidateRejectsEmptyThreadID(t *testing.T) {
	req := &ChatRequest{Messages: []Message{{ID: "m1", Role: RoleUser, Text: "hi"}}}
	if err := req.Validate(); err == nil {
		t.Fatal("expected validation error for empty thread_id")
	}
}

func TestValidateRejectsNoMessages(t *testing.T) {
	req := &ChatRequest{ThreadID: "t1"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected validation error for empty messages")
	}
}

func TestLastUserMessageText(t *testing.T) {
	req := &ChatRequest{
		ThreadID: "t1",
		Messages: []Message{
			{ID: "m1", Role: RoleUser, Text: "first"},
			{ID: "m2", Role: RoleAssistant, Text: "reply"},
			{ID: "m3", Role: RoleUser, Text: "second"},
		},
	}
	if got := req.LastUserMessageText(); got != "second" {
		t.Errorf("LastUserMessageText() = %q, want second", got)
	}
}
