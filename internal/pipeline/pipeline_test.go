package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/falox/observability-assistant-router/internal/agui"
	"github.com/falox/observability-assistant-router/internal/config"
	"github.com/falox/observability-assistant-router/internal/proxy"
	"github.com/falox/observability-assistant-router/internal/retry"
	"github.com/falox/observability-assistant-router/internal/routing"
	"github.com/falox/observability-assistant-router/internal/semantic"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0, 0, 1}
	}
	return out, nil
}

func buildCatalogAndIndex(t *testing.T, defaultURL string) (*config.Catalog, *semantic.Index, *semantic.Matcher) {
	t.Helper()
	catalog := &config.Catalog{
		Session:        config.Session{StickyEnabled: true, TimeoutMinutes: 30, TopicDriftThreshold: 0.5},
		DefaultAgentID: "general-agent",
		Agents: []config.Agent{
			{ID: "general-agent", Name: "General Assistant", Handles: []string{"general"}, URL: defaultURL, Protocol: config.ProtocolAGUI},
		},
	}
	idx, err := semantic.BuildIndex(context.Background(), fakeEmbedder{}, catalog)
	if err != nil {
		t.Fatal(err)
	}
	matcher, err := semantic.NewMatcher(fakeEmbedder{}, 8, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return catalog, idx, matcher
}

func TestRunSuccessStreamsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: RUN_STARTED\ndata: {\"threadId\":\"t1\",\"runId\":\"r1\"}\n\n"))
	}))
	defer srv.Close()

	catalog, idx, matcher := buildCatalogAndIndex(t, srv.URL)
	router := routing.New(srv.Client(), testLogger())
	px := proxy.New(srv.Client(), retry.DefaultConfig(), testLogger())
	auditLog := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipe := New(router, px, nil, auditLog, testLogger(), Settings{AuditEnabled: true, SessionTimeoutMin: 30})

	req := &agui.ChatRequest{ThreadID: "t1", Messages: []agui.Message{{ID: "m1", Role: agui.RoleUser, Text: "hello"}}}

	var gotEvents []string
	err := pipe.Run(context.Background(), catalog, idx, matcher, req, "req-1", "", func(event string, payload []byte) error {
		gotEvents = append(gotEvents, event)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(gotEvents) != 1 || gotEvents[0] != agui.TypeRunStarted {
		t.Errorf("gotEvents = %v, want [RUN_STARTED]", gotEvents)
	}
}

func TestRunNoUserMessageErrors(t *testing.T) {
	catalog, idx, matcher := buildCatalogAndIndex(t, "http://unused")
	router := routing.New(http.DefaultClient, testLogger())
	px := proxy.New(http.DefaultClient, retry.DefaultConfig(), testLogger())
	pipe := New(router, px, nil, testLogger(), testLogger(), Settings{SessionTimeoutMin: 30})

	req := &agui.ChatRequest{ThreadID: "t1", Messages: []agui.Message{{ID: "m1", Role: agui.RoleAssistant, Text: "hi"}}}
	err := pipe.Run(context.Background(), catalog, idx, matcher, req, "req-1", "", func(event string, payload []byte) error { return nil })
	if err != ErrNoUserMessage {
		t.Fatalf("err = %v, want ErrNoUserMessage", err)
	}
}

func TestRunPrimaryIsDefaultAgentEmitsRunErrorOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	catalog, idx, matcher := buildCatalogAndIndex(t, srv.URL)
	router := routing.New(srv.Client(), testLogger())
	px := proxy.New(srv.Client(), retry.Config{MaxAttempts: 1, BaseDelayMs: 1, MaxDelayMs: 5}, testLogger())
	pipe := New(router, px, nil, testLogger(), testLogger(), Settings{SessionTimeoutMin: 30})

	req := &agui.ChatRequest{ThreadID: "t1", Messages: []agui.Message{{ID: "m1", Role: agui.RoleUser, Text: "hello"}}}
	var gotEvents []string
	err := pipe.Run(context.Background(), catalog, idx, matcher, req, "req-1", "", func(event string, payload []byte) error {
		gotEvents = append(gotEvents, event)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(gotEvents) != 1 || gotEvents[0] != agui.TypeRunError {
		t.Errorf("gotEvents = %v, want a single RUN_ERROR (primary already is default agent)", gotEvents)
	}
}

func TestStripMentionsFromRequestLeavesOtherRolesUntouched(t *testing.T) {
	req := &agui.ChatRequest{
		ThreadID: "t1",
		Messages: []agui.Message{
			{ID: "m1", Role: agui.RoleUser, Text: "@metrics how's it going"},
			{ID: "m2", Role: agui.RoleAssistant, Text: "@should-stay mentioned in assistant text"},
		},
	}
	stripped := stripMentionsFromRequest(req)
	if stripped.Messages[0].Text == req.Messages[0].Text {
		t.Errorf("expected user message mention to be stripped")
	}
	if stripped.Messages[1].Text != req.Messages[1].Text {
		t.Errorf("assistant message should be untouched, got %q", stripped.Messages[1].Text)
	}
	if req.Messages[0].Text != "@metrics how's it going" {
		t.Errorf("original request must not be mutated, got %q", req.Messages[0].Text)
	}
}
