package llmfallback

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/falox/observability-assistant-router/internal/config"
)

func testAgents() []*config.Agent {
	return []*config.Agent{
		{ID: "troubleshooting-agent", Description: "handles crashes and pod failures"},
		{ID: "metrics-agent", Description: "handles CPU and memory metrics"},
	}
}

func TestBuildPromptTruncates(t *testing.T) {
	long := strings.Repeat("x", 600)
	prompt := BuildPrompt(long, testAgents())
	if !strings.Contains(prompt, strings.Repeat("x", 500)+"...") {
		t.Error("expected message truncated to 500 chars with ellipsis")
	}
}

func TestParseResponseExactMatch(t *testing.T) {
	agent := ParseResponse("metrics-agent", testAgents())
	if agent == nil || agent.ID != "metrics-agent" {
		t.Fatalf("ParseResponse = %v, want metrics-agent", agent)
	}
}

func TestParseResponseCaseInsensitive(t *testing.T) {
	agent := ParseResponse("METRICS-AGENT", testAgents())
	if agent == nil || agent.ID != "metrics-agent" {
		t.Fatalf("ParseResponse = %v, want metrics-agent", agent)
	}
}

func TestParseResponseWordBoundarySearch(t *testing.T) {
	agent := ParseResponse(`"I think it's metrics-agent because of CPU"`, testAgents())
	if agent == nil || agent.ID != "metrics-agent" {
		t.Fatalf("ParseResponse = %v, want metrics-agent", agent)
	}
}

func TestParseResponseNoMatch(t *testing.T) {
	if agent := ParseResponse("unknown-agent", testAgents()); agent != nil {
		t.Errorf("ParseResponse = %v, want nil", agent)
	}
}

func TestParseResponseEmpty(t *testing.T) {
	if agent := ParseResponse("   ", testAgents()); agent != nil {
		t.Errorf("ParseResponse = %v, want nil", agent)
	}
}

func TestClassifySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      "1",
			"result": map[string]any{
				"artifacts": []any{
					map[string]any{"parts": []any{map[string]any{"kind": "text", "text": "metrics-agent"}}},
				},
			},
		})
	}))
	defer srv.Close()

	agent, err := Classify(context.Background(), srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		"how's my cpu?", testAgents(), srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	if agent == nil || agent.ID != "metrics-agent" {
		t.Fatalf("Classify = %v, want metrics-agent", agent)
	}
}

func TestClassifyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	_, err := Classify(context.Background(), srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		"hello", testAgents(), srv.URL, "")
	if err == nil {
		t.Fatal("expected error for HTTP 500 response")
	}
}

func TestClassifyNoAgents(t *testing.T) {
	agent, err := Classify(context.Background(), http.DefaultClient, slog.New(slog.NewTextHandler(io.Discard, nil)),
		"hello", nil, "http://unused", "")
	if err != nil {
		t.Fatal(err)
	}
	if agent != nil {
		t.Errorf("Classify with no agents = %v, want nil", agent)
	}
}
