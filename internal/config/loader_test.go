package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
session:
  sticky_enabled: true
  timeout_minutes: 30
  topic_drift_threshold: 0.5
default_agent:
  id: general
agents:
  - id: general
    name: General Assistant
    handles: [general, help]
    url: http://agents.local/general
    protocol: ag-ui
  - id: metrics-agent
    name: Metrics Agent
    handles: [metrics, METRICS]
    url: http://agents.local/metrics
    protocol: a2a
    routing:
      priority: 1
      threshold: 0.7
      examples:
        - "show me CPU usage"
        - "what's the memory consumption"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	allowed := append([]string{filepath.Dir(path)}, AllowedConfigDirs...)
	orig := AllowedConfigDirs
	AllowedConfigDirs = allowed
	defer func() { AllowedConfigDirs = orig }()

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cat.DefaultAgentID != "general" {
		t.Errorf("DefaultAgentID = %q, want general", cat.DefaultAgentID)
	}
	if len(cat.Agents) != 2 {
		t.Fatalf("len(Agents) = %d, want 2", len(cat.Agents))
	}

	agent := cat.GetAgentByHandle("METRICS")
	if agent == nil || agent.ID != "metrics-agent" {
		t.Errorf("GetAgentByHandle(METRICS) = %v, want metrics-agent", agent)
	}
	agent2 := cat.GetAgentByHandle("metrics")
	if agent2 == nil || agent2.ID != agent.ID {
		t.Errorf("handle lookup not idempotent under case")
	}

	def := cat.GetDefaultAgent()
	if !cat.IsDefaultAgent(def) {
		t.Errorf("IsDefaultAgent(default) = false, want true")
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	orig := AllowedConfigDirs
	AllowedConfigDirs = append([]string{dir}, orig...)
	defer func() { AllowedConfigDirs = orig }()

	_, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeTempConfig(t, "")
	orig := AllowedConfigDirs
	AllowedConfigDirs = append([]string{filepath.Dir(path)}, orig...)
	defer func() { AllowedConfigDirs = orig }()

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestLoadUnresolvableDefaultAgent(t *testing.T) {
	bad := `
default_agent:
  id: nonexistent
agents:
  - id: general
    name: General
    handles: [general]
    url: http://agents.local/general
`
	path := writeTempConfig(t, bad)
	orig := AllowedConfigDirs
	AllowedConfigDirs = append([]string{filepath.Dir(path)}, orig...)
	defer func() { AllowedConfigDirs = orig }()

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for unresolvable default_agent")
	}
}

func TestLoadPathOutsideAllowedDirs(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	orig := AllowedConfigDirs
	AllowedConfigDirs = []string{"/config", "/app/config"}
	defer func() { AllowedConfigDirs = orig }()

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for path outside allowed dirs (t.TempDir is not in the restricted allowlist)")
	}
}

func TestGetAgentByID(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	orig := AllowedConfigDirs
	AllowedConfigDirs = append([]string{filepath.Dir(path)}, orig...)
	defer func() { AllowedConfigDirs = orig }()

	cat, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cat.GetAgentByID("nope") != nil {
		t.Error("expected nil for unknown id")
	}
	if cat.GetAgentByID("general") == nil {
		t.Error("expected agent for known id")
	}
}
