// Package config loads, validates, and hot-reloads the agent catalog that
// drives routing decisions, plus the process-level settings bound from
// ROUTER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Protocol is the backend wire protocol an agent speaks.
type Protocol string

const (
	ProtocolA2A  Protocol = "a2a"
	ProtocolAGUI Protocol = "ag-ui"
)

// Routing holds an agent's semantic-matching configuration.
type Routing struct {
	Priority  int      `yaml:"priority"`
	Threshold float64  `yaml:"threshold"`
	Examples  []string `yaml:"examples"`
}

// Agent is a single configured backend agent.
type Agent struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Handles     []string `yaml:"handles"`
	URL         string   `yaml:"url"`
	Protocol    Protocol `yaml:"protocol"`
	Routing     *Routing `yaml:"routing"`
	Description string   `yaml:"description"`
}

// PrimaryHandle returns the agent's first configured handle.
func (a Agent) PrimaryHandle() string {
	if len(a.Handles) == 0 {
		return ""
	}
	return a.Handles[0]
}

// HasExamples reports whether the agent has a non-empty routing.examples
// list, making it eligible for inclusion in the semantic index.
func (a Agent) HasExamples() bool {
	return a.Routing != nil && len(a.Routing.Examples) > 0
}

// Session holds the sticky-session policy.
type Session struct {
	StickyEnabled        bool    `yaml:"sticky_enabled"`
	TimeoutMinutes       int     `yaml:"timeout_minutes"`
	TopicDriftThreshold  float64 `yaml:"topic_drift_threshold"`
}

// DefaultAgentRef identifies the default agent by id.
type DefaultAgentRef struct {
	ID string `yaml:"id"`
}

// rawSession mirrors Session but keeps StickyEnabled as a pointer so the
// loader can distinguish "absent" (defaults to true) from an explicit false.
type rawSession struct {
	StickyEnabled       *bool   `yaml:"sticky_enabled"`
	TimeoutMinutes      int     `yaml:"timeout_minutes"`
	TopicDriftThreshold float64 `yaml:"topic_drift_threshold"`
}

// rawCatalog is the direct YAML unmarshal target, validated and converted
// into an immutable Catalog by validate.
type rawCatalog struct {
	Session      rawSession      `yaml:"session"`
	DefaultAgent DefaultAgentRef `yaml:"default_agent"`
	Agents       []Agent         `yaml:"agents"`
}

// Catalog is the immutable, validated agent configuration. Once built, it
// is never mutated; a reload produces a new Catalog and atomically swaps
// the reference held by the Reloader.
type Catalog struct {
	Session        Session
	DefaultAgentID string
	Agents         []Agent
}

// GetAgentByID returns the agent with the given id, or nil if none match.
func (c *Catalog) GetAgentByID(id string) *Agent {
	for i := range c.Agents {
		if c.Agents[i].ID == id {
			return &c.Agents[i]
		}
	}
	return nil
}

// GetAgentByHandle returns the first agent (in catalog order) whose handle
// list contains the lowercased form of handle.
func (c *Catalog) GetAgentByHandle(handle string) *Agent {
	lower := strings.ToLower(handle)
	for i := range c.Agents {
		for _, h := range c.Agents[i].Handles {
			if h == lower {
				return &c.Agents[i]
			}
		}
	}
	return nil
}

// GetDefaultAgent returns the configured default agent. It panics if the
// catalog was not built through validate, which guarantees resolvability.
func (c *Catalog) GetDefaultAgent() *Agent {
	agent := c.GetAgentByID(c.DefaultAgentID)
	if agent == nil {
		panic(fmt.Sprintf("config: default agent %q not found after validation", c.DefaultAgentID))
	}
	return agent
}

// IsDefaultAgent reports whether agent is the configured default agent.
func (c *Catalog) IsDefaultAgent(agent *Agent) bool {
	return agent != nil && agent.ID == c.DefaultAgentID
}

// SessionTimeout returns the sticky-session timeout to use: the loaded
// catalog's session.timeout_minutes when c is non-nil, falling back to
// fallbackMin only when no catalog has been loaded yet. Read it fresh
// per request/sweep rather than caching it, so a hot-reloaded change to
// timeout_minutes takes effect immediately.
func (c *Catalog) SessionTimeout(fallbackMin int) time.Duration {
	minutes := fallbackMin
	if c != nil {
		minutes = c.Session.TimeoutMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (r rawCatalog) validate() (*Catalog, error) {
	session := Session{
		StickyEnabled:       true,
		TimeoutMinutes:      30,
		TopicDriftThreshold: 0.5,
	}
	if r.Session.StickyEnabled != nil {
		session.StickyEnabled = *r.Session.StickyEnabled
	}
	if r.Session.TimeoutMinutes != 0 {
		session.TimeoutMinutes = r.Session.TimeoutMinutes
	}
	if r.Session.TopicDriftThreshold != 0 {
		session.TopicDriftThreshold = r.Session.TopicDriftThreshold
	}
	if session.TimeoutMinutes < 1 {
		return nil, fmt.Errorf("session.timeout_minutes must be >= 1, got %d", session.TimeoutMinutes)
	}
	if session.TopicDriftThreshold < 0 || session.TopicDriftThreshold > 1 {
		return nil, fmt.Errorf("session.topic_drift_threshold must be in [0,1], got %v", session.TopicDriftThreshold)
	}
	if r.DefaultAgent.ID == "" {
		return nil, fmt.Errorf("default_agent.id must not be empty")
	}
	if len(r.DefaultAgent.ID) > 100 {
		return nil, fmt.Errorf("default_agent.id exceeds 100 characters")
	}
	if len(r.Agents) == 0 {
		return nil, fmt.Errorf("agents must not be empty")
	}

	seenIDs := make(map[string]bool, len(r.Agents))
	agents := make([]Agent, len(r.Agents))
	for i, agent := range r.Agents {
		if agent.ID == "" || len(agent.ID) > 100 {
			return nil, fmt.Errorf("agents[%d].id must be 1..100 characters", i)
		}
		if seenIDs[agent.ID] {
			return nil, fmt.Errorf("agents[%d].id %q is a duplicate", i, agent.ID)
		}
		seenIDs[agent.ID] = true

		if len(agent.Name) > 200 {
			return nil, fmt.Errorf("agents[%d].name exceeds 200 characters", i)
		}
		if len(agent.Handles) == 0 || len(agent.Handles) > 10 {
			return nil, fmt.Errorf("agents[%d].handles must have 1..10 entries", i)
		}
		normalized := make([]string, len(agent.Handles))
		for j, h := range agent.Handles {
			if h == "" || len(h) > 50 {
				return nil, fmt.Errorf("agents[%d].handles[%d] must be 1..50 characters", i, j)
			}
			normalized[j] = strings.ToLower(h)
		}
		agent.Handles = normalized

		if agent.URL == "" || !strings.HasPrefix(agent.URL, "http://") && !strings.HasPrefix(agent.URL, "https://") {
			return nil, fmt.Errorf("agents[%d].url must be an http(s) URL", i)
		}
		if agent.Protocol == "" {
			agent.Protocol = ProtocolA2A
		}
		if agent.Protocol != ProtocolA2A && agent.Protocol != ProtocolAGUI {
			return nil, fmt.Errorf("agents[%d].protocol must be %q or %q, got %q", i, ProtocolA2A, ProtocolAGUI, agent.Protocol)
		}
		if len(agent.Description) > 1000 {
			return nil, fmt.Errorf("agents[%d].description exceeds 1000 characters", i)
		}
		if agent.Routing != nil {
			if agent.Routing.Priority == 0 {
				agent.Routing.Priority = 1
			}
			if agent.Routing.Priority < 1 {
				return nil, fmt.Errorf("agents[%d].routing.priority must be >= 1", i)
			}
			if agent.Routing.Threshold < 0 || agent.Routing.Threshold > 1 {
				return nil, fmt.Errorf("agents[%d].routing.threshold must be in [0,1]", i)
			}
			if len(agent.Routing.Examples) > 100 {
				return nil, fmt.Errorf("agents[%d].routing.examples must have at most 100 entries", i)
			}
			for j, ex := range agent.Routing.Examples {
				if len(ex) > 500 {
					return nil, fmt.Errorf("agents[%d].routing.examples[%d] exceeds 500 characters", i, j)
				}
			}
		}
		agents[i] = agent
	}

	defaultFound := false
	for _, a := range agents {
		if a.ID == r.DefaultAgent.ID {
			defaultFound = true
			break
		}
	}
	if !defaultFound {
		ids := make([]string, len(agents))
		for i, a := range agents {
			ids[i] = a.ID
		}
		return nil, fmt.Errorf("default_agent.id %q not found in agents; available: %v", r.DefaultAgent.ID, ids)
	}

	return &Catalog{
		Session:        session,
		DefaultAgentID: r.DefaultAgent.ID,
		Agents:         agents,
	}, nil
}
