// Package routing implements the deterministic routing cascade that
// picks which agent handles an incoming message: mention override,
// sticky session (with topic-drift re-routing), semantic match, LLM
// fallback classification, and finally the configured default agent.
package routing

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/falox/observability-assistant-router/internal/config"
	"github.com/falox/observability-assistant-router/internal/drift"
	"github.com/falox/observability-assistant-router/internal/llmfallback"
	"github.com/falox/observability-assistant-router/internal/mention"
	"github.com/falox/observability-assistant-router/internal/semantic"
	"github.com/falox/observability-assistant-router/internal/session"
)

// Method names the routing cascade stage that selected the agent.
type Method string

const (
	MethodMention     Method = "mention"
	MethodSticky      Method = "sticky"
	MethodSemantic    Method = "semantic"
	MethodLLMFallback Method = "llm_fallback"
	MethodDefault     Method = "default"
)

// Decision is the outcome of routing a single message: which agent was
// selected, how, and any score/drift metadata worth auditing.
type Decision struct {
	Agent       *config.Agent
	Method      Method
	Score       *float32
	TopicDrift  bool
}

// Router ties together the session store, semantic matcher, and LLM
// fallback classifier behind the routing cascade.
type Router struct {
	httpClient *http.Client
	log        *slog.Logger
}

// New returns a Router that uses httpClient for LLM fallback calls.
func New(httpClient *http.Client, log *slog.Logger) *Router {
	return &Router{httpClient: httpClient, log: log}
}

// Route selects an agent for message on the given thread. sessions may
// be nil when sticky sessions are disabled. headers carries the
// inbound Authorization (forwarded to LLM fallback calls only).
func (r *Router) Route(ctx context.Context, catalog *config.Catalog, idx *semantic.Index, matcher *semantic.Matcher, sessions *session.Store, sessionTimeout time.Duration, message, threadID string, headers http.Header) Decision {
	if handle := mention.Parse(message); handle != "" {
		if agent := catalog.GetAgentByHandle(handle); agent != nil {
			r.log.InfoContext(ctx, "routed via mention", "handle", handle, "agent_id", agent.ID)
			r.maybeStickySessionUpdate(catalog, sessions, threadID, agent)
			return Decision{Agent: agent, Method: MethodMention}
		}
		r.log.WarnContext(ctx, "unknown mention handle, falling back", "handle", handle)
	}

	if sessions != nil {
		if sess := sessions.Get(threadID, sessionTimeout); sess != nil {
			if stickyAgent := catalog.GetAgentByID(sess.AgentID); stickyAgent != nil {
				result := drift.Detect(ctx, r.log, matcher, idx, message, stickyAgent, float32(catalog.Session.TopicDriftThreshold))
				if !result.Drifted {
					sessions.Touch(threadID, sessionTimeout)
					score := result.Score
					r.log.InfoContext(ctx, "routed via sticky session", "thread_id", threadID, "agent_id", stickyAgent.ID, "score", score)
					return Decision{Agent: stickyAgent, Method: MethodSticky, Score: &score}
				}
				sessions.Delete(threadID)
				r.log.InfoContext(ctx, "topic drift detected, re-routing", "thread_id", threadID, "old_agent_id", stickyAgent.ID)
				decision := r.routeFresh(ctx, catalog, idx, matcher, message, headers)
				decision.TopicDrift = true
				r.maybeStickySessionUpdate(catalog, sessions, threadID, decision.Agent)
				return decision
			}
		}
	}

	decision := r.routeFresh(ctx, catalog, idx, matcher, message, headers)
	r.maybeStickySessionUpdate(catalog, sessions, threadID, decision.Agent)
	return decision
}

// routeFresh runs the semantic → LLM fallback → default cascade for a
// message with no mention or usable sticky session.
func (r *Router) routeFresh(ctx context.Context, catalog *config.Catalog, idx *semantic.Index, matcher *semantic.Matcher, message string, headers http.Header) Decision {
	if match, err := matcher.MatchBest(ctx, idx, message); err == nil && match != nil {
		score := match.Score
		r.log.InfoContext(ctx, "routed via semantic match", "agent_id", match.Agent.ID, "score", score)
		return Decision{Agent: match.Agent, Method: MethodSemantic, Score: &score}
	}

	defaultAgent := catalog.GetDefaultAgent()
	if len(catalog.Agents) > 0 {
		var authorization string
		if headers != nil {
			authorization = headers.Get("Authorization")
		}
		agentPtrs := make([]*config.Agent, len(catalog.Agents))
		for i := range catalog.Agents {
			agentPtrs[i] = &catalog.Agents[i]
		}
		agent, err := llmfallback.Classify(ctx, r.httpClient, r.log, message, agentPtrs, defaultAgent.URL, authorization)
		if err != nil {
			r.log.WarnContext(ctx, "LLM fallback classification failed, using default agent", "error", err)
		} else if agent != nil {
			r.log.InfoContext(ctx, "routed via LLM fallback", "agent_id", agent.ID)
			return Decision{Agent: agent, Method: MethodLLMFallback}
		}
	}

	r.log.InfoContext(ctx, "no match found, using default agent")
	return Decision{Agent: defaultAgent, Method: MethodDefault}
}

func (r *Router) maybeStickySessionUpdate(catalog *config.Catalog, sessions *session.Store, threadID string, agent *config.Agent) {
	if sessions == nil || !catalog.Session.StickyEnabled || agent == nil {
		return
	}
	sessions.Set(threadID, agent.ID, agent.PrimaryHandle())
}
