// Package proxy forwards a chat request to a selected agent over its
// configured protocol (AG-UI or A2A), retrying the pre-streaming phase
// of a failed attempt according to the retry policy, and surfaces a
// typed AgentProxyError when every attempt is exhausted.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/falox/observability-assistant-router/internal/a2a"
	"github.com/falox/observability-assistant-router/internal/agui"
	"github.com/falox/observability-assistant-router/internal/config"
	"github.com/falox/observability-assistant-router/internal/retry"
)

// AgentProxyError is raised when forwarding a request to an agent
// fails after all retry attempts, or on a non-retryable error.
type AgentProxyError struct {
	AgentID     string
	AgentName   string
	Attempts    int
	IsRetryable bool
	err         error
}

func (e *AgentProxyError) Error() string {
	return fmt.Sprintf("agent %s failed after %d attempt(s): %v", e.AgentName, e.Attempts, e.err)
}

func (e *AgentProxyError) Unwrap() error { return e.err }

// Proxy forwards requests to agents, dispatching by protocol and
// applying the shared retry policy.
type Proxy struct {
	agui        *agui.Client
	a2a         *a2a.Client
	translator  *a2a.Translator
	retryConfig retry.Config
	log         *slog.Logger
}

// New builds a Proxy sharing httpClient across both protocol clients.
func New(httpClient *http.Client, retryConfig retry.Config, log *slog.Logger) *Proxy {
	return &Proxy{
		agui:        agui.NewClient(httpClient),
		a2a:         a2a.NewClient(httpClient),
		translator:  a2a.New(),
		retryConfig: retryConfig,
		log:         log,
	}
}

// ForwardRequest sends req to agent and calls emit for every AG-UI
// event produced, retrying the whole attempt (up to retryConfig's
// MaxAttempts) as long as no event has yet been emitted for the
// current attempt and the observed error is retryable. Once any event
// has been emitted downstream for an attempt, that attempt is
// committed: a failure mid-stream is returned directly, uncommitted to
// another attempt.
//
// For A2A agents the translator emits RUN_STARTED before the backend
// call is made, so every A2A attempt is committed from its start: a
// failed A2A call is reported in-stream as RUN_ERROR, ForwardRequest
// returns nil, and the call is neither retried nor returned as an
// AgentProxyError.
func (p *Proxy) ForwardRequest(ctx context.Context, agent *config.Agent, req *agui.ChatRequest, headers http.Header, emit func(agui.Event) error) error {
	p.log.InfoContext(ctx, "forwarding request to agent", "agent_id", agent.ID, "agent_name", agent.Name, "protocol", agent.Protocol)

	var lastErr error
	attempts := 0

	for attempt := 0; attempt < p.retryConfig.MaxAttempts; attempt++ {
		attempts = attempt + 1

		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryConfig.Delay(attempt)):
			}
			p.log.InfoContext(ctx, "retrying request to agent", "agent_id", agent.ID, "attempt", attempts, "max_attempts", p.retryConfig.MaxAttempts)
		}

		committed := false
		attemptEmit := func(e agui.Event) error {
			committed = true
			return emit(e)
		}

		err := p.forwardWithProtocol(ctx, agent, req, headers, attemptEmit)
		if err == nil {
			return nil
		}
		lastErr = err

		if committed {
			// An event already reached the caller; this attempt is
			// committed and cannot be silently retried.
			return err
		}

		if !retry.IsRetryable(err) {
			p.log.ErrorContext(ctx, "agent request failed with non-retryable error", "agent_id", agent.ID, "error", err)
			break
		}
		if attempt < p.retryConfig.MaxAttempts-1 {
			p.log.WarnContext(ctx, "agent request failed, will retry", "agent_id", agent.ID, "attempt", attempts, "max_attempts", p.retryConfig.MaxAttempts, "error", err)
		} else {
			p.log.ErrorContext(ctx, "agent request failed after all attempts", "agent_id", agent.ID, "attempts", attempts, "error", err)
		}
	}

	proxyErr := &AgentProxyError{
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		Attempts:    attempts,
		IsRetryable: lastErr != nil && retry.IsRetryable(lastErr),
		err:         lastErr,
	}
	_ = emit(agui.RunErrorEvent{Message: proxyErr.Error()})
	return proxyErr
}

func (p *Proxy) forwardWithProtocol(ctx context.Context, agent *config.Agent, req *agui.ChatRequest, headers http.Header, emit func(agui.Event) error) error {
	if agent.Protocol == config.ProtocolAGUI {
		return p.forwardAGUI(ctx, agent, req, headers, emit)
	}
	return p.forwardA2A(ctx, agent, req, headers, emit)
}

func (p *Proxy) forwardAGUI(ctx context.Context, agent *config.Agent, req *agui.ChatRequest, headers http.Header, emit func(agui.Event) error) error {
	_, err := p.agui.SendMessage(ctx, agent.URL, req, headers, func(e agui.Event) error {
		return emit(agui.WithDisplayName(e, agent.Name))
	})
	return err
}

func (p *Proxy) forwardA2A(ctx context.Context, agent *config.Agent, req *agui.ChatRequest, headers http.Header, emit func(agui.Event) error) error {
	content := req.LastUserMessageText()
	if content == "" {
		return emit(agui.RunErrorEvent{Message: "invalid request: no user message found"})
	}

	contextID := req.ThreadID
	runID := uuid.NewString()

	call := func(frameEmit func(a2a.Frame) error) error {
		return p.a2a.SendMessageStreaming(ctx, agent.URL, content, contextID, headers, frameEmit)
	}
	return p.translator.Stream(req.ThreadID, runID, agent.Name, call, emit)
}
