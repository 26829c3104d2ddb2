// Package pipeline implements the chat endpoint orchestration: request
// validation, routing, mention stripping, SSE streaming of proxy
// events, and the fallback-with-notice sequence when the primary agent
// fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/falox/observability-assistant-router/internal/agui"
	"github.com/falox/observability-assistant-router/internal/audit"
	"github.com/falox/observability-assistant-router/internal/config"
	"github.com/falox/observability-assistant-router/internal/mention"
	"github.com/falox/observability-assistant-router/internal/proxy"
	"github.com/falox/observability-assistant-router/internal/routing"
	"github.com/falox/observability-assistant-router/internal/semantic"
	"github.com/falox/observability-assistant-router/internal/session"
)

// ErrNoUserMessage is returned when a request carries no user-role
// message to route or forward.
var ErrNoUserMessage = errors.New("pipeline: no user message found")

// Settings controls pipeline behavior sourced from process settings.
type Settings struct {
	AuditEnabled        bool
	StreamBufferEnabled bool
	StreamBufferMaxSize int
	// SessionTimeoutMin is the sticky-session timeout to use only when
	// no agent catalog is loaded; once a catalog loads, its
	// session.timeout_minutes takes precedence (see Catalog.SessionTimeout).
	SessionTimeoutMin int
}

// Pipeline wires the router, proxy, session store, and audit logger
// together behind a single per-request entry point.
type Pipeline struct {
	router   *routing.Router
	proxy    *proxy.Proxy
	sessions *session.Store
	auditLog *slog.Logger
	appLog   *slog.Logger
	settings Settings
}

// New builds a Pipeline. sessions may be nil when sticky sessions are
// disabled.
func New(router *routing.Router, proxyClient *proxy.Proxy, sessions *session.Store, auditLog, appLog *slog.Logger, settings Settings) *Pipeline {
	return &Pipeline{router: router, proxy: proxyClient, sessions: sessions, auditLog: auditLog, appLog: appLog, settings: settings}
}

// Run executes the full chat endpoint flow for req, writing SSE events
// via emit (one call per event, in order) and returning when the
// stream is complete or ctx is cancelled. requestID and authorization
// come from inbound headers (X-Request-ID, Authorization).
func (p *Pipeline) Run(ctx context.Context, catalog *config.Catalog, idx *semantic.Index, matcher *semantic.Matcher, req *agui.ChatRequest, requestID, authorization string, emit func(event string, payload []byte) error) error {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	auditor := audit.New(p.auditLog, requestID, req.ThreadID, p.settings.AuditEnabled)

	userMessage := req.LastUserMessageText()
	auditor.LogRequestReceived(len(req.Messages), authorization != "", userMessage)
	if userMessage == "" {
		return ErrNoUserMessage
	}

	headers := http.Header{}
	headers.Set("X-Request-ID", requestID)
	if authorization != "" {
		headers.Set("Authorization", authorization)
	}

	sessionTimeout := catalog.SessionTimeout(p.settings.SessionTimeoutMin)
	decision := p.router.Route(ctx, catalog, idx, matcher, p.sessions, sessionTimeout, userMessage, req.ThreadID, headers)
	auditor.LogRoutingDecision(decision.Agent.ID, decision.Agent.Name, string(decision.Method), decision.Score, decision.TopicDrift)

	forwardingRequest := stripMentionsFromRequest(req)
	defaultAgent := catalog.GetDefaultAgent()
	runID := uuid.NewString()

	var buf *audit.Buffer
	if p.settings.StreamBufferEnabled {
		buf = audit.NewBuffer(req.ThreadID, runID, requestID, p.settings.StreamBufferMaxSize, p.appLog)
	}

	sseEmit := func(e agui.Event) error {
		if buf != nil {
			buf.Observe(e)
		}
		data, err := agui.Marshal(e)
		if err != nil {
			return fmt.Errorf("pipeline: marshal event: %w", err)
		}
		return emit(e.Kind(), data)
	}

	auditor.LogAgentForwarded(decision.Agent.ID, string(decision.Agent.Protocol), 1)
	auditor.LogStreamStarted(runID)

	err := p.proxy.ForwardRequest(ctx, decision.Agent, forwardingRequest, headers, sseEmit)
	if err == nil {
		if buf != nil {
			if msg := buf.Message(); msg != nil && msg.Complete {
				auditor.LogMessageComplete(msg)
			}
		}
		return nil
	}

	var proxyErr *proxy.AgentProxyError
	isProxyErr := errors.As(err, &proxyErr)
	if isProxyErr {
		auditor.LogAgentError(decision.Agent.ID, proxyErr.Error(), nil, proxyErr.IsRetryable, proxyErr.Attempts)
	} else {
		p.appLog.ErrorContext(ctx, "unexpected error forwarding to primary agent", "agent_id", decision.Agent.ID, "error", err)
		auditor.LogAgentError(decision.Agent.ID, err.Error(), nil, false, 1)
	}

	if catalog.IsDefaultAgent(decision.Agent) {
		// Primary was already the default agent; no fallback target remains.
		// An AgentProxyError means the proxy has already emitted RUN_ERROR.
		if isProxyErr {
			return nil
		}
		return sseEmit(agui.RunErrorEvent{Message: fmt.Sprintf("default agent unavailable: %v", err)})
	}

	failureContext := fallbackNotice(decision.Agent, proxyErr, err)
	auditor.LogFallbackTriggered(decision.Agent.ID, defaultAgent.ID, failureContext)

	if err := emitFallbackNotice(failureContext, sseEmit); err != nil {
		return err
	}

	auditor.LogAgentForwarded(defaultAgent.ID, string(defaultAgent.Protocol), 1)
	fallbackErr := p.proxy.ForwardRequest(ctx, defaultAgent, forwardingRequest, headers, sseEmit)
	if fallbackErr == nil {
		if buf != nil {
			if msg := buf.Message(); msg != nil && msg.Complete {
				auditor.LogMessageComplete(msg)
			}
		}
		return nil
	}

	var fallbackProxyErr *proxy.AgentProxyError
	if errors.As(fallbackErr, &fallbackProxyErr) {
		auditor.LogAgentError(defaultAgent.ID, fallbackProxyErr.Error(), nil, fallbackProxyErr.IsRetryable, fallbackProxyErr.Attempts)
	} else {
		auditor.LogAgentError(defaultAgent.ID, fallbackErr.Error(), nil, false, 1)
		if emitErr := sseEmit(agui.RunErrorEvent{Message: fmt.Sprintf("default agent unavailable: %v", fallbackErr)}); emitErr != nil {
			return emitErr
		}
	}
	// An AgentProxyError from the fallback call already came with its own
	// RUN_ERROR from the proxy; any other error got one just above.
	// Propagate so callers know the stream ended in failure.
	return fallbackErr
}

func fallbackNotice(agent *config.Agent, proxyErr *proxy.AgentProxyError, err error) string {
	if proxyErr != nil {
		return fmt.Sprintf("Agent '%s' unavailable after %d attempt(s). ", proxyErr.AgentName, proxyErr.Attempts)
	}
	return fmt.Sprintf("Agent '%s' encountered an error. ", agent.Name)
}

// emitFallbackNotice yields the three synthetic events that tell the
// user their request is being re-routed to the default agent.
func emitFallbackNotice(failureContext string, emit func(agui.Event) error) error {
	messageID := uuid.NewString()
	notice := fmt.Sprintf("[Notice: %sRouting to general assistant.]\n\n", failureContext)

	if err := emit(agui.NewTextMessageStart(messageID)); err != nil {
		return err
	}
	if err := emit(agui.TextMessageContentEvent{MessageID: messageID, Delta: notice}); err != nil {
		return err
	}
	return emit(agui.TextMessageEndEvent{MessageID: messageID})
}

// stripMentionsFromRequest returns a copy of req with @mentions removed
// from every user-role message's text; other roles and the original
// request are left untouched.
func stripMentionsFromRequest(req *agui.ChatRequest) *agui.ChatRequest {
	stripped := make([]agui.Message, len(req.Messages))
	for i, m := range req.Messages {
		if m.Role == agui.RoleUser {
			m.Text = mention.Strip(m.Text)
		}
		stripped[i] = m
	}
	return &agui.ChatRequest{
		ThreadID: req.ThreadID,
		Messages: stripped,
		Tools:    req.Tools,
		Context:  req.Context,
		State:    req.State,
	}
}
