// Package audit emits structured JSON audit events for compliance,
// debugging, and analytics, on a logger kept independent from the
// application's own logs, and reassembles streamed text messages for
// completion logging via Buffer.
package audit

import (
	"log/slog"
	"os"
	"time"
)

// EventType names the kind of audit event.
type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventRoutingDecision   EventType = "routing_decision"
	EventAgentForwarded    EventType = "agent_forwarded"
	EventStreamStarted     EventType = "stream_started"
	EventStreamChunk       EventType = "stream_chunk"
	EventMessageComplete   EventType = "message_complete"
	EventSessionCreated    EventType = "session_created"
	EventSessionUpdated    EventType = "session_updated"
	EventSessionExpired    EventType = "session_expired"
	EventSessionDeleted    EventType = "session_deleted"
	EventAgentError        EventType = "agent_error"
	EventFallbackTriggered EventType = "fallback_triggered"
)

// NewLogger builds the dedicated audit slog.Logger: JSON output to
// stdout at the given level, independent of (and never propagated
// into) the application's own logger hierarchy.
func NewLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("logger", "router.audit")
}

// Logger emits structured audit events for a single request. All
// audit calls are no-ops when the logger was constructed with
// enabled=false, so audit logging failures or overhead never affect
// request processing.
type Logger struct {
	log       *slog.Logger
	requestID string
	threadID  string
	enabled   bool
}

// New returns a request-scoped audit Logger writing through log.
func New(log *slog.Logger, requestID, threadID string, enabled bool) *Logger {
	return &Logger{log: log, requestID: requestID, threadID: threadID, enabled: enabled}
}

func (a *Logger) emit(eventType EventType, attrs ...any) {
	if !a.enabled {
		return
	}
	base := []any{
		"event_type", string(eventType),
		"timestamp", time.Now().UTC().Format(time.RFC3339Nano),
		"request_id", a.requestID,
		"thread_id", a.threadID,
	}
	a.log.Info(string(eventType), append(base, attrs...)...)
}

// LogRequestReceived records that a chat request arrived.
func (a *Logger) LogRequestReceived(messageCount int, hasAuthorization bool, userMessagePreview string) {
	attrs := []any{"message_count", messageCount, "has_authorization", hasAuthorization}
	if userMessagePreview != "" {
		attrs = append(attrs, "user_message_preview", truncate(userMessagePreview, 100))
	}
	a.emit(EventRequestReceived, attrs...)
}

// LogRoutingDecision records which agent was selected and how.
func (a *Logger) LogRoutingDecision(agentID, agentName, routingMethod string, confidenceScore *float32, topicDriftDetected bool) {
	attrs := []any{"agent_id", agentID, "agent_name", agentName, "routing_method", routingMethod}
	if confidenceScore != nil {
		attrs = append(attrs, "confidence_score", roundTo4(*confidenceScore))
	}
	if topicDriftDetected {
		attrs = append(attrs, "topic_drift_detected", true)
	}
	a.emit(EventRoutingDecision, attrs...)
}

// LogAgentForwarded records that a request was forwarded to an agent.
func (a *Logger) LogAgentForwarded(agentID, agentProtocol string, attemptNumber int) {
	a.emit(EventAgentForwarded, "agent_id", agentID, "agent_protocol", agentProtocol, "attempt_number", attemptNumber)
}

// LogStreamStarted records that streaming has started for runID.
func (a *Logger) LogStreamStarted(runID string) {
	a.emit(EventStreamStarted, "run_id", runID)
}

// LogMessageComplete records that message has finished streaming.
func (a *Logger) LogMessageComplete(message *BufferedMessage) {
	if message == nil {
		return
	}
	var durationMs *float64
	if message.StartTime != nil && message.CompletionTime != nil {
		d := message.CompletionTime.Sub(*message.StartTime).Seconds() * 1000
		durationMs = &d
	}
	a.emit(EventMessageComplete,
		"message_id", message.MessageID,
		"content_length", len(message.AccumulatedContent),
		"frame_count", len(message.Frames),
		"duration_ms", durationMs,
	)
}

// SessionAction names a session lifecycle transition.
type SessionAction string

const (
	SessionCreated SessionAction = "created"
	SessionUpdated SessionAction = "updated"
	SessionExpired SessionAction = "expired"
	SessionDeleted SessionAction = "deleted"
)

var sessionEventTypes = map[SessionAction]EventType{
	SessionCreated: EventSessionCreated,
	SessionUpdated: EventSessionUpdated,
	SessionExpired: EventSessionExpired,
	SessionDeleted: EventSessionDeleted,
}

// LogSessionEvent records a session lifecycle event.
func (a *Logger) LogSessionEvent(action SessionAction, agentID, reason string) {
	eventType, ok := sessionEventTypes[action]
	if !ok {
		eventType = EventSessionUpdated
	}
	attrs := []any{"action", string(action)}
	if agentID != "" {
		attrs = append(attrs, "agent_id", agentID)
	}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	a.emit(eventType, attrs...)
}

// LogAgentError records an agent call failure.
func (a *Logger) LogAgentError(agentID, errorMessage string, statusCode *int, isRetryable bool, attemptNumber int) {
	msg := errorMessage
	if msg == "" {
		msg = "Unknown error"
	}
	attrs := []any{
		"agent_id", agentID,
		"error_message", truncate(msg, 200),
		"is_retryable", isRetryable,
		"attempt_number", attemptNumber,
	}
	if statusCode != nil {
		attrs = append(attrs, "status_code", *statusCode)
	}
	a.emit(EventAgentError, attrs...)
}

// LogFallbackTriggered records a fallback to another agent.
func (a *Logger) LogFallbackTriggered(originalAgentID, fallbackAgentID, reason string) {
	if reason == "" {
		reason = "Unknown"
	}
	a.emit(EventFallbackTriggered, "original_agent_id", originalAgentID, "fallback_agent_id", fallbackAgentID, "reason", truncate(reason, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func roundTo4(f float32) float64 {
	scaled := float64(f) * 10000
	if scaled >= 0 {
		scaled += 0.5
	} else {
		scaled -= 0.5
	}
	return float64(int64(scaled)) / 10000
}
