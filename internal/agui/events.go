// Package agui implements the AG-UI ingress protocol: wire event types,
// JSON (de)serialization in camelCase, and an SSE-speaking client used by
// the streaming proxy to talk to AG-UI-protocol backend agents.
package agui

import (
	"encoding/json"
	"fmt"
)

// Event type discriminators, matching the wire "type" field exactly.
const (
	TypeRunStarted          = "RUN_STARTED"
	TypeRunFinished         = "RUN_FINISHED"
	TypeRunError            = "RUN_ERROR"
	TypeTextMessageStart    = "TEXT_MESSAGE_START"
	TypeTextMessageContent  = "TEXT_MESSAGE_CONTENT"
	TypeTextMessageEnd      = "TEXT_MESSAGE_END"
)

// Event is the tagged-union AG-UI event interface. Every concrete variant
// plus Passthrough implements it; Kind returns the wire "type" value.
type Event interface {
	Kind() string
}

// RunStartedEvent begins an AG-UI run. DisplayName is present only when the
// proxy injects the backing agent's display name.
type RunStartedEvent struct {
	ThreadID    string `json:"threadId"`
	RunID       string `json:"runId"`
	DisplayName string `json:"displayName,omitempty"`
}

func (RunStartedEvent) Kind() string { return TypeRunStarted }

// RunFinishedEvent ends an AG-UI run successfully.
type RunFinishedEvent struct {
	ThreadID string `json:"threadId"`
	RunID    string `json:"runId"`
}

func (RunFinishedEvent) Kind() string { return TypeRunFinished }

// RunErrorEvent ends an AG-UI run with a failure.
type RunErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (RunErrorEvent) Kind() string { return TypeRunError }

// TextMessageStartEvent opens a new assistant text message.
type TextMessageStartEvent struct {
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
}

func (TextMessageStartEvent) Kind() string { return TypeTextMessageStart }

// TextMessageContentEvent carries one incremental delta of message text.
type TextMessageContentEvent struct {
	MessageID string `json:"messageId"`
	Delta     string `json:"delta"`
}

func (TextMessageContentEvent) Kind() string { return TypeTextMessageContent }

// TextMessageEndEvent closes a text message opened by TextMessageStartEvent.
type TextMessageEndEvent struct {
	MessageID string `json:"messageId"`
}

func (TextMessageEndEvent) Kind() string { return TypeTextMessageEnd }

// Passthrough holds any event type this router does not model explicitly
// (tool calls, state deltas, thinking, …), preserving every field verbatim
// for forward compatibility.
type Passthrough struct {
	Type string
	Raw  map[string]any
}

func (p Passthrough) Kind() string { return p.Type }

// NewTextMessageStart builds a TEXT_MESSAGE_START event with the
// conventional assistant role.
func NewTextMessageStart(messageID string) TextMessageStartEvent {
	return TextMessageStartEvent{MessageID: messageID, Role: "assistant"}
}

// Marshal encodes e as its wire JSON form: camelCase fields, nulls
// excluded, with the "type" discriminator set from e.Kind().
func Marshal(e Event) ([]byte, error) {
	if p, ok := e.(Passthrough); ok {
		out := make(map[string]any, len(p.Raw)+1)
		for k, v := range p.Raw {
			out[k] = v
		}
		out["type"] = p.Type
		return json.Marshal(out)
	}

	fields, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", e, err)
	}
	var m map[string]any
	if err := json.Unmarshal(fields, &m); err != nil {
		return nil, fmt.Errorf("marshal %T: %w", e, err)
	}
	m["type"] = e.Kind()
	return json.Marshal(m)
}

// Parse decodes a generic JSON event object into a typed Event. If the
// object itself carries no "type" field, fallbackType (typically the SSE
// "event:" header) is used instead. Returns an error if neither source
// supplies a type.
func Parse(raw map[string]any, fallbackType string) (Event, error) {
	typ, _ := raw["type"].(string)
	if typ == "" {
		typ = fallbackType
	}
	if typ == "" {
		return nil, fmt.Errorf("agui: event has no type field")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("agui: re-marshal event: %w", err)
	}

	switch typ {
	case TypeRunStarted:
		var e RunStartedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case TypeRunFinished:
		var e RunFinishedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case TypeRunError:
		var e RunErrorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case TypeTextMessageStart:
		var e TextMessageStartEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case TypeTextMessageContent:
		var e TextMessageContentEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case TypeTextMessageEnd:
		var e TextMessageEndEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return Passthrough{Type: typ, Raw: raw}, nil
	}
}

// WithDisplayName returns e with DisplayName set, if e is a RunStartedEvent;
// otherwise e is returned unchanged. Mirrors inject_display_name.
func WithDisplayName(e Event, displayName string) Event {
	if displayName == "" {
		return e
	}
	if started, ok := e.(RunStartedEvent); ok {
		started.DisplayName = displayName
		return started
	}
	return e
}
