package agui

import (
	"encoding/json"
	"fmt"
)

// Role is a chat message's author role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MessagePart is one piece of a multi-part message content list, used when
// Content is not a bare string.
type MessagePart struct {
	Text string `json:"text"`
}

// Message is a single entry in a ChatRequest's messages list. Content may
// arrive on the wire as either a bare string or a list of parts with a
// text field; UnmarshalJSON normalizes both into Text.
type Message struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Text string `json:"-"`
}

type messageWire struct {
	ID      string          `json:"id"`
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// UnmarshalJSON accepts content as either a JSON string or a list of
// {"text": "..."} parts, concatenating multiple parts' text.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("agui: decode message: %w", err)
	}
	m.ID = wire.ID
	m.Role = wire.Role

	if len(wire.Content) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(wire.Content, &asString); err == nil {
		m.Text = asString
		return nil
	}

	var parts []MessagePart
	if err := json.Unmarshal(wire.Content, &parts); err == nil {
		for _, p := range parts {
			m.Text += p.Text
		}
		return nil
	}

	return fmt.Errorf("agui: message content must be a string or a list of parts")
}

// MarshalJSON re-serializes Message with content as a bare string, which
// is always acceptable on the wire and simplifies forwarding.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID      string `json:"id"`
		Role    Role   `json:"role"`
		Content string `json:"content"`
	}{ID: m.ID, Role: m.Role, Content: m.Text})
}

// Tool is an opaque tool definition forwarded verbatim to backend agents.
type Tool map[string]any

// Context is an opaque context entry forwarded verbatim to backend agents.
type Context map[string]any

// ChatRequest is the AG-UI ingress chat request. Field names are accepted
// in either camelCase or snake_case on the wire.
type ChatRequest struct {
	ThreadID string            `json:"-"`
	Messages []Message         `json:"-"`
	Tools    []Tool            `json:"-"`
	Context  []Context         `json:"-"`
	State    map[string]any    `json:"-"`
}

type chatRequestWire struct {
	ThreadID      string           `json:"threadId"`
	ThreadIDSnake string           `json:"thread_id"`
	Messages      []Message        `json:"messages"`
	Tools         []Tool           `json:"tools"`
	Context       []Context        `json:"context"`
	State         map[string]any   `json:"state"`
}

// UnmarshalJSON accepts threadId or thread_id, preferring threadId when
// both are present.
func (c *ChatRequest) UnmarshalJSON(data []byte) error {
	var wire chatRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("agui: decode chat request: %w", err)
	}

	c.ThreadID = wire.ThreadID
	if c.ThreadID == "" {
		c.ThreadID = wire.ThreadIDSnake
	}
	c.Messages = wire.Messages
	c.Tools = wire.Tools
	c.Context = wire.Context
	c.State = wire.State
	return nil
}

// Validate checks ChatRequest's structural constraints.
func (c *ChatRequest) Validate() error {
	if c.ThreadID == "" {
		return fmt.Errorf("thread_id must not be empty")
	}
	if len(c.ThreadID) > 100 {
		return fmt.Errorf("thread_id exceeds 100 characters")
	}
	if len(c.Messages) == 0 {
		return fmt.Errorf("messages must have at least one entry")
	}
	if len(c.Messages) > 100 {
		return fmt.Errorf("messages must have at most 100 entries")
	}
	for i, m := range c.Messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		default:
			return fmt.Errorf("messages[%d].role %q is not one of user/assistant/system/tool", i, m.Role)
		}
	}
	return nil
}

// LastUserMessageText returns the text of the last message with role user,
// or "" if there is none.
func (c *ChatRequest) LastUserMessageText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Text
		}
	}
	return ""
}

// RunAgentInput is the full request body forwarded to an AG-UI backend
// agent: ChatRequest plus a freshly minted run id and an empty
// forwardedProps object.
type RunAgentInput struct {
	ThreadID       string         `json:"threadId"`
	RunID          string         `json:"runId"`
	Messages       []Message      `json:"messages"`
	Tools          []Tool         `json:"tools"`
	Context        []Context      `json:"context"`
	State          map[string]any `json:"state,omitempty"`
	ForwardedProps map[string]any `json:"forwardedProps"`
}
