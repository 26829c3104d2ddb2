// Package llmfallback asks the default agent, used as a classifier LLM, to
// pick the specialist agent that should handle a message neither the
// mention override nor the semantic matcher resolved.
package llmfallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/falox/observability-assistant-router/internal/config"
)

// MaxMessageLength bounds the user message embedded in the classification
// prompt; longer messages are truncated with a trailing ellipsis.
const MaxMessageLength = 500

const promptTemplate = `User query: %s

Available specialist agents:
%s

Which agent should handle this query? Respond with ONLY the agent ID.`

// Error wraps any failure to complete LLM classification: HTTP failures,
// transport errors, or malformed responses. It is always recoverable by
// the caller degrading to default-agent selection.
type Error struct {
	msg string
	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// BuildPrompt renders the classification prompt enumerating agents as
// "- <id>: <description>" lines, truncating message to MaxMessageLength.
func BuildPrompt(message string, agents []*config.Agent) string {
	truncated := message
	if len(message) > MaxMessageLength {
		truncated = message[:MaxMessageLength] + "..."
	}

	lines := make([]string, len(agents))
	for i, agent := range agents {
		desc := strings.TrimSpace(agent.Description)
		if desc == "" {
			desc = "No description available"
		}
		lines[i] = fmt.Sprintf("- %s: %s", agent.ID, desc)
	}

	return fmt.Sprintf(promptTemplate, truncated, strings.Join(lines, "\n"))
}

// ParseResponse extracts the matched agent from the LLM's raw response
// text, trying (in order) an exact id match on the first line, then a
// case-insensitive match, then a word-boundary search for the id within
// that first line (surrounding quotes trimmed); later lines are not
// searched. Returns nil if none match.
func ParseResponse(response string, agents []*config.Agent) *config.Agent {
	if strings.TrimSpace(response) == "" {
		return nil
	}

	firstLine := strings.Split(strings.TrimSpace(response), "\n")[0]
	text := strings.Trim(strings.TrimSpace(firstLine), "\"'")

	for _, agent := range agents {
		if agent.ID == text {
			return agent
		}
	}

	lower := strings.ToLower(text)
	for _, agent := range agents {
		if strings.ToLower(agent.ID) == lower {
			return agent
		}
	}

	for _, agent := range agents {
		pattern := `(?i)\b` + regexp.QuoteMeta(agent.ID) + `\b`
		if regexp.MustCompile(pattern).MatchString(text) {
			return agent
		}
	}

	return nil
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  params `json:"params"`
}

type params struct {
	Message       message       `json:"message"`
	Configuration configuration `json:"configuration"`
	ContextID     string        `json:"contextId"`
}

type message struct {
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
	Parts     []part `json:"parts"`
}

type part struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type configuration struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes"`
}

// Classify sends a single non-streaming A2A "message/send" request to the
// default agent's URL asking it to classify message among agents, and
// parses the reply into a matched *config.Agent (nil if no match).
// authorization, if non-empty, is forwarded as the Authorization header;
// X-Request-ID is deliberately not forwarded, matching the original
// behavior that this is a distinct, internal classification call.
func Classify(ctx context.Context, httpClient *http.Client, log *slog.Logger, message string, agents []*config.Agent, defaultAgentURL, authorization string) (*config.Agent, error) {
	if len(agents) == 0 {
		log.Debug("no agents configured for LLM classification")
		return nil, nil
	}

	prompt := BuildPrompt(message, agents)
	log.Debug("calling LLM fallback for classification", "message_len", len(message), "agents", len(agents))

	payload := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "message/send",
		Params: params{
			Message: newMessage(prompt),
			Configuration: configuration{
				AcceptedOutputModes: []string{"text"},
			},
			ContextID: uuid.NewString(),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{msg: "encode classification request", err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, defaultAgentURL, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{msg: "build classification request", err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		log.Error("LLM classification request error", "error", err)
		return nil, &Error{msg: "LLM classification request failed", err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		preview := string(respBody)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		log.Error("LLM classification request failed", "status", resp.StatusCode, "body", preview)
		return nil, &Error{msg: fmt.Sprintf("LLM classification failed: HTTP %d", resp.StatusCode)}
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &Error{msg: "decode classification response", err: err}
	}

	text := extractText(result)
	if text == "" {
		log.Warn("no text content in LLM classification response")
		return nil, nil
	}

	return ParseResponse(text, agents), nil
}

func newMessage(prompt string) message {
	return message{
		MessageID: uuid.NewString(),
		Role:      "user",
		Parts:     []part{{Kind: "text", Text: prompt}},
	}
}

// extractText mirrors _extract_text_from_a2a_response: looks in order at
// result.artifacts[*].parts[*].text, then result.message.parts[*].text,
// then result.text.
func extractText(response map[string]any) string {
	result, _ := response["result"].(map[string]any)
	if result == nil {
		return ""
	}

	if artifacts, ok := result["artifacts"].([]any); ok {
		for _, a := range artifacts {
			artifact, _ := a.(map[string]any)
			if text := firstPartText(artifact); text != "" {
				return text
			}
		}
	}

	if msg, ok := result["message"].(map[string]any); ok {
		if text := firstPartText(msg); text != "" {
			return text
		}
	}

	if text, ok := result["text"].(string); ok {
		return text
	}

	return ""
}

func firstPartText(container map[string]any) string {
	if container == nil {
		return ""
	}
	parts, ok := container["parts"].([]any)
	if !ok {
		return ""
	}
	for _, p := range parts {
		part, _ := p.(map[string]any)
		if part == nil {
			continue
		}
		if text, ok := part["text"].(string); ok && text != "" {
			return text
		}
	}
	return ""
}
