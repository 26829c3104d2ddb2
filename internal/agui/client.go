package agui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ClientError is raised when a call to an AG-UI backend agent fails: an
// HTTP error response (Status set) or a transport-level failure (Status 0).
type ClientError struct {
	Message string
	Status  int
}

func (e *ClientError) Error() string { return e.Message }

// StatusCode satisfies retry.StatusCoder so the retry policy can classify
// AG-UI failures by HTTP status.
func (e *ClientError) StatusCode() int { return e.Status }

// forwardedHeaders is the whitelist of inbound headers relayed to backend
// agents; anything else inbound is dropped.
var forwardedHeaders = []string{"Authorization", "X-Request-ID", "Content-Type"}

// Client calls AG-UI protocol backend agents over HTTP and streams their
// SSE response back as typed Events.
type Client struct {
	http *http.Client
}

// NewClient wraps httpClient (expected to be the process-wide shared
// client) as an AG-UI backend caller.
func NewClient(httpClient *http.Client) *Client {
	return &Client{http: httpClient}
}

// SendMessage issues a streaming POST to url with req translated into a
// RunAgentInput (minting a fresh run id), forwarding only the AG-UI header
// whitelist from headers, and calls emit for every event parsed from the
// SSE response. emit returning an error aborts the stream and is returned
// from SendMessage. SendMessage returns the run id it minted.
func (c *Client) SendMessage(ctx context.Context, url string, req *ChatRequest, headers http.Header, emit func(Event) error) (string, error) {
	runID := uuid.NewString()

	body, err := json.Marshal(RunAgentInput{
		ThreadID:       req.ThreadID,
		RunID:          runID,
		Messages:       req.Messages,
		Tools:          req.Tools,
		Context:        req.Context,
		State:          req.State,
		ForwardedProps: map[string]any{},
	})
	if err != nil {
		return runID, &ClientError{Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return runID, &ClientError{Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for _, h := range forwardedHeaders {
		if v := headers.Get(h); v != "" {
			httpReq.Header.Set(h, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return runID, &ClientError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return runID, &ClientError{
			Message: fmt.Sprintf("agent returned HTTP %d: %s", resp.StatusCode, preview),
			Status:  resp.StatusCode,
		}
	}

	if err := parseSSEStream(resp.Body, emit); err != nil {
		return runID, err
	}
	return runID, nil
}

const (
	ssePrefixData  = "data: "
	ssePrefixEvent = "event: "
)

// parseSSEStream reads Server-Sent Events from r: event:/data: lines,
// blank-line flush, multi-line data joined by "\n", ":" comments
// ignored, [DONE] and empty frames dropped.
func parseSSEStream(r io.Reader, emit func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			if len(dataLines) > 0 {
				data := strings.Join(dataLines, "\n")
				if err := parseAndEmit(data, eventType, emit); err != nil {
					return err
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		switch {
		case strings.HasPrefix(line, ssePrefixEvent):
			eventType = strings.TrimSpace(line[len(ssePrefixEvent):])
		case strings.HasPrefix(line, ssePrefixData):
			dataLines = append(dataLines, line[len(ssePrefixData):])
		case strings.HasPrefix(line, ":"):
			// comment, ignored
		}
	}
	if err := scanner.Err(); err != nil {
		return &ClientError{Message: fmt.Sprintf("read stream: %v", err)}
	}

	if len(dataLines) > 0 {
		data := strings.Join(dataLines, "\n")
		if err := parseAndEmit(data, eventType, emit); err != nil {
			return err
		}
	}
	return nil
}

func parseAndEmit(data, eventType string, emit func(Event) error) error {
	if data == "" || data == "[DONE]" {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil // malformed frame: dropped without logging, not a hard failure
	}

	event, err := Parse(raw, eventType)
	if err != nil {
		return nil // missing type field: dropped without logging a warning
	}
	return emit(event)
}
