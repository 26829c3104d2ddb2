package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	sdk "github.com/a2aproject/a2a-go/a2a"
)

// ClientError is raised when a call to an A2A backend agent fails.
type ClientError struct {
	Message string
	Status  int
}

func (e *ClientError) Error() string { return e.Message }

// StatusCode satisfies retry.StatusCoder.
func (e *ClientError) StatusCode() int { return e.Status }

var forwardedHeaders = []string{"Authorization", "X-Request-ID"}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  params `json:"params"`
}

type params struct {
	Message       Message       `json:"message"`
	Configuration configuration `json:"configuration"`
}

type configuration struct {
	Blocking            bool     `json:"blocking"`
	AcceptedOutputModes []string `json:"acceptedOutputModes"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client calls A2A protocol backend agents over HTTP using the
// message/send and message/stream JSON-RPC methods.
type Client struct {
	http *http.Client
}

// NewClient wraps httpClient as an A2A backend caller.
func NewClient(httpClient *http.Client) *Client {
	return &Client{http: httpClient}
}

func buildRequest(method, content, contextID string) jsonRPCRequest {
	message := *sdk.NewMessage(sdk.MessageRoleUser, sdk.TextPart{Text: content})
	message.ContextID = contextID

	return jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params: params{
			Message: message,
			Configuration: configuration{
				Blocking:            false,
				AcceptedOutputModes: []string{"text", "text/plain"},
			},
		},
	}
}

// SendMessageStreaming issues a streaming message/stream call to url
// with a single user TextPart containing content, context id = the
// AG-UI thread id, forwarding only the A2A header whitelist. emit is
// called with each decoded Frame in arrival order; emit returning an
// error aborts the stream and is returned from SendMessageStreaming.
func (c *Client) SendMessageStreaming(ctx context.Context, url, content, contextID string, headers http.Header, emit func(Frame) error) error {
	payload := buildRequest("message/stream", content, contextID)
	body, err := json.Marshal(payload)
	if err != nil {
		return &ClientError{Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Message: fmt.Sprintf("build request: %v", err)}
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
		return &ClientError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s := string(preview)
		if len(s) > 200 {
			s = s[:200]
		}
		return &ClientError{
			Message: fmt.Sprintf("agent returned HTTP %d: %s", resp.StatusCode, s),
			Status:  resp.StatusCode,
		}
	}

	return parseSSEStream(resp.Body, emit)
}

const ssePrefixData = "data: "

func parseSSEStream(r io.Reader, emit func(Frame) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLines []string
	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil
		return parseAndEmit(data, emit)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, ssePrefixData):
			dataLines = append(dataLines, line[len(ssePrefixData):])
		case strings.HasPrefix(line, ":"):
			// comment, ignored
		}
	}
	if err := scanner.Err(); err != nil {
		return &ClientError{Message: fmt.Sprintf("read stream: %v", err)}
	}
	return flush()
}

func parseAndEmit(data string, emit func(Frame) error) error {
	if data == "" || data == "[DONE]" {
		return nil
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal([]byte(data), &rpcResp); err != nil {
		return nil // malformed frame: dropped without logging
	}
	if rpcResp.Error != nil {
		return &ClientError{Message: fmt.Sprintf("agent error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)}
	}
	if len(rpcResp.Result) == 0 {
		return nil
	}

	frame, ok := decodeFrame(rpcResp.Result)
	if !ok {
		return nil
	}
	return emit(frame)
}

func decodeFrame(raw json.RawMessage) (Frame, bool) {
	var disc struct {
		Kind   string `json:"kind"`
		Status struct {
			State string `json:"state"`
		} `json:"status"`
	}
	if err := json.Unmarshal(raw, &disc); err != nil {
		return Frame{}, false
	}

	switch disc.Kind {
	case "task":
		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return Frame{}, false
		}
		return Frame{Task: &t}, true
	case "status-update":
		var e TaskStatusUpdateEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return Frame{}, false
		}
		return Frame{StatusUpdate: &e}, true
	case "artifact-update":
		var e TaskArtifactUpdateEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return Frame{}, false
		}
		return Frame{ArtifactUpdate: &e}, true
	default:
		return Frame{}, false
	}
}
