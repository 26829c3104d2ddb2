package audit

import (
	"log/slog"
	"time"

	"github.com/falox/observability-assistant-router/internal/agui"
)

// Frame is a single AG-UI event captured by Buffer, retained for
// message-completion audit logging.
type Frame struct {
	EventType string
	Event     agui.Event
	Timestamp time.Time
	Sequence  int
}

// BufferedMessage is a complete assistant message reassembled from
// TEXT_MESSAGE_START/CONTENT/END frames.
type BufferedMessage struct {
	MessageID          string
	ThreadID           string
	RunID              string
	Frames             []Frame
	Complete           bool
	StartTime          *time.Time
	CompletionTime     *time.Time
	AccumulatedContent string
}

// Buffer accumulates a streaming response's events, passthrough-style:
// every event is still forwarded immediately, while content is
// reassembled for a final message_complete audit entry once the
// stream ends.
type Buffer struct {
	threadID      string
	runID         string
	requestID     string
	maxContentLen int
	message       *BufferedMessage
	sequence      int
	contentLen    int
	log           *slog.Logger
}

// NewBuffer returns a Buffer scoped to one request/run, capping
// reassembled content at maxContentLen bytes.
func NewBuffer(threadID, runID, requestID string, maxContentLen int, log *slog.Logger) *Buffer {
	return &Buffer{threadID: threadID, runID: runID, requestID: requestID, maxContentLen: maxContentLen, log: log}
}

// Message returns the buffered message, or nil if none was started.
func (b *Buffer) Message() *BufferedMessage { return b.message }

// Observe records e (emitted at the current time) into the buffer.
// Callers should call Observe for every event they forward downstream,
// in order, immediately before or after forwarding it.
func (b *Buffer) Observe(e agui.Event) {
	now := time.Now()
	frame := Frame{EventType: e.Kind(), Event: e, Timestamp: now, Sequence: b.sequence}
	b.sequence++

	switch ev := e.(type) {
	case agui.TextMessageStartEvent:
		b.handleStart(ev.MessageID, frame)
	case agui.TextMessageContentEvent:
		b.handleContent(ev.MessageID, ev.Delta, frame)
	case agui.TextMessageEndEvent:
		b.handleEnd(frame)
	case agui.RunErrorEvent:
		b.handleError(frame)
	}
}

func (b *Buffer) handleStart(messageID string, frame Frame) {
	now := frame.Timestamp
	b.message = &BufferedMessage{
		MessageID: messageID,
		ThreadID:  b.threadID,
		RunID:     b.runID,
		Frames:    []Frame{frame},
		StartTime: &now,
	}
	b.contentLen = 0
}

func (b *Buffer) handleContent(messageID, delta string, frame Frame) {
	if b.message == nil {
		now := frame.Timestamp
		b.message = &BufferedMessage{MessageID: messageID, ThreadID: b.threadID, RunID: b.runID, Frames: []Frame{frame}, StartTime: &now}
	} else {
		b.message.Frames = append(b.message.Frames, frame)
	}

	if delta == "" || b.contentLen >= b.maxContentLen {
		return
	}
	remaining := b.maxContentLen - b.contentLen
	truncated := delta
	if len(truncated) > remaining {
		truncated = truncated[:remaining]
		b.log.Warn("buffered content truncated at max size", "request_id", b.requestID, "max", b.maxContentLen)
	}
	b.message.AccumulatedContent += truncated
	b.contentLen += len(truncated)
}

func (b *Buffer) handleEnd(frame Frame) {
	if b.message == nil {
		return
	}
	b.message.Frames = append(b.message.Frames, frame)
	b.message.Complete = true
	now := frame.Timestamp
	b.message.CompletionTime = &now
}

func (b *Buffer) handleError(frame Frame) {
	if b.message == nil {
		return
	}
	b.message.Frames = append(b.message.Frames, frame)
	b.message.Complete = true
	now := frame.Timestamp
	b.message.CompletionTime = &now
}
