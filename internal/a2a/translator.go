package a2a

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/falox/observability-assistant-router/internal/agui"
)

// Translator converts a stream of A2A frames into AG-UI events,
// maintaining a running state machine: RUN_STARTED, then
// TEXT_MESSAGE_START/CONTENT* for the first and subsequent textual
// frames, TEXT_MESSAGE_END if a message was started, and RUN_FINISHED
// — or RUN_ERROR on failure.
type Translator struct{}

// New returns a stateless Translator; a fresh one can be reused across
// calls since all per-stream state lives in Stream's locals.
func New() *Translator { return &Translator{} }

// Call is the shape of a function that drives an A2A stream, invoking
// frameEmit for every frame it decodes; it returns any error the
// underlying call produced (transport failure, A2A error frame, etc).
type Call func(frameEmit func(Frame) error) error

// Stream runs the translator state machine: emits RUN_STARTED (with
// displayName injected if non-empty), drives call with a frame handler
// that emits the corresponding AG-UI text events, then emits
// TEXT_MESSAGE_END (if a message was started) and RUN_FINISHED. If
// call returns an error, emits RUN_ERROR instead of
// TEXT_MESSAGE_END/RUN_FINISHED. eventEmit errors (e.g. a disconnected
// client) abort immediately and propagate without a RUN_ERROR, since
// there is no channel left to deliver it on.
func (t *Translator) Stream(threadID, runID, displayName string, call Call, eventEmit func(agui.Event) error) error {
	messageID := uuid.NewString()
	started := false
	accumulated := ""

	runStarted := agui.Event(agui.RunStartedEvent{ThreadID: threadID, RunID: runID})
	runStarted = agui.WithDisplayName(runStarted, displayName)
	if err := eventEmit(runStarted); err != nil {
		return err
	}

	var emitErr error
	streamErr := call(func(f Frame) error {
		if err := t.handleFrame(f, messageID, &started, &accumulated, eventEmit); err != nil {
			emitErr = err
			return err
		}
		return nil
	})

	if emitErr != nil {
		return emitErr
	}
	if streamErr != nil {
		return eventEmit(agui.RunErrorEvent{Message: fmt.Sprintf("error processing agent response: %v", streamErr)})
	}

	if started {
		if err := eventEmit(agui.TextMessageEndEvent{MessageID: messageID}); err != nil {
			return err
		}
	}
	return eventEmit(agui.RunFinishedEvent{ThreadID: threadID, RunID: runID})
}

func (t *Translator) handleFrame(f Frame, messageID string, started *bool, accumulated *string, eventEmit func(agui.Event) error) error {
	if f.Task != nil && isDuplicateContent(FirstAgentText(*f.Task), *accumulated) {
		return nil
	}

	text := f.Text()
	if text == "" {
		return nil
	}

	if !*started {
		if err := eventEmit(agui.NewTextMessageStart(messageID)); err != nil {
			return err
		}
		*started = true
	}

	var delta string
	if strings.HasPrefix(text, *accumulated) {
		delta = text[len(*accumulated):]
		*accumulated = text
	} else {
		delta = text
		*accumulated += text
	}

	if delta == "" {
		return nil
	}
	return eventEmit(agui.TextMessageContentEvent{MessageID: messageID, Delta: delta})
}

// isDuplicateContent applies a multi-condition heuristic to Task frames
// only, to suppress an agent's final Task.history entry re-sending the
// complete reply that was already delta-streamed via status updates.
func isDuplicateContent(text, accumulated string) bool {
	if accumulated == "" {
		return false
	}
	if text == accumulated {
		return true
	}
	if strings.Contains(accumulated, text) {
		return true
	}
	if strings.HasPrefix(accumulated, text) {
		return true
	}
	if strings.HasPrefix(text, accumulated) {
		return false
	}

	if normalizeWhitespace(text) == normalizeWhitespace(accumulated) {
		return true
	}

	if len(accumulated) > 50 {
		ratio := float64(len(text))/float64(len(accumulated)) - 1
		if ratio < 0 {
			ratio = -ratio
		}
		if ratio <= 0.1 {
			common := commonPrefixLen(text, accumulated)
			if float64(common) > 0.8*float64(len(accumulated)) {
				return true
			}
		}
	}
	return false
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
