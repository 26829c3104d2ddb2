// Package a2a implements the A2A (Agent-to-Agent) backend protocol: a
// JSON-RPC + SSE transport built on top of a2a-go's wire types, and a
// translator from A2A frames into AG-UI events.
package a2a

import (
	sdk "github.com/a2aproject/a2a-go/a2a"
)

// Message, Part, and the other wire types are a2a-go's own, used
// directly rather than reimplemented so the JSON-RPC payloads this
// package builds and parses match the real protocol types.
type (
	Message                 = sdk.Message
	Part                    = sdk.Part
	TextPart                = sdk.TextPart
	Task                    = sdk.Task
	TaskStatus              = sdk.TaskStatus
	Artifact                = sdk.Artifact
	TaskStatusUpdateEvent   = sdk.TaskStatusUpdateEvent
	TaskArtifactUpdateEvent = sdk.TaskArtifactUpdateEvent
)

// firstText returns the text of the first TextPart among parts, or ""
// if none of the parts is textual.
func firstText(parts []Part) string {
	for _, p := range parts {
		if tp, ok := p.(sdk.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}

// FirstAgentText returns the first TextPart of the first history
// message authored by the agent, or "" if none.
func FirstAgentText(t Task) string {
	for _, m := range t.History {
		if m.Role == sdk.MessageRoleAgent {
			return firstText(m.Parts)
		}
	}
	return ""
}

// IsTaskTerminal reports whether a task's status is one of the
// terminal states (completed, failed, canceled).
func IsTaskTerminal(t Task) bool {
	switch t.Status.State {
	case sdk.TaskStateCompleted, sdk.TaskStateFailed, sdk.TaskStateCanceled:
		return true
	default:
		return false
	}
}

// statusMessageText returns the first TextPart of a status update's
// message, or "" if the update carries no message.
func statusMessageText(e TaskStatusUpdateEvent) string {
	if e.Status.Message == nil {
		return ""
	}
	return firstText(e.Status.Message.Parts)
}

// artifactText returns the first TextPart of an artifact update's
// artifact, or "".
func artifactText(e TaskArtifactUpdateEvent) string {
	return firstText(e.Artifact.Parts)
}

// Frame is the tagged union of the three A2A result shapes the router
// understands, discriminated by the wire "kind" field.
type Frame struct {
	Task           *Task
	StatusUpdate   *TaskStatusUpdateEvent
	ArtifactUpdate *TaskArtifactUpdateEvent
}

// Text extracts the frame's text: Task uses the first agent history
// message, StatusUpdate/ArtifactUpdate use their own first text part.
func (f Frame) Text() string {
	switch {
	case f.Task != nil:
		return FirstAgentText(*f.Task)
	case f.StatusUpdate != nil:
		return statusMessageText(*f.StatusUpdate)
	case f.ArtifactUpdate != nil:
		return artifactText(*f.ArtifactUpdate)
	default:
		return ""
	}
}
