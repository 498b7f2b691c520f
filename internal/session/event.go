package session

import "time"

// Event type identifiers published over a session's event channel.
// Convention: "category_action" matching the wire format consumed by
// streaming clients.
const (
	// EventStageStarted is published when a pipeline stage begins.
	EventStageStarted = "stage_started"
	// EventStageCompleted is published when a pipeline stage finishes
	// successfully.
	EventStageCompleted = "stage_completed"
	// EventFileWritten is published for each file a stage writes.
	EventFileWritten = "file_written"
	// EventSessionCompleted is published once when the whole pipeline
	// finishes successfully. No events follow it.
	EventSessionCompleted = "session_completed"
	// EventSessionError is published once when the session fails or is
	// cancelled. No events follow it.
	EventSessionError = "session_error"
)

// Event is a single progress notification for a session. Events carry a
// per-session sequence number that increases by exactly one per event, so
// subscribers can detect gaps and order deliveries.
type Event struct {
	// Seq is the per-session sequence number, starting at 1.
	Seq int64 `json:"seq"`
	// SessionID identifies the session the event belongs to.
	SessionID string `json:"session_id"`
	// Type is one of the Event* constants.
	Type string `json:"type"`
	// Stage is the pipeline stage the event relates to, when applicable.
	Stage string `json:"stage,omitempty"`
	// Path is the written file path for file_written events.
	Path string `json:"path,omitempty"`
	// Message is a human-readable description, e.g. the error reason for
	// session_error events.
	Message string `json:"message,omitempty"`
	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`
}

// NewStageStartedEvent creates a stage_started event. Seq, SessionID, and
// Timestamp are stamped by the Registry at publish time.
func NewStageStartedEvent(stage string) Event {
	return Event{Type: EventStageStarted, Stage: stage}
}

// NewStageCompletedEvent creates a stage_completed event.
func NewStageCompletedEvent(stage string) Event {
	return Event{Type: EventStageCompleted, Stage: stage}
}

// NewFileWrittenEvent creates a file_written event for the given path.
func NewFileWrittenEvent(stage, path string) Event {
	return Event{Type: EventFileWritten, Stage: stage, Path: path}
}

// NewSessionCompletedEvent creates the terminal session_completed event.
func NewSessionCompletedEvent() Event {
	return Event{Type: EventSessionCompleted}
}

// NewSessionErrorEvent creates the terminal session_error event.
func NewSessionErrorEvent(stage, reason string) Event {
	return Event{Type: EventSessionError, Stage: stage, Message: reason}
}
