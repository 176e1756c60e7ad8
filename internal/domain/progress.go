package domain

import "encoding/json"

// EventType names one variant of the extraction progress event union.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventPageQueued       EventType = "page_queued"
	EventPageStarted      EventType = "page_started"
	EventPageExtracted    EventType = "page_extracted"
	EventPageMerged       EventType = "page_merged"
	EventPageFailed       EventType = "page_failed"
	EventMetrics          EventType = "metrics"
	EventSessionCompleted EventType = "session_completed"
	EventSessionFinished  EventType = "session_finished"
	EventError            EventType = "error"
)

// ProgressEvent is one observation pushed by the extraction service for
// a single extraction session. Events never mutate identity, only the
// session's progress and metrics projection.
type ProgressEvent struct {
	Type    EventType
	Payload json.RawMessage
}

// CompletionPayload carries the terminal stats of session_completed and
// session_finished events.
type CompletionPayload struct {
	EntitiesFound map[string]int `json:"entities_found"`
}

// ErrorPayload carries the failure reason of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}
