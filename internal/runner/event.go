package runner

import (
	"runbox/internal/jsvm"
	"runbox/internal/jsvm/hostapi"
)

// EventType represents the type of event emitted during a run.
type EventType int

const (
	// EventTypeOutput indicates a console line was written.
	EventTypeOutput EventType = iota
	// EventTypeDone indicates the run finished, successfully or not.
	EventTypeDone
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventTypeOutput:
		return "output"
	case EventTypeDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event represents an event emitted during a run.
type Event struct {
	// Type indicates the kind of event.
	Type EventType `json:"type"`

	// RunID identifies the run the event belongs to.
	RunID string `json:"run_id"`

	// Line is the console line for output events.
	Line *hostapi.Line `json:"line,omitempty"`

	// Result is the final result on done events.
	Result *jsvm.RunResult `json:"result,omitempty"`
}

// NewOutputEvent creates a new output event.
func NewOutputEvent(runID string, line hostapi.Line) Event {
	return Event{
		Type:  EventTypeOutput,
		RunID: runID,
		Line:  &line,
	}
}

// NewDoneEvent creates a new done event.
func NewDoneEvent(runID string, result *jsvm.RunResult) Event {
	return Event{
		Type:   EventTypeDone,
		RunID:  runID,
		Result: result,
	}
}
