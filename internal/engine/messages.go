package engine

import "vidforge/internal/domain"

// CommandType discriminates inbound worker commands.
type CommandType string

const (
	CommandInit      CommandType = "init"
	CommandConvert   CommandType = "convert"
	CommandComposite CommandType = "composite"
	CommandCancel    CommandType = "cancel"
	CommandReset     CommandType = "reset"
)

// Command is one inbound message to the worker session. Buffers are copies;
// the sender keeps ownership of its own slices.
type Command struct {
	Type      CommandType
	Load      LoadConfig
	Buffer    []byte
	Params    domain.EncodeParams
	Composite domain.CompositeOptions
	AutoTrim  bool
}

// EventType discriminates outbound worker events.
type EventType string

const (
	EventInitialized       EventType = "initialized"
	EventLog               EventType = "log"
	EventProgress          EventType = "progress"
	EventCompleted         EventType = "completed"
	EventCompositeComplete EventType = "composite_complete"
	EventError             EventType = "error"
	EventResetComplete     EventType = "reset_complete"
)

// Event is one outbound message from the worker session.
type Event struct {
	Type    EventType
	Success bool
	Message string
	Percent int
	Seconds float64
	Buffer  []byte
}

// IsTerminal reports whether the event ends an in-flight job command.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventCompleted, EventCompositeComplete, EventError:
		return true
	default:
		return false
	}
}
