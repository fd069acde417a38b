package funcdeck

import "time"

// EventKind identifies the type of event emitted by the tracker.
type EventKind string

const (
	// EventRunQueued is emitted when a run is submitted, before the backend
	// has acknowledged it.
	EventRunQueued EventKind = "run.queued"

	// EventRunAccepted is emitted when the backend assigns an invocation id.
	EventRunAccepted EventKind = "run.accepted"

	// EventRunStatus is emitted when a poll observes a status change.
	EventRunStatus EventKind = "run.status"

	// EventRunLog is emitted when a poll observes a new server-side log
	// timestamp.
	EventRunLog EventKind = "run.log"

	// EventRunFinished is emitted when a run reaches a terminal state.
	EventRunFinished EventKind = "run.finished"

	// EventRunReset is emitted when a run is cancelled or superseded before
	// reaching a terminal state.
	EventRunReset EventKind = "run.reset"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured record of what happened during a tracked run.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the tracker-local identifier of the poll session.
	RunID string

	// FunctionID is the function being invoked.
	FunctionID FunctionID

	// InvocationID is the backend-assigned id (zero until accepted).
	InvocationID int64

	// Status is the canonical status at the time of the event.
	Status Status

	// Message carries human-readable detail (failure reasons, log lines).
	Message string

	// Time is when the event occurred.
	Time time.Time

	// Attempt is the poll attempt that produced the event (0 for
	// submit-time events).
	Attempt int
}

// EventHandler is a function type for handling tracker events.
// Implementations can log, render, or forward events as needed.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// Events are dropped if the channel is full.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}
}
