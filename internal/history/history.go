// Package history exports server lifecycle events to analytics stores.
package history

import (
	"context"
	"errors"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventKill    EventType = "kill"
	EventCrash   EventType = "crash"
	EventRestart EventType = "restart"
)

// Event is one lifecycle transition of a supervised server.
// ExitCode is nil for events emitted before the process has exited.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	ServerID   string    `json:"server_id"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	ExitCode   *int      `json:"exit_code,omitempty"`
}

// WithExit returns a copy of e carrying code as its exit code.
func (e Event) WithExit(code int) Event {
	e.ExitCode = &code
	return e
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi sends every event to all of its sinks. A failing sink does not stop
// delivery to the rest; the individual errors are joined.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// NullableExit converts an optional exit code into a driver argument.
func NullableExit(code *int) any {
	if code == nil {
		return nil
	}
	return int64(*code)
}
