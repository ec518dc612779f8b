// Package audit records every device-facing action of a skillet run.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is one auditable action against a device
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id"`
	User      string        `json:"user,omitempty"`
	Device    string        `json:"device"`
	Operation EventType     `json:"operation"`
	Skillet   string        `json:"skillet,omitempty"`
	Snippet   string        `json:"snippet,omitempty"`
	Command   string        `json:"command,omitempty"`
	XPath     string        `json:"xpath,omitempty"`
	Parts     int           `json:"parts,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	DryRun    bool          `json:"dry_run"`
	Duration  time.Duration `json:"duration"`
}

// EventType categorizes audit events
type EventType string

const (
	EventTypeRun           EventType = "run"
	EventTypeDispatch      EventType = "snippet.dispatch"
	EventTypeSkip          EventType = "snippet.skip"
	EventTypeCommit        EventType = "commit"
	EventTypeContentUpdate EventType = "content.update"
	EventTypeConfigImport  EventType = "config.import"
	EventTypeConfigLoad    EventType = "config.load"
)

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	RunID       string
	Skillet     string
	Snippet     string
	Operation   EventType
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// Match reports whether event satisfies every criterion set in f. Limit and
// Offset are not considered.
func (f Filter) Match(event *Event) bool {
	switch {
	case f.Device != "" && event.Device != f.Device,
		f.RunID != "" && event.RunID != f.RunID,
		f.Skillet != "" && event.Skillet != f.Skillet,
		f.Snippet != "" && event.Snippet != f.Snippet,
		f.Operation != "" && event.Operation != f.Operation:
		return false
	case !f.StartTime.IsZero() && event.Timestamp.Before(f.StartTime),
		!f.EndTime.IsZero() && event.Timestamp.After(f.EndTime):
		return false
	case f.SuccessOnly && !event.Success,
		f.FailureOnly && event.Success:
		return false
	}
	return true
}

// NewEvent creates a new audit event
func NewEvent(runID, device string, op EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		RunID:     runID,
		Device:    device,
		Operation: op,
	}
}

// WithUser sets the user who started the run
func (e *Event) WithUser(user string) *Event {
	e.User = user
	return e
}

// WithSkillet sets the skillet name
func (e *Event) WithSkillet(name string) *Event {
	e.Skillet = name
	return e
}

// WithSnippet sets the snippet name
func (e *Event) WithSnippet(name string) *Event {
	e.Snippet = name
	return e
}

// WithCommand records the dispatched command kind and its target
func (e *Event) WithCommand(command, xpath string) *Event {
	e.Command = command
	e.XPath = xpath
	return e
}

// WithParts records how many requests a split payload produced
func (e *Event) WithParts(n int) *Event {
	e.Parts = n
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithDryRun marks events recorded against the in-memory device
func (e *Event) WithDryRun(dryRun bool) *Event {
	e.DryRun = dryRun
	return e
}
