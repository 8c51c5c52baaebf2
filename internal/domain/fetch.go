package domain

import (
	"time"

	"github.com/google/uuid"
)

// FetchRequest is the source URL and destination handle driving one task.
type FetchRequest struct {
	SourceURL   string
	Destination string
}

// OutcomeStatus tags a FetchOutcome.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// FetchOutcome is the terminal result of a single fetch task.
type FetchOutcome struct {
	Status OutcomeStatus
	// Reason is set for failures only.
	Reason error
}

// Success returns a successful outcome.
func Success() FetchOutcome {
	return FetchOutcome{Status: OutcomeSuccess}
}

// Failure returns a failed outcome carrying reason.
func Failure(reason error) FetchOutcome {
	return FetchOutcome{Status: OutcomeFailure, Reason: reason}
}

// Succeeded reports whether the outcome is a success.
func (o FetchOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// TerminalState maps the outcome onto the task state machine.
func (o FetchOutcome) TerminalState() TaskState {
	if o.Succeeded() {
		return TaskStateSucceeded
	}
	return TaskStateFailed
}

// FetchTask is the persisted record of a submitted fetch request.
type FetchTask struct {
	ID          uuid.UUID  `json:"id"`
	SourceURL   string     `json:"source_url"`
	Destination string     `json:"destination"`
	State       TaskState  `json:"state"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Request returns the fetch request the task was created from.
func (t *FetchTask) Request() FetchRequest {
	return FetchRequest{SourceURL: t.SourceURL, Destination: t.Destination}
}
