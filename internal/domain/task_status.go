package domain

// TaskState represents the lifecycle state of a fetch task.
type TaskState string

const (
	TaskStateEnqueued  TaskState = "enqueued"
	TaskStateRunning   TaskState = "running"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
)

// IsTerminal reports whether no further transitions can happen from s.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// OutcomePolicy decides which sub-step errors of a fetch task turn into a failure.
type OutcomePolicy string

const (
	// OutcomePolicyLenient absorbs fetch, decode, encode and write errors:
	// the task succeeds as long as the destination could be opened and closed.
	OutcomePolicyLenient OutcomePolicy = "lenient"
	// OutcomePolicyStrict fails the task on any sub-step error.
	OutcomePolicyStrict OutcomePolicy = "strict"
)

// Valid reports whether p is a known policy.
func (p OutcomePolicy) Valid() bool {
	switch p {
	case OutcomePolicyLenient, OutcomePolicyStrict:
		return true
	default:
		return false
	}
}
