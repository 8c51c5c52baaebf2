package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/veranemoloko/image-fetcher/internal/domain"
)

type observer struct {
	onSucceeded func()
	onFailed    func()
}

// Handle tracks one submitted fetch task through enqueued, running and a terminal state.
type Handle struct {
	id      uuid.UUID
	request domain.FetchRequest

	mu        sync.Mutex
	state     domain.TaskState
	outcome   domain.FetchOutcome
	observers []observer
	done      chan struct{}
}

func newHandle(id uuid.UUID, req domain.FetchRequest) *Handle {
	return &Handle{
		id:      id,
		request: req,
		state:   domain.TaskStateEnqueued,
		done:    make(chan struct{}),
	}
}

// ID returns the task identifier.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Request returns the request the task runs.
func (h *Handle) Request() domain.FetchRequest {
	return h.request
}

// State returns the current task state.
func (h *Handle) State() domain.TaskState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Outcome returns the task outcome and whether the task has finished.
func (h *Handle) Outcome() (domain.FetchOutcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, h.state.IsTerminal()
}

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (domain.FetchOutcome, error) {
	select {
	case <-h.done:
		outcome, _ := h.Outcome()
		return outcome, nil
	case <-ctx.Done():
		return domain.FetchOutcome{}, ctx.Err()
	}
}

func (h *Handle) start() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != domain.TaskStateEnqueued {
		return false
	}
	h.state = domain.TaskStateRunning
	return true
}

// finish moves the handle to the terminal state matching outcome and notifies
// observers. Only the first call has any effect.
func (h *Handle) finish(outcome domain.FetchOutcome) bool {
	h.mu.Lock()
	if h.state.IsTerminal() {
		h.mu.Unlock()
		return false
	}
	h.state = outcome.TerminalState()
	h.outcome = outcome
	observers := h.observers
	h.observers = nil
	close(h.done)
	h.mu.Unlock()

	if len(observers) > 0 {
		go notify(outcome, observers)
	}
	return true
}

func (h *Handle) observe(o observer) {
	h.mu.Lock()
	if !h.state.IsTerminal() {
		h.observers = append(h.observers, o)
		h.mu.Unlock()
		return
	}
	outcome := h.outcome
	h.mu.Unlock()

	go notify(outcome, []observer{o})
}

func notify(outcome domain.FetchOutcome, observers []observer) {
	for _, o := range observers {
		cb := o.onFailed
		if outcome.Succeeded() {
			cb = o.onSucceeded
		}
		if cb != nil {
			cb()
		}
	}
}
