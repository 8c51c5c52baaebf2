package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veranemoloko/image-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/image-fetcher/internal/errors"
	"github.com/veranemoloko/image-fetcher/internal/metrics"
	repo "github.com/veranemoloko/image-fetcher/internal/repository"
)

// Runner executes a single fetch request.
type Runner interface {
	Run(ctx context.Context, req domain.FetchRequest) domain.FetchOutcome
}

// Options configures the worker pool behind a FetchService.
type Options struct {
	Workers   int
	QueueSize int
}

// FetchService runs fetch tasks on a fixed worker pool and exposes their lifecycle.
type FetchService struct {
	runner   Runner
	taskRepo repo.TaskRepo
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *Handle

	handlesMu sync.Mutex
	handles   map[uuid.UUID]*Handle

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewFetchService creates a FetchService and starts its workers.
func NewFetchService(runner Runner, taskRepo repo.TaskRepo, opts Options, logger *slog.Logger) *FetchService {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	service := &FetchService{
		runner:   runner,
		taskRepo: taskRepo,
		logger:   logger,
		queue:    make(chan *Handle, opts.QueueSize),
		handles:  make(map[uuid.UUID]*Handle),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		service.wg.Add(1)
		go func(workerID int) {
			defer service.wg.Done()
			for h := range service.queue {
				metrics.QueueDepth.Dec()
				service.process(workerID, h)
			}
		}(i + 1)
	}

	logger.Info("fetch service started", "workers", opts.Workers, "queue_size", opts.QueueSize)
	return service
}

// Submit records a new fetch task and queues it for execution.
// The returned handle can be observed until the task reaches a terminal state.
func (s *FetchService) Submit(ctx context.Context, req domain.FetchRequest) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	task := &domain.FetchTask{
		ID:          uuid.New(),
		SourceURL:   req.SourceURL,
		Destination: req.Destination,
		State:       domain.TaskStateEnqueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.taskRepo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	h := newHandle(task.ID, req)
	if err := s.enqueue(h); err != nil {
		s.reject(h, err)
		return nil, err
	}

	metrics.TasksSubmitted.Inc()
	s.logger.Info("fetch task submitted",
		"task_id", task.ID,
		"url", req.SourceURL,
		"destination", req.Destination,
	)
	return h, nil
}

// Observe registers callbacks for the terminal transition of h. Exactly one of
// them runs, once, after the task has succeeded or failed. Either may be nil.
func (s *FetchService) Observe(h *Handle, onSucceeded, onFailed func()) {
	h.observe(observer{onSucceeded: onSucceeded, onFailed: onFailed})
}

// Lookup returns the handle of a task that has not finished yet.
func (s *FetchService) Lookup(id uuid.UUID) (*Handle, bool) {
	s.handlesMu.Lock()
	defer s.handlesMu.Unlock()
	h, ok := s.handles[id]
	return h, ok
}

// GetTask returns the stored record of a task.
func (s *FetchService) GetTask(ctx context.Context, id uuid.UUID) (*domain.FetchTask, error) {
	return s.taskRepo.GetTask(ctx, id)
}

// RecoverPendingTasks re-queues tasks a previous process left enqueued or running.
func (s *FetchService) RecoverPendingTasks(ctx context.Context) ([]*Handle, error) {
	enqueued, err := s.taskRepo.GetTasksByState(ctx, domain.TaskStateEnqueued)
	if err != nil {
		return nil, fmt.Errorf("failed to get enqueued tasks: %w", err)
	}

	running, err := s.taskRepo.GetTasksByState(ctx, domain.TaskStateRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to get running tasks: %w", err)
	}

	tasks := append(enqueued, running...)
	handles := make([]*Handle, 0, len(tasks))

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return handles, err
		}

		if task.State == domain.TaskStateRunning {
			task.State = domain.TaskStateEnqueued
			if err := s.taskRepo.UpdateTask(ctx, task); err != nil {
				s.logger.Error("failed to recover task", "task_id", task.ID, "error", err)
				continue
			}
		}

		h := newHandle(task.ID, task.Request())
		if err := s.enqueue(h); err != nil {
			s.reject(h, err)
			continue
		}
		handles = append(handles, h)
	}

	if len(handles) > 0 {
		s.logger.Info("pending fetch tasks recovered", "count", len(handles))
	}
	return handles, nil
}

// Shutdown stops accepting tasks and waits for queued and running tasks to finish.
// If ctx expires first, running tasks are canceled, tasks still queued are not
// started, and ctx.Err() is returned. Both stay enqueued in the repository.
func (s *FetchService) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down fetch service")

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("fetch service shutdown completed")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("fetch service shutdown timed out")
		return ctx.Err()
	}
}

func (s *FetchService) enqueue(h *Handle) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errpkg.ErrShuttingDown
	}

	s.track(h)
	metrics.QueueDepth.Inc()
	select {
	case s.queue <- h:
		return nil
	default:
		metrics.QueueDepth.Dec()
		s.forget(h.ID())
		return fmt.Errorf("%w: capacity %d reached", errpkg.ErrQueueFull, cap(s.queue))
	}
}

func (s *FetchService) reject(h *Handle, reason error) {
	metrics.TasksRejected.Inc()
	s.logger.Warn("fetch task rejected", "task_id", h.ID(), "error", reason)

	s.updateTask(h.ID(), func(task *domain.FetchTask) {
		finishedAt := time.Now()
		task.State = domain.TaskStateFailed
		task.Error = reason.Error()
		task.FinishedAt = &finishedAt
	})
	h.finish(domain.Failure(reason))
}

func (s *FetchService) process(workerID int, h *Handle) {
	if err := s.ctx.Err(); err != nil {
		s.interrupt(h, err)
		return
	}
	if !h.start() {
		return
	}
	logger := s.logger.With("task_id", h.ID(), "worker_id", workerID)

	s.updateTask(h.ID(), func(task *domain.FetchTask) {
		task.State = domain.TaskStateRunning
	})
	logger.Debug("fetch task running")

	start := time.Now()
	outcome := s.run(h.Request())
	metrics.TaskDuration.Observe(time.Since(start).Seconds())

	if s.ctx.Err() != nil && errors.Is(outcome.Reason, context.Canceled) {
		s.updateTask(h.ID(), func(task *domain.FetchTask) {
			task.State = domain.TaskStateEnqueued
			task.Error = ""
			task.FinishedAt = nil
		})
		s.interrupt(h, outcome.Reason)
		return
	}

	s.updateTask(h.ID(), func(task *domain.FetchTask) {
		finishedAt := time.Now()
		task.State = outcome.TerminalState()
		task.FinishedAt = &finishedAt
		task.Error = ""
		if outcome.Reason != nil {
			task.Error = outcome.Reason.Error()
		}
	})

	if outcome.Succeeded() {
		metrics.TasksSucceeded.Inc()
		logger.Info("fetch task succeeded", "duration", time.Since(start))
	} else {
		metrics.TasksFailed.Inc()
		logger.Error("fetch task failed", "error", outcome.Reason, "duration", time.Since(start))
	}

	s.forget(h.ID())
	h.finish(outcome)
}

// interrupt ends the handle of a task stopped by shutdown. The stored record is
// left enqueued so RecoverPendingTasks picks it up on the next start.
func (s *FetchService) interrupt(h *Handle, cause error) {
	metrics.TasksInterrupted.Inc()
	s.logger.Warn("fetch task interrupted by shutdown", "task_id", h.ID(), "error", cause)

	s.forget(h.ID())
	h.finish(domain.Failure(fmt.Errorf("%w: %w", errpkg.ErrShuttingDown, cause)))
}

// run guards the worker against a runner that panics.
func (s *FetchService) run(req domain.FetchRequest) (outcome domain.FetchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("fetch runner panicked", "panic", r, "stack", string(debug.Stack()))
			outcome = domain.Failure(fmt.Errorf("%w: panic: %v", errpkg.ErrUnexpected, r))
		}
	}()
	return s.runner.Run(s.ctx, req)
}

func (s *FetchService) updateTask(id uuid.UUID, mutate func(task *domain.FetchTask)) {
	ctx := context.Background()

	task, err := s.taskRepo.GetTask(ctx, id)
	if err != nil {
		if !errors.Is(err, errpkg.ErrTaskNotFound) {
			s.logger.Error("failed to load task for update", "task_id", id, "error", err)
		}
		return
	}

	mutate(task)
	if err := s.taskRepo.UpdateTask(ctx, task); err != nil {
		s.logger.Error("failed to update task", "task_id", id, "state", task.State, "error", err)
	}
}

func (s *FetchService) track(h *Handle) {
	s.handlesMu.Lock()
	s.handles[h.ID()] = h
	s.handlesMu.Unlock()
}

func (s *FetchService) forget(id uuid.UUID) {
	s.handlesMu.Lock()
	delete(s.handles, id)
	s.handlesMu.Unlock()
}
