package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veranemoloko/image-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/image-fetcher/internal/errors"
)

// TaskStorage keeps fetch task records in memory and mirrors them to a JSON file.
// Records are stored and returned by value, so callers never share state with the store.
type TaskStorage struct {
	mu     sync.RWMutex
	saveMu sync.Mutex
	tasks  map[uuid.UUID]domain.FetchTask
	file   string
}

// NewTaskStorage creates a new TaskStorage and loads tasks from the file if it exists.
func NewTaskStorage(filePath string) (*TaskStorage, error) {
	repo := &TaskStorage{
		tasks: make(map[uuid.UUID]domain.FetchTask),
		file:  filepath.Clean(filePath),
	}

	if err := repo.restoreTasks(); err != nil {
		return nil, fmt.Errorf("failed to load state from file: %w", err)
	}

	slog.Info("task repository initialized", "file_path", repo.file, "tasks_count", len(repo.tasks))
	return repo, nil
}

func (r *TaskStorage) restoreTasks() error {
	if isFileNotExist(r.file) {
		slog.Info("state file does not exist, starting with empty state", "file_path", r.file)
		return nil
	}

	data, err := os.ReadFile(r.file)
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if len(data) == 0 {
		slog.Warn("state file is empty", "file_path", r.file)
		return nil
	}

	var tasks []domain.FetchTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("failed to unmarshal state file: %w", err)
	}

	for _, task := range tasks {
		r.tasks[task.ID] = task
	}

	slog.Info("state loaded from file", "tasks_count", len(tasks), "file_path", r.file)
	return nil
}

func isFileNotExist(filePath string) bool {
	_, err := os.Stat(filePath)
	return os.IsNotExist(err)
}

func (r *TaskStorage) persistTasks() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	tasks := make([]domain.FetchTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	r.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}

	tempFile := r.file + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, r.file); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	slog.Debug("state saved to file", "tasks_count", len(tasks), "file_path", r.file)
	return nil
}

// CreateTask adds a new task and persists it to the file.
func (r *TaskStorage) CreateTask(ctx context.Context, task *domain.FetchTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.tasks[task.ID] = *task
	r.mu.Unlock()

	if err := r.persistTasks(); err != nil {
		return fmt.Errorf("failed to save state after creating task: %w", err)
	}

	slog.Debug("task created and saved", "task_id", task.ID)
	return nil
}

// GetTask retrieves a copy of the task with the given ID.
func (r *TaskStorage) GetTask(ctx context.Context, id uuid.UUID) (*domain.FetchTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	task, exists := r.tasks[id]
	r.mu.RUnlock()

	if !exists {
		return nil, errpkg.ErrTaskNotFound
	}
	return &task, nil
}

// UpdateTask replaces an existing task, stamps UpdatedAt and persists it to the file.
func (r *TaskStorage) UpdateTask(ctx context.Context, task *domain.FetchTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.tasks[task.ID]; !exists {
		r.mu.Unlock()
		return errpkg.ErrTaskNotFound
	}
	task.UpdatedAt = time.Now()
	r.tasks[task.ID] = *task
	r.mu.Unlock()

	if err := r.persistTasks(); err != nil {
		return fmt.Errorf("failed to save state after updating task: %w", err)
	}

	slog.Debug("task updated and saved", "task_id", task.ID, "state", task.State)
	return nil
}

// GetTasksByState returns all tasks in the given state, oldest first.
func (r *TaskStorage) GetTasksByState(ctx context.Context, state domain.TaskState) ([]*domain.FetchTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	var filtered []*domain.FetchTask
	for _, task := range r.tasks {
		if task.State == state {
			task := task
			filtered = append(filtered, &task)
		}
	}
	r.mu.RUnlock()

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	return filtered, nil
}
