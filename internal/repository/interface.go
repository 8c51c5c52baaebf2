package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/veranemoloko/image-fetcher/internal/domain"
)

// TaskRepo defines the interface for fetch task storage operations.
type TaskRepo interface {
	CreateTask(ctx context.Context, task *domain.FetchTask) error
	GetTask(ctx context.Context, id uuid.UUID) (*domain.FetchTask, error)
	UpdateTask(ctx context.Context, task *domain.FetchTask) error
	GetTasksByState(ctx context.Context, state domain.TaskState) ([]*domain.FetchTask, error)
}
