package domain

import (
	"time"

	"github.com/google/uuid"
)

// CreateFetchRequest represents the request body for submitting a new fetch task.
type CreateFetchRequest struct {
	SourceURL   string `json:"source_url" validate:"required,url"`
	Destination string `json:"destination" validate:"required,max=100"`
}

// FetchTaskResponse represents the response returned for a fetch task.
type FetchTaskResponse struct {
	ID          uuid.UUID  `json:"task_id"`
	SourceURL   string     `json:"source_url"`
	Destination string     `json:"destination"`
	State       TaskState  `json:"state"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// NewFetchTaskResponse builds the API view of a task record.
func NewFetchTaskResponse(task *FetchTask) FetchTaskResponse {
	return FetchTaskResponse{
		ID:          task.ID,
		SourceURL:   task.SourceURL,
		Destination: task.Destination,
		State:       task.State,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		FinishedAt:  task.FinishedAt,
	}
}

// SuggestionResponse describes a default destination for a source URL.
type SuggestionResponse struct {
	SourceURL   string `json:"source_url"`
	Destination string `json:"destination"`
	MimeType    string `json:"mime_type,omitempty"`
}
