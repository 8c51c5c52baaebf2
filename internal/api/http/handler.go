package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"log/slog"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/veranemoloko/image-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/image-fetcher/internal/errors"
	"github.com/veranemoloko/image-fetcher/internal/service"
	"github.com/veranemoloko/image-fetcher/internal/storage"
	"github.com/veranemoloko/image-fetcher/internal/validation"
)

// FetchServiceI defines the fetch task operations used by the handlers.
type FetchServiceI interface {
	Submit(ctx context.Context, req domain.FetchRequest) (*service.Handle, error)
	Observe(h *service.Handle, onSucceeded, onFailed func())
	GetTask(ctx context.Context, id uuid.UUID) (*domain.FetchTask, error)
}

// ImageStore reads saved destinations back.
type ImageStore interface {
	ReadDestination(handle string) ([]byte, error)
}

// Options tunes request validation.
type Options struct {
	AllowPrivateHosts bool
	DefaultSourceURL  string
}

// FetchHandler handles HTTP requests for fetch tasks.
type FetchHandler struct {
	fetchService FetchServiceI
	images       ImageStore
	validator    *validator.Validate
	opts         Options
	logger       *slog.Logger
}

// NewFetchHandler creates a new FetchHandler.
func NewFetchHandler(fetchService FetchServiceI, images ImageStore, opts Options, logger *slog.Logger) *FetchHandler {
	return &FetchHandler{
		fetchService: fetchService,
		images:       images,
		validator:    validator.New(),
		opts:         opts,
		logger:       logger,
	}
}

// CreateFetch handles POST /fetches. With ?wait=true it responds once the task
// has reached a terminal state, or with 202 if the client goes away first.
func (h *FetchHandler) CreateFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.CreateFetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := validation.ValidateSourceURL(req.SourceURL, h.opts.AllowPrivateHosts); err != nil {
		h.logger.Warn("source url rejected", "url", req.SourceURL, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := storage.ValidateHandle(req.Destination); err != nil {
		h.logger.Warn("destination rejected", "destination", req.Destination, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	handle, err := h.fetchService.Submit(ctx, domain.FetchRequest{
		SourceURL:   req.SourceURL,
		Destination: req.Destination,
	})
	if err != nil {
		if errors.Is(err, errpkg.ErrQueueFull) || errors.Is(err, errpkg.ErrShuttingDown) {
			h.logger.Warn("fetch task not accepted", "error", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Error("failed to submit fetch task", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"task_id": handle.ID(),
			"state":   domain.TaskStateEnqueued,
		})
		return
	}

	finished := make(chan struct{}, 1)
	signal := func() { finished <- struct{}{} }
	h.fetchService.Observe(handle, signal, signal)

	select {
	case <-finished:
	case <-ctx.Done():
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"task_id": handle.ID(),
			"state":   handle.State(),
		})
		return
	}

	task, err := h.fetchService.GetTask(ctx, handle.ID())
	if err != nil {
		h.logger.Error("failed to get finished task", "task_id", handle.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, domain.NewFetchTaskResponse(task))
}

// GetFetch handles GET /fetches/{taskID}.
func (h *FetchHandler) GetFetch(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, domain.NewFetchTaskResponse(task))
}

// GetImage handles GET /fetches/{taskID}/image and serves the saved image.
func (h *FetchHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}

	if task.State != domain.TaskStateSucceeded {
		writeError(w, http.StatusConflict, "task is "+string(task.State))
		return
	}

	data, err := h.images.ReadDestination(task.Destination)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "saved image not found")
			return
		}
		h.logger.Error("failed to read destination", "task_id", task.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		h.logger.Warn("saved file is not an image",
			"task_id", task.ID,
			"destination", task.Destination,
			"detected", mtype.String(),
			"bytes", len(data),
		)
		writeError(w, http.StatusUnprocessableEntity, "saved file is not a valid image")
		return
	}

	w.Header().Set("Content-Type", mtype.String())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write image", "task_id", task.ID, "error", err)
	}
}

// Suggest handles GET /fetches/suggest?url= and proposes a destination and MIME type.
func (h *FetchHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		sourceURL = h.opts.DefaultSourceURL
	}

	if err := validation.ValidateSourceURL(sourceURL, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	destination, mimeType, err := storage.SuggestDestination(sourceURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, domain.SuggestionResponse{
		SourceURL:   sourceURL,
		Destination: destination,
		MimeType:    mimeType,
	})
}

func (h *FetchHandler) loadTask(w http.ResponseWriter, r *http.Request) (*domain.FetchTask, bool) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task ID")
		return nil, false
	}

	task, err := h.fetchService.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, errpkg.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return nil, false
		}
		h.logger.Error("failed to get task", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}

	return task, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
