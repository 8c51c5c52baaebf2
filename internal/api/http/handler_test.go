package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/image-fetcher/internal/codec"
	"github.com/veranemoloko/image-fetcher/internal/domain"
	"github.com/veranemoloko/image-fetcher/internal/repository"
	"github.com/veranemoloko/image-fetcher/internal/service"
	"github.com/veranemoloko/image-fetcher/internal/storage"
	"github.com/veranemoloko/image-fetcher/internal/worker"
)

// mapFetcher serves canned bodies keyed by URL.
type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, ok := m[url]
	if !ok {
		return nil, fmt.Errorf("no route to %s", url)
	}
	return data, nil
}

type testEnv struct {
	router  http.Handler
	service *service.FetchService
	images  *storage.FileStorage
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{G: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	images := storage.NewFileStorage(t.TempDir())
	taskRepo, err := repository.NewTaskStorage(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	fetcher := mapFetcher{
		"https://example.com/bird.png": pngBytes(t, 20, 10),
		"https://example.com/text":     []byte("plain text, not an image"),
	}
	task := worker.NewFetchTask(
		worker.StorageOpener(images),
		fetcher,
		codec.NewImagingCodec(codec.MaxJPEGQuality),
		domain.OutcomePolicyLenient,
		logger,
	)
	svc := service.NewFetchService(task, taskRepo, service.Options{Workers: 1, QueueSize: 8}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	return &testEnv{
		router:  NewRouter(svc, images, opts, logger),
		service: svc,
		images:  images,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) waitTerminal(t *testing.T, id uuid.UUID) *domain.FetchTask {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		task, err := e.service.GetTask(context.Background(), id)
		require.NoError(t, err)
		if task.State.IsTerminal() {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for task %s", id)
	return nil
}

func TestFetchHandler_CreateFetch(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(t, http.MethodPost, "/fetches", domain.CreateFetchRequest{
		SourceURL:   "https://example.com/bird.png",
		Destination: "bird.jpg",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var data map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&data))
	assert.Equal(t, string(domain.TaskStateEnqueued), data["state"])

	id, err := uuid.Parse(data["task_id"].(string))
	require.NoError(t, err)

	task := env.waitTerminal(t, id)
	assert.Equal(t, domain.TaskStateSucceeded, task.State)
	assert.True(t, env.images.Exists("bird.jpg"))
}

func TestFetchHandler_CreateFetchWait(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(t, http.MethodPost, "/fetches?wait=true", domain.CreateFetchRequest{
		SourceURL:   "https://example.com/bird.png",
		Destination: "bird.jpg",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.FetchTaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, domain.TaskStateSucceeded, resp.State)
	assert.Equal(t, "bird.jpg", resp.Destination)
	assert.NotNil(t, resp.FinishedAt)
}

func TestFetchHandler_CreateFetchValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "missing destination", body: domain.CreateFetchRequest{SourceURL: "https://example.com/bird.png"}},
		{name: "missing url", body: domain.CreateFetchRequest{Destination: "a.jpg"}},
		{name: "not a url", body: domain.CreateFetchRequest{SourceURL: "bird", Destination: "a.jpg"}},
		{name: "private host", body: domain.CreateFetchRequest{SourceURL: "http://10.0.0.1/a.png", Destination: "a.jpg"}},
		{name: "bad scheme", body: domain.CreateFetchRequest{SourceURL: "ftp://example.com/a.png", Destination: "a.jpg"}},
		{name: "nested destination", body: domain.CreateFetchRequest{SourceURL: "https://example.com/bird.png", Destination: "a/b.jpg"}},
		{name: "reserved characters", body: domain.CreateFetchRequest{SourceURL: "https://example.com/bird.png", Destination: "a:b.jpg"}},
		{name: "destination too long", body: domain.CreateFetchRequest{SourceURL: "https://example.com/bird.png", Destination: strings.Repeat("x", 101) + ".jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/fetches", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/fetches", strings.NewReader("{broken"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFetchHandler_CreateFetchAllowPrivate(t *testing.T) {
	env := newTestEnv(t, Options{AllowPrivateHosts: true})

	w := env.do(t, http.MethodPost, "/fetches", domain.CreateFetchRequest{
		SourceURL:   "http://127.0.0.1:9/a.png",
		Destination: "a.jpg",
	})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestFetchHandler_CreateFetchAfterShutdown(t *testing.T) {
	env := newTestEnv(t, Options{})
	require.NoError(t, env.service.Shutdown(context.Background()))

	w := env.do(t, http.MethodPost, "/fetches", domain.CreateFetchRequest{
		SourceURL:   "https://example.com/bird.png",
		Destination: "bird.jpg",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFetchHandler_GetFetch(t *testing.T) {
	env := newTestEnv(t, Options{})

	h, err := env.service.Submit(context.Background(), domain.FetchRequest{
		SourceURL:   "https://example.com/bird.png",
		Destination: "bird.jpg",
	})
	require.NoError(t, err)
	env.waitTerminal(t, h.ID())

	w := env.do(t, http.MethodGet, "/fetches/"+h.ID().String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.FetchTaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, h.ID(), resp.ID)
	assert.Equal(t, domain.TaskStateSucceeded, resp.State)

	w = env.do(t, http.MethodGet, "/fetches/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/fetches/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFetchHandler_GetImage(t *testing.T) {
	env := newTestEnv(t, Options{})

	h, err := env.service.Submit(context.Background(), domain.FetchRequest{
		SourceURL:   "https://example.com/bird.png",
		Destination: "bird.jpg",
	})
	require.NoError(t, err)
	env.waitTerminal(t, h.ID())

	w := env.do(t, http.MethodGet, "/fetches/"+h.ID().String()+"/image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	cfg, format, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
}

// A task that succeeded without writing an image still cannot be displayed.
func TestFetchHandler_GetImageNotAnImage(t *testing.T) {
	env := newTestEnv(t, Options{})

	h, err := env.service.Submit(context.Background(), domain.FetchRequest{
		SourceURL:   "https://example.com/text",
		Destination: "text.jpg",
	})
	require.NoError(t, err)
	task := env.waitTerminal(t, h.ID())
	require.Equal(t, domain.TaskStateSucceeded, task.State)

	w := env.do(t, http.MethodGet, "/fetches/"+h.ID().String()+"/image", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestFetchHandler_GetImageFailedTask(t *testing.T) {
	env := newTestEnv(t, Options{})

	h, err := env.service.Submit(context.Background(), domain.FetchRequest{
		SourceURL: "https://example.com/bird.png",
	})
	require.NoError(t, err)
	task := env.waitTerminal(t, h.ID())
	require.Equal(t, domain.TaskStateFailed, task.State)

	w := env.do(t, http.MethodGet, "/fetches/"+h.ID().String()+"/image", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFetchHandler_Suggest(t *testing.T) {
	env := newTestEnv(t, Options{DefaultSourceURL: "http://example.com/files/JPEG_compression_Example.jpg"})

	w := env.do(t, http.MethodGet, "/fetches/suggest?url=https://example.com/a/bird.png", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.SuggestionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "bird.png", resp.Destination)
	assert.Equal(t, "image/png", resp.MimeType)

	w = env.do(t, http.MethodGet, "/fetches/suggest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "JPEG_compression_Example.jpg", resp.Destination)
	assert.Equal(t, "image/jpeg", resp.MimeType)

	w = env.do(t, http.MethodGet, "/fetches/suggest?url=ftp://example.com/a.png", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "image_fetcher_tasks_submitted_total")
}
