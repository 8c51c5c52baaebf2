package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if _, err := io.WriteString(w, "hello world"); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	f := NewHTTPFetcher(time.Second, 1024, newTestLogger())
	data, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", string(data))
	}
}

func TestHTTPFetcher_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server error", http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewHTTPFetcher(time.Second, 1024, newTestLogger())
	if _, err := f.Fetch(context.Background(), server.URL); err == nil {
		t.Errorf("expected error for 500 response, got nil")
	}
}

func TestHTTPFetcher_SizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.WriteString(w, strings.Repeat("x", 64)); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	f := NewHTTPFetcher(time.Second, 16, newTestLogger())
	if _, err := f.Fetch(context.Background(), server.URL); err == nil {
		t.Errorf("expected error for oversized body, got nil")
	}

	f = NewHTTPFetcher(time.Second, 64, newTestLogger())
	if _, err := f.Fetch(context.Background(), server.URL); err != nil {
		t.Errorf("body at the limit must be accepted: %v", err)
	}
}

func TestHTTPFetcher_InvalidURL(t *testing.T) {
	f := NewHTTPFetcher(time.Second, 16, newTestLogger())
	if _, err := f.Fetch(context.Background(), "://bad"); err == nil {
		t.Errorf("expected error for malformed url")
	}
}

func TestHTTPFetcher_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewHTTPFetcher(time.Second, 16, newTestLogger())
	if _, err := f.Fetch(ctx, server.URL); err == nil {
		t.Errorf("expected error for canceled context")
	}
}
