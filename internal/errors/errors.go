package errors

import "errors"

var (
	ErrTaskNotFound = errors.New("task not found")

	ErrInvalidRequest         = errors.New("invalid fetch request")
	ErrDestinationUnavailable = errors.New("destination unavailable")
	ErrFetch                  = errors.New("fetch failed")
	ErrDecode                 = errors.New("decode failed")
	ErrEncode                 = errors.New("encode failed")
	ErrWrite                  = errors.New("write failed")
	ErrUnexpected             = errors.New("unexpected error")
	ErrCanceled               = errors.New("fetch canceled")

	ErrQueueFull    = errors.New("task queue is full")
	ErrShuttingDown = errors.New("service is shutting down")
)
