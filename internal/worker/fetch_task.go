package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/veranemoloko/image-fetcher/internal/codec"
	"github.com/veranemoloko/image-fetcher/internal/domain"
	errpkg "github.com/veranemoloko/image-fetcher/internal/errors"
	"github.com/veranemoloko/image-fetcher/internal/metrics"
	"github.com/veranemoloko/image-fetcher/internal/storage"
)

// DestinationOpener opens a destination handle for writing.
type DestinationOpener interface {
	OpenDestination(handle string) (io.WriteCloser, error)
}

// OpenerFunc adapts a function to DestinationOpener.
type OpenerFunc func(handle string) (io.WriteCloser, error)

func (f OpenerFunc) OpenDestination(handle string) (io.WriteCloser, error) {
	return f(handle)
}

// StorageOpener opens destinations in fs.
func StorageOpener(fs *storage.FileStorage) DestinationOpener {
	return OpenerFunc(func(handle string) (io.WriteCloser, error) {
		dst, err := fs.OpenDestination(handle)
		if err != nil {
			return nil, err
		}
		return dst, nil
	})
}

// FetchTask downloads an image, re-encodes it as JPEG and writes it to a destination.
type FetchTask struct {
	opener  DestinationOpener
	fetcher Fetcher
	codec   codec.Codec
	policy  domain.OutcomePolicy
	logger  *slog.Logger
}

// NewFetchTask creates a FetchTask. An unknown policy falls back to lenient.
func NewFetchTask(
	opener DestinationOpener,
	fetcher Fetcher,
	c codec.Codec,
	policy domain.OutcomePolicy,
	logger *slog.Logger,
) *FetchTask {
	if !policy.Valid() {
		policy = domain.OutcomePolicyLenient
	}
	return &FetchTask{
		opener:  opener,
		fetcher: fetcher,
		codec:   c,
		policy:  policy,
		logger:  logger,
	}
}

// Policy returns the outcome policy applied by Run.
func (t *FetchTask) Policy() domain.OutcomePolicy {
	return t.policy
}

// Run executes one fetch-decode-encode-write cycle and returns its outcome.
//
// Run fails when the request is incomplete, when ctx is done, when the
// destination cannot be opened, or when closing the destination fails or the
// cycle panics. Cancellation is never absorbed by the policy. Under the
// lenient policy, fetch, decode, encode and write errors are logged and the
// task still succeeds, possibly leaving an empty destination behind. The
// strict policy turns those errors into failures.
func (t *FetchTask) Run(ctx context.Context, req domain.FetchRequest) (outcome domain.FetchOutcome) {
	logger := t.logger.With("url", req.SourceURL, "destination", req.Destination)

	if strings.TrimSpace(req.SourceURL) == "" || strings.TrimSpace(req.Destination) == "" {
		logger.Warn("rejecting incomplete fetch request")
		return domain.Failure(errpkg.ErrInvalidRequest)
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("fetch task canceled before start", "error", err)
		return domain.Failure(fmt.Errorf("%w: %w", errpkg.ErrCanceled, err))
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("fetch task panicked", "panic", r, "stack", string(debug.Stack()))
			outcome = domain.Failure(fmt.Errorf("%w: panic: %v", errpkg.ErrUnexpected, r))
		}
	}()

	dst, err := t.opener.OpenDestination(req.Destination)
	if err != nil {
		logger.Error("failed to open destination", "error", err)
		return domain.Failure(fmt.Errorf("%w: %w", errpkg.ErrDestinationUnavailable, err))
	}
	defer func() {
		if err := dst.Close(); err != nil {
			logger.Error("failed to close destination", "error", err)
			if outcome.Succeeded() {
				outcome = domain.Failure(fmt.Errorf("%w: %w", errpkg.ErrUnexpected, err))
			}
		}
	}()

	if err := t.transfer(ctx, dst, req.SourceURL); err != nil {
		stage := stageOf(err)
		metrics.StepErrors.WithLabelValues(stage).Inc()

		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("fetch task canceled", "stage", stage, "error", err)
			return domain.Failure(fmt.Errorf("%w: %w", errpkg.ErrCanceled, ctxErr))
		}

		if t.policy == domain.OutcomePolicyStrict {
			logger.Error("fetch step failed", "stage", stage, "error", err)
			return domain.Failure(err)
		}
		logger.Warn("fetch step failed, error absorbed", "stage", stage, "error", err)
	}

	return domain.Success()
}

func (t *FetchTask) transfer(ctx context.Context, dst io.Writer, url string) error {
	img, err := t.fetchImage(ctx, url)
	if err != nil {
		return err
	}
	return t.writeImage(dst, img)
}

func (t *FetchTask) fetchImage(ctx context.Context, url string) (image.Image, error) {
	data, err := t.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errpkg.ErrFetch, err)
	}

	img, err := t.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errpkg.ErrDecode, err)
	}
	return img, nil
}

// writeImage encodes into memory first so encoder and writer failures stay distinct.
func (t *FetchTask) writeImage(dst io.Writer, img image.Image) error {
	var buf bytes.Buffer
	if err := t.codec.Encode(&buf, img); err != nil {
		return fmt.Errorf("%w: %w", errpkg.ErrEncode, err)
	}

	n, err := dst.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %w", errpkg.ErrWrite, err)
	}

	metrics.WrittenBytes.Add(float64(n))
	t.logger.Debug("image written",
		"bytes", n,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy(),
	)
	return nil
}

func stageOf(err error) string {
	switch {
	case errors.Is(err, errpkg.ErrFetch):
		return "fetch"
	case errors.Is(err, errpkg.ErrDecode):
		return "decode"
	case errors.Is(err, errpkg.ErrEncode):
		return "encode"
	case errors.Is(err, errpkg.ErrWrite):
		return "write"
	default:
		return "unknown"
	}
}
