package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	h "github.com/veranemoloko/image-fetcher/internal/api/http"
	"github.com/veranemoloko/image-fetcher/internal/codec"
	cfgpkg "github.com/veranemoloko/image-fetcher/internal/config"
	repo "github.com/veranemoloko/image-fetcher/internal/repository"
	svc "github.com/veranemoloko/image-fetcher/internal/service"
	"github.com/veranemoloko/image-fetcher/internal/storage"
	"github.com/veranemoloko/image-fetcher/internal/worker"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfgpkg.SetupLogger(cfg)
	logger.Info("configuration loaded successfully",
		"env", cfg.Environment,
		"workers", cfg.WorkerPoolSize,
		"policy", cfg.OutcomePolicy,
	)

	taskStorage, err := repo.NewTaskStorage(cfg.StateFile)
	if err != nil {
		logger.Error("failed to initialize file repository", "error", err)
		os.Exit(1)
	}

	images := storage.NewFileStorage(cfg.DestinationDir)
	fetchTask := worker.NewFetchTask(
		worker.StorageOpener(images),
		worker.NewHTTPFetcher(cfg.FetchTimeout, cfg.MaxImageSize, logger),
		codec.NewImagingCodec(cfg.JPEGQuality),
		cfg.OutcomePolicy,
		logger,
	)

	fetchService := svc.NewFetchService(fetchTask, taskStorage, svc.Options{
		Workers:   cfg.WorkerPoolSize,
		QueueSize: cfg.QueueSize,
	}, logger)

	recovered, err := fetchService.RecoverPendingTasks(context.Background())
	if err != nil {
		logger.Error("failed to recover pending tasks", "error", err)
	} else if len(recovered) > 0 {
		logger.Info("pending tasks recovered", "count", len(recovered))
	}

	router := h.NewRouter(fetchService, images, h.Options{
		AllowPrivateHosts: cfg.AllowPrivateHosts,
		DefaultSourceURL:  cfg.DefaultSourceURL,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.FetchTimeout + cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := fetchService.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("fetch service shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}
