// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nishisan-dev/streamzip/internal/chunk"
	"github.com/nishisan-dev/streamzip/internal/config"
	"github.com/nishisan-dev/streamzip/internal/dedup"
	"github.com/nishisan-dev/streamzip/internal/logging"
	"github.com/nishisan-dev/streamzip/internal/throttle"
	"github.com/nishisan-dev/streamzip/internal/zipstream"
)

// defaultChunkSize matches internal/chunk's own default chunk size (32KiB).
const defaultChunkSize = 32 * 1024

// runJobFunc matches the shape newScheduler and runAllJobs invoke per job.
type runJobFunc func(ctx context.Context, job config.ArchiveJob, logger *slog.Logger) error

// makeRunJob binds jobLogDir into a runJobFunc, so the scheduler and the
// --once path share the same per-run logging behavior without the cron
// wiring itself needing to know about it.
func makeRunJob(jobLogDir string) runJobFunc {
	return func(ctx context.Context, job config.ArchiveJob, logger *slog.Logger) error {
		return runJob(ctx, job, logger, jobLogDir)
	}
}

// runJob scans job's sources, streams them into a ZIP archive, and delivers
// the result via the job's configured sink. It is the single-job unit of
// work the scheduler invokes on each cron firing, and what --once runs for
// every configured job sequentially.
//
// jobLogDir, when non-empty, gets a dedicated debug-level log file per run
// via logging.NewJobLogger; it is removed again on success, so only failed
// runs leave a trail behind.
func runJob(ctx context.Context, job config.ArchiveJob, logger *slog.Logger, jobLogDir string) error {
	runID := time.Now().UTC().Format("20060102T150405Z")
	runLogger, closer, _, err := logging.NewJobLogger(logger, jobLogDir, job.Name, runID)
	if err != nil {
		return fmt.Errorf("preparing job log for %q: %w", job.Name, err)
	}
	logger = runLogger

	if err := runJobBody(ctx, job, logger); err != nil {
		closer.Close()
		return err
	}
	closer.Close()
	logging.RemoveJobLog(jobLogDir, job.Name, runID)
	return nil
}

func runJobBody(ctx context.Context, job config.ArchiveJob, logger *slog.Logger) error {
	scan := newScanner(job.Sources, job.Exclude)

	var opts []zipstream.Option
	if job.Compression == "stored" {
		opts = append(opts, zipstream.WithCompression(zipstream.Stored))
	}
	if job.Dedup == "none" {
		opts = append(opts, zipstream.WithDeduplicator(dedup.None()))
	}

	stream := zipstream.NewStreamResource(func(ctx context.Context) ([]zipstream.Entry, error) {
		return scan.scan(defaultChunkSize)
	}, opts...)

	src, err := stream.Iterate(ctx)
	if err != nil {
		return fmt.Errorf("scanning sources for %q: %w", job.Name, err)
	}
	defer src.Close()

	if rate := job.RateLimitBytesPerSec(); rate > 0 {
		src = throttle.New(src, rate)
	}

	sink, err := newSink(ctx, job.Upload)
	if err != nil {
		return fmt.Errorf("preparing destination for %q: %w", job.Name, err)
	}

	reader := chunk.AsReader(ctx, src)
	if err := sink.deliver(ctx, job.Name, reader); err != nil {
		return fmt.Errorf("delivering archive for %q: %w", job.Name, err)
	}

	logger.Info("archive delivered", "job", job.Name)
	return nil
}

// runAllJobs runs every configured job once, sequentially, continuing past
// individual job failures and returning the first error encountered.
func runAllJobs(ctx context.Context, cfg *config.AgentConfig, logger *slog.Logger) error {
	run := makeRunJob(cfg.Logging.Dir)

	var firstErr error
	for _, job := range cfg.Jobs {
		jobLogger := logger.With("job", job.Name)
		jobLogger.Info("starting job")

		if err := run(ctx, job, jobLogger); err != nil {
			jobLogger.Error("job failed", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("job %q failed: %w", job.Name, err)
			}
			continue
		}
		jobLogger.Info("job completed successfully")
	}
	return firstErr
}

// runDaemon starts the cron scheduler and blocks until SIGTERM/SIGINT.
// SIGHUP reloads the configuration file without downtime.
func runDaemon(configPath string, cfg *config.AgentConfig, logger *slog.Logger) error {
	logger.Info("starting daemon", "agent", cfg.Agent.Name, "jobs", len(cfg.Jobs))

	sched, err := newScheduler(cfg, logger, makeRunJob(cfg.Logging.Dir))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	sched.start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	for {
		sig := <-sigCh

		if sig == syscall.SIGHUP {
			logger.Info("received SIGHUP, reloading config", "path", configPath)

			newCfg, loadErr := config.LoadAgentConfig(configPath)
			if loadErr != nil {
				logger.Error("reload failed, keeping current config", "error", loadErr)
				continue
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			sched.stop(stopCtx)
			cancel()

			cfg = newCfg
			sched, err = newScheduler(cfg, logger, makeRunJob(cfg.Logging.Dir))
			if err != nil {
				logger.Error("failed to create scheduler after reload", "error", err)
				return fmt.Errorf("reload scheduler: %w", err)
			}
			sched.start()

			logger.Info("config reloaded successfully", "agent", cfg.Agent.Name, "jobs", len(cfg.Jobs))
			continue
		}

		logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		sched.stop(ctx)
		cancel()
		return nil
	}
}
