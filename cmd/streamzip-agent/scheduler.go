// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/streamzip/internal/config"
)

// jobResult is the outcome of the most recent run of one job. executeJob
// records it after every run; nothing in this package reads it back.
type jobResult struct {
	status   string
	duration time.Duration
	at       time.Time
}

// runningJob guards one configured job against overlapping executions the
// way internal/agent's BackupJob does with its mutex and "running" flag.
type runningJob struct {
	cfg config.ArchiveJob

	mu      sync.Mutex
	running bool
	last    *jobResult
}

// scheduler drives one cron entry per configured job, each independently
// guarded against re-entrancy, mirroring internal/agent/scheduler.go's
// per-entry cron registration.
type scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	jobs   []*runningJob
	runFn  func(ctx context.Context, job config.ArchiveJob, logger *slog.Logger) error
}

// newScheduler registers one cron entry per job in cfg.Jobs. runFn performs
// the actual archive-and-deliver work for a single job invocation.
func newScheduler(cfg *config.AgentConfig, logger *slog.Logger, runFn func(ctx context.Context, job config.ArchiveJob, logger *slog.Logger) error) (*scheduler, error) {
	s := &scheduler{
		logger: logger,
		runFn:  runFn,
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	for _, jobCfg := range cfg.Jobs {
		rj := &runningJob{cfg: jobCfg}
		s.jobs = append(s.jobs, rj)

		jobRef := rj
		if _, err := c.AddFunc(jobCfg.Schedule, func() {
			s.executeJob(jobRef)
		}); err != nil {
			return nil, fmt.Errorf("adding cron job for %q: %w", jobCfg.Name, err)
		}

		logger.Info("registered archive job",
			"job", jobCfg.Name,
			"schedule", jobCfg.Schedule,
		)
	}

	s.cron = c
	return s, nil
}

func (s *scheduler) start() {
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	s.cron.Start()
}

func (s *scheduler) stop(ctx context.Context) {
	s.logger.Info("scheduler stopping")
	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
		s.logger.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

func (s *scheduler) executeJob(job *runningJob) {
	jobLogger := s.logger.With("job", job.cfg.Name)

	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		jobLogger.Warn("job already running, skipping scheduled execution")
		return
	}
	job.running = true
	job.mu.Unlock()

	defer func() {
		job.mu.Lock()
		job.running = false
		job.mu.Unlock()
	}()

	jobLogger.Info("scheduled job triggered")
	start := time.Now()

	err := s.runFn(context.Background(), job.cfg, jobLogger)
	duration := time.Since(start)

	if err != nil {
		jobLogger.Error("job failed", "error", err, "duration", duration)
		job.last = &jobResult{status: "failed", duration: duration, at: time.Now()}
		return
	}

	jobLogger.Info("job completed", "duration", duration)
	job.last = &jobResult{status: "completed", duration: duration, at: time.Now()}
}
