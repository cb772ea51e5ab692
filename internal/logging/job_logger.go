// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanOutHandler is a slog.Handler that dispatches every record to two
// handlers. Used by JobLogger to write simultaneously to the global handler
// and a job run's dedicated log file.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	// Check each handler's Enabled() individually so a DEBUG record isn't
	// sent to the primary handler when it only accepts INFO or above.
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// Write errors on the job file must not block the global log.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}

// NewJobLogger creates a logger that writes both to the base (global) logger
// and to a file dedicated to one archive-job run, at:
//
//	{jobLogDir}/{agentName}/{runID}.log
//
// Returns the enriched logger, an io.Closer for the run's log file, and the
// absolute path of the created file. The Closer MUST be called (defer) when
// the run finishes.
//
// If jobLogDir is empty, returns the base logger unmodified (no-op).
func NewJobLogger(baseLogger *slog.Logger, jobLogDir, agentName, runID string) (*slog.Logger, io.Closer, string, error) {
	if jobLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	dir := filepath.Join(jobLogDir, agentName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("creating job log directory %s: %w", dir, err)
	}

	logPath := filepath.Join(dir, runID+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening job log file %s: %w", logPath, err)
	}

	// The run's file always uses JSON at DEBUG level for maximum capture.
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	combined := &fanOutHandler{
		primary:   baseLogger.Handler(),
		secondary: fileHandler,
	}

	return slog.New(combined), f, logPath, nil
}

// RemoveJobLog removes the log file of a run that finished successfully.
// No-op if jobLogDir is empty or the file doesn't exist.
func RemoveJobLog(jobLogDir, agentName, runID string) {
	if jobLogDir == "" {
		return
	}
	logPath := filepath.Join(jobLogDir, agentName, runID+".log")
	os.Remove(logPath)
}
