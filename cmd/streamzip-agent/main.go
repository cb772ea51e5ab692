// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command streamzip-agent is a small cron-scheduled front-end over the
// streaming composition core: it scans configured source directories into
// ZIP archive entries and delivers the resulting stream to S3 or a local
// spool directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/nishisan-dev/streamzip/internal/config"
	"github.com/nishisan-dev/streamzip/internal/logging"
)

func main() {
	configPath := flag.String("config", "/etc/streamzip/agent.yaml", "path to agent config file")
	once := flag.Bool("once", false, "run every configured job once and exit (no daemon)")
	flag.Parse()

	cfg, err := config.LoadAgentConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	if *once {
		if err := runAllJobs(context.Background(), cfg, logger); err != nil {
			logger.Error("one or more jobs failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runDaemon(*configPath, cfg, logger); err != nil {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}
}
