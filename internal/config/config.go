// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config loads and validates the YAML configuration for the
// streamzip-agent front-end: which directories to fold into an archive, how to
// deduplicate entry names, and where the resulting stream should go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentConfig is the full configuration for the streamzip-agent daemon.
type AgentConfig struct {
	Agent   AgentInfo    `yaml:"agent"`
	Jobs    []ArchiveJob `yaml:"jobs"`
	Logging LoggingInfo  `yaml:"logging"`
}

// AgentInfo identifies the running agent instance.
type AgentInfo struct {
	Name string `yaml:"name"`
}

// ArchiveJob describes one scheduled archive: where its entries come from,
// how they're named and deduplicated, and where the produced stream goes.
type ArchiveJob struct {
	Name       string       `yaml:"name"`
	Schedule   string       `yaml:"schedule"` // cron expression, e.g. "0 2 * * *"
	Sources    []string     `yaml:"sources"`
	Exclude    []string     `yaml:"exclude"`
	Compression string      `yaml:"compression"` // "deflate" (default) or "stored"
	Dedup      string       `yaml:"dedup"`       // "default" (default) or "none"
	RateLimit  string       `yaml:"rate_limit"`  // e.g. "10mb", "" = unlimited
	Upload     UploadTarget `yaml:"upload"`
}

// UploadTarget is where the produced archive stream is written. Exactly one
// of Bucket or SpoolDir should be set; Bucket takes precedence when both are.
type UploadTarget struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	SpoolDir string `yaml:"spool_dir"`
}

// LoggingInfo contains logging configuration.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // base log file, in addition to stdout, if non-empty
	Dir    string `yaml:"dir"`  // per-job log files under {dir}/{job}/{run-id}.log, if non-empty
}

// LoadAgentConfig reads and validates the YAML configuration file at path.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent config: %w", err)
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating agent config: %w", err)
	}

	return &cfg, nil
}

func (c *AgentConfig) validate() error {
	if c.Agent.Name == "" {
		return fmt.Errorf("agent.name is required")
	}
	if len(c.Jobs) == 0 {
		return fmt.Errorf("jobs must have at least one entry")
	}

	seen := make(map[string]struct{}, len(c.Jobs))
	for i := range c.Jobs {
		job := &c.Jobs[i]
		if job.Name == "" {
			return fmt.Errorf("jobs[%d].name is required", i)
		}
		if _, dup := seen[job.Name]; dup {
			return fmt.Errorf("jobs[%d].name %q is duplicated", i, job.Name)
		}
		seen[job.Name] = struct{}{}

		if job.Schedule == "" {
			return fmt.Errorf("jobs[%d].schedule is required", i)
		}
		if len(job.Sources) == 0 {
			return fmt.Errorf("jobs[%d].sources must have at least one entry", i)
		}

		switch job.Compression {
		case "":
			job.Compression = "deflate"
		case "deflate", "stored":
		default:
			return fmt.Errorf("jobs[%d].compression must be \"deflate\" or \"stored\", got %q", i, job.Compression)
		}

		switch job.Dedup {
		case "":
			job.Dedup = "default"
		case "default", "none":
		default:
			return fmt.Errorf("jobs[%d].dedup must be \"default\" or \"none\", got %q", i, job.Dedup)
		}

		if job.RateLimit != "" {
			if _, err := ParseByteSize(job.RateLimit); err != nil {
				return fmt.Errorf("jobs[%d].rate_limit: %w", i, err)
			}
		}

		if job.Upload.Bucket == "" && job.Upload.SpoolDir == "" {
			return fmt.Errorf("jobs[%d].upload must set either bucket or spool_dir", i)
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

// ParseByteSize converts human-readable strings like "256mb", "1gb" to bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Ordered longest suffix first so "mb" isn't mistaken for "b".
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}

// RateLimitBytesPerSec resolves the job's configured rate limit to bytes/sec,
// returning 0 (unlimited) when unset.
func (j ArchiveJob) RateLimitBytesPerSec() int64 {
	if j.RateLimit == "" {
		return 0
	}
	n, err := ParseByteSize(j.RateLimit)
	if err != nil {
		return 0
	}
	return n
}
