// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/nishisan-dev/streamzip/internal/config"
)

// sink delivers an archive stream to its configured destination: S3 when a
// bucket is set, or a local spool file as a fallback otherwise.
type sink struct {
	uploader *manager.Uploader
	target   config.UploadTarget
}

// newSink builds an S3 uploader for target, if target names a bucket. It is
// safe to call even when target has no bucket: deliver degrades to
// writeSpoolFile in that case and the uploader is never used.
func newSink(ctx context.Context, target config.UploadTarget) (*sink, error) {
	s := &sink{target: target}
	if target.Bucket == "" {
		return s, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(target.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	s.uploader = manager.NewUploader(client)
	return s, nil
}

// deliver streams body (via chunk.AsReader upstream) to S3 if a bucket is
// configured, otherwise spools it to target.SpoolDir. requireFreeSpace is
// consulted before spooling (against minSpoolFreeBytes) so a near-full
// filesystem fails the job instead of writing a truncated archive.
func (s *sink) deliver(ctx context.Context, jobName string, body io.Reader) error {
	if s.uploader != nil {
		key := s.target.Prefix + jobName + "-" + objectSuffix() + ".zip"
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: strPtr(s.target.Bucket),
			Key:    strPtr(key),
			Body:   body,
		})
		if err != nil {
			return fmt.Errorf("uploading %s/%s: %w", s.target.Bucket, key, err)
		}
		return nil
	}

	return s.writeSpoolFile(jobName, body)
}

func (s *sink) writeSpoolFile(jobName string, body io.Reader) error {
	if err := requireFreeSpace(s.target.SpoolDir, minSpoolFreeBytes); err != nil {
		return err
	}

	if err := os.MkdirAll(s.target.SpoolDir, 0o755); err != nil {
		return fmt.Errorf("creating spool dir %s: %w", s.target.SpoolDir, err)
	}

	path := filepath.Join(s.target.SpoolDir, jobName+"-"+objectSuffix()+".zip")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating spool file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("writing spool file %s: %w", path, err)
	}
	return nil
}

// minSpoolFreeBytes is the floor below which a spool write is refused rather
// than attempted and left truncated by a later ENOSPC.
const minSpoolFreeBytes = 100 * 1024 * 1024

// requireFreeSpace checks the free space on the filesystem backing dir via
// gopsutil/v3/disk, grounded on internal/agent/monitor.go's disk.Usage call.
func requireFreeSpace(dir string, minFree uint64) error {
	if dir == "" {
		return nil
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		// Path may not exist yet; the subsequent MkdirAll/Create surfaces
		// any real problem.
		return nil
	}
	if usage.Free < minFree {
		return fmt.Errorf("insufficient free space on %s: %d bytes free, need at least %d", dir, usage.Free, minFree)
	}
	return nil
}

func strPtr(s string) *string { return &s }

// objectSuffix timestamps spooled/uploaded object names so repeated runs of
// the same job never collide.
func objectSuffix() string {
	return time.Now().UTC().Format("20060102T150405Z")
}
