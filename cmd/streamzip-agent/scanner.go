// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nishisan-dev/streamzip/internal/chunk"
	"github.com/nishisan-dev/streamzip/internal/resource"
	"github.com/nishisan-dev/streamzip/internal/zipstream"
)

// scanner walks a job's source directories and filters files against its
// exclude globs, the same traversal internal/agent's Scanner performed for
// the tar pipeline, adapted here to yield zipstream.Entry values instead of
// feeding a tar.Writer directly.
type scanner struct {
	sources  []string
	excludes []string
}

func newScanner(sources, excludes []string) *scanner {
	return &scanner{sources: sources, excludes: excludes}
}

// scan builds the entries list for one archive run. chunkSize controls the
// read granularity passed to chunk.FromFileResource for each file.
func (s *scanner) scan(chunkSize int) ([]zipstream.Entry, error) {
	var entries []zipstream.Entry

	for _, src := range s.sources {
		src = filepath.Clean(src)

		err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil
			}

			relPath := strings.TrimPrefix(path, "/")
			if s.isExcluded(relPath, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				return nil
			}

			// resource.Wrap defers the os.Open until the encoder actually
			// reaches this entry, so scan never holds more than the
			// in-flight entry's file handle open at once.
			entrySrc := resource.Wrap(chunk.FromFileResource(path, chunkSize))
			entries = append(entries, zipstream.NewEntry(relPath, entrySrc))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return entries, nil
}

// isExcluded mirrors internal/agent's exclude-glob matching: a trailing
// slash matches a directory by name at any depth, a "/**" suffix excludes a
// directory and everything under it, and a bare pattern matches either the
// full relative path or the basename.
func (s *scanner) isExcluded(relPath string, isDir bool) bool {
	base := filepath.Base(relPath)
	parts := strings.Split(relPath, string(os.PathSeparator))

	for _, pattern := range s.excludes {
		if strings.HasSuffix(pattern, "/") {
			if isDir {
				dirPattern := strings.TrimSuffix(pattern, "/")
				dirPattern = strings.TrimPrefix(dirPattern, "*/")
				for _, part := range parts {
					if matched, _ := filepath.Match(dirPattern, part); matched {
						return true
					}
				}
			}
			continue
		}

		if strings.HasSuffix(pattern, "/**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			for _, part := range parts {
				if matched, _ := filepath.Match(prefix, part); matched {
					return true
				}
			}
			continue
		}

		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
