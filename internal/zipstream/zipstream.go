// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package zipstream

import (
	"context"

	"github.com/nishisan-dev/streamzip/internal/chunk"
	"github.com/nishisan-dev/streamzip/internal/resource"
)

// NewStream returns a chunk.Source that streams entries as a single ZIP
// archive. Each call to the returned source's Next pulls from the current
// entry's Source, so no entry's payload is ever buffered in full.
//
// The returned source is single-use: entries' Sources are consumed as they
// are streamed. To restart the archive from scratch, use NewStreamResource,
// which reconstructs the entries list (and the deduplicator's state) fresh
// on every iteration.
func NewStream(entries []Entry, opts ...Option) chunk.Source {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newEncoder(entries, cfg)
}

// NewStreamResource wraps a factory that builds the entries list on demand
// in a resource.Stream, so the archive can be restarted: each Iterate call
// invokes build again, yielding fresh entry sources and a fresh deduplicator
// so a previous run's dedup suffix counters never leak into the next one.
func NewStreamResource(build func(ctx context.Context) ([]Entry, error), opts ...Option) *resource.Stream {
	return resource.Wrap(func(ctx context.Context) (chunk.Source, error) {
		entries, err := build(ctx)
		if err != nil {
			return nil, err
		}
		cfg := defaultConfig()
		for _, opt := range opts {
			opt(cfg)
		}
		return newEncoder(entries, cfg), nil
	})
}
