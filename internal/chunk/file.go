// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package chunk

import (
	"context"
	"fmt"
	"os"
)

// FromFile opens path eagerly — on construction, not on first Next — and
// returns a Source that streams its contents in chunkSize pieces, closing
// the underlying *os.File on Close. This is the one disk-touching adapter in
// the core; internal/zipstream and internal/resource never call it
// themselves, only the streamzip-agent front-end does, turning scanned
// filesystem paths into entries.
func FromFile(path string, chunkSize int) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunk: opening %s: %w", path, err)
	}
	return FromReader(f, chunkSize), nil
}

// FromFileResource returns a Factory suitable for resource.Wrap that reopens
// path fresh on every Iterate call, making a file-backed entry restartable
// across retries the way a fully-buffered in-memory source already is.
func FromFileResource(path string, chunkSize int) func(ctx context.Context) (Source, error) {
	return func(ctx context.Context) (Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return FromFile(path, chunkSize)
	}
}
