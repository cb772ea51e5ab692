// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package throttle rate-limits a chunk.Source using a token-bucket limiter,
// the same way the agent's upload pipeline rate-limits an io.Writer.
package throttle

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/nishisan-dev/streamzip/internal/chunk"
)

// maxBurstSize caps how many bytes a single WaitN reservation may request;
// larger chunks are paid for in installments of at most this size.
const maxBurstSize = 256 * 1024

// Source wraps a chunk.Source, delaying each Next call so the cumulative
// byte rate does not exceed a configured bytes-per-second budget. A chunk
// larger than the burst size is handed to the limiter in burst-sized pieces
// and reassembled, so a single oversized chunk cannot starve the bucket for
// the rest of the archive.
type Source struct {
	src     chunk.Source
	limiter *rate.Limiter
}

// New wraps src with a rate limiter capped at bytesPerSec bytes/second. If
// bytesPerSec <= 0, src is returned unchanged: throttling is bypassed
// entirely rather than applying a zero-width limiter.
func New(src chunk.Source, bytesPerSec int64) chunk.Source {
	if bytesPerSec <= 0 {
		return src
	}

	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}

	return &Source{
		src:     src,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
	}
}

// Next pulls the next chunk from the wrapped source, then blocks until the
// limiter has released enough tokens to "spend" its size, in burst-sized
// installments if the chunk exceeds the burst.
func (s *Source) Next(ctx context.Context) (chunk.Chunk, error) {
	c, err := s.src.Next(ctx)
	if len(c) == 0 {
		return c, err
	}

	remaining := c
	for len(remaining) > 0 {
		n := len(remaining)
		if n > s.limiter.Burst() {
			n = s.limiter.Burst()
		}
		if werr := s.limiter.WaitN(ctx, n); werr != nil {
			return nil, werr
		}
		remaining = remaining[n:]
	}

	return c, err
}

// Close delegates to the wrapped source.
func (s *Source) Close() error {
	return s.src.Close()
}
