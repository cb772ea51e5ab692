// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package zipstream

import "github.com/nishisan-dev/streamzip/internal/dedup"

// Compression selects the per-archive compression method. The method is
// uniform across every entry in one archive, chosen at construction time.
type Compression int

const (
	// Deflate compresses each entry's payload with DEFLATE (ZIP method 8).
	// This is the default.
	Deflate Compression = iota
	// Stored copies each entry's payload through unchanged (ZIP method 0).
	Stored
)

func (c Compression) method() uint16 {
	if c == Stored {
		return 0
	}
	return 8
}

// Option configures a NewStream/NewStreamResource call.
type Option func(*config)

type config struct {
	dedup       dedup.Deduplicator
	compression Compression
}

func defaultConfig() *config {
	return &config{
		dedup:       dedup.Default(dedup.DefaultPattern, dedup.DefaultReconstructor),
		compression: Deflate,
	}
}

// WithDeduplicator overrides the default name deduplicator. Pass dedup.None()
// to disable deduplication and emit entry names verbatim.
func WithDeduplicator(d dedup.Deduplicator) Option {
	return func(c *config) { c.dedup = d }
}

// WithCompression selects the archive's compression method. Default: Deflate.
func WithCompression(m Compression) Option {
	return func(c *config) { c.compression = m }
}
