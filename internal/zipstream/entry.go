// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package zipstream assembles an ordered list of (name, chunk.Source) entries
// into the byte stream of a valid, streamed ZIP archive: a local file header
// per entry, a deflated or stored payload streamed straight through from the
// entry's source, a trailing data descriptor, and a central directory plus
// end-of-central-directory record once every entry has been drained.
//
// The encoder never buffers a whole entry in memory, never seeks, and emits
// exactly the bytes a conforming extractor needs, in the order it needs them.
package zipstream

import "github.com/nishisan-dev/streamzip/internal/chunk"

// Entry is one (name, source) pair contributing one local file header,
// payload, and data descriptor to the archive. It carries no precomputed
// size or CRC — both are computed while the encoder streams Source.
type Entry struct {
	Name   string
	Source chunk.Source
}

// NewEntry constructs an Entry. It performs no I/O: source is not touched
// until the encoder's payload loop reaches this entry.
func NewEntry(name string, source chunk.Source) Entry {
	return Entry{Name: name, Source: source}
}
