// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package zipstream

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/nishisan-dev/streamzip/internal/chunk"
)

type stage int

const (
	stageHeader stage = iota
	stagePayload
	stageDescriptor
	stageCentralDirectory
	stageEOCD
	stageDone
)

// encoder is the chunk.Source that assembles entries into a ZIP stream. It
// advances through a small state machine: for each entry, emit the local
// header, then the (possibly compressed) payload, then the data descriptor;
// once every entry is drained, emit the central directory and the
// end-of-central-directory record.
type encoder struct {
	entries []Entry
	cfg     *config

	idx   int
	stage stage

	pos int64

	pending []byte

	curName   string
	curMethod uint16
	curCRC    uint32
	curComp   uint64
	curUncomp uint64
	curOffset uint64
	curFlate  *flate.Writer
	flateBuf  *sizeCountingWriter
	entrySrc  chunk.Source

	journal []journalRecord

	cdBuf    []byte
	cdOffset uint64
}

// newEncoder builds the state machine. No I/O happens until Next is called.
func newEncoder(entries []Entry, cfg *config) *encoder {
	return &encoder{entries: entries, cfg: cfg}
}

// Next produces the archive's bytes in order, one buffered piece at a time.
// It returns io.EOF once the end-of-central-directory record has been
// emitted, matching the single-iteration contract of chunk.Source.
func (e *encoder) Next(ctx context.Context) (chunk.Chunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(e.pending) > 0 {
			out := e.pending
			e.pending = nil
			return chunk.Chunk(out), nil
		}

		switch e.stage {
		case stageHeader:
			if e.idx >= len(e.entries) {
				e.stage = stageCentralDirectory
				continue
			}
			if err := e.beginEntry(ctx); err != nil {
				return nil, err
			}
			e.stage = stagePayload
			continue

		case stagePayload:
			done, buf, err := e.stepPayload(ctx)
			if err != nil {
				return nil, err
			}
			if done {
				// finishEntry may append trailing compressed bytes (the
				// flush tail) to e.pending; the top-of-loop check above
				// drains those on a subsequent call before stageDescriptor
				// ever runs, so none of it is lost.
				if err := e.finishEntry(); err != nil {
					return nil, err
				}
				e.stage = stageDescriptor
			}
			if len(buf) > 0 {
				e.pos += int64(len(buf))
				return chunk.Chunk(buf), nil
			}
			continue

		case stageDescriptor:
			desc := dataDescriptor{
				crc32:            e.curCRC,
				compressedSize:   e.curComp,
				uncompressedSize: e.curUncomp,
			}.build()
			e.pos += int64(len(desc))
			e.idx++
			e.stage = stageHeader
			return chunk.Chunk(desc), nil

		case stageCentralDirectory:
			buf := e.buildCentralDirectory()
			e.stage = stageEOCD
			if len(buf) > 0 {
				return chunk.Chunk(buf), nil
			}
			continue

		case stageEOCD:
			eocd := buildEOCD(eocdInputs{
				entryCount:       len(e.journal),
				centralDirSize:   uint64(len(e.cdBuf)),
				centralDirOffset: e.cdOffset,
			})
			e.stage = stageDone
			return chunk.Chunk(eocd), nil

		case stageDone:
			return nil, io.EOF
		}
	}
}

// beginEntry resolves the entry's deduplicated name, opens its source, and
// emits the local file header.
func (e *encoder) beginEntry(ctx context.Context) error {
	entry := e.entries[e.idx]

	name, err := e.cfg.dedup.Accept(entry.Name)
	if err != nil {
		return fmt.Errorf("zipstream: deduplicating name %q: %w", entry.Name, err)
	}

	e.curName = name
	e.curMethod = e.cfg.compression.method()
	e.curOffset = uint64(e.pos)
	e.curCRC = 0
	e.curComp = 0
	e.curUncomp = 0
	e.entrySrc = entry.Source

	e.flateBuf = &sizeCountingWriter{}
	if e.cfg.compression == Deflate {
		fw, err := flate.NewWriter(e.flateBuf, flate.DefaultCompression)
		if err != nil {
			return fmt.Errorf("zipstream: initializing deflate writer: %w", err)
		}
		e.curFlate = fw
	} else {
		e.curFlate = nil
	}

	hdr := buildLocalHeader(name, e.curMethod)
	e.pos += int64(len(hdr))
	e.pending = hdr
	return nil
}

// stepPayload pulls one chunk from the entry's source, runs it through the
// configured compressor, and returns the bytes ready to write to the
// archive. done is true once the entry's source is exhausted.
func (e *encoder) stepPayload(ctx context.Context) (done bool, out []byte, err error) {
	c, srcErr := e.entrySrc.Next(ctx)
	if srcErr != nil && srcErr != io.EOF {
		return false, nil, fmt.Errorf("zipstream: reading entry %q: %w", e.curName, srcErr)
	}

	if len(c) > 0 {
		e.curCRC = crc32.Update(e.curCRC, crc32.IEEETable, c)
		e.curUncomp += uint64(len(c))

		if e.curFlate != nil {
			if _, werr := e.curFlate.Write(c); werr != nil {
				return false, nil, fmt.Errorf("zipstream: compressing entry %q: %w", e.curName, werr)
			}
		} else {
			e.flateBuf.Write(c)
		}
	}

	if srcErr == io.EOF {
		if cerr := e.entrySrc.Close(); cerr != nil {
			return false, nil, fmt.Errorf("zipstream: closing entry %q: %w", e.curName, cerr)
		}
		return true, e.flateBuf.take(), nil
	}

	return false, e.flateBuf.take(), nil
}

// finishEntry flushes any buffered compressed output and journals the
// entry's final sizes for the central directory.
func (e *encoder) finishEntry() error {
	if e.curFlate != nil {
		if err := e.curFlate.Flush(); err != nil {
			return fmt.Errorf("zipstream: flushing entry %q: %w", e.curName, err)
		}
		if err := e.curFlate.Close(); err != nil {
			return fmt.Errorf("zipstream: closing deflate stream for entry %q: %w", e.curName, err)
		}
	}
	tail := e.flateBuf.take()
	if len(tail) > 0 {
		e.pos += int64(len(tail))
		e.pending = append(e.pending, tail...)
	}
	e.curComp = uint64(e.flateBuf.total)

	e.journal = append(e.journal, journalRecord{
		name:              e.curName,
		crc32:             e.curCRC,
		compressedSize:    e.curComp,
		uncompressedSize:  e.curUncomp,
		method:            e.curMethod,
		localHeaderOffset: e.curOffset,
	})
	return nil
}

// buildCentralDirectory renders every journaled record back to back and
// records the directory's own offset and size for the EOCD record.
func (e *encoder) buildCentralDirectory() []byte {
	e.cdOffset = uint64(e.pos)
	var buf []byte
	for _, rec := range e.journal {
		rendered := buildCentralDirHeader(rec)
		buf = append(buf, rendered...)
	}
	e.cdBuf = buf
	e.pos += int64(len(buf))
	return buf
}

// Close releases the source of whichever entry is currently being streamed.
// It is a no-op once the encoder has moved past the payload stages.
func (e *encoder) Close() error {
	if e.entrySrc != nil && e.stage == stagePayload {
		return e.entrySrc.Close()
	}
	return nil
}

// sizeCountingWriter buffers compressor output between Next calls and
// tracks the total number of bytes ever written to it, so the encoder can
// report an entry's final compressed size without re-summing every chunk.
type sizeCountingWriter struct {
	buf   []byte
	total int
}

func (w *sizeCountingWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	w.total += len(p)
	return len(p), nil
}

// take returns and clears the buffered bytes accumulated since the last call.
func (w *sizeCountingWriter) take() []byte {
	out := w.buf
	w.buf = nil
	return out
}
