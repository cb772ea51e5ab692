// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package zipstream

import "encoding/binary"

// Signatures, per the ZIP format.
const (
	sigLocalFileHeader    uint32 = 0x04034b50
	sigDataDescriptor     uint32 = 0x08074b50
	sigCentralDirHeader   uint32 = 0x02014b50
	sigZip64EOCDRecord    uint32 = 0x06064b50
	sigZip64EOCDLocator   uint32 = 0x07064b50
	sigEndOfCentralDir    uint32 = 0x06054b50
	zip64ExtraTag         uint16 = 0x0001
)

// flagDataDescriptor (bit 3) marks that CRC/sizes follow in a data
// descriptor rather than being present in the local header.
// flagUTF8 (bit 11) marks that the entry name is UTF-8 encoded.
const (
	flagDataDescriptor uint16 = 1 << 3
	flagUTF8           uint16 = 1 << 11
)

// zip64Threshold is the largest 32-bit value ZIP fields may legitimately
// hold; values beyond it are encoded via the ZIP64 extension instead.
const zip64Threshold = 0xFFFFFFFE

// sentinel32 marks a classic field as "see the ZIP64 extra field instead."
const sentinel32 uint32 = 0xFFFFFFFF

// fixedDOSTime and fixedDOSDate encode 1980-01-01 00:00:00, the oldest
// representable DOS timestamp. The encoder has no wall-clock dependency, so
// every entry carries this same placeholder, which every conforming
// extractor must accept.
const (
	fixedDOSTime uint16 = 0
	fixedDOSDate uint16 = 0x21 // day=1, month=1, year=1980 (1980 is year zero in DOS dates)
)

func putUint16(buf []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(buf, v)
}

func putUint32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

func putUint64(buf []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, v)
}

// buildLocalHeader emits the 30-byte fixed local file header plus the
// UTF-8 name. Sizes and CRC are always zero here: bit 3 is set, so the real
// values follow in the data descriptor once the payload has been streamed.
func buildLocalHeader(name string, method uint16) []byte {
	nameBytes := []byte(name)

	buf := make([]byte, 0, 30+len(nameBytes))
	buf = putUint32(buf, sigLocalFileHeader)
	buf = putUint16(buf, 20) // version needed to extract
	buf = putUint16(buf, flagDataDescriptor|flagUTF8)
	buf = putUint16(buf, method)
	buf = putUint16(buf, fixedDOSTime)
	buf = putUint16(buf, fixedDOSDate)
	buf = putUint32(buf, 0) // crc-32, unknown yet
	buf = putUint32(buf, 0) // compressed size, unknown yet
	buf = putUint32(buf, 0) // uncompressed size, unknown yet
	buf = putUint16(buf, uint16(len(nameBytes)))
	buf = putUint16(buf, 0) // extra field length
	buf = append(buf, nameBytes...)
	return buf
}

// dataDescriptor carries the values computed while streaming one entry.
type dataDescriptor struct {
	crc32            uint32
	compressedSize   uint64
	uncompressedSize uint64
}

func (d dataDescriptor) needsZip64() bool {
	return d.compressedSize > zip64Threshold || d.uncompressedSize > zip64Threshold
}

// build emits the 16-byte (or 24-byte ZIP64) record that
// follows an entry's payload.
func (d dataDescriptor) build() []byte {
	if d.needsZip64() {
		buf := make([]byte, 0, 24)
		buf = putUint32(buf, sigDataDescriptor)
		buf = putUint32(buf, d.crc32)
		buf = putUint64(buf, d.compressedSize)
		buf = putUint64(buf, d.uncompressedSize)
		return buf
	}
	buf := make([]byte, 0, 16)
	buf = putUint32(buf, sigDataDescriptor)
	buf = putUint32(buf, d.crc32)
	buf = putUint32(buf, uint32(d.compressedSize))
	buf = putUint32(buf, uint32(d.uncompressedSize))
	return buf
}

// journalRecord is one already-written entry's central-directory material.
type journalRecord struct {
	name             string
	crc32            uint32
	compressedSize   uint64
	uncompressedSize uint64
	method           uint16
	localHeaderOffset uint64
}

func (r journalRecord) sizeZip64() bool {
	return r.compressedSize > zip64Threshold || r.uncompressedSize > zip64Threshold
}

func (r journalRecord) offsetZip64() bool {
	return r.localHeaderOffset > zip64Threshold
}

func (r journalRecord) needsZip64() bool {
	return r.sizeZip64() || r.offsetZip64()
}

// buildZip64Extra renders the ZIP64 extra field for a central-directory
// record, containing only the 8-byte fields the record actually needs,
// uncompressed size then compressed size then local-header offset, per the
// ZIP64 extra field's fixed order.
func buildZip64Extra(r journalRecord) []byte {
	var data []byte
	if r.sizeZip64() {
		data = putUint64(data, r.uncompressedSize)
		data = putUint64(data, r.compressedSize)
	}
	if r.offsetZip64() {
		data = putUint64(data, r.localHeaderOffset)
	}

	buf := make([]byte, 0, 4+len(data))
	buf = putUint16(buf, zip64ExtraTag)
	buf = putUint16(buf, uint16(len(data)))
	buf = append(buf, data...)
	return buf
}

// buildCentralDirHeader emits one central-directory file header (signature
// 0x02014b50) for a journaled entry.
func buildCentralDirHeader(r journalRecord) []byte {
	nameBytes := []byte(r.name)
	zip64 := r.needsZip64()

	var extra []byte
	if zip64 {
		extra = buildZip64Extra(r)
	}

	versionNeeded := uint16(20)
	if zip64 {
		versionNeeded = 45
	}

	compSize := uint32(r.compressedSize)
	uncompSize := uint32(r.uncompressedSize)
	offset := uint32(r.localHeaderOffset)
	if r.sizeZip64() {
		compSize = sentinel32
		uncompSize = sentinel32
	}
	if r.offsetZip64() {
		offset = sentinel32
	}

	buf := make([]byte, 0, 46+len(nameBytes)+len(extra))
	buf = putUint32(buf, sigCentralDirHeader)
	buf = putUint16(buf, versionNeeded) // version made by
	buf = putUint16(buf, versionNeeded) // version needed to extract
	buf = putUint16(buf, flagDataDescriptor|flagUTF8)
	buf = putUint16(buf, r.method)
	buf = putUint16(buf, fixedDOSTime)
	buf = putUint16(buf, fixedDOSDate)
	buf = putUint32(buf, r.crc32)
	buf = putUint32(buf, compSize)
	buf = putUint32(buf, uncompSize)
	buf = putUint16(buf, uint16(len(nameBytes)))
	buf = putUint16(buf, uint16(len(extra)))
	buf = putUint16(buf, 0) // file comment length
	buf = putUint16(buf, 0) // disk number start
	buf = putUint16(buf, 0) // internal file attributes
	buf = putUint32(buf, 0) // external file attributes
	buf = putUint32(buf, offset)
	buf = append(buf, nameBytes...)
	buf = append(buf, extra...)
	return buf
}

// eocdInputs carries the values the end-of-central-directory record (and, if
// needed, its ZIP64 counterpart) is built from.
type eocdInputs struct {
	entryCount     int
	centralDirSize uint64
	centralDirOffset uint64
}

func (e eocdInputs) needsZip64() bool {
	return e.entryCount > 0xFFFE ||
		e.centralDirSize > zip64Threshold ||
		e.centralDirOffset > zip64Threshold
}

// buildEOCD emits the end-of-central-directory record, preceded by the
// ZIP64 end-of-central-directory record and locator when any of the entry
// count, central-directory size, or central-directory offset overflow the
// classic 32-bit fields.
func buildEOCD(e eocdInputs) []byte {
	var buf []byte

	if e.needsZip64() {
		zip64EOCDOffset := e.centralDirOffset + e.centralDirSize

		rec := make([]byte, 0, 56)
		rec = putUint32(rec, sigZip64EOCDRecord)
		rec = putUint64(rec, 44) // size of this record, excluding the leading sig+size fields
		rec = putUint16(rec, 45) // version made by
		rec = putUint16(rec, 45) // version needed to extract
		rec = putUint32(rec, 0) // number of this disk
		rec = putUint32(rec, 0) // disk with start of central directory
		rec = putUint64(rec, uint64(e.entryCount)) // entries on this disk
		rec = putUint64(rec, uint64(e.entryCount)) // total entries
		rec = putUint64(rec, e.centralDirSize)
		rec = putUint64(rec, e.centralDirOffset)
		buf = append(buf, rec...)

		loc := make([]byte, 0, 20)
		loc = putUint32(loc, sigZip64EOCDLocator)
		loc = putUint32(loc, 0) // disk with the zip64 EOCD record
		loc = putUint64(loc, zip64EOCDOffset)
		loc = putUint32(loc, 1) // total number of disks
		buf = append(buf, loc...)
	}

	entryCount16 := uint16(e.entryCount)
	cdSize32 := uint32(e.centralDirSize)
	cdOffset32 := uint32(e.centralDirOffset)
	if e.entryCount > 0xFFFE {
		entryCount16 = 0xFFFF
	}
	if e.centralDirSize > zip64Threshold {
		cdSize32 = sentinel32
	}
	if e.centralDirOffset > zip64Threshold {
		cdOffset32 = sentinel32
	}

	eocd := make([]byte, 0, 22)
	eocd = putUint32(eocd, sigEndOfCentralDir)
	eocd = putUint16(eocd, 0) // number of this disk
	eocd = putUint16(eocd, 0) // disk with start of central directory
	eocd = putUint16(eocd, entryCount16)
	eocd = putUint16(eocd, entryCount16)
	eocd = putUint32(eocd, cdSize32)
	eocd = putUint32(eocd, cdOffset32)
	eocd = putUint16(eocd, 0) // comment length
	buf = append(buf, eocd...)

	return buf
}
