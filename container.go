// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/biogo/cram/codec"
	"github.com/biogo/cram/encoding/itf8"
	"github.com/biogo/cram/encoding/ltf8"
)

// FileDefinition is the 26-byte header every CRAM stream begins with, per
// spec section 6.
type FileDefinition struct {
	Major, Minor byte
	FileID       [20]byte
}

var magic = [4]byte{'C', 'R', 'A', 'M'}

// WriteFileDefinition writes d's 4-byte magic, version and right-padded
// file id to w.
func WriteFileDefinition(w io.Writer, d FileDefinition) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{d.Major, d.Minor}); err != nil {
		return err
	}
	_, err := w.Write(d.FileID[:])
	return err
}

// ReadFileDefinition reads and validates the file definition from r.
func ReadFileDefinition(r io.Reader) (FileDefinition, error) {
	var d FileDefinition
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return d, wrapErr(TruncatedStream, "file definition magic", err)
	}
	if m != magic {
		return d, newErr(UnsupportedVersion, "not a CRAM stream: bad magic")
	}
	var v [2]byte
	if _, err := io.ReadFull(r, v[:]); err != nil {
		return d, wrapErr(TruncatedStream, "file definition version", err)
	}
	d.Major, d.Minor = v[0], v[1]
	if d.Major != 2 && d.Major != 3 {
		return d, newErr(UnsupportedVersion, "unrecognised CRAM major version")
	}
	if _, err := io.ReadFull(r, d.FileID[:]); err != nil {
		return d, wrapErr(TruncatedStream, "file definition id", err)
	}
	return d, nil
}

// v3EOFMarker is the fixed 38-byte sentinel CRAM v3 streams end with.
var v3EOFMarker = []byte{
	0x0f, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff,
	0x0f, 0xe0, 0x45, 0x4f, 0x46, 0x00, 0x00, 0x00,
	0x00, 0x01, 0x00, 0x05, 0xbd, 0xd9, 0x4f, 0x00,
	0x01, 0x00, 0x06, 0x06, 0x01, 0x00, 0x01, 0x00,
	0x01, 0x00, 0xee, 0x63, 0x01, 0x4b,
}

// v2EOFMarker is the fixed 11-byte sentinel CRAM v2 streams end with.
var v2EOFMarker = []byte{
	0x0b, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff,
	0x0f, 0xe0, 0x45,
}

func eofMarker(version int) []byte {
	if version >= 3 {
		return v3EOFMarker
	}
	return v2EOFMarker
}

// WriteEOFContainer writes the fixed CRAM end-of-stream sentinel matching
// version, per spec section 6. It is the canonical stream terminator; a
// writer must emit it last.
func WriteEOFContainer(w io.Writer, version int) error {
	_, err := w.Write(eofMarker(version))
	return err
}

// ContainerHeader is the on-disk container header described in spec
// sections 3 and 6.
type ContainerHeader struct {
	Alignment               AlignmentContext
	NumRecords               int32
	GlobalRecordCounterStart int64
	BaseCount                int64
	NumBlocks                int32
	Landmarks                []int32
	ContainerBlocksByteSize  int32
}

// Container groups slices sharing one CompressionHeader, per spec
// section 3.
type Container struct {
	Header            ContainerHeader
	CompressionHeader *CompressionHeader
	Slices            []*Slice

	// ByteOffset is the position of this container's header in the
	// enclosing stream, supplied by the caller (the core has no file
	// iterator of its own; see spec section 1) and propagated to each
	// slice's indexing metadata.
	ByteOffset int64

	// EOF reports whether this Container is the terminal sentinel rather
	// than a real container; all other fields are zero when true.
	EOF bool
}

func writeContainerHeader(w io.Writer, h *ContainerHeader, version int) error {
	var crc *crcWriter
	out := io.Writer(w)
	if version >= 3 {
		crc = newCRCWriter(w)
		out = crc
	}
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(h.ContainerBlocksByteSize))
	if _, err := out.Write(sizeBuf[:]); err != nil {
		return err
	}
	if err := itf8.WriteTo(out, h.Alignment.Ref.ID()); err != nil {
		return err
	}
	if err := itf8.WriteTo(out, h.Alignment.Start); err != nil {
		return err
	}
	if err := itf8.WriteTo(out, h.Alignment.Span); err != nil {
		return err
	}
	if err := itf8.WriteTo(out, h.NumRecords); err != nil {
		return err
	}
	if err := ltf8.WriteTo(out, h.GlobalRecordCounterStart); err != nil {
		return err
	}
	if err := ltf8.WriteTo(out, h.BaseCount); err != nil {
		return err
	}
	if err := itf8.WriteTo(out, h.NumBlocks); err != nil {
		return err
	}
	if err := itf8.WriteTo(out, int32(len(h.Landmarks))); err != nil {
		return err
	}
	for _, lm := range h.Landmarks {
		if err := itf8.WriteTo(out, lm); err != nil {
			return err
		}
	}
	if version >= 3 {
		var crcBuf [4]byte
		binary.LittleEndian.PutUint32(crcBuf[:], crc.Sum32())
		_, err := w.Write(crcBuf[:])
		return err
	}
	return nil
}

func readContainerHeader(r io.Reader, version int) (*ContainerHeader, error) {
	var crc *crcReader
	in := io.Reader(r)
	if version >= 3 {
		crc = newCRCReader(r)
		in = crc
	}
	var sizeBuf [4]byte
	if _, err := io.ReadFull(in, sizeBuf[:]); err != nil {
		return nil, wrapErr(TruncatedStream, "container header size", err)
	}
	h := &ContainerHeader{ContainerBlocksByteSize: int32(binary.LittleEndian.Uint32(sizeBuf[:]))}
	refID, err := itf8.ReadFrom(in)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "container ref context", err)
	}
	start, err := itf8.ReadFrom(in)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "container alignment start", err)
	}
	span, err := itf8.ReadFrom(in)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "container alignment span", err)
	}
	h.Alignment = AlignmentContext{Ref: ReferenceContextFromID(refID), Start: start, Span: span}
	if h.NumRecords, err = itf8.ReadFrom(in); err != nil {
		return nil, wrapErr(TruncatedStream, "container n_records", err)
	}
	if h.GlobalRecordCounterStart, err = ltf8.ReadFrom(in); err != nil {
		return nil, wrapErr(TruncatedStream, "container global record counter", err)
	}
	if h.BaseCount, err = ltf8.ReadFrom(in); err != nil {
		return nil, wrapErr(TruncatedStream, "container base count", err)
	}
	if h.NumBlocks, err = itf8.ReadFrom(in); err != nil {
		return nil, wrapErr(TruncatedStream, "container n_blocks", err)
	}
	nLandmarks, err := itf8.ReadFrom(in)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "container n_landmarks", err)
	}
	h.Landmarks = make([]int32, nLandmarks)
	for i := range h.Landmarks {
		if h.Landmarks[i], err = itf8.ReadFrom(in); err != nil {
			return nil, wrapErr(TruncatedStream, "container landmark", err)
		}
	}
	if version >= 3 {
		sum := crc.Sum32()
		var crcBuf [4]byte
		if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
			return nil, wrapErr(TruncatedStream, "container header crc32", err)
		}
		if binary.LittleEndian.Uint32(crcBuf[:]) != sum {
			return nil, newErr(CorruptBlock, "container header crc32 mismatch")
		}
	}
	return h, nil
}

// EncodeContainer implements spec section 4.9's write path: build a Slice
// per batch of records in batches, assemble landmarks, and write the
// whole container (header, compression header block, slices) to w.
// offset is the container's position in the enclosing stream, used only
// to populate the returned Container's indexing metadata.
func EncodeContainer(w io.Writer, offset int64, h *CompressionHeader, batches [][]*Record, reg *codec.Registry, version int, globalCounterStart int64) (*Container, error) {
	c := &Container{CompressionHeader: h, ByteOffset: offset}
	c.Header.GlobalRecordCounterStart = globalCounterStart
	c.Header.NumBlocks = 1 // the compression header block itself

	// buildSlice extends h's tag dictionary and tag encodings as it meets
	// new tag sets; register them all first so that the compression
	// header written below covers every slice of the container.
	for _, recs := range batches {
		for _, r := range recs {
			if _, err := h.tagSetIndex(r.Tags); err != nil {
				return nil, err
			}
			for _, t := range r.Tags {
				h.tagByteEncoding(t.ID)
			}
		}
	}

	var body bytes.Buffer
	if err := writeCompressionHeaderBlock(&body, h, version); err != nil {
		return nil, err
	}

	counter := globalCounterStart
	var span AlignmentSpan
	var firstSpan = true
	var refCtx ReferenceContext
	mixedRef := false
	for _, recs := range batches {
		if len(recs) == 0 {
			continue
		}
		slc, err := buildSlice(recs, h, reg, counter)
		if err != nil {
			return nil, wrapErr(CodecError, "building slice", err)
		}
		landmark := int32(body.Len())
		before := body.Len()
		if err := writeSlice(&body, slc, version); err != nil {
			return nil, err
		}
		slc.Header.ContainerByteOffset = offset
		slc.Header.SliceHeaderByteOffset = int64(landmark)
		slc.Header.SliceByteSize = int64(body.Len() - before)
		slc.Header.LandmarkIndex = len(c.Slices)
		slc.Header.IndexPopulated = true
		c.Slices = append(c.Slices, slc)
		c.Header.Landmarks = append(c.Header.Landmarks, landmark)
		c.Header.NumRecords += int32(len(recs))
		c.Header.NumBlocks += 1 + slc.Header.NumBlocks // slice header block + slice's own blocks
		counter += int64(len(recs))

		sa := AlignmentSpan{Start: slc.Header.Alignment.Start, Span: slc.Header.Alignment.Span}
		if firstSpan {
			span, firstSpan = sa, false
			refCtx = slc.Header.Alignment.Ref
		} else {
			span = span.Combine(sa)
			if refCtx != slc.Header.Alignment.Ref {
				mixedRef = true
			}
		}
	}

	switch {
	case len(c.Slices) == 0:
		c.Header.Alignment = AlignmentContext{Ref: UnmappedUnplaced}
	case mixedRef:
		c.Header.Alignment = AlignmentContext{Ref: MultiRef}
	default:
		c.Header.Alignment = AlignmentContext{Ref: refCtx, Start: span.Start, Span: span.Span}
	}
	c.Header.ContainerBlocksByteSize = int32(body.Len())

	if err := writeContainerHeader(w, &c.Header, version); err != nil {
		return nil, err
	}
	_, err := w.Write(body.Bytes())
	return c, err
}

// DecodeContainer implements spec section 4.9's read path: read one
// container header, its CompressionHeader, and its slices in order,
// assigning each slice its indexing metadata from the container's
// landmarks. If the bytes at the current position are the CRAM EOF
// sentinel instead of a container header, DecodeContainer returns a
// Container with EOF set and no error.
func DecodeContainer(r io.Reader, offset int64, version int, strict Strictness, diag Diagnostics) (*Container, error) {
	marker := eofMarker(version)
	peek := make([]byte, len(marker))
	n, err := io.ReadFull(r, peek)
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			// Fewer bytes than either a full marker or any real header
			// could supply.
			return nil, wrapErr(TruncatedStream, "container header", err)
		}
		return nil, err
	}
	if bytes.Equal(peek, marker) {
		return &Container{EOF: true, ByteOffset: offset, Header: ContainerHeader{Alignment: EOFAlignmentContext}}, nil
	}
	rest := io.MultiReader(bytes.NewReader(peek), r)

	ch, err := readContainerHeader(rest, version)
	if err != nil {
		return nil, err
	}
	c := &Container{Header: *ch, ByteOffset: offset}

	body := io.LimitReader(rest, int64(ch.ContainerBlocksByteSize))
	compHeaderBlock, err := readBlock(body, version)
	if err != nil {
		return nil, err
	}
	if compHeaderBlock.ContentType != CompressionHeaderContent {
		return nil, newErr(InvalidContentID, "container is missing its compression header block")
	}
	c.CompressionHeader, err = readCompressionHeader(bytes.NewReader(compHeaderBlock.Raw()), strict, diag)
	if err != nil {
		return nil, err
	}

	for i := range ch.Landmarks {
		slc, err := readSlice(body, version)
		if err != nil {
			return nil, err
		}
		slc.Header.ContainerByteOffset = offset
		slc.Header.SliceHeaderByteOffset = int64(ch.Landmarks[i])
		if i+1 < len(ch.Landmarks) {
			slc.Header.SliceByteSize = int64(ch.Landmarks[i+1] - ch.Landmarks[i])
		} else {
			slc.Header.SliceByteSize = int64(ch.ContainerBlocksByteSize) - int64(ch.Landmarks[i])
		}
		slc.Header.LandmarkIndex = i
		slc.Header.IndexPopulated = true
		c.Slices = append(c.Slices, slc)
	}
	return c, nil
}

// writeCompressionHeaderBlock wraps h's serialized form in a Block of
// CompressionHeaderContent type and writes it to w.
func writeCompressionHeaderBlock(w io.Writer, h *CompressionHeader, version int) error {
	var buf bytes.Buffer
	if err := writeCompressionHeader(&buf, h); err != nil {
		return err
	}
	blk := &Block{ContentType: CompressionHeaderContent, ContentID: 0, Method: Raw, raw: buf.Bytes(), compressed: buf.Bytes(), uncompressedLen: int32(buf.Len())}
	return writeBlock(w, blk, version)
}
