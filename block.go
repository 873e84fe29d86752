// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"

	"github.com/biogo/cram/codec"
	"github.com/biogo/cram/encoding/itf8"
)

// ContentType identifies what a Block's payload holds.
type ContentType byte

// The content types a Block may carry. See CRAM spec section 8.
const (
	FileHeaderContent ContentType = iota
	CompressionHeaderContent
	MappedSliceContent
	reservedContent // unused, present to keep the wire numbering stable
	ExternalContent
	CoreContent
)

// Method identifies the compression method applied to a Block's raw
// bytes. Methods are the pluggable codecs of spec section 2 item 4.
type Method = codec.Method

// The compression methods recognised on the wire.
const (
	Raw   = codec.Raw
	Gzip  = codec.Gzip
	Bzip2 = codec.Bzip2
	Lzma  = codec.Lzma
	Rans  = codec.Rans
)

// Block is the unit of compressed storage described in spec section 2
// item 3 and section 3: once written, a Block is immutable.
type Block struct {
	ContentType ContentType
	ContentID   int32
	Method      Method

	raw        []byte // uncompressed bytes
	compressed []byte // on-wire bytes; populated lazily from raw if needed

	uncompressedLen int32
}

// Raw returns the decompressed bytes of b.
func (b *Block) Raw() []byte { return b.raw }

// validate checks the invariants spec section 3 places on a Block.
func (b *Block) validate() error {
	if b.ContentType == CoreContent && b.Method != Raw {
		return newErr(InvalidContentID, "core block must use the raw compression method")
	}
	if b.ContentType == ExternalContent && b.ContentID == -1 {
		return newErr(InvalidContentID, "external block must not use content id -1")
	}
	return nil
}

// createRawCoreDataBlock builds the slice's single core (bit-packed)
// block. Core blocks are always stored raw per spec section 3.
func createRawCoreDataBlock(raw []byte) *Block {
	return &Block{ContentType: CoreContent, ContentID: -1, Method: Raw, raw: raw, uncompressedLen: int32(len(raw))}
}

// createExternalBlock builds an external (per-data-series byte) block,
// already compressed by method for the given contentID.
func createExternalBlock(method Method, contentID int32, compressed []byte, uncompressedLen int) *Block {
	return &Block{ContentType: ExternalContent, ContentID: contentID, Method: method, compressed: compressed, uncompressedLen: int32(uncompressedLen)}
}

// createRawSliceHeaderBlock wraps a serialized slice header as an
// external, uncompressed block, matching how CRAM stores slice headers.
func createRawSliceHeaderBlock(raw []byte) *Block {
	return &Block{ContentType: MappedSliceContent, ContentID: 0, Method: Raw, raw: raw, uncompressedLen: int32(len(raw))}
}

// createFileHeaderBlock wraps an embedded SAM text header as a raw block.
func createFileHeaderBlock(raw []byte) *Block {
	return &Block{ContentType: FileHeaderContent, ContentID: 0, Method: Raw, raw: raw, uncompressedLen: int32(len(raw))}
}

// decompress returns b's raw bytes, decompressing via reg on first use.
func (b *Block) decompress(reg *codec.Registry) ([]byte, error) {
	if b.raw != nil {
		return b.raw, nil
	}
	c, err := reg.Get(b.Method, 0)
	if err != nil {
		return nil, wrapErr(UnknownCompressionMethod, "no codec registered", err)
	}
	raw, err := c.Decompress(b.compressed, int(b.uncompressedLen))
	if err != nil {
		return nil, wrapErr(CodecError, "decompression failed", err)
	}
	b.raw = raw
	return raw, nil
}

// ensureCompressed populates b.compressed from b.raw via reg if it is not
// already present (i.e. the block was constructed from raw bytes rather
// than through createExternalBlock).
func (b *Block) ensureCompressed(reg *codec.Registry, param int) error {
	if b.compressed != nil {
		return nil
	}
	c, err := reg.Get(b.Method, param)
	if err != nil {
		return wrapErr(UnknownCompressionMethod, "no codec registered", err)
	}
	compressed, err := c.Compress(b.raw)
	if err != nil {
		return wrapErr(CodecError, "compression failed", err)
	}
	b.compressed = compressed
	return nil
}

// writeBlock writes b to w per spec section 4.2/6: method, content type,
// content id, compressed size, uncompressed size, payload, and (for
// version >= 3) a trailing CRC32 over everything written so far.
func writeBlock(w io.Writer, b *Block, version int) error {
	if err := b.validate(); err != nil {
		return err
	}
	var crc *crcWriter
	out := w
	if version >= 3 {
		crc = newCRCWriter(w)
		out = crc
	}
	if _, err := out.Write([]byte{byte(b.Method), byte(b.ContentType)}); err != nil {
		return err
	}
	if err := itf8.WriteTo(out, b.ContentID); err != nil {
		return err
	}
	payload := b.compressed
	if payload == nil && b.Method == Raw {
		payload = b.raw
	}
	if err := itf8.WriteTo(out, int32(len(payload))); err != nil {
		return err
	}
	if err := itf8.WriteTo(out, b.uncompressedLen); err != nil {
		return err
	}
	if _, err := out.Write(payload); err != nil {
		return err
	}
	if version >= 3 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], crc.Sum32())
		_, err := w.Write(buf[:])
		return err
	}
	return nil
}

// readBlock reads a Block from r per spec section 4.2/6, verifying the
// trailing CRC32 for version >= 3.
func readBlock(r io.Reader, version int) (*Block, error) {
	var crc *crcReader
	in := io.Reader(r)
	if version >= 3 {
		crc = newCRCReader(r)
		in = crc
	}
	var hdr [2]byte
	if _, err := io.ReadFull(in, hdr[:]); err != nil {
		return nil, wrapErr(TruncatedStream, "block header", err)
	}
	b := &Block{Method: Method(hdr[0]), ContentType: ContentType(hdr[1])}
	var err error
	if b.ContentID, err = itf8.ReadFrom(in); err != nil {
		return nil, wrapErr(TruncatedStream, "block content id", err)
	}
	var compressedSize, uncompressedSize int32
	if compressedSize, err = itf8.ReadFrom(in); err != nil {
		return nil, wrapErr(TruncatedStream, "block compressed size", err)
	}
	if uncompressedSize, err = itf8.ReadFrom(in); err != nil {
		return nil, wrapErr(TruncatedStream, "block uncompressed size", err)
	}
	if b.Method == Raw && compressedSize != uncompressedSize {
		return nil, newErr(CorruptBlock, "compressed size != uncompressed size for raw method")
	}
	b.uncompressedLen = uncompressedSize
	b.compressed = make([]byte, compressedSize)
	if _, err := io.ReadFull(in, b.compressed); err != nil {
		return nil, wrapErr(TruncatedStream, "block payload", err)
	}
	if b.Method == Raw {
		b.raw = b.compressed
	}
	if version >= 3 {
		sum := crc.Sum32()
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, wrapErr(TruncatedStream, "block crc32", err)
		}
		if binary.LittleEndian.Uint32(buf[:]) != sum {
			return nil, newErr(CorruptBlock, "block crc32 mismatch")
		}
	}
	return b, nil
}

// crcWriter accumulates an IEEE CRC32 over everything written to it,
// following the teacher's crc32.NewIEEE + io.TeeReader idiom but for the
// write side.
type crcWriter struct {
	w   io.Writer
	crc hash.Hash32
}

func newCRCWriter(w io.Writer) *crcWriter {
	return &crcWriter{w: w, crc: crc32.NewIEEE()}
}

func (c *crcWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.crc.Write(p[:n])
	return n, err
}

func (c *crcWriter) Sum32() uint32 { return c.crc.Sum32() }

// crcReader accumulates an IEEE CRC32 over everything read through it.
type crcReader struct {
	r   io.Reader
	crc hash.Hash32
}

func newCRCReader(r io.Reader) *crcReader {
	return &crcReader{r: r, crc: crc32.NewIEEE()}
}

func (c *crcReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.crc.Write(p[:n])
	}
	return n, err
}

func (c *crcReader) Sum32() uint32 { return c.crc.Sum32() }
