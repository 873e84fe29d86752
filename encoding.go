// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/biogo/cram/encoding/bitio"
	"github.com/biogo/cram/encoding/itf8"
)

// EncodingID identifies a per-series encoding, distinct from the block
// compression Method used in codec.Registry: an encoding describes how
// values of one data series are turned into a bitstream or byte stream,
// not how that stream's bytes are subsequently compressed.
type EncodingID byte

// The encoding ids recognised in a compression header's encoding map.
const (
	EncodingNull EncodingID = iota
	EncodingExternal
	EncodingGolomb
	EncodingHuffmanInt
	EncodingByteArrayLen
	EncodingByteArrayStop
	EncodingBeta
	EncodingSubexponential
	EncodingGolombRice
	EncodingGamma
)

func (id EncodingID) String() string {
	switch id {
	case EncodingNull:
		return "NULL"
	case EncodingExternal:
		return "EXTERNAL"
	case EncodingGolomb:
		return "GOLOMB"
	case EncodingHuffmanInt:
		return "HUFFMAN_INT"
	case EncodingByteArrayLen:
		return "BYTE_ARRAY_LEN"
	case EncodingByteArrayStop:
		return "BYTE_ARRAY_STOP"
	case EncodingBeta:
		return "BETA"
	case EncodingSubexponential:
		return "SUBEXPONENTIAL"
	case EncodingGolombRice:
		return "GOLOMB_RICE"
	case EncodingGamma:
		return "GAMMA"
	default:
		return fmt.Sprintf("encoding(%d)", byte(id))
	}
}

// streams bundles the two physical destinations a series encoding may
// draw from: the slice's single core bit-packed stream, and its external
// byte streams keyed by content id (spec section 4.5 step 3).
type streams struct {
	core *bitio.Writer
	ext  map[int32]*bytes.Buffer
}

type readStreams struct {
	core *bitio.Reader
	ext  map[int32]*bytePos
}

// bytePos tracks a read cursor into a decompressed external block.
type bytePos struct {
	data []byte
	pos  int
}

func (b *bytePos) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}

func (b *bytePos) readByte() (byte, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// IntEncoding encodes and decodes a stream of signed 32-bit values for
// one data series.
type IntEncoding interface {
	ID() EncodingID
	EncodeInt(s *streams, v int32) error
	DecodeInt(s *readStreams) (int32, error)
}

// ByteEncoding encodes and decodes a stream of byte arrays (one per
// record) for one data series, such as read bases or tag values.
type ByteEncoding interface {
	ID() EncodingID
	EncodeBytes(s *streams, v []byte) error
	DecodeBytes(s *readStreams) ([]byte, error)
}

func extBuf(s *streams, contentID int32) *bytes.Buffer {
	buf, ok := s.ext[contentID]
	if !ok {
		buf = new(bytes.Buffer)
		s.ext[contentID] = buf
	}
	return buf
}

func extPos(s *readStreams, contentID int32) (*bytePos, error) {
	p, ok := s.ext[contentID]
	if !ok {
		return nil, newErr(InvalidContentID, fmt.Sprintf("no external stream for content id %d", contentID))
	}
	return p, nil
}

// NullEncoding is used for series that carry no information; it is
// never present in an on-disk encoding map (spec section 4.4 omits
// NULL-encoded series) but is returned by lookups for defaulted series.
type NullEncoding struct{ Default int32 }

func (NullEncoding) ID() EncodingID                     { return EncodingNull }
func (NullEncoding) EncodeInt(*streams, int32) error     { return nil }
func (e NullEncoding) DecodeInt(*readStreams) (int32, error) {
	return e.Default, nil
}

// ExternalEncoding stores raw ITF8-encoded values in the external block
// identified by ContentID.
type ExternalEncoding struct{ ContentID int32 }

func (ExternalEncoding) ID() EncodingID { return EncodingExternal }

func (e ExternalEncoding) EncodeInt(s *streams, v int32) error {
	return itf8.WriteTo(extBuf(s, e.ContentID), v)
}

func (e ExternalEncoding) DecodeInt(s *readStreams) (int32, error) {
	p, err := extPos(s, e.ContentID)
	if err != nil {
		return 0, err
	}
	return itf8.ReadFrom(p)
}

func (e ExternalEncoding) EncodeBytes(s *streams, v []byte) error {
	_, err := extBuf(s, e.ContentID).Write(v)
	return err
}

func (e ExternalEncoding) DecodeBytes(s *readStreams) ([]byte, error) {
	p, err := extPos(s, e.ContentID)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(p.data)-p.pos)
	n, _ := p.Read(out)
	return out[:n], nil
}

// decodeBytesLen reads exactly n bytes from e's external stream. Unlike
// DecodeBytes, which drains whatever remains of the stream, this is the
// path a framing encoding (BYTE_ARRAY_LEN) must use: the external stream
// holds the concatenated values for every record sharing this content id,
// not just the one being decoded.
func (e ExternalEncoding) decodeBytesLen(s *readStreams, n int32) ([]byte, error) {
	p, err := extPos(s, e.ContentID)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(p, out); err != nil {
		return nil, wrapErr(TruncatedStream, "external stream shorter than declared byte-array length", err)
	}
	return out, nil
}

// lengthDecoder is implemented by ByteEncodings that can read an exact
// byte count directly, rather than relying on their own framing. It lets
// ByteArrayLenEncoding read precisely the bytes its length series
// declares instead of over-consuming a shared external stream.
type lengthDecoder interface {
	decodeBytesLen(s *readStreams, n int32) ([]byte, error)
}

// BetaEncoding writes (v + Offset) in exactly Length bits of the core
// bitstream; used for series with a small, roughly uniform range such
// as read length deltas.
type BetaEncoding struct {
	Offset int32
	Length int
}

func (BetaEncoding) ID() EncodingID { return EncodingBeta }

func (e BetaEncoding) EncodeInt(s *streams, v int32) error {
	return s.core.WriteBits(uint32(v+e.Offset), e.Length)
}

func (e BetaEncoding) DecodeInt(s *readStreams) (int32, error) {
	u, err := s.core.ReadBits(e.Length)
	if err != nil {
		return 0, err
	}
	return int32(u) - e.Offset, nil
}

// GammaEncoding writes (v + Offset) using an Elias gamma code: a unary
// prefix giving the bit length, followed by that many explicit bits.
type GammaEncoding struct{ Offset int32 }

func (GammaEncoding) ID() EncodingID { return EncodingGamma }

func (e GammaEncoding) EncodeInt(s *streams, v int32) error {
	u := uint32(v+e.Offset) + 1 // gamma codes positive integers
	n := bitLen32(u)
	for i := 1; i < n; i++ {
		if err := s.core.WriteBit(0); err != nil {
			return err
		}
	}
	return s.core.WriteBits(u, n)
}

func (e GammaEncoding) DecodeInt(s *readStreams) (int32, error) {
	n := 1
	for {
		b, err := s.core.ReadBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		n++
	}
	u, err := s.core.ReadBits(n - 1)
	if err != nil {
		return 0, err
	}
	v := (uint32(1)<<uint(n-1) | u)
	return int32(v) - 1 - e.Offset, nil
}

func bitLen32(u uint32) int {
	n := 1
	for u > 1 {
		u >>= 1
		n++
	}
	return n
}

// SubexponentialEncoding is the CRAM SUBEXP code: values below 2^K are
// beta-coded in K bits after a single 0 prefix bit; larger values use a
// unary-prefixed variable-width suffix, giving Golomb-like compression
// for skewed distributions without a fixed code table.
type SubexponentialEncoding struct {
	Offset int32
	K      int
}

func (SubexponentialEncoding) ID() EncodingID { return EncodingSubexponential }

func (e SubexponentialEncoding) EncodeInt(s *streams, v int32) error {
	u := uint32(v + e.Offset)
	if u < uint32(1)<<uint(e.K) {
		if err := s.core.WriteBit(0); err != nil {
			return err
		}
		return s.core.WriteBits(u, e.K)
	}
	// u >= 2^K: find b such that u falls in [2^b, 2^(b+1)) for b >= K.
	b := e.K
	for u >= uint32(2)<<uint(b) {
		b++
	}
	nunary := b - e.K + 1
	for i := 0; i < nunary; i++ {
		if err := s.core.WriteBit(1); err != nil {
			return err
		}
	}
	if err := s.core.WriteBit(0); err != nil {
		return err
	}
	return s.core.WriteBits(u-(uint32(1)<<uint(b)), b)
}

func (e SubexponentialEncoding) DecodeInt(s *readStreams) (int32, error) {
	nunary := 0
	for {
		bit, err := s.core.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			break
		}
		nunary++
	}
	if nunary == 0 {
		u, err := s.core.ReadBits(e.K)
		if err != nil {
			return 0, err
		}
		return int32(u) - e.Offset, nil
	}
	b := e.K + nunary - 1
	rem, err := s.core.ReadBits(b)
	if err != nil {
		return 0, err
	}
	u := uint32(1)<<uint(b) + rem
	return int32(u) - e.Offset, nil
}

// huffmanNode is a leaf or internal node in a canonical Huffman tree
// used for decoding; encoding walks a precomputed symbol->code table.
type huffmanNode struct {
	symbol     int32
	isLeaf     bool
	zero, one  *huffmanNode
}

// HuffmanIntEncoding is canonical Huffman coding over a fixed symbol
// alphabet with a bit length per symbol, per the CRAM spec's HUFFMAN_INT
// encoding. The degenerate single-symbol case (bit length 0) covers
// constant series such as a single read group's RG value.
type HuffmanIntEncoding struct {
	Symbols    []int32
	BitLengths []int

	codes map[int32]huffCode
	root  *huffmanNode
}

type huffCode struct {
	bits uint32
	n    int
}

func (HuffmanIntEncoding) ID() EncodingID { return EncodingHuffmanInt }

// build assigns canonical Huffman codes: symbols ordered by (bit length,
// symbol value) receive consecutive codes, incrementing and left
// shifting when bit length grows, per the standard canonical
// construction.
func (e *HuffmanIntEncoding) build() {
	if e.codes != nil {
		return
	}
	type entry struct {
		sym int32
		len int
	}
	entries := make([]entry, len(e.Symbols))
	for i := range e.Symbols {
		entries[i] = entry{e.Symbols[i], e.BitLengths[i]}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].len != entries[j].len {
			return entries[i].len < entries[j].len
		}
		return entries[i].sym < entries[j].sym
	})
	e.codes = make(map[int32]huffCode, len(entries))
	e.root = &huffmanNode{}
	code := uint32(0)
	prevLen := 0
	for _, en := range entries {
		if en.len == 0 {
			e.codes[en.sym] = huffCode{0, 0}
			continue
		}
		code <<= uint(en.len - prevLen)
		e.codes[en.sym] = huffCode{code, en.len}
		insertHuffman(e.root, en.sym, code, en.len)
		code++
		prevLen = en.len
	}
}

func insertHuffman(root *huffmanNode, sym int32, code uint32, n int) {
	node := root
	for i := n - 1; i >= 0; i-- {
		bit := (code >> uint(i)) & 1
		if bit == 0 {
			if node.zero == nil {
				node.zero = &huffmanNode{}
			}
			node = node.zero
		} else {
			if node.one == nil {
				node.one = &huffmanNode{}
			}
			node = node.one
		}
	}
	node.isLeaf = true
	node.symbol = sym
}

func (e *HuffmanIntEncoding) EncodeInt(s *streams, v int32) error {
	e.build()
	if len(e.Symbols) == 1 {
		return nil // single-symbol alphabet: nothing to write
	}
	c, ok := e.codes[v]
	if !ok {
		return newErr(CodecError, fmt.Sprintf("value %d not in huffman alphabet", v))
	}
	return s.core.WriteBits(c.bits, c.n)
}

func (e *HuffmanIntEncoding) DecodeInt(s *readStreams) (int32, error) {
	e.build()
	if len(e.Symbols) == 1 {
		return e.Symbols[0], nil
	}
	node := e.root
	for !node.isLeaf {
		bit, err := s.core.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			node = node.zero
		} else {
			node = node.one
		}
		if node == nil {
			return 0, newErr(CodecError, "huffman code not in tree")
		}
	}
	return node.symbol, nil
}

// ByteArrayLenEncoding encodes a byte array as a length (via Length,
// typically an ExternalEncoding or BetaEncoding) followed by the raw
// bytes (via Value, typically an ExternalEncoding).
type ByteArrayLenEncoding struct {
	Length IntEncoding
	Value  ByteEncoding
}

func (ByteArrayLenEncoding) ID() EncodingID { return EncodingByteArrayLen }

func (e ByteArrayLenEncoding) EncodeBytes(s *streams, v []byte) error {
	if err := e.Length.EncodeInt(s, int32(len(v))); err != nil {
		return err
	}
	return e.Value.EncodeBytes(s, v)
}

func (e ByteArrayLenEncoding) DecodeBytes(s *readStreams) ([]byte, error) {
	n, err := e.Length.DecodeInt(s)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	// Value's own DecodeBytes has no notion of "just my n bytes" when it
	// is backed by a stream shared across every record with this content
	// id (the usual EXTERNAL case): it would read to the end of the
	// stream and strand every later record. Read exactly n bytes when the
	// sub-encoding supports it.
	if ld, ok := e.Value.(lengthDecoder); ok {
		return ld.decodeBytesLen(s, n)
	}
	full, err := e.Value.DecodeBytes(s)
	if err != nil {
		return nil, err
	}
	if int(n) > len(full) {
		return nil, newErr(TruncatedStream, "byte array shorter than declared length")
	}
	return full[:n], nil
}

// ByteArrayStopEncoding stores bytes in the external stream identified
// by ContentID, terminated by Stop (conventionally 0x00).
type ByteArrayStopEncoding struct {
	Stop      byte
	ContentID int32
}

func (ByteArrayStopEncoding) ID() EncodingID { return EncodingByteArrayStop }

func (e ByteArrayStopEncoding) EncodeBytes(s *streams, v []byte) error {
	buf := extBuf(s, e.ContentID)
	buf.Write(v)
	return buf.WriteByte(e.Stop)
}

func (e ByteArrayStopEncoding) DecodeBytes(s *readStreams) ([]byte, error) {
	p, err := extPos(s, e.ContentID)
	if err != nil {
		return nil, err
	}
	var out []byte
	for {
		b, err := p.readByte()
		if err != nil {
			return nil, wrapErr(TruncatedStream, "byte array stop code not found", err)
		}
		if b == e.Stop {
			return out, nil
		}
		out = append(out, b)
	}
}
