// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"testing"

	"github.com/biogo/cram/encoding/bitio"
)

// newTestStreams returns a streams ready for encoding and a matching
// readStreams built from whatever it accumulates, once closed via
// closeTestStreams.
func newTestStreams() *streams {
	return &streams{core: bitio.NewWriter(), ext: make(map[int32]*bytes.Buffer)}
}

func closeTestStreams(s *streams) *readStreams {
	ext := make(map[int32]*bytePos, len(s.ext))
	for cid, buf := range s.ext {
		ext[cid] = &bytePos{data: buf.Bytes()}
	}
	return &readStreams{core: bitio.NewReader(s.core.Close()), ext: ext}
}

func TestBetaEncodingRoundTrip(t *testing.T) {
	enc := BetaEncoding{Offset: 5, Length: 6}
	vals := []int32{-5, -1, 0, 10, 58}
	s := newTestStreams()
	for _, v := range vals {
		if err := enc.EncodeInt(s, v); err != nil {
			t.Fatalf("EncodeInt(%d): %v", v, err)
		}
	}
	rs := closeTestStreams(s)
	for _, want := range vals {
		got, err := enc.DecodeInt(rs)
		if err != nil {
			t.Fatalf("DecodeInt: %v", err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestGammaEncodingRoundTrip(t *testing.T) {
	enc := GammaEncoding{Offset: 1}
	vals := []int32{0, 1, 2, 7, 100, 4095}
	s := newTestStreams()
	for _, v := range vals {
		if err := enc.EncodeInt(s, v); err != nil {
			t.Fatalf("EncodeInt(%d): %v", v, err)
		}
	}
	rs := closeTestStreams(s)
	for _, want := range vals {
		got, err := enc.DecodeInt(rs)
		if err != nil {
			t.Fatalf("DecodeInt: %v", err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestSubexponentialEncodingRoundTrip(t *testing.T) {
	enc := SubexponentialEncoding{Offset: 10, K: 3}
	vals := []int32{-10, -5, 0, 5, 50, 500}
	s := newTestStreams()
	for _, v := range vals {
		if err := enc.EncodeInt(s, v); err != nil {
			t.Fatalf("EncodeInt(%d): %v", v, err)
		}
	}
	rs := closeTestStreams(s)
	for _, want := range vals {
		got, err := enc.DecodeInt(rs)
		if err != nil {
			t.Fatalf("DecodeInt: %v", err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestHuffmanIntEncodingRoundTrip(t *testing.T) {
	enc := &HuffmanIntEncoding{
		Symbols:    []int32{0, 1, 2, 3},
		BitLengths: []int{1, 2, 3, 3},
	}
	vals := []int32{0, 1, 2, 3, 0, 3, 1}
	s := newTestStreams()
	for _, v := range vals {
		if err := enc.EncodeInt(s, v); err != nil {
			t.Fatalf("EncodeInt(%d): %v", v, err)
		}
	}
	rs := closeTestStreams(s)
	for _, want := range vals {
		got, err := enc.DecodeInt(rs)
		if err != nil {
			t.Fatalf("DecodeInt: %v", err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestHuffmanIntEncodingSingleSymbol(t *testing.T) {
	enc := &HuffmanIntEncoding{Symbols: []int32{7}, BitLengths: []int{0}}
	s := newTestStreams()
	if err := enc.EncodeInt(s, 7); err != nil {
		t.Fatalf("EncodeInt: %v", err)
	}
	rs := closeTestStreams(s)
	got, err := enc.DecodeInt(rs)
	if err != nil {
		t.Fatalf("DecodeInt: %v", err)
	}
	if got != 7 {
		t.Errorf("got %d, want 7", got)
	}
}

// TestByteArrayLenOverExternalMultiRecord exercises the exact pairing a
// real CRAM read-name series uses: BYTE_ARRAY_LEN with both the length
// and the value sub-encoding backed by the same kind of EXTERNAL stream.
// Each record's value must be read back in full without consuming bytes
// belonging to a later record.
func TestByteArrayLenOverExternalMultiRecord(t *testing.T) {
	enc := ByteArrayLenEncoding{
		Length: ExternalEncoding{ContentID: 1},
		Value:  ExternalEncoding{ContentID: 2},
	}
	values := [][]byte{
		[]byte("read_one"),
		[]byte("r2"),
		[]byte(""),
		[]byte("a-much-longer-read-name-here"),
	}
	s := newTestStreams()
	for _, v := range values {
		if err := enc.EncodeBytes(s, v); err != nil {
			t.Fatalf("EncodeBytes(%q): %v", v, err)
		}
	}
	rs := closeTestStreams(s)
	for i, want := range values {
		got, err := enc.DecodeBytes(rs)
		if err != nil {
			t.Fatalf("record %d: DecodeBytes: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("record %d: got %q, want %q", i, got, want)
		}
	}
}

func TestByteArrayLenOverExternalDoesNotDrainStream(t *testing.T) {
	// Decoding one record's value must consume only that record's bytes,
	// leaving the later records' lengths and values in the shared
	// external streams for the next decode.
	enc := ByteArrayLenEncoding{
		Length: ExternalEncoding{ContentID: 1},
		Value:  ExternalEncoding{ContentID: 2},
	}
	s := newTestStreams()
	recs := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	for _, v := range recs {
		if err := enc.EncodeBytes(s, v); err != nil {
			t.Fatalf("EncodeBytes(%q): %v", v, err)
		}
	}
	rs := closeTestStreams(s)
	first, err := enc.DecodeBytes(rs)
	if err != nil {
		t.Fatalf("DecodeBytes record 0: %v", err)
	}
	if string(first) != "first" {
		t.Fatalf("record 0 = %q, want %q", first, "first")
	}
	second, err := enc.DecodeBytes(rs)
	if err != nil {
		t.Fatalf("DecodeBytes record 1: %v", err)
	}
	if string(second) != "second" {
		t.Fatalf("record 1 = %q, want %q (first record's decode must not have drained the stream)", second, "second")
	}
}
