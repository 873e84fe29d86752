// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitio

import "testing"

func TestRoundTripBits(t *testing.T) {
	tests := []struct {
		value uint32
		width int
	}{
		{0, 1}, {1, 1}, {0, 8}, {255, 8}, {1023, 10}, {1 << 31, 32}, {0xdeadbeef, 32},
	}
	w := NewWriter()
	for _, test := range tests {
		if err := w.WriteBits(test.value, test.width); err != nil {
			t.Fatalf("WriteBits(%d, %d): %v", test.value, test.width, err)
		}
	}
	data := w.Close()
	r := NewReader(data)
	for _, test := range tests {
		got, err := r.ReadBits(test.width)
		if err != nil {
			t.Fatalf("ReadBits(%d): %v", test.width, err)
		}
		want := test.value & (1<<uint(test.width) - 1)
		if test.width == 32 {
			want = test.value
		}
		if got != want {
			t.Errorf("ReadBits(%d): got:%d want:%d", test.width, got, want)
		}
	}
}

func TestUnary(t *testing.T) {
	values := []uint32{0, 1, 2, 7, 20}
	w := NewWriter()
	for _, v := range values {
		if err := w.WriteUnary(v); err != nil {
			t.Fatalf("WriteUnary(%d): %v", v, err)
		}
	}
	r := NewReader(w.Close())
	for _, want := range values {
		got, err := r.ReadUnary()
		if err != nil {
			t.Fatalf("ReadUnary: %v", err)
		}
		if got != want {
			t.Errorf("ReadUnary: got:%d want:%d", got, want)
		}
	}
}

func TestPaddingIsZero(t *testing.T) {
	w := NewWriter()
	w.WriteBits(0x7, 3)
	data := w.Close()
	if len(data) != 1 {
		t.Fatalf("expected 1 byte, got %d", len(data))
	}
	if data[0] != 0xe0 {
		t.Errorf("expected padded byte 0xe0, got %#02x", data[0])
	}
}

func TestTruncated(t *testing.T) {
	r := NewReader([]byte{0xff})
	if _, err := r.ReadBits(9); err == nil {
		t.Error("expected error reading past end of data")
	}
}
