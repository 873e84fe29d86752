// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestRansOrder0RoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte{},
		[]byte("A"),
		[]byte("AAAAAAAAAAAAAAAAAAAA"),
		[]byte("ACGTACGTACGTNNNNACGT"),
		bytes.Repeat([]byte("ACGT"), 500),
	}
	c := newRansCodec(0)
	for i, raw := range cases {
		compressed, err := c.Compress(raw)
		if err != nil {
			t.Fatalf("case %d: Compress: %v", i, err)
		}
		got, err := c.Decompress(compressed, len(raw))
		if err != nil {
			t.Fatalf("case %d: Decompress: %v", i, err)
		}
		if !bytes.Equal(got, raw) && !(len(got) == 0 && len(raw) == 0) {
			t.Errorf("case %d: round trip mismatch: got %v, want %v", i, got, raw)
		}
	}
}

func TestRansOrder1RoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("A"),
		[]byte("ACGTACGTACGTNNNNACGT"),
		bytes.Repeat([]byte("ACGTACGG"), 300),
	}
	c := newRansCodec(1)
	for i, raw := range cases {
		compressed, err := c.Compress(raw)
		if err != nil {
			t.Fatalf("case %d: Compress: %v", i, err)
		}
		got, err := c.Decompress(compressed, len(raw))
		if err != nil {
			t.Fatalf("case %d: Decompress: %v", i, err)
		}
		if !bytes.Equal(got, raw) && !(len(got) == 0 && len(raw) == 0) {
			t.Errorf("case %d: round trip mismatch: got %v, want %v", i, got, raw)
		}
	}
}

func TestRansRandomData(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, order := range []int{0, 1} {
		c := newRansCodec(order)
		for trial := 0; trial < 20; trial++ {
			n := rng.Intn(4000)
			raw := make([]byte, n)
			// Alphabet of 5 symbols, like base calls, drawn uniformly so
			// the model sees a small but non-trivial symbol set.
			alphabet := []byte("ACGTN")
			for i := range raw {
				raw[i] = alphabet[rng.Intn(len(alphabet))]
			}
			compressed, err := c.Compress(raw)
			if err != nil {
				t.Fatalf("order %d trial %d: Compress: %v", order, trial, err)
			}
			got, err := c.Decompress(compressed, n)
			if err != nil {
				t.Fatalf("order %d trial %d: Decompress: %v", order, trial, err)
			}
			if !bytes.Equal(got, raw) {
				t.Fatalf("order %d trial %d: round trip mismatch for n=%d", order, trial, n)
			}
		}
	}
}

func TestNormalizeFreqsSumsToTotal(t *testing.T) {
	counts := []int{0, 1, 2, 3, 0, 100, 7}
	freqs := normalizeFreqs(counts, ransTotal)
	sum := 0
	for i, f := range freqs {
		if counts[i] == 0 && f != 0 {
			t.Errorf("symbol %d had zero count but non-zero frequency %d", i, f)
		}
		if counts[i] > 0 && f == 0 {
			t.Errorf("symbol %d had non-zero count but zero frequency", i)
		}
		sum += f
	}
	if sum != ransTotal {
		t.Errorf("normalized frequencies sum to %d, want %d", sum, ransTotal)
	}
}

func TestRegistryRans(t *testing.T) {
	r := NewRegistry()
	c, err := r.Get(Rans, 1)
	if err != nil {
		t.Fatalf("Get(Rans, 1): %v", err)
	}
	if c.Method() != Rans {
		t.Errorf("Method() = %v, want Rans", c.Method())
	}
	raw := []byte("ACGTACGTACGT")
	compressed, err := c.Compress(raw)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := c.Decompress(compressed, len(raw))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("round trip through registry mismatch: got %v, want %v", got, raw)
	}
}
