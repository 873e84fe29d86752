// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

// bases is the fixed base alphabet substitutions are coded against, in the
// order the CRAM spec's substitution matrix enumerates them.
var bases = [5]byte{'A', 'C', 'G', 'T', 'N'}

func baseIndex(b byte) (int, bool) {
	switch b {
	case 'A':
		return 0, true
	case 'C':
		return 1, true
	case 'G':
		return 2, true
	case 'T':
		return 3, true
	case 'N':
		return 4, true
	}
	return 0, false
}

// SubstitutionMatrix is the 5x4 code->base mapping used to compress
// Substitution read features: for each reference base, the three other
// possible read bases (plus N substituting for one of the four canonical
// bases) are assigned 2-bit codes 0..3 in the matrix's preferred order.
type SubstitutionMatrix struct {
	// rows[refBaseIndex][code] gives the substituted base.
	rows [5][4]byte
}

// DefaultSubstitutionMatrix is the canonical ordering used when a CRAM
// writer has no empirical substitution frequencies to optimise against:
// each row lists the remaining bases in the order A, C, G, T, N.
var DefaultSubstitutionMatrix = func() SubstitutionMatrix {
	var m SubstitutionMatrix
	for i, ref := range bases {
		k := 0
		for _, b := range bases {
			if b == ref {
				continue
			}
			if k == 4 {
				break
			}
			m.rows[i][k] = b
			k++
		}
	}
	return m
}()

// Code returns the 2-bit code for substituting readBase in place of
// refBase, and whether both bases were recognised members of the
// alphabet.
func (m SubstitutionMatrix) Code(refBase, readBase byte) (code byte, ok bool) {
	ri, ok := baseIndex(refBase)
	if !ok {
		return 0, false
	}
	for c, b := range m.rows[ri] {
		if b == readBase {
			return byte(c), true
		}
	}
	return 0, false
}

// Base returns the substituted base for refBase and code.
func (m SubstitutionMatrix) Base(refBase byte, code byte) (byte, bool) {
	ri, ok := baseIndex(refBase)
	if !ok || code > 3 {
		return 0, false
	}
	return m.rows[ri][code], true
}

// Marshal packs m into the 5-byte wire representation used by the
// preservation map's SM entry: each byte packs four 2-bit codes for one
// reference base, high bits first.
func (m SubstitutionMatrix) Marshal() [5]byte {
	var out [5]byte
	for i := 0; i < 5; i++ {
		var b byte
		for c := 0; c < 4; c++ {
			idx, _ := baseIndex(m.rows[i][c])
			b |= byte(idx) << uint(6-2*c)
		}
		out[i] = b
	}
	return out
}

// UnmarshalSubstitutionMatrix decodes the 5-byte SM preservation map
// entry into a SubstitutionMatrix.
func UnmarshalSubstitutionMatrix(b [5]byte) SubstitutionMatrix {
	var m SubstitutionMatrix
	for i := 0; i < 5; i++ {
		for c := 0; c < 4; c++ {
			idx := (b[i] >> uint(6-2*c)) & 0x3
			m.rows[i][c] = bases[idx]
		}
	}
	return m
}
