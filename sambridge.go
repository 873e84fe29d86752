// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

// ReferenceSource is the reference-sequence collaborator this package
// consumes by interface only; fetching reference bases (from a FASTA
// index, a cache, a remote service, ...) is out of scope here. See spec
// section 6.
type ReferenceSource interface {
	// Bases returns length reference bases starting at the 1-based
	// position start on the sequence identified by seqID.
	Bases(seqID int, start int, length int) ([]byte, error)

	// SequenceLength returns the total length of the sequence identified
	// by seqID.
	SequenceLength(seqID int) (int, error)
}

// CigarOperation is the CRAM core's view of a single CIGAR operator: a
// type code (the usual M/I/D/N/S/H/P/=/X alphabet) and a length. It
// mirrors the shape of a SAM CigarOp without importing a concrete SAM
// package, since SAM parsing is an external collaborator per spec
// section 1.
type CigarOperation struct {
	Type byte
	Len  int
}

// ConsumesQuery reports whether operations of this type advance the read
// (query) position.
func (op CigarOperation) ConsumesQuery() bool {
	switch op.Type {
	case 'M', 'I', 'S', '=', 'X':
		return true
	}
	return false
}

// ConsumesReference reports whether operations of this type advance the
// reference position.
func (op CigarOperation) ConsumesReference() bool {
	switch op.Type {
	case 'M', 'D', 'N', '=', 'X':
		return true
	}
	return false
}

// SAMRecordView is the minimal read-only shape buildReadFeatures needs
// from a SAM-style aligned record; a concrete SAM package bridges its own
// record type to this view instead of this package depending on one.
type SAMRecordView struct {
	AlignmentStart int // 1-based
	Cigar          []CigarOperation
	Bases          []byte
	Qualities      []int8
}
