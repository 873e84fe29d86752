// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

// BAMFlags is the subset of BAM alignment flags CRAM records carry. See
// spec section 3.
type BAMFlags uint16

// The BAM flag bits used by CRAMRecord.BAMFlags.
const (
	FlagPaired BAMFlags = 1 << iota
	FlagProperPair
	FlagUnmapped
	FlagMateUnmapped
	FlagReverse
	FlagMateReverse
	FlagRead1
	FlagRead2
	FlagSecondary
	FlagQCFail
	FlagDuplicate
	FlagSupplementary
)

// CRAMFlags are per-record flags specific to the CRAM encoding, distinct
// from BAMFlags.
type CRAMFlags uint8

// The CRAM flag bits used by CRAMRecord.CRAMFlags.
const (
	CFForcePreserveQS CRAMFlags = 0x1
	CFDetached        CRAMFlags = 0x2
	CFHasMateDownstream CRAMFlags = 0x4
	CFUnknownBases    CRAMFlags = 0x8
)

// MateFlags mirror a record's mate placement, stored independently of the
// mate's own BAMFlags so a detached record can be decoded without its
// mate present.
type MateFlags uint8

// The mate flag bits used by CRAMRecord.MateFlags.
const (
	MFMateNegStrand MateFlags = 0x1
	MFMateUnmapped  MateFlags = 0x2
)

// ReadTag is a single decoded BAM-style auxiliary tag value, keyed the
// same way CRAM's tag dictionary keys them: a 3-byte (tag[2], type)
// identifier plus the raw encoded value bytes.
type ReadTag struct {
	ID    [3]byte // two tag characters plus the BAM type byte
	Value []byte
}

// Record is the per-read in-memory representation described in spec
// section 3. Geometry fields are fixed at construction; Next/Prev are
// mutated by normalization to link mate pairs within a Slice.
type Record struct {
	AlignmentStart int32
	ReadLength     int32
	ReadFeatures   []ReadFeature

	ReferenceIndex int32
	MappingQuality byte
	ReadGroupID    int32
	Tags           []ReadTag

	SequentialIndex int64
	BAMFlags        BAMFlags
	CRAMFlags       CRAMFlags
	TemplateSize    int32
	ReadName        string
	ReadBases       []byte
	QualityScores   []int8

	MateFlags             MateFlags
	MateReferenceIndex    int32
	MateAlignmentStart    int32
	RecordsToNextFragment int32

	normalized bool

	// Next and Prev link mate-chain members within a single Slice's
	// record arena; they are set only by normalization and index by
	// position within the owning Slice's Records, never by pointer, so
	// that a Slice's records remain a flat, independently addressable
	// arena. -1 means "no link".
	Next int
	Prev int
}

// isPlaced reports whether r has a known reference and alignment start,
// independent of whether the BAMFlags mapped bit is set. Per the "do NOT
// guess" resolution in spec section 9, placement considers only
// ReferenceIndex and AlignmentStart, matching BAM indexing convention.
func (r *Record) isPlaced() bool {
	return r.ReferenceIndex != -1 && r.AlignmentStart != 0
}

// IsPlaced reports whether r has a known reference and alignment start.
func (r *Record) IsPlaced() bool { return r.isPlaced() }

// IsMapped reports whether the BAMFlags unmapped bit is clear.
func (r *Record) IsMapped() bool { return r.BAMFlags&FlagUnmapped == 0 }

// span returns the reference-consuming length of r's aligned region:
// ReadLength plus deletions, minus insertions/soft-clips, per spec
// section 3.
func (r *Record) span() int32 {
	span := r.ReadLength
	for _, f := range r.ReadFeatures {
		switch v := f.(type) {
		case Deletion:
			span += v.Length
		case Insertion:
			span -= int32(len(v.Bases))
		case InsertBase:
			span--
		case SoftClip:
			span -= int32(len(v.Bases))
		}
	}
	return span
}

// AlignmentEnd returns the last 1-based reference position covered by r,
// or 0 if r is not placed.
func (r *Record) AlignmentEnd() int32 {
	if !r.isPlaced() {
		return 0
	}
	return r.AlignmentStart + r.span() - 1
}

// Normalized reports whether normalization has materialized r's bases,
// qualities and mate linkage.
func (r *Record) Normalized() bool { return r.normalized }
