// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

// Sentinel reference ids used to tag a ReferenceContext. See CRAM spec
// section 8.4.
const (
	unmappedUnplacedID int32 = -1
	multiRefID         int32 = -2
)

// EOFAlignmentStart is the alignment start recorded by the CRAM EOF
// container's sentinel slice; it is not a real genomic position.
const EOFAlignmentStart = 4542278

// ReferenceContext tags whether a container or slice refers to a single
// reference, spans several references, or holds only unmapped, unplaced
// records.
type ReferenceContext struct {
	id int32
}

// SingleRef returns a ReferenceContext for a single reference with the
// given zero-based sequence id. seqID must be >= 0.
func SingleRef(seqID int) ReferenceContext {
	if seqID < 0 {
		panic("cram: negative reference sequence id")
	}
	return ReferenceContext{id: int32(seqID)}
}

// MultiRef is the ReferenceContext of a slice or container whose records
// span more than one reference sequence.
var MultiRef = ReferenceContext{id: multiRefID}

// UnmappedUnplaced is the ReferenceContext of a slice or container holding
// only unmapped, unplaced records.
var UnmappedUnplaced = ReferenceContext{id: unmappedUnplacedID}

// IsSingleRef reports whether c refers to exactly one reference sequence,
// returning its zero-based id.
func (c ReferenceContext) IsSingleRef() (seqID int, ok bool) {
	if c.id >= 0 {
		return int(c.id), true
	}
	return 0, false
}

// IsMultiRef reports whether c is the MultiRef context.
func (c ReferenceContext) IsMultiRef() bool { return c.id == multiRefID }

// IsUnmappedUnplaced reports whether c is the UnmappedUnplaced context.
func (c ReferenceContext) IsUnmappedUnplaced() bool { return c.id == unmappedUnplacedID }

// ID returns the raw ITF-8 encoded reference id for c, as stored in a
// container or slice header: a non-negative sequence id, -1 for
// UnmappedUnplaced, or -2 for MultiRef.
func (c ReferenceContext) ID() int32 { return c.id }

// ReferenceContextFromID constructs a ReferenceContext from the raw id
// stored in a container or slice header.
func ReferenceContextFromID(id int32) ReferenceContext { return ReferenceContext{id: id} }

func (c ReferenceContext) String() string {
	switch {
	case c.id == multiRefID:
		return "multi-ref"
	case c.id == unmappedUnplacedID:
		return "unmapped-unplaced"
	default:
		return "single-ref"
	}
}

// AlignmentContext is the (reference context, start, span) triple carried
// by every slice and container. start is 1-based.
type AlignmentContext struct {
	Ref   ReferenceContext
	Start int32
	Span  int32
}

// EOFAlignmentContext is the fixed AlignmentContext recorded by the CRAM
// EOF container's sentinel slice header.
var EOFAlignmentContext = AlignmentContext{Ref: UnmappedUnplaced, Start: EOFAlignmentStart, Span: 0}

// Validate checks the (ref, start, span) triple against the constraints of
// CRAM spec section 3. Neither buildSlice nor the decode path calls it,
// so decoding accepts a context that violates these constraints without
// a warning; callers that want the check call Validate themselves.
func (a AlignmentContext) Validate() error {
	switch {
	case a.Ref.id >= 0:
		if a.Start < 1 {
			return newErr(InvalidAlignmentContext, "single-ref alignment start must be >= 1")
		}
		if a.Span < 0 {
			return newErr(InvalidAlignmentContext, "alignment span must be >= 0")
		}
	case a.Ref.id == unmappedUnplacedID:
		if !((a.Start == 0 && a.Span == 0) || a == EOFAlignmentContext) {
			return newErr(InvalidAlignmentContext, "unmapped-unplaced context must be (0,0) or the EOF sentinel")
		}
	case a.Ref.id == multiRefID:
		if a.Start != 0 || a.Span != 0 {
			return newErr(InvalidAlignmentContext, "multi-ref context must be (0,0)")
		}
	default:
		return newErr(InvalidReferenceContext, "unrecognised reference context id")
	}
	return nil
}

// deriveAlignmentContext implements spec section 4.5 step 1: derive the
// AlignmentContext for a slice from the reference contexts and placements
// of its records.
func deriveAlignmentContext(recs []*Record) AlignmentContext {
	seen := map[int32]bool{}
	var only int32
	nDistinct := 0
	for _, r := range recs {
		var id int32
		if r.isPlaced() {
			id = r.ReferenceIndex
		} else {
			id = unmappedUnplacedID
		}
		if !seen[id] {
			seen[id] = true
			nDistinct++
			only = id
		}
	}
	switch nDistinct {
	case 0:
		return AlignmentContext{Ref: UnmappedUnplaced}
	case 1:
		if only == unmappedUnplacedID {
			return AlignmentContext{Ref: UnmappedUnplaced}
		}
		start, end := int32(0), int32(0)
		first := true
		for _, r := range recs {
			if !r.isPlaced() {
				continue
			}
			if first || r.AlignmentStart < start {
				start = r.AlignmentStart
			}
			if first || r.AlignmentEnd() > end {
				end = r.AlignmentEnd()
			}
			first = false
		}
		return AlignmentContext{Ref: SingleRef(int(only)), Start: start, Span: end - start + 1}
	default:
		return AlignmentContext{Ref: MultiRef}
	}
}

// AlignmentSpan is the indexing aggregate described in spec section 2 item
// 7: a genomic interval plus record-placement counts.
type AlignmentSpan struct {
	Start            int32
	Span             int32
	Mapped           int64
	Unmapped         int64
	UnmappedUnplaced int64
}

// UnplacedSpan is the identity element for Combine across counts: it has a
// (0,0) interval and carries only counts.
var UnplacedSpan = AlignmentSpan{}

// Combine merges a with b per spec section 3: the combined interval is the
// union of the two, widened to cover both, and the placement counts add.
// Combine is commutative and associative, and combining with UnplacedSpan
// (start=0, span=0) behaves as the identity on the interval.
func (a AlignmentSpan) Combine(b AlignmentSpan) AlignmentSpan {
	out := AlignmentSpan{
		Mapped:           a.Mapped + b.Mapped,
		Unmapped:         a.Unmapped + b.Unmapped,
		UnmappedUnplaced: a.UnmappedUnplaced + b.UnmappedUnplaced,
	}
	switch {
	case a.Start == 0 && a.Span == 0:
		out.Start, out.Span = b.Start, b.Span
	case b.Start == 0 && b.Span == 0:
		out.Start, out.Span = a.Start, a.Span
	case a.Start == b.Start:
		out.Start = a.Start
		if a.Span > b.Span {
			out.Span = a.Span
		} else {
			out.Span = b.Span
		}
	default:
		start := a.Start
		if b.Start < start {
			start = b.Start
		}
		aEnd := a.Start + a.Span
		bEnd := b.Start + b.Span
		end := aEnd
		if bEnd > end {
			end = bEnd
		}
		out.Start = start
		out.Span = end - start
	}
	return out
}
