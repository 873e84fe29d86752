// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"fmt"
)

// DefaultQualityScore is the sentinel quality value filled in for any
// read position normalization cannot otherwise account for.
const DefaultQualityScore int8 = '?' - 33 // ASCII '?' (Phred 30) minus the FASTQ offset

// Normalize implements spec section 4.7: turn slc's raw decoded records
// into fully materialized records (mate graph linked, names assigned,
// bases and qualities restored). refSrc is consulted only for records
// that need reference bases; it may be nil if slc is known to contain no
// mapped records.
func Normalize(slc *Slice, h *CompressionHeader, refSrc ReferenceSource, strict Strictness, diag Diagnostics) error {
	linkMatePairs(slc.Records)
	assignMissingNames(slc.Records)
	for i, r := range slc.Records {
		if err := restoreBases(r, h.Preservation.SubstitutionMatrix, refSrc, strict, diag); err != nil {
			return wrapErr(CodecError, fmt.Sprintf("restoring bases for record %d", i), err)
		}
		restoreQualities(r)
		r.normalized = true
	}
	return nil
}

// linkMatePairs implements spec section 4.7 step 1: connect each
// downstream-linked record to its mate within the slice, then propagate
// mate fields and template length along each resulting chain.
func linkMatePairs(recs []*Record) {
	for i, r := range recs {
		if r.BAMFlags&FlagPaired == 0 || r.CRAMFlags&CFDetached != 0 || r.CRAMFlags&CFHasMateDownstream == 0 {
			continue
		}
		// records_to_next_fragment is relative to the record's own
		// sequential index; recs is indexed from the slice's first
		// record, so offset by i rather than by SequentialIndex.
		j := i + int(r.RecordsToNextFragment) + 1
		if j < 0 || j >= len(recs) || j == i {
			continue
		}
		r.Next = j
		recs[j].Prev = i
	}
	for i, r := range recs {
		if r.Prev != -1 || r.Next == -1 {
			continue
		}
		propagateChain(recs, i)
	}
}

// propagateChain walks the mate chain starting at head, cross-populating
// mate reference/start/flags and setting TemplateSize on the first and
// last record of the chain.
func propagateChain(recs []*Record, head int) {
	last := head
	for cur := head; cur != -1; {
		next := recs[cur].Next
		if next != -1 {
			a, b := recs[cur], recs[next]
			a.MateReferenceIndex, b.MateReferenceIndex = b.ReferenceIndex, a.ReferenceIndex
			a.MateAlignmentStart, b.MateAlignmentStart = b.AlignmentStart, a.AlignmentStart
			setMateFlags(a, b)
			setMateFlags(b, a)
			last = next
		}
		cur = next
	}
	if last == head {
		return
	}
	ins := computeInsertSize(recs[head], recs[last])
	recs[head].TemplateSize = ins
	recs[last].TemplateSize = -ins
}

func setMateFlags(r, mate *Record) {
	r.MateFlags = 0
	if mate.BAMFlags&FlagReverse != 0 {
		r.MateFlags |= MFMateNegStrand
	}
	if mate.BAMFlags&FlagUnmapped != 0 {
		r.MateFlags |= MFMateUnmapped
	}
}

// computeInsertSize returns the SAM template length between the
// leftmost and rightmost ends of first and last's placements.
func computeInsertSize(first, last *Record) int32 {
	if !first.isPlaced() || !last.isPlaced() {
		return 0
	}
	lo := first.AlignmentStart
	if last.AlignmentStart < lo {
		lo = last.AlignmentStart
	}
	hi := first.AlignmentEnd()
	if last.AlignmentEnd() > hi {
		hi = last.AlignmentEnd()
	}
	return hi - lo + 1
}

// assignMissingNames implements spec section 4.7 step 2: records without
// a preserved read name get one derived from their position in the
// global record stream, propagated across the mate chain so both mates
// share a name.
func assignMissingNames(recs []*Record) {
	for _, r := range recs {
		if r.ReadName != "" {
			continue
		}
		name := fmt.Sprintf("%d", r.SequentialIndex)
		for i := r.Prev; i != -1; i = recs[i].Prev {
			recs[i].ReadName = name
		}
		r.ReadName = name
		for i := r.Next; i != -1; i = recs[i].Next {
			recs[i].ReadName = name
		}
	}
}

// restoreBases implements spec section 4.7 step 3: walk r's read
// features against the reference to materialize read_length bases. If
// CFUnknownBases is set, ReadBases is left empty.
func restoreBases(r *Record, sm SubstitutionMatrix, refSrc ReferenceSource, strict Strictness, diag Diagnostics) error {
	if r.CRAMFlags&CFUnknownBases != 0 {
		r.ReadBases = nil
		return nil
	}
	var ref []byte
	if r.isPlaced() && refSrc != nil {
		length := int(r.span())
		if length < 0 {
			length = 0
		}
		var err error
		ref, err = refSrc.Bases(int(r.ReferenceIndex), int(r.AlignmentStart), length)
		if err != nil {
			if err2 := warnOrFail(strict, diag, ReferenceMissing, "reference unavailable for record at %d:%d: %v", r.ReferenceIndex, r.AlignmentStart, err); err2 != nil {
				return err2
			}
		}
	}

	bases := make([]byte, r.ReadLength)
	readPos := int32(0) // 0-based cursor into bases
	refOff := 0          // 0-based cursor into ref

	featIdxAt := make(map[int32]int, len(r.ReadFeatures))
	for i, f := range r.ReadFeatures {
		featIdxAt[f.Pos()] = i
	}

	for readPos < r.ReadLength {
		pos := readPos + 1 // features are keyed by 1-based read position
		idx, has := featIdxAt[pos]
		if !has {
			bases[readPos] = refBaseAt(ref, refOff)
			readPos++
			refOff++
			continue
		}
		switch v := r.ReadFeatures[idx].(type) {
		case Substitution:
			refBase := refBaseAt(ref, refOff)
			code := v.ReadBase // decodeFeaturePayload stashes the raw 2-bit code here
			base, ok := sm.Base(refBase, code)
			if !ok {
				base = 'N'
			}
			r.ReadFeatures[idx] = Substitution{Position: v.Position, ReadBase: base, RefBase: refBase}
			bases[readPos] = base
			readPos++
			refOff++
		case ReadBase:
			bases[readPos] = v.Base
			readPos++
			refOff++
		case Insertion:
			copy(bases[readPos:], v.Bases)
			readPos += int32(len(v.Bases))
		case InsertBase:
			bases[readPos] = v.Base
			readPos++
		case SoftClip:
			copy(bases[readPos:], v.Bases)
			readPos += int32(len(v.Bases))
		case Deletion:
			refOff += int(v.Length)
		case RefSkip:
			refOff += int(v.Length)
		case BaseQualityScore:
			// Annotates the quality at this position only; the base itself
			// is still a plain reference match.
			bases[readPos] = refBaseAt(ref, refOff)
			readPos++
			refOff++
		case HardClip, Padding:
			// consume neither read nor reference position
		}
	}
	r.ReadBases = bases
	return nil
}

func refBaseAt(ref []byte, off int) byte {
	if off < 0 || off >= len(ref) {
		return 'N'
	}
	return ref[off]
}

// restoreQualities implements spec section 4.7 step 4.
func restoreQualities(r *Record) {
	if r.CRAMFlags&CFForcePreserveQS != 0 {
		if len(r.QualityScores) == 0 {
			return
		}
		allMissing := true
		for i, q := range r.QualityScores {
			if q == -1 {
				r.QualityScores[i] = DefaultQualityScore
			} else {
				allMissing = false
			}
		}
		if allMissing {
			r.QualityScores = nil
		}
		return
	}
	qs := make([]int8, r.ReadLength)
	for i := range qs {
		qs[i] = DefaultQualityScore
	}
	for _, f := range r.ReadFeatures {
		switch v := f.(type) {
		case ReadBase:
			if v.Position >= 1 && int(v.Position) <= len(qs) {
				qs[v.Position-1] = v.Quality
			}
		case BaseQualityScore:
			if v.Position >= 1 && int(v.Position) <= len(qs) {
				qs[v.Position-1] = v.Quality
			}
		}
	}
	r.QualityScores = qs
}
