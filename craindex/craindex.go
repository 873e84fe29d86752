// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package craindex builds BAI and CRAI random-access index entries from
// CRAM containers and slices, per spec section 4.10. It is a thin
// consumer of the core cram package: it never mutates a Container or
// Slice, only reads their header and, where a slice spans more than one
// reference, its decoded raw records.
package craindex

import (
	"sort"

	"github.com/biogo/cram"
	"github.com/biogo/cram/codec"
)

// CRAIEntry is one flat CRAI index record: a reference id (-1 for
// unmapped-unplaced), the genomic span it covers, and the byte offsets
// needed to seek directly to its slice.
type CRAIEntry struct {
	SeqID                 int32
	Start                 int32
	Span                  int32
	ContainerByteOffset   int64
	SliceHeaderByteOffset int64
	SliceByteSize         int64
}

// BAIEntry is one BAI index record: a reference context, the aggregated
// placement counts and span it covers, and the offsets needed to locate
// its slice plus the slice's position among its container's landmarks.
type BAIEntry struct {
	Ref                   cram.ReferenceContext
	Span                  cram.AlignmentSpan
	ContainerByteOffset   int64
	SliceHeaderByteOffset int64
	LandmarkIndex         int
}

// perRefSpan accumulates AlignmentSpan per reference while splitting a
// MultiRef slice, plus a separate UnmappedUnplaced bucket.
type perRefSpan struct {
	refs     map[int32]cram.AlignmentSpan
	order    []int32
	unplaced cram.AlignmentSpan
	haveUnpl bool
}

func newPerRefSpan() *perRefSpan {
	return &perRefSpan{refs: make(map[int32]cram.AlignmentSpan)}
}

func (p *perRefSpan) add(seqID int32, placed bool, mapped bool, start, end int32) {
	if !placed {
		p.haveUnpl = true
		p.unplaced = p.unplaced.Combine(cram.AlignmentSpan{UnmappedUnplaced: 1})
		return
	}
	span := cram.AlignmentSpan{Start: start, Span: end - start + 1}
	if mapped {
		span.Mapped = 1
	} else {
		span.Unmapped = 1
	}
	cur, ok := p.refs[seqID]
	if !ok {
		p.order = append(p.order, seqID)
	}
	p.refs[seqID] = cur.Combine(span)
}

// sliceRecords returns slc's records, decoding them via
// cram.DecodeSliceRecords if slc was produced by DecodeContainer (whose
// slices carry no Records until a caller decodes them).
func sliceRecords(slc *cram.Slice, h *cram.CompressionHeader, reg *codec.Registry, globalCounter int64) ([]*cram.Record, error) {
	if slc.Records != nil {
		return slc.Records, nil
	}
	return cram.DecodeSliceRecords(slc, h, reg, globalCounter)
}

// splitByReference implements spec section 4.10's MultiRef handling:
// decode just enough of the slice to compute each contained reference's
// AlignmentSpan, without running full normalization.
func splitByReference(slc *cram.Slice, h *cram.CompressionHeader, reg *codec.Registry, globalCounter int64) (*perRefSpan, error) {
	records, err := sliceRecords(slc, h, reg, globalCounter)
	if err != nil {
		return nil, err
	}
	p := newPerRefSpan()
	for _, r := range records {
		if !r.IsPlaced() {
			p.add(0, false, false, 0, 0)
			continue
		}
		p.add(r.ReferenceIndex, true, r.IsMapped(), r.AlignmentStart, r.AlignmentEnd())
	}
	return p, nil
}

// checkPopulated returns IndexNotInitialized if slc's indexing metadata
// was never assigned by container assembly (spec section 4.10).
func checkPopulated(slc *cram.Slice) error {
	if !slc.Header.IndexPopulated {
		return &cram.Error{Kind: cram.IndexNotInitialized, Msg: "slice indexing metadata not populated"}
	}
	return nil
}

// BuildCRAI implements spec section 4.10's CRAI output: one entry per
// slice, or for a MultiRef slice one entry per reference it contains plus
// one for any unmapped-unplaced records, sorted by (seq_id, start,
// container_byte_offset, slice_header_byte_offset).
func BuildCRAI(containers []*cram.Container, reg *codec.Registry) ([]CRAIEntry, error) {
	var out []CRAIEntry
	for _, c := range containers {
		if c.EOF {
			continue
		}
		for _, slc := range c.Slices {
			if err := checkPopulated(slc); err != nil {
				return nil, err
			}
			switch {
			case slc.Header.Alignment.Ref.IsMultiRef():
				p, err := splitByReference(slc, c.CompressionHeader, reg, slc.Header.GlobalRecordCounter)
				if err != nil {
					return nil, err
				}
				for _, seqID := range p.order {
					sp := p.refs[seqID]
					out = append(out, CRAIEntry{
						SeqID: seqID, Start: sp.Start, Span: sp.Span,
						ContainerByteOffset:   slc.Header.ContainerByteOffset,
						SliceHeaderByteOffset: slc.Header.SliceHeaderByteOffset,
						SliceByteSize:         slc.Header.SliceByteSize,
					})
				}
				if p.haveUnpl {
					out = append(out, CRAIEntry{
						SeqID: -1,
						ContainerByteOffset:   slc.Header.ContainerByteOffset,
						SliceHeaderByteOffset: slc.Header.SliceHeaderByteOffset,
						SliceByteSize:         slc.Header.SliceByteSize,
					})
				}
			case slc.Header.Alignment.Ref.IsUnmappedUnplaced():
				out = append(out, CRAIEntry{
					SeqID: -1,
					ContainerByteOffset:   slc.Header.ContainerByteOffset,
					SliceHeaderByteOffset: slc.Header.SliceHeaderByteOffset,
					SliceByteSize:         slc.Header.SliceByteSize,
				})
			default:
				seqID, _ := slc.Header.Alignment.Ref.IsSingleRef()
				out = append(out, CRAIEntry{
					SeqID: int32(seqID), Start: slc.Header.Alignment.Start, Span: slc.Header.Alignment.Span,
					ContainerByteOffset:   slc.Header.ContainerByteOffset,
					SliceHeaderByteOffset: slc.Header.SliceHeaderByteOffset,
					SliceByteSize:         slc.Header.SliceByteSize,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SeqID != b.SeqID {
			return a.SeqID < b.SeqID
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.ContainerByteOffset != b.ContainerByteOffset {
			return a.ContainerByteOffset < b.ContainerByteOffset
		}
		return a.SliceHeaderByteOffset < b.SliceHeaderByteOffset
	})
	return out, nil
}

// BuildBAI implements spec section 4.10's BAI output: zero or more
// entries per slice. A SingleRef slice produces one entry; a MultiRef
// slice produces one entry per reference context it contains (plus a
// trailing UnmappedUnplaced entry, if any); an UnmappedUnplaced slice
// produces one entry with a (0,0) span.
func BuildBAI(containers []*cram.Container, reg *codec.Registry) ([]BAIEntry, error) {
	var out []BAIEntry
	for _, c := range containers {
		if c.EOF {
			continue
		}
		for _, slc := range c.Slices {
			if err := checkPopulated(slc); err != nil {
				return nil, err
			}
			switch {
			case slc.Header.Alignment.Ref.IsMultiRef():
				p, err := splitByReference(slc, c.CompressionHeader, reg, slc.Header.GlobalRecordCounter)
				if err != nil {
					return nil, err
				}
				for _, seqID := range p.order {
					out = append(out, BAIEntry{
						Ref:                   cram.SingleRef(int(seqID)),
						Span:                  p.refs[seqID],
						ContainerByteOffset:   slc.Header.ContainerByteOffset,
						SliceHeaderByteOffset: slc.Header.SliceHeaderByteOffset,
						LandmarkIndex:         slc.Header.LandmarkIndex,
					})
				}
				if p.haveUnpl {
					out = append(out, BAIEntry{
						Ref:                   cram.UnmappedUnplaced,
						Span:                  p.unplaced,
						ContainerByteOffset:   slc.Header.ContainerByteOffset,
						SliceHeaderByteOffset: slc.Header.SliceHeaderByteOffset,
						LandmarkIndex:         slc.Header.LandmarkIndex,
					})
				}
			case slc.Header.Alignment.Ref.IsUnmappedUnplaced():
				out = append(out, BAIEntry{
					Ref:                   cram.UnmappedUnplaced,
					ContainerByteOffset:   slc.Header.ContainerByteOffset,
					SliceHeaderByteOffset: slc.Header.SliceHeaderByteOffset,
					LandmarkIndex:         slc.Header.LandmarkIndex,
				})
			default:
				seqID, _ := slc.Header.Alignment.Ref.IsSingleRef()
				records, err := sliceRecords(slc, c.CompressionHeader, reg, slc.Header.GlobalRecordCounter)
				if err != nil {
					return nil, err
				}
				var mapped, unmapped int64
				for _, r := range records {
					if r.IsMapped() {
						mapped++
					} else {
						unmapped++
					}
				}
				out = append(out, BAIEntry{
					Ref: cram.SingleRef(seqID),
					Span: cram.AlignmentSpan{
						Start: slc.Header.Alignment.Start, Span: slc.Header.Alignment.Span,
						Mapped: mapped, Unmapped: unmapped,
					},
					ContainerByteOffset:   slc.Header.ContainerByteOffset,
					SliceHeaderByteOffset: slc.Header.SliceHeaderByteOffset,
					LandmarkIndex:         slc.Header.LandmarkIndex,
				})
			}
		}
	}
	return out, nil
}
