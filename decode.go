// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"fmt"

	"github.com/biogo/cram/codec"
	"github.com/biogo/cram/encoding/bitio"
)

// newReadStreams decompresses slice's core and external blocks via reg and
// wraps them for per-series decoding, the read-side counterpart of the
// streams built by buildSlice (spec section 4.6 step 1).
func newReadStreams(s *Slice, reg *codec.Registry) (*readStreams, error) {
	coreRaw, err := s.Core.decompress(reg)
	if err != nil {
		return nil, err
	}
	rs := &readStreams{
		core: bitio.NewReader(coreRaw),
		ext:  make(map[int32]*bytePos, len(s.External)),
	}
	for cid, blk := range s.External {
		raw, err := blk.decompress(reg)
		if err != nil {
			return nil, err
		}
		rs.ext[cid] = &bytePos{data: raw}
	}
	return rs, nil
}

// DecodeSliceRecords implements spec section 4.6: consume a Slice's
// blocks and produce its raw records. Returned records are unresolved
// (bases/qualities/mate links not yet materialized); see normalize.go for
// that step.
func DecodeSliceRecords(slc *Slice, h *CompressionHeader, reg *codec.Registry, globalCounter int64) ([]*Record, error) {
	rs, err := newReadStreams(slc, reg)
	if err != nil {
		return nil, err
	}
	n := int(slc.Header.NumRecords)
	records := make([]*Record, n)
	prevStart := slc.Header.Alignment.Start
	for i := 0; i < n; i++ {
		r, err := decodeRecordSeries(h, rs, slc.Header.Alignment, i == 0, &prevStart)
		if err != nil {
			return nil, wrapErr(CodecError, fmt.Sprintf("decoding record %d", i), err)
		}
		r.SequentialIndex = globalCounter + int64(i)
		r.Next, r.Prev = -1, -1
		records[i] = r
	}
	return records, nil
}

// decodeRecordSeries is the inverse of encodeRecordSeries: it reads one
// record's fields from the core and external streams, in the same fixed
// data-series order spec section 4.5 step 4 defines.
func decodeRecordSeries(h *CompressionHeader, s *readStreams, ctx AlignmentContext, first bool, prevStart *int32) (*Record, error) {
	readInt := func(key seriesKey) (int32, error) {
		enc, err := h.intEncoding(key)
		if err != nil {
			return 0, err
		}
		return enc.DecodeInt(s)
	}
	readBytes := func(key seriesKey) ([]byte, error) {
		enc, err := h.byteEncoding(key)
		if err != nil {
			return nil, err
		}
		return enc.DecodeBytes(s)
	}

	r := &Record{ReferenceIndex: -1}

	bf, err := readInt(seriesBF)
	if err != nil {
		return nil, err
	}
	r.BAMFlags = BAMFlags(bf)

	cf, err := readInt(seriesCF)
	if err != nil {
		return nil, err
	}
	r.CRAMFlags = CRAMFlags(cf)

	if ctx.Ref.IsMultiRef() {
		ri, err := readInt(seriesRI)
		if err != nil {
			return nil, err
		}
		r.ReferenceIndex = ri
	} else if seqID, ok := ctx.Ref.IsSingleRef(); ok {
		r.ReferenceIndex = int32(seqID)
	}

	rl, err := readInt(seriesRL)
	if err != nil {
		return nil, err
	}
	r.ReadLength = rl

	ap, err := readInt(seriesAP)
	if err != nil {
		return nil, err
	}
	if !first && h.Preservation.APDeltaEncoded {
		r.AlignmentStart = *prevStart + ap
	} else {
		r.AlignmentStart = ap
	}
	*prevStart = r.AlignmentStart

	rg, err := readInt(seriesRG)
	if err != nil {
		return nil, err
	}
	r.ReadGroupID = rg

	if h.Preservation.ReadNamesIncluded {
		rn, err := readBytes(seriesRN)
		if err != nil {
			return nil, err
		}
		r.ReadName = string(rn)
	}

	if r.CRAMFlags&CFDetached != 0 {
		mf, err := readInt(seriesMF)
		if err != nil {
			return nil, err
		}
		r.MateFlags = MateFlags(mf)
		if r.MateReferenceIndex, err = readInt(seriesNS); err != nil {
			return nil, err
		}
		if r.MateAlignmentStart, err = readInt(seriesNP); err != nil {
			return nil, err
		}
		if r.TemplateSize, err = readInt(seriesTS); err != nil {
			return nil, err
		}
	}
	if r.CRAMFlags&CFHasMateDownstream != 0 {
		if r.RecordsToNextFragment, err = readInt(seriesNF); err != nil {
			return nil, err
		}
	}

	tagIdx, err := readInt(seriesTL)
	if err != nil {
		return nil, err
	}
	if int(tagIdx) < 0 || int(tagIdx) >= len(h.Preservation.TagDictionary) {
		return nil, newErr(CorruptBlock, fmt.Sprintf("tag list index %d out of range", tagIdx))
	}
	set := h.Preservation.TagDictionary[tagIdx]

	fn, err := readInt(seriesFN)
	if err != nil {
		return nil, err
	}
	r.ReadFeatures = make([]ReadFeature, fn)
	var prevFeaturePos int32
	for i := int32(0); i < fn; i++ {
		code, err := readInt(seriesFC)
		if err != nil {
			return nil, err
		}
		delta, err := readInt(seriesFP)
		if err != nil {
			return nil, err
		}
		pos := prevFeaturePos + delta
		prevFeaturePos = pos
		f, err := decodeFeaturePayload(h, s, byte(code), pos)
		if err != nil {
			return nil, err
		}
		r.ReadFeatures[i] = f
	}

	mq, err := readInt(seriesMQ)
	if err != nil {
		return nil, err
	}
	r.MappingQuality = byte(mq)

	if r.CRAMFlags&CFForcePreserveQS != 0 {
		qs, err := readBytes(seriesQS)
		if err != nil {
			return nil, err
		}
		r.QualityScores = make([]int8, len(qs))
		for i, b := range qs {
			r.QualityScores[i] = int8(b)
		}
	}

	r.Tags = make([]ReadTag, len(set))
	for i, e := range set {
		enc, ok := h.TagEncodings[tagKey(e.ID)]
		if !ok {
			return nil, newErr(CodecError, fmt.Sprintf("no tag encoding registered for tag %q", e.ID))
		}
		v, err := enc.DecodeBytes(s)
		if err != nil {
			return nil, err
		}
		r.Tags[i] = ReadTag{ID: e.ID, Value: v}
	}

	return r, nil
}

func decodeFeaturePayload(h *CompressionHeader, s *readStreams, code byte, pos int32) (ReadFeature, error) {
	readInt := func(key seriesKey) (int32, error) {
		enc, err := h.intEncoding(key)
		if err != nil {
			return 0, err
		}
		return enc.DecodeInt(s)
	}
	readBytes := func(key seriesKey) ([]byte, error) {
		enc, err := h.byteEncoding(key)
		if err != nil {
			return nil, err
		}
		return enc.DecodeBytes(s)
	}
	switch code {
	case codeSubstitution:
		c, err := readInt(seriesBS)
		if err != nil {
			return nil, err
		}
		return Substitution{Position: pos, ReadBase: byte(c)}, nil // RefBase resolved during normalization
	case codeInsertion:
		b, err := readBytes(seriesIN)
		if err != nil {
			return nil, err
		}
		return Insertion{Position: pos, Bases: b}, nil
	case codeDeletion:
		n, err := readInt(seriesDL)
		if err != nil {
			return nil, err
		}
		return Deletion{Position: pos, Length: n}, nil
	case codeSoftClip:
		b, err := readBytes(seriesSC)
		if err != nil {
			return nil, err
		}
		return SoftClip{Position: pos, Bases: b}, nil
	case codeHardClip:
		n, err := readInt(seriesHC)
		if err != nil {
			return nil, err
		}
		return HardClip{Position: pos, Length: n}, nil
	case codeInsertBase:
		b, err := readBytes(seriesBA)
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			return nil, newErr(TruncatedStream, "insert-base feature missing base")
		}
		return InsertBase{Position: pos, Base: b[0]}, nil
	case codeRefSkip:
		n, err := readInt(seriesRS)
		if err != nil {
			return nil, err
		}
		return RefSkip{Position: pos, Length: n}, nil
	case codePadding:
		n, err := readInt(seriesPD)
		if err != nil {
			return nil, err
		}
		return Padding{Position: pos, Length: n}, nil
	case codeReadBase:
		b, err := readBytes(seriesBA)
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			return nil, newErr(TruncatedStream, "read-base feature missing base")
		}
		q, err := readInt(seriesQQ)
		if err != nil {
			return nil, err
		}
		return ReadBase{Position: pos, Base: b[0], Quality: int8(q)}, nil
	case codeBaseQualityScore:
		q, err := readInt(seriesQQ)
		if err != nil {
			return nil, err
		}
		return BaseQualityScore{Position: pos, Quality: int8(q)}, nil
	default:
		return nil, newErr(CorruptBlock, fmt.Sprintf("unknown read feature code %q", code))
	}
}
