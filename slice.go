// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"crypto/md5"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/biogo/cram/codec"
	"github.com/biogo/cram/encoding/bitio"
)

// SliceHeader is the decoded form of a slice's raw external header
// block, per spec section 6.
type SliceHeader struct {
	Alignment             AlignmentContext
	NumRecords            int32
	GlobalRecordCounter    int64
	NumBlocks             int32
	ContentIDs            []int32
	EmbeddedRefContentID  int32 // -1 if no embedded reference block
	MD5                   [16]byte
	ContentDigest         uint64 // not part of the wire header; informational

	// Indexing metadata, populated by container assembly (spec section
	// 4.9) rather than by buildSlice itself.
	ContainerByteOffset   int64
	SliceHeaderByteOffset int64
	SliceByteSize         int64
	LandmarkIndex         int
	IndexPopulated        bool
}

// Slice is a built or decoded slice: its header plus the core and
// external blocks that carry its records.
type Slice struct {
	Header      SliceHeader
	Core        *Block
	External    map[int32]*Block
	EmbeddedRef *Block

	Records []*Record
}

// buildSlice implements spec section 4.5: turn an ordered list of
// records into a Slice ready for serialization. globalCounter is
// recorded as the slice header's global record counter. No embedded
// reference block is built (EmbeddedRef is left nil) and the header's
// MD5 is left zero.
func buildSlice(records []*Record, h *CompressionHeader, reg *codec.Registry, globalCounter int64) (*Slice, error) {
	ctx := deriveAlignmentContext(records)

	digest := xxhash.New()
	var mapped, unmapped, unplaced, baseCount int64
	for _, r := range records {
		fmt.Fprintf(digest, "%d:%d:%s:%s;", r.ReferenceIndex, r.AlignmentStart, r.ReadName, r.ReadBases)
		baseCount += int64(r.ReadLength)
		switch {
		case !r.isPlaced():
			unplaced++
		case r.IsMapped():
			mapped++
		default:
			unmapped++
		}
	}

	core := bitio.NewWriter()
	s := &streams{core: core, ext: make(map[int32]*bytes.Buffer)}

	var prevStart int32
	for i, r := range records {
		if err := encodeRecordSeries(h, s, r, ctx, i == 0, &prevStart); err != nil {
			return nil, wrapErr(CodecError, fmt.Sprintf("encoding record %d", i), err)
		}
	}

	coreBlock := createRawCoreDataBlock(core.Close())
	external := make(map[int32]*Block, len(s.ext))
	contentIDs := make([]int32, 0, len(s.ext))
	for cid, buf := range s.ext {
		blk := createExternalBlock(Raw, cid, nil, buf.Len())
		blk.raw = buf.Bytes()
		if err := blk.ensureCompressed(reg, 0); err != nil {
			return nil, err
		}
		external[cid] = blk
		contentIDs = append(contentIDs, cid)
	}

	hdr := SliceHeader{
		Alignment:            ctx,
		NumRecords:           int32(len(records)),
		GlobalRecordCounter:  globalCounter,
		NumBlocks:            int32(1 + len(external)), // core block + external blocks, per invariant 1
		ContentIDs:           contentIDs,
		EmbeddedRefContentID: -1,
		ContentDigest:        digest.Sum64(),
	}
	return &Slice{Header: hdr, Core: coreBlock, External: external, Records: records}, nil
}

// encodeRecordSeries writes one record's fields to the appropriate core
// or external stream, in the data-series order of spec section 4.5 step
// 4.
func encodeRecordSeries(h *CompressionHeader, s *streams, r *Record, ctx AlignmentContext, first bool, prevStart *int32) error {
	write := func(key seriesKey, v int32) error {
		enc, err := h.intEncoding(key)
		if err != nil {
			return err
		}
		return enc.EncodeInt(s, v)
	}
	writeBytes := func(key seriesKey, v []byte) error {
		enc, err := h.byteEncoding(key)
		if err != nil {
			return err
		}
		return enc.EncodeBytes(s, v)
	}

	if err := write(seriesBF, int32(r.BAMFlags)); err != nil {
		return err
	}
	if err := write(seriesCF, int32(r.CRAMFlags)); err != nil {
		return err
	}
	if ctx.Ref.IsMultiRef() {
		if err := write(seriesRI, r.ReferenceIndex); err != nil {
			return err
		}
	}
	if err := write(seriesRL, r.ReadLength); err != nil {
		return err
	}
	apVal := r.AlignmentStart
	if !first && h.Preservation.APDeltaEncoded {
		apVal = r.AlignmentStart - *prevStart
	}
	if err := write(seriesAP, apVal); err != nil {
		return err
	}
	*prevStart = r.AlignmentStart
	if err := write(seriesRG, r.ReadGroupID); err != nil {
		return err
	}
	if h.Preservation.ReadNamesIncluded {
		if err := writeBytes(seriesRN, []byte(r.ReadName)); err != nil {
			return err
		}
	}
	if r.CRAMFlags&CFDetached != 0 {
		if err := write(seriesMF, int32(r.MateFlags)); err != nil {
			return err
		}
		if err := write(seriesNS, r.MateReferenceIndex); err != nil {
			return err
		}
		if err := write(seriesNP, r.MateAlignmentStart); err != nil {
			return err
		}
		if err := write(seriesTS, r.TemplateSize); err != nil {
			return err
		}
	}
	if r.CRAMFlags&CFHasMateDownstream != 0 {
		if err := write(seriesNF, r.RecordsToNextFragment); err != nil {
			return err
		}
	}
	tagIdx, err := h.tagSetIndex(r.Tags)
	if err != nil {
		return err
	}
	if err := write(seriesTL, tagIdx); err != nil {
		return err
	}
	if err := write(seriesFN, int32(len(r.ReadFeatures))); err != nil {
		return err
	}
	var prevFeaturePos int32
	for _, f := range r.ReadFeatures {
		if err := write(seriesFC, int32(f.featureCode())); err != nil {
			return err
		}
		if err := write(seriesFP, f.Pos()-prevFeaturePos); err != nil {
			return err
		}
		prevFeaturePos = f.Pos()
		if err := encodeFeaturePayload(h, s, f); err != nil {
			return err
		}
	}
	if err := write(seriesMQ, int32(r.MappingQuality)); err != nil {
		return err
	}
	if r.CRAMFlags&CFForcePreserveQS != 0 {
		qs := make([]byte, len(r.QualityScores))
		for i, q := range r.QualityScores {
			qs[i] = byte(q)
		}
		if err := writeBytes(seriesQS, qs); err != nil {
			return err
		}
	}
	for _, t := range r.Tags {
		enc := h.tagByteEncoding(t.ID)
		if err := enc.EncodeBytes(s, t.Value); err != nil {
			return err
		}
	}
	return nil
}

func encodeFeaturePayload(h *CompressionHeader, s *streams, f ReadFeature) error {
	write := func(key seriesKey, v int32) error {
		enc, err := h.intEncoding(key)
		if err != nil {
			return err
		}
		return enc.EncodeInt(s, v)
	}
	writeBytes := func(key seriesKey, v []byte) error {
		enc, err := h.byteEncoding(key)
		if err != nil {
			return err
		}
		return enc.EncodeBytes(s, v)
	}
	switch v := f.(type) {
	case Substitution:
		code, ok := h.Preservation.SubstitutionMatrix.Code(v.RefBase, v.ReadBase)
		if !ok {
			return newErr(CodecError, "substitution bases not representable in matrix")
		}
		return write(seriesBS, int32(code))
	case Insertion:
		return writeBytes(seriesIN, v.Bases)
	case Deletion:
		return write(seriesDL, v.Length)
	case SoftClip:
		return writeBytes(seriesSC, v.Bases)
	case HardClip:
		return write(seriesHC, v.Length)
	case InsertBase:
		return writeBytes(seriesBA, []byte{v.Base})
	case RefSkip:
		return write(seriesRS, v.Length)
	case Padding:
		return write(seriesPD, v.Length)
	case ReadBase:
		if err := writeBytes(seriesBA, []byte{v.Base}); err != nil {
			return err
		}
		return write(seriesQQ, int32(v.Quality))
	case BaseQualityScore:
		return write(seriesQQ, int32(v.Quality))
	default:
		return newErr(CodecError, fmt.Sprintf("unknown read feature type %T", f))
	}
}

// tagSetIndex returns the index of tags' (ID) multiset within h's tag
// dictionary, appending a new entry if this exact set has not been seen
// before (spec section 4.4's TD preservation key).
func (h *CompressionHeader) tagSetIndex(tags []ReadTag) (int32, error) {
	key := tagSetKey(tags)
	for i, set := range h.Preservation.TagDictionary {
		if tagSetKeyOf(set) == key {
			return int32(i), nil
		}
	}
	set := make([]TagEncodingEntry, len(tags))
	for i, t := range tags {
		set[i] = TagEncodingEntry{ID: t.ID}
	}
	h.Preservation.TagDictionary = append(h.Preservation.TagDictionary, set)
	return int32(len(h.Preservation.TagDictionary) - 1), nil
}

func tagSetKey(tags []ReadTag) string {
	var buf bytes.Buffer
	for _, t := range tags {
		buf.Write(t.ID[:])
	}
	return buf.String()
}

func tagSetKeyOf(set []TagEncodingEntry) string {
	var buf bytes.Buffer
	for _, e := range set {
		buf.Write(e.ID[:])
	}
	return buf.String()
}

// computeReferenceMD5 implements spec section 4.8: the MD5 of the
// reference window a SingleRef slice with RR=true covers, truncated to
// whatever suffix of ref is actually available.
func computeReferenceMD5(ctx AlignmentContext, ref []byte, diag Diagnostics) [16]byte {
	if _, ok := ctx.Ref.IsSingleRef(); !ok || ctx.Start < 1 {
		return [16]byte{}
	}
	start := int(ctx.Start) - 1
	if start >= len(ref) {
		warn(diag, "reference shorter than slice alignment start; md5 left zero")
		return [16]byte{}
	}
	end := start + int(ctx.Span)
	if end > len(ref) {
		warn(diag, "reference shorter than slice span; md5 computed over available suffix only")
		end = len(ref)
	}
	return md5.Sum(ref[start:end])
}
