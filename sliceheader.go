// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"io"

	"github.com/biogo/cram/encoding/itf8"
	"github.com/biogo/cram/encoding/ltf8"
)

// marshalSliceHeader serializes h into the raw bytes of a slice header
// block, per spec section 6: ref_context, alignment_start, alignment_span,
// n_records, global_record_counter, n_blocks, content_id_count,
// content_ids, embedded_ref_content_id, md5, with no optional tag bytes
// appended (this implementation's writer never emits any).
func marshalSliceHeader(h *SliceHeader) []byte {
	var buf bytes.Buffer
	itf8.WriteTo(&buf, h.Alignment.Ref.ID())
	itf8.WriteTo(&buf, h.Alignment.Start)
	itf8.WriteTo(&buf, h.Alignment.Span)
	itf8.WriteTo(&buf, h.NumRecords)
	ltf8.WriteTo(&buf, h.GlobalRecordCounter)
	itf8.WriteTo(&buf, h.NumBlocks)
	itf8.WriteTo(&buf, int32(len(h.ContentIDs)))
	for _, id := range h.ContentIDs {
		itf8.WriteTo(&buf, id)
	}
	itf8.WriteTo(&buf, h.EmbeddedRefContentID)
	buf.Write(h.MD5[:])
	return buf.Bytes()
}

// unmarshalSliceHeader parses the raw bytes of a slice header block,
// per spec section 6. Any bytes beyond the MD5 are optional tag
// attributes this reader does not interpret.
func unmarshalSliceHeader(raw []byte) (*SliceHeader, error) {
	r := bytes.NewReader(raw)
	h := &SliceHeader{}

	refID, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "slice header ref context", err)
	}
	start, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "slice header alignment start", err)
	}
	span, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "slice header alignment span", err)
	}
	h.Alignment = AlignmentContext{Ref: ReferenceContextFromID(refID), Start: start, Span: span}

	if h.NumRecords, err = itf8.ReadFrom(r); err != nil {
		return nil, wrapErr(TruncatedStream, "slice header n_records", err)
	}
	if h.GlobalRecordCounter, err = ltf8.ReadFrom(r); err != nil {
		return nil, wrapErr(TruncatedStream, "slice header global record counter", err)
	}
	if h.NumBlocks, err = itf8.ReadFrom(r); err != nil {
		return nil, wrapErr(TruncatedStream, "slice header n_blocks", err)
	}
	nIDs, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "slice header content id count", err)
	}
	h.ContentIDs = make([]int32, nIDs)
	for i := range h.ContentIDs {
		if h.ContentIDs[i], err = itf8.ReadFrom(r); err != nil {
			return nil, wrapErr(TruncatedStream, "slice header content id", err)
		}
	}
	if h.EmbeddedRefContentID, err = itf8.ReadFrom(r); err != nil {
		return nil, wrapErr(TruncatedStream, "slice header embedded ref content id", err)
	}
	if _, err := io.ReadFull(r, h.MD5[:]); err != nil {
		return nil, wrapErr(TruncatedStream, "slice header md5", err)
	}
	return h, nil
}

// writeSlice serializes slc following spec section 4.9: the slice header
// block first, then the core block, then each external block in the
// order listed by the header's ContentIDs, and finally any embedded
// reference block.
func writeSlice(w io.Writer, slc *Slice, version int) error {
	hdrBlock := createRawSliceHeaderBlock(marshalSliceHeader(&slc.Header))
	if err := writeBlock(w, hdrBlock, version); err != nil {
		return err
	}
	if err := writeBlock(w, slc.Core, version); err != nil {
		return err
	}
	for _, cid := range slc.Header.ContentIDs {
		blk, ok := slc.External[cid]
		if !ok {
			return newErr(InvalidContentID, "slice header lists a content id with no matching external block")
		}
		if err := writeBlock(w, blk, version); err != nil {
			return err
		}
	}
	if slc.EmbeddedRef != nil {
		if err := writeBlock(w, slc.EmbeddedRef, version); err != nil {
			return err
		}
	}
	return nil
}

// readSlice reads one slice (header block plus its core and external
// blocks) from r, per spec section 4.9's read side. The returned Slice's
// records are not yet decoded; see DecodeSliceRecords.
func readSlice(r io.Reader, version int) (*Slice, error) {
	hdrBlock, err := readBlock(r, version)
	if err != nil {
		return nil, err
	}
	hdr, err := unmarshalSliceHeader(hdrBlock.Raw())
	if err != nil {
		return nil, err
	}
	core, err := readBlock(r, version)
	if err != nil {
		return nil, err
	}
	if core.ContentType != CoreContent {
		return nil, newErr(InvalidContentID, "slice is missing its core block")
	}
	external := make(map[int32]*Block, len(hdr.ContentIDs))
	var embeddedRef *Block
	for i := 0; i < len(hdr.ContentIDs); i++ {
		blk, err := readBlock(r, version)
		if err != nil {
			return nil, err
		}
		if blk.ContentType != ExternalContent || blk.ContentID == -1 {
			return nil, newErr(InvalidContentID, "slice external block has invalid content id")
		}
		if _, dup := external[blk.ContentID]; dup {
			return nil, newErr(InvalidContentID, "duplicate external block content id in slice")
		}
		external[blk.ContentID] = blk
		if blk.ContentID == hdr.EmbeddedRefContentID {
			embeddedRef = blk
		}
	}
	return &Slice{Header: *hdr, Core: core, External: external, EmbeddedRef: embeddedRef}, nil
}
