// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package craindex

import (
	"bytes"
	"errors"
	"testing"

	"github.com/biogo/cram"
	"github.com/biogo/cram/codec"
)

func placedReadBaseRecord(refID int32, start int32, bases string, unmapped bool) *cram.Record {
	feats := make([]cram.ReadFeature, len(bases))
	for i, b := range []byte(bases) {
		feats[i] = cram.ReadBase{Position: int32(i + 1), Base: b, Quality: 30}
	}
	flags := cram.BAMFlags(0)
	if unmapped {
		flags = cram.FlagUnmapped
	}
	return &cram.Record{
		ReferenceIndex: refID,
		AlignmentStart: start,
		ReadLength:     int32(len(bases)),
		ReadFeatures:   feats,
		BAMFlags:       flags,
	}
}

func buildOneContainer(t *testing.T, batches [][]*cram.Record) (*cram.Container, *codec.Registry) {
	t.Helper()
	h := cram.NewCompressionHeader()
	reg := codec.NewRegistry()
	var buf bytes.Buffer
	if _, err := cram.EncodeContainer(&buf, 0, h, batches, reg, 3, 0); err != nil {
		t.Fatalf("EncodeContainer: %v", err)
	}
	dc, err := cram.DecodeContainer(bytes.NewReader(buf.Bytes()), 0, 3, cram.Lenient, cram.DiscardDiagnostics)
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}
	return dc, reg
}

func TestBuildCRAISingleRef(t *testing.T) {
	recs := []*cram.Record{
		placedReadBaseRecord(0, 100, "ACGT", false),
		placedReadBaseRecord(0, 200, "TTTT", false),
	}
	c, reg := buildOneContainer(t, [][]*cram.Record{recs})

	entries, err := BuildCRAI([]*cram.Container{c}, reg)
	if err != nil {
		t.Fatalf("BuildCRAI: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d CRAI entries, want 1", len(entries))
	}
	e := entries[0]
	if e.SeqID != 0 {
		t.Errorf("SeqID = %d, want 0", e.SeqID)
	}
	if e.Start != 100 {
		t.Errorf("Start = %d, want 100", e.Start)
	}
	wantSpan := int32(200 + 4 - 100)
	if e.Span != wantSpan {
		t.Errorf("Span = %d, want %d", e.Span, wantSpan)
	}
}

func TestBuildBAISingleRefCountsMappedUnmapped(t *testing.T) {
	recs := []*cram.Record{
		placedReadBaseRecord(0, 100, "ACGT", false),
		placedReadBaseRecord(0, 105, "AC", true),
	}
	c, reg := buildOneContainer(t, [][]*cram.Record{recs})

	entries, err := BuildBAI([]*cram.Container{c}, reg)
	if err != nil {
		t.Fatalf("BuildBAI: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d BAI entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Span.Mapped != 1 {
		t.Errorf("Mapped = %d, want 1", e.Span.Mapped)
	}
	if e.Span.Unmapped != 1 {
		t.Errorf("Unmapped = %d, want 1", e.Span.Unmapped)
	}
}

func TestBuildCRAIMultiRefSplitsPerReference(t *testing.T) {
	recs := []*cram.Record{
		placedReadBaseRecord(0, 100, "ACGT", false),
		placedReadBaseRecord(1, 300, "GGCC", false),
	}
	c, reg := buildOneContainer(t, [][]*cram.Record{recs})

	entries, err := BuildCRAI([]*cram.Container{c}, reg)
	if err != nil {
		t.Fatalf("BuildCRAI: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d CRAI entries, want 2 (one per reference)", len(entries))
	}
	if entries[0].SeqID != 0 || entries[1].SeqID != 1 {
		t.Errorf("entries not sorted by seq id: got %d, %d", entries[0].SeqID, entries[1].SeqID)
	}
}

func TestIndexNotInitializedWithoutContainerAssembly(t *testing.T) {
	slc := &cram.Slice{Header: cram.SliceHeader{Alignment: cram.AlignmentContext{Ref: cram.SingleRef(0), Start: 1, Span: 1}}}
	c := &cram.Container{Slices: []*cram.Slice{slc}}
	reg := codec.NewRegistry()

	_, err := BuildCRAI([]*cram.Container{c}, reg)
	if err == nil {
		t.Fatal("expected IndexNotInitialized error")
	}
	var cerr *cram.Error
	if !errors.As(err, &cerr) || cerr.Kind != cram.IndexNotInitialized {
		t.Errorf("got %v, want a *cram.Error with Kind IndexNotInitialized", err)
	}
}

func TestBuildCRAISkipsEOFContainers(t *testing.T) {
	c := &cram.Container{EOF: true}
	reg := codec.NewRegistry()
	entries, err := BuildCRAI([]*cram.Container{c}, reg)
	if err != nil {
		t.Fatalf("BuildCRAI: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries for an EOF-only container list, want 0", len(entries))
	}
}
