// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"testing"

	"github.com/biogo/cram/codec"
)

func unplacedReadBaseRecord(name string, bases string, qual int8) *Record {
	feats := make([]ReadFeature, len(bases))
	for i, b := range []byte(bases) {
		feats[i] = ReadBase{Position: int32(i + 1), Base: b, Quality: qual}
	}
	return &Record{
		ReferenceIndex: -1,
		ReadLength:     int32(len(bases)),
		ReadFeatures:   feats,
		BAMFlags:       FlagUnmapped,
		ReadName:       name,
		MappingQuality: 0,
	}
}

func TestContainerRoundTrip(t *testing.T) {
	h := NewCompressionHeader()
	reg := codec.NewRegistry()

	records := []*Record{
		unplacedReadBaseRecord("read1", "ACGT", 30),
		unplacedReadBaseRecord("read2", "TTTTGG", 20),
	}

	var buf bytes.Buffer
	c, err := EncodeContainer(&buf, 0, h, [][]*Record{records}, reg, 3, 0)
	if err != nil {
		t.Fatalf("EncodeContainer: %v", err)
	}
	if len(c.Slices) != 1 {
		t.Fatalf("got %d slices, want 1", len(c.Slices))
	}

	dc, err := DecodeContainer(bytes.NewReader(buf.Bytes()), 0, 3, Lenient, DiscardDiagnostics)
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}
	if dc.EOF {
		t.Fatal("DecodeContainer reported EOF on a real container")
	}
	if len(dc.Slices) != 1 {
		t.Fatalf("got %d decoded slices, want 1", len(dc.Slices))
	}

	slc := dc.Slices[0]
	if !slc.Header.IndexPopulated {
		t.Fatal("decoded slice header has IndexPopulated=false")
	}
	got, err := DecodeSliceRecords(slc, dc.CompressionHeader, reg, slc.Header.GlobalRecordCounter)
	if err != nil {
		t.Fatalf("DecodeSliceRecords: %v", err)
	}
	slc.Records = got

	if err := Normalize(slc, dc.CompressionHeader, nil, Lenient, DiscardDiagnostics); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}
	for i, want := range records {
		r := got[i]
		if r.ReadName != want.ReadName {
			t.Errorf("record %d: ReadName got %q want %q", i, r.ReadName, want.ReadName)
		}
		if r.ReadLength != want.ReadLength {
			t.Errorf("record %d: ReadLength got %d want %d", i, r.ReadLength, want.ReadLength)
		}
		if !r.Normalized() {
			t.Errorf("record %d: expected Normalized() == true after Normalize", i)
		}
	}

	wantBases := []string{"ACGT", "TTTTGG"}
	for i, want := range wantBases {
		if string(got[i].ReadBases) != want {
			t.Errorf("record %d: ReadBases got %q want %q", i, got[i].ReadBases, want)
		}
	}
}

func TestDecodeContainerEOF(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEOFContainer(&buf, 3); err != nil {
		t.Fatalf("WriteEOFContainer: %v", err)
	}
	c, err := DecodeContainer(bytes.NewReader(buf.Bytes()), 0, 3, Lenient, DiscardDiagnostics)
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}
	if !c.EOF {
		t.Fatal("expected EOF container")
	}
}

func TestFileDefinitionRoundTrip(t *testing.T) {
	d := FileDefinition{Major: 3, Minor: 0}
	copy(d.FileID[:], "test-file-id")
	var buf bytes.Buffer
	if err := WriteFileDefinition(&buf, d); err != nil {
		t.Fatalf("WriteFileDefinition: %v", err)
	}
	got, err := ReadFileDefinition(&buf)
	if err != nil {
		t.Fatalf("ReadFileDefinition: %v", err)
	}
	if got != d {
		t.Errorf("got %+v, want %+v", got, d)
	}
}

func TestReadFileDefinitionBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("XXXX")
	buf.Write([]byte{3, 0})
	buf.Write(make([]byte, 20))
	if _, err := ReadFileDefinition(&buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}
