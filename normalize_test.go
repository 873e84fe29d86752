// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"testing"
	"time"
)

func TestLinkMatePairsAndTemplateSize(t *testing.T) {
	recs := []*Record{
		{
			ReferenceIndex: 0, AlignmentStart: 100, ReadLength: 10,
			BAMFlags: FlagPaired, CRAMFlags: CFHasMateDownstream,
			RecordsToNextFragment: 0, SequentialIndex: 0,
			Next: -1, Prev: -1,
		},
		{
			ReferenceIndex: 0, AlignmentStart: 150, ReadLength: 10,
			BAMFlags: FlagPaired | FlagReverse, SequentialIndex: 1,
			Next: -1, Prev: -1,
		},
	}
	linkMatePairs(recs)

	if recs[0].Next != 1 {
		t.Fatalf("recs[0].Next = %d, want 1", recs[0].Next)
	}
	if recs[1].Prev != 0 {
		t.Fatalf("recs[1].Prev = %d, want 0", recs[1].Prev)
	}
	if recs[0].MateReferenceIndex != 0 || recs[0].MateAlignmentStart != 150 {
		t.Errorf("recs[0] mate fields got (%d,%d), want (0,150)", recs[0].MateReferenceIndex, recs[0].MateAlignmentStart)
	}
	if recs[1].MateReferenceIndex != 0 || recs[1].MateAlignmentStart != 100 {
		t.Errorf("recs[1] mate fields got (%d,%d), want (0,100)", recs[1].MateReferenceIndex, recs[1].MateAlignmentStart)
	}
	if recs[0].MateFlags&MFMateNegStrand == 0 {
		t.Error("recs[0].MateFlags missing MFMateNegStrand (mate is reverse)")
	}
	if recs[1].MateFlags&MFMateNegStrand != 0 {
		t.Error("recs[1].MateFlags should not carry MFMateNegStrand (mate is forward)")
	}

	wantIns := recs[1].AlignmentEnd() - recs[0].AlignmentStart + 1
	if recs[0].TemplateSize != wantIns {
		t.Errorf("recs[0].TemplateSize = %d, want %d", recs[0].TemplateSize, wantIns)
	}
	if recs[1].TemplateSize != -wantIns {
		t.Errorf("recs[1].TemplateSize = %d, want %d", recs[1].TemplateSize, -wantIns)
	}
}

func TestAssignMissingNamesSharedAcrossChain(t *testing.T) {
	recs := []*Record{
		{SequentialIndex: 5, Next: 1, Prev: -1},
		{SequentialIndex: 6, Next: -1, Prev: 0},
	}
	assignMissingNames(recs)
	if recs[0].ReadName == "" || recs[0].ReadName != recs[1].ReadName {
		t.Errorf("mate pair got mismatched names %q, %q", recs[0].ReadName, recs[1].ReadName)
	}
}

func TestAssignMissingNamesPreservesExisting(t *testing.T) {
	recs := []*Record{{ReadName: "kept", Next: -1, Prev: -1}}
	assignMissingNames(recs)
	if recs[0].ReadName != "kept" {
		t.Errorf("got %q, want unchanged %q", recs[0].ReadName, "kept")
	}
}

func TestRestoreQualitiesDefaultSeries(t *testing.T) {
	r := &Record{
		ReadLength: 4,
		ReadFeatures: []ReadFeature{
			BaseQualityScore{Position: 2, Quality: 40},
		},
	}
	restoreQualities(r)
	want := []int8{DefaultQualityScore, 40, DefaultQualityScore, DefaultQualityScore}
	if len(r.QualityScores) != len(want) {
		t.Fatalf("got %d quality scores, want %d", len(r.QualityScores), len(want))
	}
	for i := range want {
		if r.QualityScores[i] != want[i] {
			t.Errorf("quality[%d] = %d, want %d", i, r.QualityScores[i], want[i])
		}
	}
}

func TestRestoreQualitiesForcePreserved(t *testing.T) {
	r := &Record{
		CRAMFlags:     CFForcePreserveQS,
		QualityScores: []int8{10, -1, 20},
	}
	restoreQualities(r)
	want := []int8{10, DefaultQualityScore, 20}
	for i := range want {
		if r.QualityScores[i] != want[i] {
			t.Errorf("quality[%d] = %d, want %d", i, r.QualityScores[i], want[i])
		}
	}
}

func TestRestoreBasesSubstitutionResolvesAgainstReference(t *testing.T) {
	ref := []byte("ACGTACGT")
	r := &Record{
		ReferenceIndex: 0,
		AlignmentStart: 1,
		ReadLength:     4,
		ReadFeatures: []ReadFeature{
			Substitution{Position: 2, ReadBase: 0}, // code 0, ref base 'C' -> first non-C base alphabetically
		},
	}
	refSrc := constRefSource{bases: ref}
	if err := restoreBases(r, DefaultSubstitutionMatrix, refSrc, Lenient, DiscardDiagnostics); err != nil {
		t.Fatalf("restoreBases: %v", err)
	}
	if len(r.ReadBases) != 4 {
		t.Fatalf("got %d bases, want 4", len(r.ReadBases))
	}
	if r.ReadBases[0] != 'A' || r.ReadBases[2] != 'G' || r.ReadBases[3] != 'T' {
		t.Errorf("unsubstituted positions should mirror reference, got %q", r.ReadBases)
	}
	sub, ok := r.ReadFeatures[0].(Substitution)
	if !ok {
		t.Fatalf("feature 0 is %T, want Substitution", r.ReadFeatures[0])
	}
	if sub.RefBase != 'C' {
		t.Errorf("resolved RefBase = %q, want 'C'", sub.RefBase)
	}
	if r.ReadBases[1] != sub.ReadBase {
		t.Errorf("ReadBases[1] = %q does not match resolved Substitution.ReadBase %q", r.ReadBases[1], sub.ReadBase)
	}
}

func TestRestoreBasesStandaloneBaseQualityScoreAdvancesCursor(t *testing.T) {
	ref := []byte("ACGTACGT")
	r := &Record{
		ReferenceIndex: 0,
		AlignmentStart: 1,
		ReadLength:     4,
		ReadFeatures: []ReadFeature{
			BaseQualityScore{Position: 2, Quality: 40},
		},
	}
	refSrc := constRefSource{bases: ref}
	done := make(chan error, 1)
	go func() {
		done <- restoreBases(r, DefaultSubstitutionMatrix, refSrc, Lenient, DiscardDiagnostics)
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("restoreBases: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("restoreBases did not return: standalone BaseQualityScore feature left readPos stuck")
	}
	if string(r.ReadBases) != "ACGT" {
		t.Errorf("ReadBases = %q, want %q (reference match at every position)", r.ReadBases, "ACGT")
	}
}

type constRefSource struct{ bases []byte }

func (c constRefSource) Bases(seqID, start, length int) ([]byte, error) {
	end := start - 1 + length
	if end > len(c.bases) {
		end = len(c.bases)
	}
	return c.bases[start-1 : end], nil
}

func (c constRefSource) SequenceLength(seqID int) (int, error) { return len(c.bases), nil }
