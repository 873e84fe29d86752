// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

// buildReadFeatures walks rec's CIGAR against the reference window ref
// (ref[0] corresponding to reference position rec.AlignmentStart) and
// emits the tagged read-feature stream described in spec section 4.5: for
// each operator, a feature is emitted at the current 1-based read
// position; M/=/X operators compare read and reference bases and emit a
// Substitution when both are members of the ACGTN alphabet and differ, or
// a ReadBase otherwise.
func buildReadFeatures(rec SAMRecordView, ref []byte, sm SubstitutionMatrix) []ReadFeature {
	var feats []ReadFeature
	readPos := int32(1)
	refOff := 0 // offset from rec.AlignmentStart, 0-based

	refAt := func(off int) (byte, bool) {
		if off < 0 || off >= len(ref) {
			return 0, false
		}
		return ref[off], true
	}

	for _, op := range rec.Cigar {
		switch op.Type {
		case 'M', '=', 'X':
			for i := 0; i < op.Len; i++ {
				readBase := rec.Bases[readPos-1]
				var q int8
				if int(readPos-1) < len(rec.Qualities) {
					q = rec.Qualities[readPos-1]
				}
				refBase, haveRef := refAt(refOff)
				if haveRef {
					if _, refOK := baseIndex(refBase); refOK {
						if _, readOK := baseIndex(readBase); readOK {
							if readBase != refBase {
								feats = append(feats, Substitution{Position: readPos, ReadBase: readBase, RefBase: refBase})
							}
						} else {
							feats = append(feats, ReadBase{Position: readPos, Base: readBase, Quality: q})
						}
					} else {
						feats = append(feats, ReadBase{Position: readPos, Base: readBase, Quality: q})
					}
				} else {
					feats = append(feats, ReadBase{Position: readPos, Base: readBase, Quality: q})
				}
				readPos++
				refOff++
			}
		case 'I':
			bases := append([]byte(nil), rec.Bases[readPos-1:readPos-1+int32(op.Len)]...)
			if op.Len == 1 {
				feats = append(feats, InsertBase{Position: readPos, Base: bases[0]})
			} else {
				feats = append(feats, Insertion{Position: readPos, Bases: bases})
			}
			readPos += int32(op.Len)
		case 'D':
			feats = append(feats, Deletion{Position: readPos, Length: int32(op.Len)})
			refOff += op.Len
		case 'N':
			feats = append(feats, RefSkip{Position: readPos, Length: int32(op.Len)})
			refOff += op.Len
		case 'S':
			bases := append([]byte(nil), rec.Bases[readPos-1:readPos-1+int32(op.Len)]...)
			feats = append(feats, SoftClip{Position: readPos, Bases: bases})
			readPos += int32(op.Len)
		case 'H':
			feats = append(feats, HardClip{Position: readPos, Length: int32(op.Len)})
		case 'P':
			feats = append(feats, Padding{Position: readPos, Length: int32(op.Len)})
		}
	}
	return feats
}
