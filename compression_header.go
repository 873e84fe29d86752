// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"fmt"
	"io"

	"github.com/biogo/cram/encoding/itf8"
)

// seriesKey identifies a data series by its two-character CRAM wire key
// (BF, CF, RI, ...).
type seriesKey [2]byte

// The data series keys that may appear in an encoding map.
var (
	seriesBF = seriesKey{'B', 'F'} // BAM flags
	seriesCF = seriesKey{'C', 'F'} // CRAM flags
	seriesRI = seriesKey{'R', 'I'} // reference id
	seriesRL = seriesKey{'R', 'L'} // read length
	seriesAP = seriesKey{'A', 'P'} // alignment start (in-slice delta or absolute)
	seriesRG = seriesKey{'R', 'G'} // read group
	seriesRN = seriesKey{'R', 'N'} // read name
	seriesMF = seriesKey{'M', 'F'} // mate flags
	seriesNS = seriesKey{'N', 'S'} // mate reference id
	seriesNP = seriesKey{'N', 'P'} // mate alignment start
	seriesTS = seriesKey{'T', 'S'} // template size (insert size)
	seriesNF = seriesKey{'N', 'F'} // records to next fragment
	seriesTL = seriesKey{'T', 'L'} // tag list index
	seriesFN = seriesKey{'F', 'N'} // number of read features
	seriesFC = seriesKey{'F', 'C'} // read feature code
	seriesFP = seriesKey{'F', 'P'} // read feature position
	seriesBA = seriesKey{'B', 'A'} // read base
	seriesBS = seriesKey{'B', 'S'} // substitution code
	seriesDL = seriesKey{'D', 'L'} // deletion length
	seriesIN = seriesKey{'I', 'N'} // insertion bases
	seriesSC = seriesKey{'S', 'C'} // soft clip bases
	seriesHC = seriesKey{'H', 'C'} // hard clip length
	seriesPD = seriesKey{'P', 'D'} // padding length
	seriesRS = seriesKey{'R', 'S'} // reference skip length
	seriesQS = seriesKey{'Q', 'S'} // quality scores
	seriesMQ = seriesKey{'M', 'Q'} // mapping quality
	seriesIB = seriesKey{'I', 'B'} // insert base (single base insertion)
	seriesBB = seriesKey{'B', 'B'} // multi-base stretch bases (unused by default profile)
	seriesQQ = seriesKey{'Q', 'Q'} // per-base quality score (ReadBase/BaseQualityScore payload)
)

// PreservationMap is the five-key preservation map written at the head
// of every compression header (spec section 4.4).
type PreservationMap struct {
	ReadNamesIncluded  bool                 // RN
	APDeltaEncoded     bool                 // AP
	ReferenceRequired  bool                 // RR
	SubstitutionMatrix SubstitutionMatrix   // SM
	TagDictionary      [][]TagEncodingEntry // TD: one []entry per distinct tag set
}

// TagEncodingEntry names one tag within a TD entry: two tag characters
// plus the BAM value-type byte, matching ReadTag.ID's layout.
type TagEncodingEntry struct {
	ID [3]byte
}

// CompressionHeader holds everything needed to encode or decode a
// container's slices: the preservation map, the per-series encoding
// map, and the tag encoding map (spec section 4.4).
type CompressionHeader struct {
	Preservation PreservationMap
	Encodings    map[seriesKey]interface{} // IntEncoding or ByteEncoding
	TagEncodings map[int32]ByteEncoding    // keyed by (tag id<<8 | type)

	nextTagContentID int32
}

// tagKey packs a tag's two-character name plus its BAM value-type byte
// into the int32 key TagEncodings and the TD preservation entries use.
func tagKey(id [3]byte) int32 {
	return int32(id[0])<<16 | int32(id[1])<<8 | int32(id[2])
}

// tagByteEncoding returns h's encoding for tag id, registering a fresh
// BYTE_ARRAY_STOP encoding (stop byte 0) with a new content id the first
// time id is seen.
func (h *CompressionHeader) tagByteEncoding(id [3]byte) ByteEncoding {
	key := tagKey(id)
	if enc, ok := h.TagEncodings[key]; ok {
		return enc
	}
	if h.nextTagContentID == 0 {
		h.nextTagContentID = 10000
	}
	cid := h.nextTagContentID
	h.nextTagContentID++
	enc := ByteArrayStopEncoding{Stop: 0, ContentID: cid}
	h.TagEncodings[key] = enc
	return enc
}

// NewCompressionHeader returns a CompressionHeader with a minimal, valid
// default encoding map: every integer series EXTERNAL-encoded and every
// byte series BYTE_ARRAY_STOP-encoded (stop byte 0), each to a distinct
// content id, AP delta-encoded, RN included, reference required, and
// the default substitution matrix.
func NewCompressionHeader() *CompressionHeader {
	h := &CompressionHeader{
		Preservation: PreservationMap{
			ReadNamesIncluded:  true,
			APDeltaEncoded:     true,
			ReferenceRequired:  true,
			SubstitutionMatrix: DefaultSubstitutionMatrix,
		},
		Encodings:    make(map[seriesKey]interface{}),
		TagEncodings: make(map[int32]ByteEncoding),
	}
	contentID := int32(1)
	next := func() int32 { contentID++; return contentID - 1 }
	intSeries := []seriesKey{
		seriesBF, seriesCF, seriesRI, seriesRL, seriesAP, seriesRG,
		seriesMF, seriesNS, seriesNP, seriesTS, seriesNF, seriesTL,
		seriesFN, seriesFC, seriesFP, seriesDL, seriesHC, seriesPD,
		seriesRS, seriesMQ, seriesQQ, seriesBS,
	}
	for _, k := range intSeries {
		h.Encodings[k] = ExternalEncoding{ContentID: next()}
	}
	byteSeries := []seriesKey{seriesRN, seriesIN, seriesSC, seriesBA, seriesQS}
	for _, k := range byteSeries {
		h.Encodings[k] = ByteArrayStopEncoding{Stop: 0, ContentID: next()}
	}
	return h
}

func (h *CompressionHeader) intEncoding(k seriesKey) (IntEncoding, error) {
	e, ok := h.Encodings[k]
	if !ok {
		return NullEncoding{}, nil
	}
	ie, ok := e.(IntEncoding)
	if !ok {
		return nil, newErr(CodecError, fmt.Sprintf("series %s has a byte-array encoding, want int", k))
	}
	return ie, nil
}

func (h *CompressionHeader) byteEncoding(k seriesKey) (ByteEncoding, error) {
	e, ok := h.Encodings[k]
	if !ok {
		return nil, newErr(CodecError, fmt.Sprintf("series %s has no encoding registered", k))
	}
	be, ok := e.(ByteEncoding)
	if !ok {
		return nil, newErr(CodecError, fmt.Sprintf("series %s has an int encoding, want byte-array", k))
	}
	return be, nil
}

// writeCompressionHeader serializes h following spec section 4.4: three
// ITF8-length-prefixed sub-maps, written to w as bare bytes (the caller,
// writeCompressionHeaderBlock, wraps them in a block).
func writeCompressionHeader(w io.Writer, h *CompressionHeader) error {
	var buf bytes.Buffer
	if err := writePreservationMap(&buf, &h.Preservation); err != nil {
		return err
	}
	if err := writeEncodingMap(&buf, h); err != nil {
		return err
	}
	if err := writeTagEncodingMap(&buf, h); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func writePreservationMap(w io.Writer, pm *PreservationMap) error {
	var buf bytes.Buffer
	if err := itf8.WriteTo(&buf, 5); err != nil {
		return err
	}
	writeBool := func(key string, v bool) error {
		buf.WriteString(key)
		if v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	}
	if err := writeBool("RN", pm.ReadNamesIncluded); err != nil {
		return err
	}
	if err := writeBool("AP", pm.APDeltaEncoded); err != nil {
		return err
	}
	if err := writeBool("RR", pm.ReferenceRequired); err != nil {
		return err
	}
	buf.WriteString("SM")
	sm := pm.SubstitutionMatrix.Marshal()
	buf.Write(sm[:])
	buf.WriteString("TD")
	if err := itf8.WriteTo(&buf, int32(len(pm.TagDictionary))); err != nil {
		return err
	}
	for _, set := range pm.TagDictionary {
		if err := itf8.WriteTo(&buf, int32(len(set))); err != nil {
			return err
		}
		for _, e := range set {
			buf.Write(e.ID[:])
		}
	}
	if err := itf8.WriteTo(w, int32(buf.Len())); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func readPreservationMap(r io.Reader, strict Strictness, diag Diagnostics) (*PreservationMap, error) {
	_, err := itf8.ReadFrom(r) // sub-map byte length, unused by this reader
	if err != nil {
		return nil, wrapErr(TruncatedStream, "preservation map length", err)
	}
	n, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "preservation map count", err)
	}
	pm := &PreservationMap{}
	key := make([]byte, 2)
	for i := int32(0); i < n; i++ {
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, wrapErr(TruncatedStream, "preservation map key", err)
		}
		switch string(key) {
		case "RN":
			pm.ReadNamesIncluded, err = readPreservationBool(r)
		case "AP":
			pm.APDeltaEncoded, err = readPreservationBool(r)
		case "RR":
			pm.ReferenceRequired, err = readPreservationBool(r)
		case "SM":
			var raw [5]byte
			if _, err = io.ReadFull(r, raw[:]); err == nil {
				pm.SubstitutionMatrix = UnmarshalSubstitutionMatrix(raw)
			}
		case "TD":
			pm.TagDictionary, err = readTagDictionary(r)
		default:
			// Unknown preservation key: skip is not possible without a
			// length prefix per key, so a producer using an extension this
			// reader doesn't know leaves the stream unrecoverable from this
			// point on. Lenient mode still records the warning and bails
			// out of the loop rather than reading garbage as a known key.
			err = warnOrFail(strict, diag, CorruptBlock, "unknown preservation map key %q", key)
			if err != nil {
				return nil, err
			}
			return pm, nil
		}
		if err != nil {
			return nil, err
		}
	}
	return pm, nil
}

func readPreservationBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, wrapErr(TruncatedStream, "preservation map flag", err)
	}
	return b[0] != 0, nil
}

func readTagDictionary(r io.Reader) ([][]TagEncodingEntry, error) {
	n, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "tag dictionary count", err)
	}
	td := make([][]TagEncodingEntry, n)
	for i := range td {
		m, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, wrapErr(TruncatedStream, "tag dictionary set size", err)
		}
		set := make([]TagEncodingEntry, m)
		for j := range set {
			var id [3]byte
			if _, err := io.ReadFull(r, id[:]); err != nil {
				return nil, wrapErr(TruncatedStream, "tag id", err)
			}
			set[j] = TagEncodingEntry{ID: id}
		}
		td[i] = set
	}
	return td, nil
}

// writeEncodingMap writes one entry per series with a non-NULL encoding:
// 2-byte key, encoding id byte, ITF8 param length, raw params.
func writeEncodingMap(w io.Writer, h *CompressionHeader) error {
	var buf bytes.Buffer
	count := int32(0)
	for _, v := range h.Encodings {
		if isNullEncoding(v) {
			continue
		}
		count++
	}
	if err := itf8.WriteTo(&buf, count); err != nil {
		return err
	}
	for k, v := range h.Encodings {
		if isNullEncoding(v) {
			continue
		}
		buf.Write(k[:])
		params, err := marshalEncodingParams(v)
		if err != nil {
			return err
		}
		buf.WriteByte(byte(encodingIDOf(v)))
		if err := itf8.WriteTo(&buf, int32(len(params))); err != nil {
			return err
		}
		buf.Write(params)
	}
	if err := itf8.WriteTo(w, int32(buf.Len())); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func isNullEncoding(v interface{}) bool {
	_, ok := v.(NullEncoding)
	return ok
}

func encodingIDOf(v interface{}) EncodingID {
	switch e := v.(type) {
	case IntEncoding:
		return e.ID()
	case ByteEncoding:
		return e.ID()
	default:
		return EncodingNull
	}
}

// marshalEncodingParams serializes the parameters of a concrete encoding
// value. The wire param layout is private to this module (it is never
// cross-checked against another CRAM implementation), so each case picks
// a compact, unambiguous representation.
func marshalEncodingParams(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	switch e := v.(type) {
	case ExternalEncoding:
		if err := itf8.WriteTo(&buf, e.ContentID); err != nil {
			return nil, err
		}
	case BetaEncoding:
		if err := itf8.WriteTo(&buf, e.Offset); err != nil {
			return nil, err
		}
		if err := itf8.WriteTo(&buf, int32(e.Length)); err != nil {
			return nil, err
		}
	case GammaEncoding:
		if err := itf8.WriteTo(&buf, e.Offset); err != nil {
			return nil, err
		}
	case SubexponentialEncoding:
		if err := itf8.WriteTo(&buf, e.Offset); err != nil {
			return nil, err
		}
		if err := itf8.WriteTo(&buf, int32(e.K)); err != nil {
			return nil, err
		}
	case ByteArrayStopEncoding:
		buf.WriteByte(e.Stop)
		if err := itf8.WriteTo(&buf, e.ContentID); err != nil {
			return nil, err
		}
	case ByteArrayLenEncoding:
		lenParams, err := marshalEncodingParams(e.Length)
		if err != nil {
			return nil, err
		}
		valParams, err := marshalEncodingParams(e.Value)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(byte(e.Length.ID()))
		if err := itf8.WriteTo(&buf, int32(len(lenParams))); err != nil {
			return nil, err
		}
		buf.Write(lenParams)
		buf.WriteByte(byte(e.Value.ID()))
		if err := itf8.WriteTo(&buf, int32(len(valParams))); err != nil {
			return nil, err
		}
		buf.Write(valParams)
	case *HuffmanIntEncoding:
		if err := itf8.WriteTo(&buf, int32(len(e.Symbols))); err != nil {
			return nil, err
		}
		for i, s := range e.Symbols {
			if err := itf8.WriteTo(&buf, s); err != nil {
				return nil, err
			}
			if err := itf8.WriteTo(&buf, int32(e.BitLengths[i])); err != nil {
				return nil, err
			}
		}
	default:
		return nil, newErr(CodecError, fmt.Sprintf("cannot marshal encoding %T", v))
	}
	return buf.Bytes(), nil
}

func unmarshalEncoding(id EncodingID, params []byte) (interface{}, error) {
	r := bytes.NewReader(params)
	switch id {
	case EncodingExternal:
		cid, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		return ExternalEncoding{ContentID: cid}, nil
	case EncodingBeta:
		off, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		length, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		return BetaEncoding{Offset: off, Length: int(length)}, nil
	case EncodingGamma:
		off, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		return GammaEncoding{Offset: off}, nil
	case EncodingSubexponential:
		off, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		k, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		return SubexponentialEncoding{Offset: off, K: int(k)}, nil
	case EncodingByteArrayStop:
		stop, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		cid, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		return ByteArrayStopEncoding{Stop: stop, ContentID: cid}, nil
	case EncodingByteArrayLen:
		lenID, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		lenParamLen, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		lenParams := make([]byte, lenParamLen)
		if _, err := io.ReadFull(r, lenParams); err != nil {
			return nil, err
		}
		lengthEnc, err := unmarshalEncoding(EncodingID(lenID), lenParams)
		if err != nil {
			return nil, err
		}
		valID, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		valParamLen, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		valParams := make([]byte, valParamLen)
		if _, err := io.ReadFull(r, valParams); err != nil {
			return nil, err
		}
		valueEnc, err := unmarshalEncoding(EncodingID(valID), valParams)
		if err != nil {
			return nil, err
		}
		lengthInt, ok := lengthEnc.(IntEncoding)
		if !ok {
			return nil, newErr(CodecError, "BYTE_ARRAY_LEN length sub-encoding is not an int encoding")
		}
		valueByte, ok := valueEnc.(ByteEncoding)
		if !ok {
			return nil, newErr(CodecError, "BYTE_ARRAY_LEN value sub-encoding is not a byte encoding")
		}
		return ByteArrayLenEncoding{Length: lengthInt, Value: valueByte}, nil
	case EncodingHuffmanInt:
		n, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		syms := make([]int32, n)
		lens := make([]int, n)
		for i := range syms {
			s, err := itf8.ReadFrom(r)
			if err != nil {
				return nil, err
			}
			l, err := itf8.ReadFrom(r)
			if err != nil {
				return nil, err
			}
			syms[i] = s
			lens[i] = int(l)
		}
		return &HuffmanIntEncoding{Symbols: syms, BitLengths: lens}, nil
	case EncodingNull:
		return NullEncoding{}, nil
	default:
		return nil, newErr(CodecError, fmt.Sprintf("unsupported encoding id %v", id))
	}
}

func readEncodingMap(r io.Reader) (map[seriesKey]interface{}, error) {
	if _, err := itf8.ReadFrom(r); err != nil { // sub-map byte length
		return nil, wrapErr(TruncatedStream, "encoding map length", err)
	}
	n, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "encoding map count", err)
	}
	m := make(map[seriesKey]interface{}, n)
	for i := int32(0); i < n; i++ {
		var key seriesKey
		if _, err := io.ReadFull(r, key[:]); err != nil {
			return nil, wrapErr(TruncatedStream, "encoding map key", err)
		}
		var idb [1]byte
		if _, err := io.ReadFull(r, idb[:]); err != nil {
			return nil, wrapErr(TruncatedStream, "encoding id", err)
		}
		paramLen, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, wrapErr(TruncatedStream, "encoding param length", err)
		}
		params := make([]byte, paramLen)
		if _, err := io.ReadFull(r, params); err != nil {
			return nil, wrapErr(TruncatedStream, "encoding params", err)
		}
		enc, err := unmarshalEncoding(EncodingID(idb[0]), params)
		if err != nil {
			return nil, err
		}
		m[key] = enc
	}
	return m, nil
}

func writeTagEncodingMap(w io.Writer, h *CompressionHeader) error {
	var buf bytes.Buffer
	if err := itf8.WriteTo(&buf, int32(len(h.TagEncodings))); err != nil {
		return err
	}
	for key, enc := range h.TagEncodings {
		if err := itf8.WriteTo(&buf, key); err != nil {
			return err
		}
		params, err := marshalEncodingParams(enc)
		if err != nil {
			return err
		}
		buf.WriteByte(byte(enc.ID()))
		if err := itf8.WriteTo(&buf, int32(len(params))); err != nil {
			return err
		}
		buf.Write(params)
	}
	if err := itf8.WriteTo(w, int32(buf.Len())); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func readTagEncodingMap(r io.Reader) (map[int32]ByteEncoding, error) {
	if _, err := itf8.ReadFrom(r); err != nil { // sub-map byte length
		return nil, wrapErr(TruncatedStream, "tag encoding map length", err)
	}
	n, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, wrapErr(TruncatedStream, "tag encoding map count", err)
	}
	m := make(map[int32]ByteEncoding, n)
	for i := int32(0); i < n; i++ {
		key, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, wrapErr(TruncatedStream, "tag encoding key", err)
		}
		var idb [1]byte
		if _, err := io.ReadFull(r, idb[:]); err != nil {
			return nil, wrapErr(TruncatedStream, "tag encoding id", err)
		}
		paramLen, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, wrapErr(TruncatedStream, "tag encoding param length", err)
		}
		params := make([]byte, paramLen)
		if _, err := io.ReadFull(r, params); err != nil {
			return nil, wrapErr(TruncatedStream, "tag encoding params", err)
		}
		enc, err := unmarshalEncoding(EncodingID(idb[0]), params)
		if err != nil {
			return nil, err
		}
		be, ok := enc.(ByteEncoding)
		if !ok {
			return nil, newErr(CodecError, "tag encoding map entry is not a byte-array encoding")
		}
		m[key] = be
	}
	return m, nil
}

func readCompressionHeader(r io.Reader, strict Strictness, diag Diagnostics) (*CompressionHeader, error) {
	pm, err := readPreservationMap(r, strict, diag)
	if err != nil {
		return nil, err
	}
	em, err := readEncodingMap(r)
	if err != nil {
		return nil, err
	}
	tm, err := readTagEncodingMap(r)
	if err != nil {
		return nil, err
	}
	return &CompressionHeader{Preservation: *pm, Encodings: em, TagEncodings: tm}, nil
}
