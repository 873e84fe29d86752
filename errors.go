// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import "fmt"

// Kind identifies a class of CRAM processing failure.
type Kind int

// The set of error kinds returned by this package.
const (
	_ Kind = iota
	TruncatedStream
	CorruptBlock
	UnknownCompressionMethod
	CodecError
	InvalidContentID
	InvalidReferenceContext
	InvalidAlignmentContext
	ReferenceMD5Mismatch
	ReferenceMissing
	IndexNotInitialized
	UnsupportedVersion
)

var kindNames = map[Kind]string{
	TruncatedStream:          "truncated stream",
	CorruptBlock:             "corrupt block",
	UnknownCompressionMethod: "unknown compression method",
	CodecError:               "codec error",
	InvalidContentID:         "invalid content id",
	InvalidReferenceContext:  "invalid reference context",
	InvalidAlignmentContext:  "invalid alignment context",
	ReferenceMD5Mismatch:     "reference md5 mismatch",
	ReferenceMissing:         "reference missing",
	IndexNotInitialized:      "index not initialized",
	UnsupportedVersion:       "unsupported version",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error kind"
}

// Error is the error type returned by the core encode/decode/index
// operations. It carries the offending Kind plus whatever positional
// context was available when the failure was detected.
type Error struct {
	Kind Kind

	// Context is diagnostic only; any field left at its zero value is
	// omitted from Error's message.
	ContainerOffset int64
	SliceIndex      int
	RecordIndex     int
	ContentID       int32
	HasContentID    bool

	Msg string
	Err error
}

func (e *Error) Error() string {
	s := "cram: " + e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.ContainerOffset != 0 {
		s += fmt.Sprintf(" (container offset %d)", e.ContainerOffset)
	}
	if e.SliceIndex != 0 {
		s += fmt.Sprintf(" (slice %d)", e.SliceIndex)
	}
	if e.RecordIndex != 0 {
		s += fmt.Sprintf(" (record %d)", e.RecordIndex)
	}
	if e.HasContentID {
		s += fmt.Sprintf(" (content id %d)", e.ContentID)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap supports errors.Is/errors.As against the wrapped error, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, supporting
// errors.Is(err, &Error{Kind: X}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}
