// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import "fmt"

// Strictness controls whether the recoverable anomalies passed through
// warnOrFail (unknown preservation keys, and reference bases that a
// ReferenceSource fails to supply) are reported as warnings or treated as
// failures. Read positions beyond the end of the supplied reference are
// filled with 'N' without a diagnostic, and computeReferenceMD5's
// truncation warnings are warnings under either setting.
type Strictness int

const (
	// Lenient reports anomalies through Diagnostics and continues.
	Lenient Strictness = iota
	// Strict turns every anomaly passed through warnOrFail into a
	// failure.
	Strict
)

// Diagnostics receives non-fatal warnings emitted while building,
// decoding, normalizing or indexing CRAM data. There is no package-level
// logger; every entry point that can emit a warning takes a Diagnostics
// explicitly. A nil Diagnostics silently discards warnings.
type Diagnostics interface {
	Warnf(format string, args ...interface{})
}

// DiscardDiagnostics is a Diagnostics that drops every warning.
var DiscardDiagnostics Diagnostics = discard{}

type discard struct{}

func (discard) Warnf(string, ...interface{}) {}

func warn(d Diagnostics, format string, args ...interface{}) {
	if d == nil {
		return
	}
	d.Warnf(format, args...)
}

// warnOrFail reports msg through d under Lenient, or returns a *Error of
// the given Kind under Strict.
func warnOrFail(strict Strictness, d Diagnostics, kind Kind, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if strict == Strict {
		return newErr(kind, msg)
	}
	warn(d, "%s", msg)
	return nil
}
