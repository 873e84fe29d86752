// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// lzmaCodec wraps github.com/ulikunitz/xz/lzma, the library the teacher
// already imports for decoding LZMA-compressed CRAM blocks.
type lzmaCodec struct{}

func newLzmaCodec() *lzmaCodec { return &lzmaCodec{} }

func (c *lzmaCodec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *lzmaCodec) Decompress(compressed []byte, expectedLen int) ([]byte, error) {
	lz, err := lzma.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	out := bytes.NewBuffer(make([]byte, 0, expectedLen))
	if _, err := io.Copy(out, lz); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (c *lzmaCodec) Method() Method { return Lzma }
