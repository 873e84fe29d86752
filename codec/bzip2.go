// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
)

// bzip2Codec wraps github.com/dsnet/compress/bzip2, which (unlike the
// stdlib compress/bzip2) implements a writer as well as a reader.
type bzip2Codec struct {
	level int
}

func newBzip2Codec(level int) *bzip2Codec {
	if level == 0 {
		level = 6
	}
	return &bzip2Codec{level: level}
}

func (c *bzip2Codec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriterLevel(&buf, c.level)
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

func (c *bzip2Codec) Decompress(compressed []byte, expectedLen int) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(compressed), nil)
	if err != nil {
		return nil, err
	}
	out := bytes.NewBuffer(make([]byte, 0, expectedLen))
	if _, err := io.Copy(out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (c *bzip2Codec) Method() Method { return Bzip2 }
