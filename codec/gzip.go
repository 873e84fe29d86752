// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"compress/gzip"
	"io"

	kgzip "github.com/klauspost/compress/gzip"
)

// gzipCodec compresses with klauspost/compress/gzip (a faster drop-in for
// the stdlib implementation, at the given level) and decompresses with
// the stdlib compress/gzip reader, matching the teacher's cram.go
// expandBlockdata path.
type gzipCodec struct {
	level int
}

func newGzipCodec(level int) *gzipCodec {
	if level == 0 {
		level = kgzip.DefaultCompression
	}
	return &gzipCodec{level: level}
}

func (c *gzipCodec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := kgzip.NewWriterLevel(&buf, c.level)
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

func (c *gzipCodec) Decompress(compressed []byte, expectedLen int) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	out := make([]byte, 0, expectedLen)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, gz); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *gzipCodec) Method() Method { return Gzip }
