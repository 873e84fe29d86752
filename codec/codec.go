// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codec provides the pluggable block-compression codecs CRAM
// blocks are stored under, per spec section 4.3: a Compressor for each
// (Method, parameter) pair, cached in a Registry keyed on that pair.
package codec

import (
	"errors"
	"fmt"
)

// Method identifies a CRAM block compression method.
type Method byte

// The compression methods recognised on the wire, per CRAM spec section
// 8.
const (
	Raw Method = iota
	Gzip
	Bzip2
	Lzma
	Rans
)

func (m Method) String() string {
	switch m {
	case Raw:
		return "raw"
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case Lzma:
		return "lzma"
	case Rans:
		return "rans"
	default:
		return fmt.Sprintf("method(%d)", byte(m))
	}
}

// Compressor compresses and decompresses the raw bytes of a single
// block's payload.
type Compressor interface {
	Compress(raw []byte) ([]byte, error)
	Decompress(compressed []byte, expectedLen int) ([]byte, error)
	Method() Method
}

// ErrUnknownMethod is returned by Registry.Get for a Method with no
// registered factory.
var ErrUnknownMethod = errors.New("codec: unknown compression method")

// key identifies a cached Compressor: a Method plus whatever parameter
// distinguishes instances of it (gzip level, rANS order, ...).
type key struct {
	method    Method
	parameter int
}

// factory builds a Compressor for a given parameter value.
type factory func(parameter int) (Compressor, error)

// Registry caches Compressor instances by (Method, parameter), per spec
// section 4.3. Get fills the cache on the first request for each
// (Method, parameter) pair and Register edits the factories, both without
// locking, so a Registry shared between goroutines is not safe without
// external synchronization; Compressors themselves are expected to be
// stateless. The zero value is not usable; use NewRegistry.
type Registry struct {
	factories map[Method]factory
	cache     map[key]Compressor
}

// NewRegistry returns a Registry with the standard CRAM compression
// methods (Raw, Gzip, Bzip2, Lzma, Rans) pre-registered.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[Method]factory),
		cache:     make(map[key]Compressor),
	}
	r.Register(Raw, func(int) (Compressor, error) { return rawCodec{}, nil })
	r.Register(Gzip, func(level int) (Compressor, error) { return newGzipCodec(level), nil })
	r.Register(Bzip2, func(level int) (Compressor, error) { return newBzip2Codec(level), nil })
	r.Register(Lzma, func(int) (Compressor, error) { return newLzmaCodec(), nil })
	r.Register(Rans, func(order int) (Compressor, error) { return newRansCodec(order), nil })
	return r
}

// Register installs or replaces the factory used to build Compressors for
// method. Existing cached instances for method are invalidated.
func (r *Registry) Register(method Method, f factory) {
	r.factories[method] = f
	for k := range r.cache {
		if k.method == method {
			delete(r.cache, k)
		}
	}
}

// Get returns the cached Compressor for (method, parameter), constructing
// and caching one via the registered factory if needed.
func (r *Registry) Get(method Method, parameter int) (Compressor, error) {
	k := key{method, parameter}
	if c, ok := r.cache[k]; ok {
		return c, nil
	}
	f, ok := r.factories[method]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMethod, method)
	}
	c, err := f(parameter)
	if err != nil {
		return nil, err
	}
	r.cache[k] = c
	return c, nil
}

// rawCodec is the identity Compressor used for the Raw method.
type rawCodec struct{}

func (rawCodec) Compress(raw []byte) ([]byte, error) { return raw, nil }
func (rawCodec) Decompress(compressed []byte, expectedLen int) ([]byte, error) {
	return compressed, nil
}
func (rawCodec) Method() Method { return Raw }
