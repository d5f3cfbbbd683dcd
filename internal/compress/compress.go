// Package compress opens mdoc files that may have been archived with one of
// the common stream compressors. The compression is picked from the final
// file extension; anything unrecognized is read as plain text.
package compress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies a stream format.
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
	LZ4
	Brotli
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	case Brotli:
		return "brotli"
	default:
		return "none"
	}
}

// Detect returns the compression implied by the extension of path.
func Detect(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".lz4":
		return LZ4
	case ".br":
		return Brotli
	default:
		return None
	}
}

// Open opens path for reading and transparently decompresses it.
// Closing the returned reader releases both the decoder and the file.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rc, err := NewReader(f, Detect(path))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open %s stream %s: %w", Detect(path), path, err)
	}
	return &stackedCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
}

// NewReader wraps r with the decoder for comp.
func NewReader(r io.Reader, comp Compression) (io.ReadCloser, error) {
	switch comp {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Brotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unknown compression %d", comp)
	}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
