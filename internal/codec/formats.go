package codec

import (
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

type noneCodec struct{}

func (noneCodec) Name() Name        { return None }
func (noneCodec) Extension() string { return "" }

func (noneCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func (noneCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type gzipCodec struct{}

func (gzipCodec) Name() Name        { return Gzip }
func (gzipCodec) Extension() string { return ".gz" }

// NewReader reads all concatenated gzip members
func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	return zr, nil
}

func (gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

type zstdCodec struct{}

func (zstdCodec) Name() Name        { return Zstd }
func (zstdCodec) Extension() string { return ".zst" }

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	// a single decoder goroutine per stream - concurrency is bounded by the decode pool
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd stream: %w", err)
	}
	return dec.IOReadCloser(), nil
}

func (zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return enc, nil
}

type xzCodec struct{}

func (xzCodec) Name() Name        { return Xz }
func (xzCodec) Extension() string { return ".xz" }

func (xzCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xz stream: %w", err)
	}
	return io.NopCloser(xr), nil
}

func (xzCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz writer: %w", err)
	}
	return xw, nil
}

// snappyCodec uses the snappy framing format, which is streamable
type snappyCodec struct{}

func (snappyCodec) Name() Name        { return Snappy }
func (snappyCodec) Extension() string { return ".sz" }

func (snappyCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

func (snappyCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

// bzip2Codec is read only
type bzip2Codec struct{}

func (bzip2Codec) Name() Name        { return Bzip2 }
func (bzip2Codec) Extension() string { return ".bz2" }

func (bzip2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(bzip2.NewReader(r)), nil
}

func (bzip2Codec) NewWriter(io.Writer) (io.WriteCloser, error) {
	return nil, fmt.Errorf("%s: %w", Bzip2, ErrWriteUnsupported)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
