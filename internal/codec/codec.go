package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
)

// Name identifies a compression format
type Name string

const (
	None   Name = "none"
	Gzip   Name = "gzip"
	Zstd   Name = "zstd"
	Xz     Name = "xz"
	Snappy Name = "snappy"
	Bzip2  Name = "bzip2"
)

// ErrWriteUnsupported is returned by NewWriter for codecs which can only be read
var ErrWriteUnsupported = errors.New("codec does not support writing")

// Codec wraps byte streams with a decompressor (for reading) or a compressor (for writing).
//
// NewReader and NewWriter must not close the wrapped stream - the caller owns it.
type Codec interface {
	Name() Name
	// Extension is the file extension (including the leading dot) used for files written with this codec
	Extension() string
	NewReader(r io.Reader) (io.ReadCloser, error)
	NewWriter(w io.Writer) (io.WriteCloser, error)
}

var registry = map[Name]Codec{
	None:   noneCodec{},
	Gzip:   gzipCodec{},
	Zstd:   zstdCodec{},
	Xz:     xzCodec{},
	Snappy: snappyCodec{},
	Bzip2:  bzip2Codec{},
}

// codecs which can only be read
var readOnly = map[Name]struct{}{
	Bzip2: {},
}

// extensions used to infer the codec of a source file
var extensions = map[string]Name{
	".gz":     Gzip,
	".gzip":   Gzip,
	".zst":    Zstd,
	".zstd":   Zstd,
	".xz":     Xz,
	".sz":     Snappy,
	".snappy": Snappy,
	".bz2":    Bzip2,
}

// magic header bytes, used by Sniff
var magic = []struct {
	name   Name
	header []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{Xz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{Bzip2, []byte("BZh")},
	{Snappy, []byte("\xff\x06\x00\x00sNaPpY")},
}

// Lookup returns the codec registered for the given name
func Lookup(name Name) (Codec, error) {
	c, ok := registry[Name(strings.ToLower(string(name)))]
	if !ok {
		return nil, fmt.Errorf("unknown codec '%s' (supported: %s)", name, strings.Join(namesAsStrings(), ", "))
	}
	return c, nil
}

// LookupWriter returns the codec registered for the given name, failing if it cannot be used for output
func LookupWriter(name Name) (Codec, error) {
	c, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if _, readOnly := readOnly[c.Name()]; readOnly {
		return nil, fmt.Errorf("%s: %w", c.Name(), ErrWriteUnsupported)
	}
	return c, nil
}

// Names returns the names of all registered codecs, sorted
func Names() []Name {
	res := make([]Name, 0, len(registry))
	for n := range registry {
		res = append(res, n)
	}
	slices.Sort(res)
	return res
}

func namesAsStrings() []string {
	var res []string
	for _, n := range Names() {
		res = append(res, string(n))
	}
	return res
}

// ForPath infers the codec from the file extension, falling back to None
func ForPath(path string) Codec {
	ext := strings.ToLower(filepath.Ext(path))
	if name, ok := extensions[ext]; ok {
		return registry[name]
	}
	return registry[None]
}

// Sniff identifies a codec from the leading bytes of a stream.
// It returns false if the header does not match any known compressed format.
func Sniff(header []byte) (Name, bool) {
	for _, m := range magic {
		if bytes.HasPrefix(header, m.header) {
			return m.name, true
		}
	}
	return None, false
}

// SniffLen is the number of leading bytes Sniff needs to recognise every format
const SniffLen = 10
