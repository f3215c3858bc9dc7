package archive

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd} // zstd Magic number

// IsCompressed reports whether b starts with the zstd frame magic
func IsCompressed(b []byte) bool {
	return bytes.HasPrefix(b, zstdMagic)
}

// Decompress returns b unchanged unless it is a zstd frame
func Decompress(b []byte) ([]byte, error) {
	if !IsCompressed(b) {
		return b, nil
	}

	r, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

// Compress returns the zstd frame of raw
func Compress(raw []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	return w.EncodeAll(raw, nil), nil
}
