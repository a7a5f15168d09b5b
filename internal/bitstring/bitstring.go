// Package bitstring implements the compressed bitstring behind Bitstring
// Status Lists: a byte array of fixed-width status entries, gzipped and
// base64url-encoded with no padding.
//
// Entries are packed most-significant-bit first within each byte. For a
// status size of n bits, entry i occupies bit offsets [i*n, i*n+n) counted
// from the high bit of byte 0; an entry crossing a byte boundary keeps its
// high bits in the lower-address byte.
package bitstring

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// ErrCorrupt wraps all decode failures: bad base64, bad gzip, or a length
// that does not match the expected entry count.
var ErrCorrupt = fmt.Errorf("corrupt bitstring")

// ByteLength returns the raw byte length for a list of totalEntries entries
// of statusSize bits each.
func ByteLength(totalEntries int, statusSize uint8) int {
	return (totalEntries*int(statusSize) + 7) / 8
}

// NewZero returns an all-zero bitstring for the given geometry.
func NewZero(totalEntries int, statusSize uint8) []byte {
	return make([]byte, ByteLength(totalEntries, statusSize))
}

// Encode gzips raw and returns it base64url-encoded without padding.
func Encode(raw []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", fmt.Errorf("compress bitstring: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress bitstring: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode and verifies the decoded length matches the list
// geometry. A mismatch means the stored list is corrupt and is fatal for the
// current operation.
func Decode(encoded string, totalEntries int, statusSize uint8) ([]byte, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		// Tolerate padded input written by older encoders.
		compressed, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64url: %v", ErrCorrupt, err)
		}
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid gzip stream: %v", ErrCorrupt, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated gzip stream: %v", ErrCorrupt, err)
	}
	if want := ByteLength(totalEntries, statusSize); len(raw) != want {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d for %d entries of %d bits",
			ErrCorrupt, len(raw), want, totalEntries, statusSize)
	}
	return raw, nil
}

// Get reads the statusSize-bit entry at index from raw.
func Get(raw []byte, index int, statusSize uint8) (uint8, error) {
	if err := checkBounds(raw, index, statusSize); err != nil {
		return 0, err
	}
	var v uint8
	bitPos := index * int(statusSize)
	for i := 0; i < int(statusSize); i++ {
		byteIdx := (bitPos + i) / 8
		bitIdx := 7 - (bitPos+i)%8
		v = v<<1 | (raw[byteIdx]>>bitIdx)&1
	}
	return v, nil
}

// Set overwrites the statusSize-bit entry at index with value, MSB first.
func Set(raw []byte, index int, statusSize uint8, value uint8) error {
	if err := checkBounds(raw, index, statusSize); err != nil {
		return err
	}
	if max := uint8(1<<statusSize - 1); value > max {
		return fmt.Errorf("status value %d exceeds max %d for %d-bit entries", value, max, statusSize)
	}
	bitPos := index * int(statusSize)
	for i := 0; i < int(statusSize); i++ {
		byteIdx := (bitPos + i) / 8
		bitIdx := 7 - (bitPos+i)%8
		bit := (value >> (int(statusSize) - 1 - i)) & 1
		if bit == 1 {
			raw[byteIdx] |= 1 << bitIdx
		} else {
			raw[byteIdx] &^= 1 << bitIdx
		}
	}
	return nil
}

func checkBounds(raw []byte, index int, statusSize uint8) error {
	if index < 0 {
		return fmt.Errorf("negative index %d", index)
	}
	end := (index + 1) * int(statusSize)
	if end > len(raw)*8 {
		return fmt.Errorf("index %d out of range for %d-byte bitstring at %d bits per entry", index, len(raw), statusSize)
	}
	return nil
}
