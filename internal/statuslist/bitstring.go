package statuslist

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// SetBit marks slot index as revoked. Bits are numbered from the most
// significant bit of each byte. It reports whether the bit changed.
func SetBit(content []byte, index int) bool {
	mask := byte(0x80 >> (index % 8))
	if content[index/8]&mask != 0 {
		return false
	}
	content[index/8] |= mask
	return true
}

// IsSet reports whether slot index is revoked.
func IsSet(content []byte, index int) bool {
	return content[index/8]&(0x80>>(index%8)) != 0
}

// Encode gzips a bitstring and encodes it as unpadded base64url.
func Encode(content []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		return "", fmt.Errorf("compress status list: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress status list: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode.
func Decode(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode status list: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decompress status list: %w", err)
	}
	defer zr.Close()
	content, err := io.ReadAll(io.LimitReader(zr, ListBytes+1))
	if err != nil {
		return nil, fmt.Errorf("decompress status list: %w", err)
	}
	if len(content) != ListBytes {
		return nil, fmt.Errorf("status list has %d bytes, want %d", len(content), ListBytes)
	}
	return content, nil
}
