// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditstore

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names the algorithm applied to stored evidence
// snapshots. The name is recorded per row, so changing the configured
// algorithm never affects existing rows.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
)

// ParseCompression accepts "none", "lz4", or "zstd".
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case CompressionNone, CompressionLZ4, CompressionZstd:
		return Compression(name), nil
	}
	return "", fmt.Errorf("unknown evidence compression %q: must be none, lz4, or zstd", name)
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("auditstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("auditstore: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the stored form of data and the algorithm actually
// used. Output that would not be smaller than the input is stored
// uncompressed.
func compress(data []byte, algorithm Compression) ([]byte, Compression) {
	switch algorithm {
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) < len(data) {
			return compressed, CompressionZstd
		}
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		// CompressBlock reports 0 for incompressible input.
		if err == nil && written > 0 && written < len(data) {
			return destination[:written], CompressionLZ4
		}
	}
	return data, CompressionNone
}

func decompress(stored []byte, algorithm Compression, rawSize int) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		if len(stored) != rawSize {
			return nil, fmt.Errorf("uncompressed snapshot: size %d does not match recorded %d", len(stored), rawSize)
		}
		return stored, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != rawSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), rawSize)
		}
		return result, nil
	case CompressionLZ4:
		destination := make([]byte, rawSize)
		read, err := lz4.UncompressBlock(stored, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != rawSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, rawSize)
		}
		return destination, nil
	}
	return nil, fmt.Errorf("unsupported snapshot compression %q", algorithm)
}
