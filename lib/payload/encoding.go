// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"encoding/hex"
	"fmt"

	"github.com/bureau-foundation/ccengine/lib/codec"
	"github.com/zeebo/blake3"
)

// Marshal encodes the payload as deterministic CBOR. A nil payload
// encodes as an empty map so stored rows never carry CBOR null.
func (p Payload) Marshal() ([]byte, error) {
	if p == nil {
		p = Payload{}
	}
	data, err := codec.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return data, nil
}

// Unmarshal decodes CBOR produced by [Payload.Marshal] and normalizes
// the result.
func Unmarshal(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, nil
	}
	var decoded any
	if err := codec.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	result, err := FromValue(decoded)
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return result, nil
}

// Digest is a 32-byte BLAKE3 keyed hash of a payload's canonical
// encoding.
type Digest [32]byte

// digestDomainKey separates evidence digests from any other BLAKE3
// use. Changing it invalidates every stored digest.
var digestDomainKey = [32]byte{
	'c', 'c', 'e', 'n', 'g', 'i', 'n', 'e', '.', 'e', 'v', 'i', 'd', 'e', 'n', 'c',
	'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DigestBytes hashes an already-encoded payload.
func DigestBytes(encoded []byte) Digest {
	hasher, err := blake3.NewKeyed(digestDomainKey[:])
	if err != nil {
		panic("payload: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(encoded)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// Digest encodes the payload and hashes the encoding. Equal payloads
// produce equal digests regardless of map construction order.
func (p Payload) Digest() (Digest, error) {
	encoded, err := p.Marshal()
	if err != nil {
		return Digest{}, err
	}
	return DigestBytes(encoded), nil
}

// String returns the lowercase hex form.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool { return d == Digest{} }

// ParseDigest parses the hex form produced by [Digest.String].
func ParseDigest(text string) (Digest, error) {
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return Digest{}, fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(decoded) != len(Digest{}) {
		return Digest{}, fmt.Errorf("invalid digest: expected %d bytes, got %d", len(Digest{}), len(decoded))
	}
	var digest Digest
	copy(digest[:], decoded)
	return digest, nil
}
