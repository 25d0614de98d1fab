// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	options := cbor.CoreDetEncOptions()
	// The default (integer seconds) would drop the nanosecond
	// precision every stored timestamp carries.
	options.Time = cbor.TimeRFC3339Nano
	encMode, err = options.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Payload maps are always string-keyed. Without this, any-typed
		// targets decode to map[interface{}]interface{}, which neither
		// encoding/json nor the payload accessors accept.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Diagnose returns the RFC 8949 diagnostic notation for data. Used by
// the CLI to show stored payloads byte-for-byte.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
