// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Payload is a normalized string-keyed structured value.
type Payload map[string]any

// Normalize converts a decoded document into the canonical value
// shape. Maps become map[string]any (map keys must be strings or
// stringable scalars), slices become []any, integers become int64
// (or float64 when they do not fit), and floats become float64.
func Normalize(value any) (any, error) {
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case bool, string, int64, float64:
		return typed, nil
	case int:
		return int64(typed), nil
	case int8:
		return int64(typed), nil
	case int16:
		return int64(typed), nil
	case int32:
		return int64(typed), nil
	case uint:
		return normalizeUnsigned(uint64(typed)), nil
	case uint8:
		return int64(typed), nil
	case uint16:
		return int64(typed), nil
	case uint32:
		return int64(typed), nil
	case uint64:
		return normalizeUnsigned(typed), nil
	case float32:
		return float64(typed), nil
	case json.Number:
		if integer, err := typed.Int64(); err == nil {
			return integer, nil
		}
		number, err := typed.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", typed.String(), err)
		}
		return number, nil
	case Payload:
		return normalizeMap(typed)
	case map[string]any:
		return normalizeMap(typed)
	case map[any]any:
		converted := make(map[string]any, len(typed))
		for key, element := range typed {
			name, err := mapKey(key)
			if err != nil {
				return nil, err
			}
			converted[name] = element
		}
		return normalizeMap(converted)
	case []any:
		out := make([]any, len(typed))
		for i, element := range typed {
			normalized, err := Normalize(element)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = normalized
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(typed))
		for i, element := range typed {
			normalized, err := normalizeMap(element)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = normalized
		}
		return out, nil
	case []string:
		out := make([]any, len(typed))
		for i, element := range typed {
			out[i] = element
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

// FromValue normalizes value and requires the result to be a mapping.
// A nil value yields an empty Payload.
func FromValue(value any) (Payload, error) {
	normalized, err := Normalize(value)
	if err != nil {
		return nil, err
	}
	switch typed := normalized.(type) {
	case nil:
		return Payload{}, nil
	case map[string]any:
		return Payload(typed), nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", normalized)
	}
}

// MustFromValue is FromValue for literals known to be valid. Panics on
// error.
func MustFromValue(value any) Payload {
	result, err := FromValue(value)
	if err != nil {
		panic("payload: " + err.Error())
	}
	return result
}

func normalizeMap(input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input))
	for key, element := range input {
		normalized, err := Normalize(element)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = normalized
	}
	return out, nil
}

func normalizeUnsigned(value uint64) any {
	if value > math.MaxInt64 {
		return float64(value)
	}
	return int64(value)
}

func mapKey(key any) (string, error) {
	switch typed := key.(type) {
	case string:
		return typed, nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(typed), nil
	default:
		return "", fmt.Errorf("unsupported map key type %T", key)
	}
}

// Has reports whether key is present, even with a nil value.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Get returns the raw value for key.
func (p Payload) Get(key string) (any, bool) {
	value, ok := p[key]
	return value, ok
}

// Bool returns the boolean at key, or fallback when the key is absent
// or not a boolean.
func (p Payload) Bool(key string, fallback bool) bool {
	if value, ok := p[key].(bool); ok {
		return value
	}
	return fallback
}

// Int returns the integer at key, or fallback when the key is absent
// or not an integral number.
func (p Payload) Int(key string, fallback int64) int64 {
	switch value := p[key].(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case float64:
		if value == math.Trunc(value) && value >= math.MinInt64 && value < math.MaxInt64 {
			return int64(value)
		}
	}
	return fallback
}

// Float returns the number at key as float64, or fallback.
func (p Payload) Float(key string, fallback float64) float64 {
	switch value := p[key].(type) {
	case float64:
		return value
	case int64:
		return float64(value)
	case int:
		return float64(value)
	}
	return fallback
}

// String returns the string at key, or fallback.
func (p Payload) String(key string, fallback string) string {
	if value, ok := p[key].(string); ok {
		return value
	}
	return fallback
}

// Map returns the nested mapping at key. Absent or non-mapping values
// yield an empty Payload, so lookups can be chained.
func (p Payload) Map(key string) Payload {
	switch value := p[key].(type) {
	case map[string]any:
		return Payload(value)
	case Payload:
		return value
	}
	return Payload{}
}

// List returns the sequence at key, or nil.
func (p Payload) List(key string) []any {
	if value, ok := p[key].([]any); ok {
		return value
	}
	return nil
}

// Keys returns the keys in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy. Nested maps and slices are copied so the
// clone can be mutated without affecting the original.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return Payload(cloneMap(p))
}

func cloneMap(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMap(typed)
	case Payload:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, element := range typed {
			out[i] = cloneValue(element)
		}
		return out
	default:
		return value
	}
}
