// Package signing implements the Ed25519 signing engine: canonical-JSON
// action payload signing and HTTP request envelope signing.
package signing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON serializes v (a map or a JSON-marshalable struct) with
// lexicographically sorted keys and the given separators. Go's
// encoding/json already sorts map keys, but not struct fields, and its
// default separators are compact with no spaces; callers need both
// conventions depending on which wire contract they're matching, so this
// takes the separator pair explicitly rather than hard-coding one.
func CanonicalJSON(v interface{}, itemSep, kvSep string) ([]byte, error) {
	asMap, err := toSortedMap(v)
	if err != nil {
		return nil, err
	}
	return marshalSorted(asMap, itemSep, kvSep)
}

// toSortedMap round-trips v through json.Marshal/Unmarshal into a
// map[string]interface{} so struct field order never leaks into the
// canonical form - only the JSON tag names do.
func toSortedMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("signing: marshal for canonicalization: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("signing: decode for canonicalization: %w", err)
	}
	return m, nil
}

func marshalSorted(m map[string]interface{}, itemSep, kvSep string) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(itemSep)
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteString(kvSep)
		valJSON, err := marshalValueSorted(m[k], itemSep, kvSep)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValueSorted(v interface{}, itemSep, kvSep string) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return marshalSorted(val, itemSep, kvSep)
	case []interface{}:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteString(itemSep)
			}
			elemJSON, err := marshalValueSorted(elem, itemSep, kvSep)
			if err != nil {
				return nil, err
			}
			buf.Write(elemJSON)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(val)
	}
}

// ActionPayloadJSON produces the canonical form used for signing a
// VerificationRequest: sorted keys, ", " and ": " separators - matching
// Python's json.dumps(payload, sort_keys=True) default separators exactly.
func ActionPayloadJSON(v interface{}) ([]byte, error) {
	return CanonicalJSON(v, ", ", ": ")
}

// EnvelopeBodyJSON produces the compact canonical form used for the body
// component of an HTTP envelope signature: sorted keys, no whitespace.
func EnvelopeBodyJSON(v interface{}) ([]byte, error) {
	return CanonicalJSON(v, ",", ":")
}
