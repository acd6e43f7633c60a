package types

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Payload is the decoded body of an upstream response. It is always an
// aggregate at the top level: either a JSON object (map[string]any) or a
// JSON array ([]any). Leaves are string, json.Number, bool or nil.
type Payload any

// IsAggregate reports whether p is a JSON object or array.
func IsAggregate(p Payload) bool {
	switch p.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

// Len returns the number of top-level items in an aggregate, or 1 for
// anything else.
func Len(p Payload) int {
	switch v := p.(type) {
	case map[string]any:
		return len(v)
	case []any:
		return len(v)
	default:
		return 1
	}
}

// IsEmpty reports whether p is nil or an empty aggregate.
func IsEmpty(p Payload) bool {
	switch v := p.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// IsRecordList reports whether p is a list whose first element is itself an object.
func IsRecordList(p Payload) bool {
	list, ok := p.([]any)
	if !ok || len(list) == 0 {
		return false
	}
	_, ok = list[0].(map[string]any)
	return ok
}

// Headers returns the keys of the first record of a record list, sorted.
// Rows are only inspected shallowly.
func Headers(p Payload) []string {
	if !IsRecordList(p) {
		return nil
	}
	first := p.([]any)[0].(map[string]any)
	return SortedKeys(first)
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Decode unmarshals raw JSON into a Payload. Numbers are kept as json.Number
// so integers wider than a float64 mantissa survive a round trip.
func Decode(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p any
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode marshals a Payload to JSON.
func Encode(p Payload) ([]byte, error) {
	return json.Marshal(p)
}
