// Package record wraps raw LeakIX events (arbitrary nested JSON) with
// dot-path access. Lookups never panic: any missing or mistyped path
// yields an empty Value that keeps chaining and renders as "".
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrNotObject reports input that is not a JSON object.
var ErrNotObject = errors.New("record: not a JSON object")

// Record is a read-only view over one decoded event.
type Record struct {
	data map[string]any
}

// Wrap validates v and returns it as a Record. Only map[string]any is
// accepted; anything else (including nil) is an error, never a panic.
func Wrap(v any) (Record, error) {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return Record{}, fmt.Errorf("%w: %T", ErrNotObject, v)
	}
	return Record{data: m}, nil
}

// FromJSON decodes one JSON object into a Record.
func FromJSON(b []byte) (Record, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return Record{}, fmt.Errorf("record: decode: %w", err)
	}
	return Wrap(v)
}

// Get resolves a dotted path ("geoip.country_name") against the record.
func (r Record) Get(path string) Value {
	return Value{v: r.data}.Get(path)
}

// Map exposes the underlying data. Callers must not mutate it.
func (r Record) Map() map[string]any {
	return r.data
}

// IsZero reports whether the record carries no data.
func (r Record) IsZero() bool {
	return r.data == nil
}

// JSON renders the record back to compact JSON.
func (r Record) JSON() ([]byte, error) {
	return json.Marshal(r.data)
}

// MarshalJSON lets records embed in output structures.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.data == nil {
		return []byte("null"), nil
	}
	return json.Marshal(r.data)
}

// Fields discovers every dotted path present in this record, sorted.
// Object values contribute their own path plus their children; arrays
// do not recurse.
func (r Record) Fields() []string {
	var out []string
	walkFields(r.data, "", &out)
	sort.Strings(out)
	return out
}

func walkFields(m map[string]any, prefix string, out *[]string) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		*out = append(*out, path)
		if child, ok := v.(map[string]any); ok {
			walkFields(child, path, out)
		}
	}
}

// Value is one resolved field. The zero Value is the empty sentinel:
// Get on it stays empty, Raw is nil, Str is "".
type Value struct {
	v any
}

// Get resolves a dotted path relative to this value. Traversal through
// anything that is not an object yields the empty Value.
func (v Value) Get(path string) Value {
	if path == "" {
		return Value{}
	}
	cur := v.v
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return Value{}
		}
		cur, ok = m[seg]
		if !ok {
			return Value{}
		}
	}
	return Value{v: cur}
}

// IsEmpty reports whether the value is the empty sentinel or JSON null.
func (v Value) IsEmpty() bool {
	return v.v == nil
}

// Raw returns the underlying decoded value, nil when empty.
func (v Value) Raw() any {
	return v.v
}

// Str renders the value for display. Empty renders "", numbers render
// without float artifacts (443, not 443.000000), composites render as
// compact JSON.
func (v Value) Str() string {
	switch t := v.v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Int returns the value as an int, 0 when empty or non-numeric.
func (v Value) Int() int {
	switch t := v.v.(type) {
	case float64:
		return int(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}

// Float64 returns the value as a float64, 0 when empty or non-numeric.
func (v Value) Float64() float64 {
	switch t := v.v.(type) {
	case float64:
		return t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Bool returns the value as a bool, false when empty or non-boolean.
func (v Value) Bool() bool {
	b, _ := v.v.(bool)
	return b
}
