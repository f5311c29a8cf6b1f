package payload

import (
	"strings"

	"github.com/goccy/go-json"
)

// Record is a flat or nested object whose keys keep first-seen order.
type Record struct {
	keys   []string
	fields map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: make(map[string]Value)}
}

// RecordOf builds a record from alternating key/value pairs. Values go
// through FromAny. Intended for fixtures.
func RecordOf(kv ...any) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		r.Set(k, FromAny(kv[i+1]))
	}
	return r
}

// Set stores v under key, appending key on first use.
func (r *Record) Set(key string, v Value) {
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = v
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.fields[key]
	return v, ok
}

// Has reports whether key is present at the top level.
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Lookup resolves name as a top-level key first and then as a dotted path
// through nested records.
func (r *Record) Lookup(name string) (Value, bool) {
	if v, ok := r.Get(name); ok {
		return v, true
	}
	if !strings.Contains(name, ".") {
		return Value{}, false
	}
	cur := r
	parts := strings.Split(name, ".")
	for i, part := range parts {
		v, ok := cur.Get(part)
		if !ok {
			return Value{}, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		cur = v.Record()
		if cur == nil {
			return Value{}, false
		}
	}
	return Value{}, false
}

// Keys returns the keys in first-seen order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Map converts the record into a plain map.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, r.Len())
	if r == nil {
		return out
	}
	for _, k := range r.keys {
		out[k] = r.fields[k].Interface()
	}
	return out
}

// Equal compares keys, order, and values.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	if r == nil || o == nil {
		return r.Len() == 0 && o.Len() == 0
	}
	for i, k := range r.keys {
		if o.keys[i] != k {
			return false
		}
		if !r.fields[k].Equal(o.fields[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as an object in key order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	if r != nil {
		for i, k := range r.keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			sb.Write(kb)
			sb.WriteByte(':')
			vb, err := r.fields[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			sb.Write(vb)
		}
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

// Records returns the records a payload contributes: the elements of a list
// that are records, or the payload itself when it is a record.
func Records(v Value) []*Record {
	switch v.Kind() {
	case KindRecord:
		return []*Record{v.Record()}
	case KindList:
		var out []*Record
		for _, item := range v.Items() {
			if rec := item.Record(); rec != nil {
				out = append(out, rec)
			}
		}
		return out
	default:
		return nil
	}
}
