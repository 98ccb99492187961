package model

import (
	"bytes"
	"encoding/json"
)

// Args is an ordered map of decoded event fields. Iteration order follows
// the ABI input order of the event that produced it.
type Args struct {
	keys   []string
	values map[string]interface{}
}

func NewArgs() Args {
	return Args{values: make(map[string]interface{})}
}

// Set stores value under name, keeping the first insertion position.
func (a *Args) Set(name string, value interface{}) {
	if a.values == nil {
		a.values = make(map[string]interface{})
	}
	if _, ok := a.values[name]; !ok {
		a.keys = append(a.keys, name)
	}
	a.values[name] = value
}

func (a Args) Get(name string) (interface{}, bool) {
	if a.values == nil {
		return nil, false
	}
	v, ok := a.values[name]
	return v, ok
}

func (a Args) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

func (a Args) Len() int {
	return len(a.keys)
}

// MarshalJSON encodes the fields as a JSON object in insertion order.
func (a Args) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(a.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
