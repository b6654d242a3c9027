package models

import (
	"bytes"
	"encoding/json"
)

// FieldErrors maps a report field to the description of the error that
// stage hit. Insertion order is kept so the rendered report lists errors in
// the order they happened.
type FieldErrors struct {
	keys   []string
	values map[string]string
}

func NewFieldErrors() *FieldErrors {
	return &FieldErrors{values: map[string]string{}}
}

// Add stores msg under key. It returns false and leaves the map untouched
// when key is already present.
func (e *FieldErrors) Add(key, msg string) bool {
	if _, ok := e.values[key]; ok {
		return false
	}
	e.keys = append(e.keys, key)
	e.values[key] = msg
	return true
}

func (e *FieldErrors) Get(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

func (e *FieldErrors) Has(key string) bool {
	_, ok := e.values[key]
	return ok
}

func (e *FieldErrors) Len() int {
	return len(e.keys)
}

// Keys returns the keys in insertion order.
func (e *FieldErrors) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Filter returns the keys accepted by keep, in insertion order.
func (e *FieldErrors) Filter(keep func(key string) bool) []string {
	var out []string
	for _, k := range e.keys {
		if keep(k) {
			out = append(out, k)
		}
	}
	return out
}

// MarshalJSON writes the errors as a JSON object in insertion order.
func (e *FieldErrors) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
