package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
)

// OrderedMap is an insertion-ordered map. Re-setting a key keeps its position.
type OrderedMap[V any] struct {
	keys  []string
	index map[string]int
	vals  []V
}

func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{index: make(map[string]int)}
}

func (m *OrderedMap[V]) Set(key string, v V) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[key]; ok {
		m.vals[i] = v
		return
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, v)
}

func (m *OrderedMap[V]) Get(key string) (V, bool) {
	i, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return m.vals[i], true
}

func (m *OrderedMap[V]) Has(key string) bool {
	_, ok := m.index[key]
	return ok
}

func (m *OrderedMap[V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *OrderedMap[V]) Keys() []string {
	return append([]string(nil), m.keys...)
}

// At returns the i-th entry. An index that was never registered is a
// programming error and panics.
func (m *OrderedMap[V]) At(i int) (string, V) {
	if i < 0 || i >= len(m.keys) {
		panic(fmt.Sprintf("model: ordered map index %d out of range [0,%d)", i, len(m.keys)))
	}
	return m.keys[i], m.vals[i]
}

// Index returns the position of key, or -1.
func (m *OrderedMap[V]) Index(key string) int {
	if i, ok := m.index[key]; ok {
		return i
	}
	return -1
}

// All iterates entries in insertion order.
func (m *OrderedMap[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		if m == nil {
			return
		}
		for i, k := range m.keys {
			if !yield(k, m.vals[i]) {
				return
			}
		}
	}
}

// Backward iterates entries in reverse insertion order.
func (m *OrderedMap[V]) Backward() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		if m == nil {
			return
		}
		for i := len(m.keys) - 1; i >= 0; i-- {
			if !yield(m.keys[i], m.vals[i]) {
				return
			}
		}
	}
}

// MarshalJSON writes an object with keys in insertion order.
func (m *OrderedMap[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.vals[i])
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
