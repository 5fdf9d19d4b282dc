// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package record holds the readings of one aggregation cycle as an
// insertion ordered set of dotted keys, and encodes it as one JSON line.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrKeyConflict is returned by Nested when a key is both a value and the
// prefix of another key, as "gyroscope" and "gyroscope.x".
var ErrKeyConflict = errors.New("record: key is both a value and a prefix")

// Record maps dotted keys such as "accelerometer.x" to scalar values. The
// zero value is ready to use. A Record is not safe for concurrent use.
type Record struct {
	keys []string
	vals map[string]any
}

// New returns an empty record.
func New() *Record {
	return &Record{}
}

// Set stores v under key. An existing key keeps its position.
func (r *Record) Set(key string, v any) {
	if r.vals == nil {
		r.vals = make(map[string]any)
	}
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Has reports whether key is set.
func (r *Record) Has(key string) bool {
	_, ok := r.vals[key]
	return ok
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of keys.
func (r *Record) Len() int {
	return len(r.keys)
}

// Clear removes every key.
func (r *Record) Clear() {
	r.keys = r.keys[:0]
	clear(r.vals)
}

// MarshalJSON encodes the record as one flat object in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, k, r.vals[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Line returns the flat encoding.
func (r *Record) Line() (string, error) {
	b, err := r.MarshalJSON()
	return string(b), err
}

// Nested encodes the record with dotted keys expanded into nested objects,
// "distance.front" becoming {"distance":{"front":...}}. Keys that are both a
// value and a prefix fail with ErrKeyConflict.
func (r *Record) Nested() ([]byte, error) {
	root := &node{object: true}
	for _, k := range r.keys {
		n := root
		parts := strings.Split(k, ".")
		for i, p := range parts[:len(parts)-1] {
			c, err := n.child(p, true)
			if err != nil {
				return nil, fmt.Errorf("%w: %q at %q", err, k, strings.Join(parts[:i+1], "."))
			}
			n = c
		}
		leaf, err := n.child(parts[len(parts)-1], false)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, k)
		}
		leaf.val = r.vals[k]
	}
	var buf bytes.Buffer
	if err := root.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type node struct {
	keys     []string
	children map[string]*node
	val      any
	object   bool
}

// child returns the named child, creating it as an object or a leaf.
func (n *node) child(name string, object bool) (*node, error) {
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c, ok := n.children[name]
	if !ok {
		c = &node{object: object}
		n.children[name] = c
		n.keys = append(n.keys, name)
		return c, nil
	}
	if c.object != object {
		return nil, ErrKeyConflict
	}
	return c, nil
}

func (n *node) encode(buf *bytes.Buffer) error {
	if !n.object {
		return writeValue(buf, n.val)
	}
	buf.WriteByte('{')
	for i, k := range n.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(buf, k); err != nil {
			return err
		}
		if err := n.children[k].encode(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeMember(buf *bytes.Buffer, k string, v any) error {
	if err := writeKey(buf, k); err != nil {
		return err
	}
	return writeValue(buf, v)
}

func writeKey(buf *bytes.Buffer, k string) error {
	b, err := json.Marshal(k)
	if err != nil {
		return err
	}
	buf.Write(b)
	buf.WriteByte(':')
	return nil
}

// writeValue encodes v. Non finite floats become null.
func writeValue(buf *bytes.Buffer, v any) error {
	switch f := v.(type) {
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString("null")
			return nil
		}
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			buf.WriteString("null")
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	buf.Write(b)
	return nil
}
