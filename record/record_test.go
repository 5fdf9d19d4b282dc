// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package record

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertionOrder(t *testing.T) {
	r := New()
	r.Set("timestamp", "2024-12-18T11:30:05")
	r.Set("temperature", 21.5)
	r.Set("accelerometer.x", 0.1)
	r.Set("flame", false)
	r.Set("co2", 416)

	line, err := r.Line()
	require.NoError(t, err)
	assert.Equal(t, `{"timestamp":"2024-12-18T11:30:05","temperature":21.5,"accelerometer.x":0.1,"flame":false,"co2":416}`, line)
	assert.Equal(t, []string{"timestamp", "temperature", "accelerometer.x", "flame", "co2"}, r.Keys())
}

func TestSetReplacesInPlace(t *testing.T) {
	r := New()
	r.Set("a", 1)
	r.Set("b", 2)
	r.Set("a", 3)

	assert.Equal(t, 2, r.Len())
	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	line, err := r.Line()
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"b":2}`, line)
}

func TestNonFinite(t *testing.T) {
	var r Record
	r.Set("nan", math.NaN())
	r.Set("inf", math.Inf(-1))
	r.Set("nil", nil)
	r.Set("err", "Error reading SCD41 data: \"timeout\"")

	line, err := r.Line()
	require.NoError(t, err)
	assert.Equal(t, `{"nan":null,"inf":null,"nil":null,"err":"Error reading SCD41 data: \"timeout\""}`, line)
}

func TestClear(t *testing.T) {
	r := New()
	r.Set("a", 1)
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Has("a"))
	line, err := r.Line()
	require.NoError(t, err)
	assert.Equal(t, `{}`, line)

	r.Set("b", true)
	assert.Equal(t, []string{"b"}, r.Keys())
}

func TestNested(t *testing.T) {
	r := New()
	r.Set("distance.front", 12.5)
	r.Set("co2", 500)
	r.Set("distance.left", 30.0)
	r.Set("speed.front_left", 1.5)

	b, err := r.Nested()
	require.NoError(t, err)
	assert.Equal(t, `{"distance":{"front":12.5,"left":30},"co2":500,"speed":{"front_left":1.5}}`, string(b))
}

func TestNestedConflict(t *testing.T) {
	r := New()
	r.Set("gyroscope", 1)
	r.Set("gyroscope.x", 2)
	_, err := r.Nested()
	assert.ErrorIs(t, err, ErrKeyConflict)

	r = New()
	r.Set("gyroscope.x", 2)
	r.Set("gyroscope", 1)
	_, err = r.Nested()
	assert.ErrorIs(t, err, ErrKeyConflict)

	// The flat encoding keeps both.
	line, err := r.Line()
	require.NoError(t, err)
	assert.Equal(t, `{"gyroscope.x":2,"gyroscope":1}`, line)
}

func TestUnsupportedValue(t *testing.T) {
	r := New()
	r.Set("ch", make(chan int))
	_, err := r.Line()
	assert.Error(t, err)
}
