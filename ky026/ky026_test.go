// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ky026

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/analog"
)

type fakeADC struct {
	raw int32
	err error
}

func (f *fakeADC) Read() (analog.Sample, error) {
	return analog.Sample{Raw: f.raw}, f.err
}

func TestFlameDetected(t *testing.T) {
	tests := []struct {
		raw       int32
		threshold int32
		flame     bool
	}{
		{raw: 4095, threshold: 0, flame: false},
		{raw: 1000, threshold: 0, flame: false},
		{raw: 999, threshold: 0, flame: true},
		{raw: 1500, threshold: 2000, flame: true},
	}
	for _, test := range tests {
		d, err := New(&fakeADC{raw: test.raw}, test.threshold)
		if err != nil {
			t.Fatal(err)
		}
		flame, err := d.FlameDetected()
		if err != nil {
			t.Fatal(err)
		}
		if flame != test.flame {
			t.Errorf("raw %d threshold %d: flame=%t expected %t", test.raw, test.threshold, flame, test.flame)
		}
		if d.LastRaw() != test.raw {
			t.Errorf("LastRaw()=%d", d.LastRaw())
		}
	}
}

func TestError(t *testing.T) {
	d, _ := New(&fakeADC{err: errors.New("no adc")}, 0)
	if _, err := d.FlameDetected(); err == nil {
		t.Error("expected error")
	}
	if _, err := New(nil, 0); err == nil {
		t.Error("expected error for nil ADC")
	}
}
