// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ky026 reads a KY-026 infrared flame detector through its analog
// output. The output voltage drops when infrared light from a flame hits
// the photodiode.
package ky026

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/analog"
)

// DefaultThreshold is the ADC count below which a flame is reported, for a
// 12 bit ADC.
const DefaultThreshold int32 = 1000

// ADC is the analog input the detector is wired to.
type ADC interface {
	Read() (analog.Sample, error)
}

// Dev is a KY-026 flame detector.
type Dev struct {
	mu        sync.Mutex
	adc       ADC
	threshold int32
	last      int32
}

// New returns a detector. A threshold of 0 selects DefaultThreshold.
func New(adc ADC, threshold int32) (*Dev, error) {
	if adc == nil {
		return nil, errors.New("ky026: nil ADC")
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Dev{adc: adc, threshold: threshold}, nil
}

// FlameDetected reports whether the ADC count is below the threshold.
func (d *Dev) FlameDetected() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.adc.Read()
	if err != nil {
		return false, fmt.Errorf("ky026: %w", err)
	}
	d.last = s.Raw
	return s.Raw < d.threshold, nil
}

// LastRaw returns the ADC count of the last read.
func (d *Dev) LastRaw() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Dev) String() string {
	return fmt.Sprintf("ky026{threshold: %d}", d.threshold)
}
