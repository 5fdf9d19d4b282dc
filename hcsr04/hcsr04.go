// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hcsr04 measures distances with an HC-SR04 ultrasonic ranger.
//
// A 10µs pulse on the trigger line starts a measurement. The echo line is
// high for as long as the sound takes to travel to the obstacle and back.
//
// # Datasheet
//
// https://cdn.sparkfun.com/datasheets/Sensors/Proximity/HCSR04.pdf
package hcsr04

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

var (
	// ErrTimeout is returned when the echo does not start or end in time.
	ErrTimeout = errors.New("hcsr04: echo timeout")
	// ErrTooFewEchoes is returned by MeasureMedian when less than three
	// readings succeeded.
	ErrTooFewEchoes = errors.New("hcsr04: too few valid echoes")
)

// Speed of sound in cm/µs at 20°C.
const soundSpeed = 0.0343

const (
	minEchoes     = 3
	maxStaleEdges = 16
)

// Opts holds the configuration options for the ranger.
type Opts struct {
	// Readings is the number of measurements MeasureMedian takes.
	Readings int
	// Timeout bounds the wait for each echo edge.
	Timeout time.Duration
	// Pause separates two measurements, letting echoes die out.
	Pause time.Duration
}

// DefaultOpts holds the default configuration options.
var DefaultOpts = Opts{
	Readings: 5,
	Timeout:  30 * time.Millisecond,
	Pause:    50 * time.Millisecond,
}

// Dev is an HC-SR04 wired to two GPIO lines.
type Dev struct {
	mu   sync.Mutex
	trig gpio.PinOut
	echo gpio.PinIn
	opts Opts
	now  func() time.Time
}

// New returns a ranger. opts may be nil, in which case DefaultOpts is used.
func New(trig gpio.PinOut, echo gpio.PinIn, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{trig: trig, echo: echo, opts: *opts, now: time.Now}
	if d.opts.Readings <= 0 {
		d.opts.Readings = DefaultOpts.Readings
	}
	if err := trig.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hcsr04: %w", err)
	}
	if err := echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("hcsr04: %w", err)
	}
	return d, nil
}

// Distance returns a single measurement in cm.
func (d *Dev) Distance() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.measure()
}

// MeasureMedian takes Opts.Readings measurements and returns the median
// distance in cm of the valid ones.
func (d *Dev) MeasureMedian() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	distances := make([]float64, 0, d.opts.Readings)
	var lastErr error
	for i := range d.opts.Readings {
		cm, err := d.measure()
		if err == nil {
			distances = append(distances, cm)
		} else if errors.Is(err, ErrTimeout) {
			lastErr = err
		} else {
			return 0, err
		}
		if i < d.opts.Readings-1 && d.opts.Pause > 0 {
			time.Sleep(d.opts.Pause)
		}
	}
	if len(distances) < minEchoes {
		if lastErr != nil {
			return 0, fmt.Errorf("%w: %d of %d: %v", ErrTooFewEchoes, len(distances), d.opts.Readings, lastErr)
		}
		return 0, ErrTooFewEchoes
	}
	return median(distances), nil
}

// Halt drives the trigger line low.
func (d *Dev) Halt() error {
	return d.trig.Out(gpio.Low)
}

func (d *Dev) String() string {
	return fmt.Sprintf("hcsr04{%s, %s}", d.trig, d.echo)
}

func (d *Dev) measure() (float64, error) {
	d.drain()
	if err := d.trigger(); err != nil {
		return 0, err
	}
	// The pulse starts on a rising edge and ends on a falling one. An edge
	// with the wrong level is a leftover from an echo that outlived Timeout.
	if !d.echo.WaitForEdge(d.opts.Timeout) || d.echo.Read() != gpio.High {
		return 0, ErrTimeout
	}
	start := d.now()
	if !d.echo.WaitForEdge(d.opts.Timeout) || d.echo.Read() != gpio.Low {
		return 0, ErrTimeout
	}
	return toCentimetres(d.now().Sub(start)), nil
}

// drain discards edges queued since the last measurement.
func (d *Dev) drain() {
	for range maxStaleEdges {
		if !d.echo.WaitForEdge(0) {
			return
		}
	}
}

func (d *Dev) trigger() error {
	if err := d.trig.Out(gpio.Low); err != nil {
		return fmt.Errorf("hcsr04: %w", err)
	}
	time.Sleep(2 * time.Microsecond)
	if err := d.trig.Out(gpio.High); err != nil {
		return fmt.Errorf("hcsr04: %w", err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := d.trig.Out(gpio.Low); err != nil {
		return fmt.Errorf("hcsr04: %w", err)
	}
	return nil
}

// toCentimetres converts an echo duration into the one way distance.
func toCentimetres(echo time.Duration) float64 {
	return float64(echo.Microseconds()) * soundSpeed / 2
}

// median averages the two middle values of an even count.
func median(v []float64) float64 {
	sort.Float64s(v)
	n := len(v)
	if n%2 == 0 {
		return (v[n/2-1] + v[n/2]) / 2
	}
	return v[n/2]
}
