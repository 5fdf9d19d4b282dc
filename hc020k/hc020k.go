// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hc020k measures wheel speed and travelled distance with an
// HC-020K photoelectric encoder.
//
// A goroutine counts rising edges on the encoder output. Once per Period
// the count is converted into revolutions per second and accumulated into
// the travelled distance.
package hc020k

import (
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Opts holds the configuration options for the encoder.
type Opts struct {
	// PulsesPerRevolution is the number of slots in the encoder disk.
	PulsesPerRevolution int
	// WheelDiameter in cm.
	WheelDiameter float64
	// Period between two speed updates.
	Period time.Duration
}

// DefaultOpts holds the default configuration options.
var DefaultOpts = Opts{
	PulsesPerRevolution: 20,
	WheelDiameter:       6.77,
	Period:              time.Second,
}

// edgeWait bounds a single WaitForEdge so Halt is noticed.
const edgeWait = 100 * time.Millisecond

// Dev is an HC-020K encoder wired to a GPIO line.
type Dev struct {
	pin  gpio.PinIn
	opts Opts

	mu       sync.Mutex
	pulses   int
	rps      float64
	distance float64
	last     time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// New configures pin for rising edges and starts counting. opts may be nil,
// in which case DefaultOpts is used. Halt stops the counter.
func New(pin gpio.PinIn, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{pin: pin, opts: *opts, stop: make(chan struct{})}
	if d.opts.PulsesPerRevolution <= 0 {
		d.opts.PulsesPerRevolution = DefaultOpts.PulsesPerRevolution
	}
	if d.opts.Period <= 0 {
		d.opts.Period = DefaultOpts.Period
	}
	if err := pin.In(gpio.PullUp, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("hc020k: %w", err)
	}
	d.last = time.Now()
	d.wg.Add(2)
	go d.count()
	go d.tick()
	return d, nil
}

// SpeedCMPS returns the speed in cm/s measured over the last period.
func (d *Dev) SpeedCMPS() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rps * d.circumference()
}

// DistanceM returns the distance travelled since New in metres.
func (d *Dev) DistanceM() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.distance / 100
}

// Halt stops counting.
func (d *Dev) Halt() error {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	d.wg.Wait()
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("hc020k{%s}", d.pin)
}

func (d *Dev) circumference() float64 {
	return d.opts.WheelDiameter * math.Pi
}

func (d *Dev) count() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		if d.pin.WaitForEdge(edgeWait) {
			d.mu.Lock()
			d.pulses++
			d.mu.Unlock()
		}
	}
}

func (d *Dev) tick() {
	defer d.wg.Done()
	t := time.NewTicker(d.opts.Period)
	defer t.Stop()
	for {
		select {
		case <-d.stop:
			return
		case now := <-t.C:
			d.update(now)
		}
	}
}

// update converts the pulses counted since the previous update.
func (d *Dev) update(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	elapsed := now.Sub(d.last).Seconds()
	d.last = now
	if elapsed <= 0 {
		return
	}
	d.rps = float64(d.pulses) / float64(d.opts.PulsesPerRevolution) / elapsed
	d.pulses = 0
	d.distance += d.rps * d.circumference() * elapsed
}
