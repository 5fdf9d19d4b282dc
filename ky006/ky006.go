// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ky006 plays alarm patterns on a KY-006 passive buzzer driven by
// a PWM capable GPIO.
//
// Each alarm is a sequence of tones whose rhythm follows the syllables of
// its name, so that the alarms can be told apart by ear.
package ky006

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Alarm names an alarm category.
type Alarm string

const (
	Flame Alarm = "flame"
	CO2   Alarm = "co2"
	NH3   Alarm = "nh3"
)

// ErrUnknownAlarm is returned by SoundAlarm for an alarm without pattern.
var ErrUnknownAlarm = errors.New("ky006: unknown alarm")

// Tone is one syllable of a pattern.
type Tone struct {
	Frequency physic.Frequency
	Duration  time.Duration
}

func tone(hz int, ms int) Tone {
	return Tone{Frequency: physic.Frequency(hz) * physic.Hertz, Duration: time.Duration(ms) * time.Millisecond}
}

// Patterns maps every alarm to its tones.
var Patterns = map[Alarm][]Tone{
	// "flame"
	Flame: {tone(300, 500)},
	// "car-bon di-ox-ide"
	CO2: {tone(800, 200), tone(300, 200), tone(1000, 200), tone(1400, 200), tone(900, 200)},
	// "am-mo-ni-a"
	NH3: {tone(600, 300), tone(700, 300), tone(600, 300), tone(500, 300)},
}

// gap separates two tones.
const gap = time.Microsecond

// Dev is a buzzer on a PWM pin.
type Dev struct {
	mu    sync.Mutex
	pin   gpio.PinOut
	sleep func(time.Duration)
}

// New silences the buzzer and returns it.
func New(pin gpio.PinOut) (*Dev, error) {
	d := &Dev{pin: pin, sleep: time.Sleep}
	if err := d.silence(); err != nil {
		return nil, err
	}
	return d, nil
}

// SoundAlarm plays the pattern of a and returns once it is done.
func (d *Dev) SoundAlarm(a Alarm) error {
	pattern, ok := Patterns[a]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAlarm, string(a))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range pattern {
		if err := d.pin.PWM(gpio.DutyHalf, t.Frequency); err != nil {
			_ = d.silence()
			return fmt.Errorf("ky006: %w", err)
		}
		d.sleep(t.Duration)
		if err := d.silence(); err != nil {
			return err
		}
		d.sleep(gap)
	}
	return nil
}

// Halt silences the buzzer.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.silence()
}

func (d *Dev) String() string {
	return fmt.Sprintf("ky006{%s}", d.pin)
}

func (d *Dev) silence() error {
	if err := d.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("ky006: %w", err)
	}
	return nil
}
