// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ky006

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

type event struct {
	f     physic.Frequency
	sleep time.Duration
	off   bool
}

// pwmPin logs the calls the buzzer makes.
type pwmPin struct {
	gpiotest.Pin
	log    []event
	pwmErr error
}

func (p *pwmPin) PWM(duty gpio.Duty, f physic.Frequency) error {
	if p.pwmErr != nil {
		return p.pwmErr
	}
	p.log = append(p.log, event{f: f})
	return nil
}

func (p *pwmPin) Out(l gpio.Level) error {
	p.log = append(p.log, event{off: true})
	return nil
}

func newDev(t *testing.T) (*Dev, *pwmPin) {
	pin := &pwmPin{Pin: gpiotest.Pin{N: "buzzer"}}
	d, err := New(pin)
	if err != nil {
		t.Fatal(err)
	}
	d.sleep = func(dur time.Duration) { pin.log = append(pin.log, event{sleep: dur}) }
	pin.log = nil
	return d, pin
}

func TestSoundAlarm(t *testing.T) {
	for alarm, pattern := range Patterns {
		d, pin := newDev(t)
		if err := d.SoundAlarm(alarm); err != nil {
			t.Fatal(err)
		}
		if len(pin.log) != 4*len(pattern) {
			t.Fatalf("%s: %d events for %d tones", alarm, len(pin.log), len(pattern))
		}
		for i, tone := range pattern {
			ev := pin.log[4*i : 4*i+4]
			if ev[0].f != tone.Frequency || ev[1].sleep != tone.Duration || !ev[2].off || ev[3].sleep != gap {
				t.Errorf("%s tone %d: unexpected events %+v", alarm, i, ev)
			}
		}
	}
}

func TestCO2Pattern(t *testing.T) {
	p := Patterns[CO2]
	if len(p) != 5 || p[3].Frequency != 1400*physic.Hertz || p[3].Duration != 200*time.Millisecond {
		t.Errorf("unexpected co2 pattern %+v", p)
	}
}

func TestUnknownAlarm(t *testing.T) {
	d, pin := newDev(t)
	if err := d.SoundAlarm("smoke"); !errors.Is(err, ErrUnknownAlarm) {
		t.Errorf("expected ErrUnknownAlarm, got %v", err)
	}
	if len(pin.log) != 0 {
		t.Errorf("buzzer touched: %+v", pin.log)
	}
}

func TestPWMError(t *testing.T) {
	d, pin := newDev(t)
	pin.pwmErr = errors.New("no pwm")
	if err := d.SoundAlarm(Flame); err == nil {
		t.Error("expected error")
	}
	if len(pin.log) != 1 || !pin.log[0].off {
		t.Errorf("buzzer not silenced: %+v", pin.log)
	}
}
