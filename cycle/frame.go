// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cycle

import (
	"slices"

	"github.com/GermanBionicSystems/sensorhub/ky006"
	"github.com/GermanBionicSystems/sensorhub/record"
)

// Reference conditions used by gas compensation when no ambient reading
// is available. The correction factor is close to 1 there.
const (
	referenceCelsius  = 20
	referenceHumidity = 33
)

// Frame is the state of one tick shared by the sensors read during it.
type Frame struct {
	// Record collects the keys sent at the end of the tick.
	Record *record.Record

	celsius, humidity float64
	hasEnv            bool
	hPa               float64
	hasPressure       bool
	alarms            []ky006.Alarm
}

func newFrame(r *record.Record) *Frame {
	return &Frame{Record: r}
}

// SetAmbient publishes the temperature in °C and relative humidity in
// percent for sensors read later in the tick.
func (f *Frame) SetAmbient(celsius, humidity float64) {
	f.celsius, f.humidity, f.hasEnv = celsius, humidity, true
}

// Ambient returns the published temperature and humidity.
func (f *Frame) Ambient() (celsius, humidity float64, ok bool) {
	return f.celsius, f.humidity, f.hasEnv
}

// SetPressure publishes the ambient pressure in hPa.
func (f *Frame) SetPressure(hPa float64) {
	f.hPa, f.hasPressure = hPa, true
}

// Pressure returns the published pressure in hPa.
func (f *Frame) Pressure() (float64, bool) {
	return f.hPa, f.hasPressure
}

// Raise queues an alarm. Each category is queued at most once per tick.
func (f *Frame) Raise(a ky006.Alarm) {
	if !slices.Contains(f.alarms, a) {
		f.alarms = append(f.alarms, a)
	}
}

// Alarms returns the alarms in the order they were raised.
func (f *Frame) Alarms() []ky006.Alarm {
	return slices.Clone(f.alarms)
}
