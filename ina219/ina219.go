// Copyright 2023 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina219

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

const (
	DefaultAddress   uint16 = 0x40
	regConfig        uint8  = 0x00 // CONFIGURATION REGISTER (R/W)
	regShuntVoltage  uint8  = 0x01 // SHUNT VOLTAGE REGISTER (R)
	regBusVoltage    uint8  = 0x02 // BUS VOLTAGE REGISTER (R)
	regPower         uint8  = 0x03 // POWER REGISTER (R)
	regCurrent       uint8  = 0x04 // CURRENT REGISTER (R)
	regCalibration   uint8  = 0x05 // CALIBRATION REGISTER (R/W)
	busOverflow             = 0x0001
	busVoltageLSB           = 4 * physic.MilliVolt
	shuntVoltageLSB         = 10 * physic.MicroVolt
	calibrationScale        = 0.04096
	powerLSBFactor          = 20
	defaultConfig    uint16 = 0x399f // 32V range, /8 gain, 12 bit, continuous
)

// ErrOverflow is returned when the power or current calculation overflowed.
var ErrOverflow = errors.New("ina219: math overflow, raise MaxCurrent")

// Opts holds the configuration options for the monitor.
type Opts struct {
	Address uint16
	// ShuntResistance in Ω.
	ShuntResistance float64
	// MaxCurrent in A sets the current register resolution.
	MaxCurrent float64
	// BatteryEmpty and BatteryFull in V bound BatteryPercentage.
	BatteryEmpty float64
	BatteryFull  float64
}

// DefaultOpts matches a 0.1Ω shunt and a 2S lithium pack.
var DefaultOpts = Opts{
	Address:         DefaultAddress,
	ShuntResistance: 0.1,
	MaxCurrent:      3.2768,
	BatteryEmpty:    6.0,
	BatteryFull:     8.4,
}

// Reading is one sample of the monitor.
type Reading struct {
	BusVoltage   physic.ElectricPotential
	ShuntVoltage physic.ElectricPotential
	Current      physic.ElectricCurrent
	Power        physic.Power
}

func (r Reading) String() string {
	return fmt.Sprintf("%s %s %s", r.BusVoltage, r.Current, r.Power)
}

// Dev is a handle to an INA219.
type Dev struct {
	d          *i2c.Dev
	opts       Opts
	mu         sync.Mutex
	currentLSB float64
	powerLSB   float64
}

// New configures the monitor. opts may be nil, in which case DefaultOpts is
// used.
func New(bus i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.ShuntResistance <= 0 || opts.MaxCurrent <= 0 {
		return nil, errors.New("ina219: shunt resistance and max current must be positive")
	}
	addr := opts.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	d := &Dev{d: &i2c.Dev{Bus: bus, Addr: addr}, opts: *opts}
	d.currentLSB = opts.MaxCurrent / 32768
	d.powerLSB = powerLSBFactor * d.currentLSB
	cal := uint16(math.Trunc(calibrationScale / (d.currentLSB * opts.ShuntResistance)))
	if err := d.write(regCalibration, cal); err != nil {
		return nil, err
	}
	if err := d.write(regConfig, defaultConfig); err != nil {
		return nil, err
	}
	return d, nil
}

// Read returns the bus voltage, shunt voltage, current and power.
func (d *Dev) Read() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var r Reading

	bus, err := d.read(regBusVoltage)
	if err != nil {
		return r, err
	}
	if bus&busOverflow != 0 {
		return r, ErrOverflow
	}
	shunt, err := d.read(regShuntVoltage)
	if err != nil {
		return r, err
	}
	current, err := d.read(regCurrent)
	if err != nil {
		return r, err
	}
	power, err := d.read(regPower)
	if err != nil {
		return r, err
	}

	r.BusVoltage = physic.ElectricPotential(bus>>3) * busVoltageLSB
	r.ShuntVoltage = physic.ElectricPotential(int16(shunt)) * shuntVoltageLSB
	r.Current = physic.ElectricCurrent(float64(int16(current)) * d.currentLSB * float64(physic.Ampere))
	r.Power = physic.Power(float64(power) * d.powerLSB * float64(physic.Watt))
	return r, nil
}

// BatteryPercentage maps the bus voltage linearly between BatteryEmpty and
// BatteryFull, clamped to [0, 100].
func (d *Dev) BatteryPercentage(v physic.ElectricPotential) float64 {
	span := d.opts.BatteryFull - d.opts.BatteryEmpty
	if span <= 0 {
		return 0
	}
	p := (float64(v)/float64(physic.Volt) - d.opts.BatteryEmpty) / span * 100
	return math.Max(0, math.Min(100, p))
}

// Halt puts the monitor in power-down mode.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(regConfig, defaultConfig&^0x0007)
}

func (d *Dev) String() string {
	return fmt.Sprintf("ina219: %s", d.d.String())
}

func (d *Dev) read(reg uint8) (uint16, error) {
	b := make([]byte, 2)
	if err := d.d.Tx([]byte{reg}, b); err != nil {
		return 0, fmt.Errorf("ina219: reading register 0x%02x: %w", reg, err)
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func (d *Dev) write(reg uint8, v uint16) error {
	if err := d.d.Tx([]byte{reg, byte(v >> 8), byte(v)}, nil); err != nil {
		return fmt.Errorf("ina219: writing register 0x%02x: %w", reg, err)
	}
	return nil
}
