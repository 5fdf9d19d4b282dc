// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package l3gd20 reads angular rates from an ST L3GD20 3-axis gyroscope
// over I2C.
//
// # Datasheet
//
// https://www.st.com/resource/en/datasheet/l3gd20.pdf
package l3gd20

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"periph.io/x/conn/v3/i2c"
)

// Range is the full scale selection of CTRL_REG4.
type Range byte

// Rate is the output data rate selection of CTRL_REG1.
type Rate byte

const (
	DefaultAddress uint16 = 0x69

	WhoAmI    = 0x0f // Device identification
	CtrlReg1  = 0x20 // Data rate, bandwidth and axis enable
	CtrlReg4  = 0x23 // Full scale selection
	OutTemp   = 0x26 // Temperature data
	StatusReg = 0x27 // Data available and overrun
	OutXL     = 0x28 // First of the six output registers

	autoIncrement = 0x80
	// Power on and enable X, Y and Z.
	enableAxes = 0x0f

	Range250DPS  Range = 0x00
	Range500DPS  Range = 0x10
	Range2000DPS Range = 0x20

	Rate100Hz Rate = 0x00
	Rate200Hz Rate = 0x40
	Rate400Hz Rate = 0x80
	Rate800Hz Rate = 0xc0
)

var dpsPerLSB = map[Range]float64{
	Range250DPS:  0.00875,
	Range500DPS:  0.0175,
	Range2000DPS: 0.07,
}

// Opts holds the configuration options for the gyroscope.
type Opts struct {
	Address uint16
	Range   Range
	Rate    Rate
}

// DefaultOpts holds the default configuration options.
var DefaultOpts = Opts{
	Address: DefaultAddress,
	Range:   Range250DPS,
	Rate:    Rate100Hz,
}

// Axes holds one value per axis.
type Axes struct {
	X, Y, Z float64
}

// Dev is a handle to an L3GD20.
type Dev struct {
	mu    sync.Mutex
	d     *i2c.Dev
	scale float64
}

// NewI2C configures the range and data rate. opts may be nil, in which case
// DefaultOpts is used.
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	scale, ok := dpsPerLSB[opts.Range]
	if !ok {
		return nil, fmt.Errorf("l3gd20: invalid range 0x%02x", byte(opts.Range))
	}
	addr := opts.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, scale: scale}
	if err := d.writeRegister(CtrlReg4, byte(opts.Range)); err != nil {
		return nil, err
	}
	if err := d.writeRegister(CtrlReg1, byte(opts.Rate)|enableAxes); err != nil {
		return nil, err
	}
	return d, nil
}

// Read returns the angular rates in degrees per second.
func (d *Dev) Read() (Axes, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := make([]byte, 6)
	if err := d.d.Tx([]byte{OutXL | autoIncrement}, b); err != nil {
		return Axes{}, fmt.Errorf("l3gd20: %w", err)
	}
	return Axes{
		X: float64(int16(binary.LittleEndian.Uint16(b[0:]))) * d.scale,
		Y: float64(int16(binary.LittleEndian.Uint16(b[2:]))) * d.scale,
		Z: float64(int16(binary.LittleEndian.Uint16(b[4:]))) * d.scale,
	}, nil
}

// Gyro returns the angular rates in radians per second.
func (d *Dev) Gyro() (Axes, error) {
	a, err := d.Read()
	if err != nil {
		return a, err
	}
	return Axes{X: radians(a.X), Y: radians(a.Y), Z: radians(a.Z)}, nil
}

// Temperature returns the raw temperature register.
func (d *Dev) Temperature() (int8, error) {
	v, err := d.readRegister(OutTemp)
	return int8(v), err
}

// Status returns the status register.
func (d *Dev) Status() (byte, error) {
	return d.readRegister(StatusReg)
}

// Halt powers the gyroscope down.
func (d *Dev) Halt() error {
	return d.writeRegister(CtrlReg1, 0)
}

func (d *Dev) String() string {
	return fmt.Sprintf("l3gd20: %s", d.d.String())
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func (d *Dev) readRegister(reg byte) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := []byte{0}
	if err := d.d.Tx([]byte{reg}, b); err != nil {
		return 0, fmt.Errorf("l3gd20: %w", err)
	}
	return b[0], nil
}

func (d *Dev) writeRegister(reg, value byte) error {
	if err := d.d.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("l3gd20: %w", err)
	}
	return nil
}
