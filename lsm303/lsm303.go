// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lsm303 reads the accelerometer and magnetometer of an ST
// LSM303DLHC over I2C. The two sensors answer on separate addresses of the
// same bus.
//
// # Datasheet
//
// https://www.st.com/resource/en/datasheet/lsm303dlhc.pdf
package lsm303

import (
	"encoding/binary"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
)

// MagGain is the magnetometer gain selection of CRB_REG_M.
type MagGain byte

const (
	AccelAddress uint16 = 0x19
	MagAddress   uint16 = 0x1e

	// Accelerometer registers
	CtrlReg1A = 0x20
	CtrlReg4A = 0x23
	OutXLA    = 0x28

	// Magnetometer registers
	CraRegM  = 0x00
	CrbRegM  = 0x01
	MrRegM   = 0x02
	OutXHM   = 0x03
	autoIncr = 0x80

	// 50Hz, all axes enabled.
	accelEnable = 0x47
	highRes     = 0x08
	continuous  = 0x00

	Gain1_3 MagGain = 0x20 // ±1.3 gauss
	Gain1_9 MagGain = 0x40 // ±1.9 gauss
	Gain2_5 MagGain = 0x60 // ±2.5 gauss
	Gain4_0 MagGain = 0x80 // ±4.0 gauss
	Gain4_7 MagGain = 0xa0 // ±4.7 gauss
	Gain5_6 MagGain = 0xc0 // ±5.6 gauss
	Gain8_1 MagGain = 0xe0 // ±8.1 gauss

	// m/s² per LSB in 12 bit ±2g mode.
	accelPerLSB       = 0.00980665
	gaussToMicroTesla = 100.0
)

// LSB per gauss for the X/Y and Z axes.
var magScale = map[MagGain][2]float64{
	Gain1_3: {1100, 980},
	Gain1_9: {855, 760},
	Gain2_5: {670, 600},
	Gain4_0: {450, 400},
	Gain4_7: {400, 355},
	Gain5_6: {330, 295},
	Gain8_1: {230, 205},
}

// Axes holds one value per axis.
type Axes struct {
	X, Y, Z float64
}

// Opts holds the configuration options for the sensor.
type Opts struct {
	// HighResolution selects 12 bit accelerometer output.
	HighResolution bool
	MagGain        MagGain
}

// DefaultOpts holds the default configuration options.
var DefaultOpts = Opts{
	HighResolution: true,
	MagGain:        Gain1_3,
}

// Dev is a handle to an LSM303DLHC.
type Dev struct {
	mu      sync.Mutex
	accel   *i2c.Dev
	mag     *i2c.Dev
	gainXY  float64
	gainZ   float64
	magGain MagGain
}

// NewI2C enables both sensors. opts may be nil, in which case DefaultOpts
// is used.
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{
		accel: &i2c.Dev{Bus: b, Addr: AccelAddress},
		mag:   &i2c.Dev{Bus: b, Addr: MagAddress},
	}
	if err := write(d.accel, CtrlReg1A, accelEnable); err != nil {
		return nil, err
	}
	var reg4 byte
	if opts.HighResolution {
		reg4 = highRes
	}
	if err := write(d.accel, CtrlReg4A, reg4); err != nil {
		return nil, err
	}
	if err := write(d.mag, MrRegM, continuous); err != nil {
		return nil, err
	}
	if err := d.SetMagGain(opts.MagGain); err != nil {
		return nil, err
	}
	return d, nil
}

// SetMagGain selects the magnetometer range.
func (d *Dev) SetMagGain(g MagGain) error {
	s, ok := magScale[g]
	if !ok {
		return fmt.Errorf("lsm303: invalid magnetometer gain 0x%02x", byte(g))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := write(d.mag, CrbRegM, byte(g)); err != nil {
		return err
	}
	d.magGain = g
	d.gainXY, d.gainZ = s[0], s[1]
	return nil
}

// SetMagRate sets the magnetometer output rate code (0..7).
func (d *Dev) SetMagRate(rate byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return write(d.mag, CraRegM, (rate&0x07)<<2)
}

// ReadAccel returns the acceleration in m/s².
func (d *Dev) ReadAccel() (Axes, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := make([]byte, 6)
	if err := d.accel.Tx([]byte{OutXLA | autoIncr}, b); err != nil {
		return Axes{}, fmt.Errorf("lsm303: %w", err)
	}
	// Left justified 12 bit values.
	axis := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(b[i:]))>>4) * accelPerLSB
	}
	return Axes{X: axis(0), Y: axis(2), Z: axis(4)}, nil
}

// ReadMag returns the magnetic field in µT.
func (d *Dev) ReadMag() (Axes, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := make([]byte, 6)
	if err := d.mag.Tx([]byte{OutXHM}, b); err != nil {
		return Axes{}, fmt.Errorf("lsm303: %w", err)
	}
	// Registers are ordered X, Z, Y.
	x := float64(int16(binary.BigEndian.Uint16(b[0:])))
	z := float64(int16(binary.BigEndian.Uint16(b[2:])))
	y := float64(int16(binary.BigEndian.Uint16(b[4:])))
	return Axes{
		X: x / d.gainXY * gaussToMicroTesla,
		Y: y / d.gainXY * gaussToMicroTesla,
		Z: z / d.gainZ * gaussToMicroTesla,
	}, nil
}

// Halt powers both sensors down.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := write(d.accel, CtrlReg1A, 0); err != nil {
		return err
	}
	// Sleep mode.
	return write(d.mag, MrRegM, 0x03)
}

func (d *Dev) String() string {
	return fmt.Sprintf("lsm303{accel: %s, mag: %s}", d.accel, d.mag)
}

func write(d *i2c.Dev, reg, value byte) error {
	if err := d.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("lsm303: %w", err)
	}
	return nil
}
