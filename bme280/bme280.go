// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bme280

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the address with SDO tied to ground.
const DefaultAddress uint16 = 0x76

const (
	regCalib00   = 0x88
	regCalib26   = 0xe1
	regCtrlHum   = 0xf2
	regStatus    = 0xf3
	regCtrlMeas  = 0xf4
	regData      = 0xf7
	statusBusy   = 0x08
	modeSleep    = 0
	modeForced   = 1
	calib00Size  = 26
	calib26Size  = 7
	dataSize     = 8
	defaultLevel = 101325
)

// Oversampling is the number of samples averaged per conversion. Valid
// values are 1, 2, 4, 8 and 16.
type Oversampling uint8

func (o Oversampling) code() (byte, error) {
	switch o {
	case 1:
		return 1, nil
	case 2:
		return 2, nil
	case 4:
		return 3, nil
	case 8:
		return 4, nil
	case 16:
		return 5, nil
	}
	return 0, fmt.Errorf("bme280: unexpected oversampling value %d", o)
}

var (
	// ErrNotReady is returned when a conversion does not complete within
	// Opts.ReadyPolls status polls.
	ErrNotReady = errors.New("bme280: sensor not ready")
	// ErrDewPoint is returned by DewPoint when the humidity is 0%rH.
	ErrDewPoint = errors.New("bme280: dew point undefined for 0%rH")
)

// Opts holds the configuration options for the device.
type Opts struct {
	Humidity    Oversampling
	Temperature Oversampling
	Pressure    Oversampling
	// ReadyPolls bounds the number of status reads while waiting for a
	// conversion.
	ReadyPolls int
	// PollInterval is the delay between two status reads.
	PollInterval time.Duration
}

// DefaultOpts uses 8x oversampling on all channels.
var DefaultOpts = Opts{
	Humidity:     8,
	Temperature:  8,
	Pressure:     8,
	ReadyPolls:   100,
	PollInterval: 10 * time.Millisecond,
}

// Calibration is the factory trimming stored in the sensor.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16

	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16

	H1 uint8
	H2 int16
	H3 uint8
	H4 int16
	H5 int16
	H6 int8
}

// RawSample is the unprocessed content of the data registers.
type RawSample struct {
	Temperature int32
	Pressure    int32
	Humidity    int32
}

// parseCalibration decodes the 26 bytes at 0x88 and the 7 bytes at 0xe1.
func parseCalibration(b00, b26 []byte) Calibration {
	le := binary.LittleEndian
	c := Calibration{
		T1: le.Uint16(b00[0:]),
		T2: int16(le.Uint16(b00[2:])),
		T3: int16(le.Uint16(b00[4:])),
		P1: le.Uint16(b00[6:]),
		P2: int16(le.Uint16(b00[8:])),
		P3: int16(le.Uint16(b00[10:])),
		P4: int16(le.Uint16(b00[12:])),
		P5: int16(le.Uint16(b00[14:])),
		P6: int16(le.Uint16(b00[16:])),
		P7: int16(le.Uint16(b00[18:])),
		P8: int16(le.Uint16(b00[20:])),
		P9: int16(le.Uint16(b00[22:])),
		H1: b00[25],
		H2: int16(le.Uint16(b26[0:])),
		H3: b26[2],
		H6: int8(b26[6]),
	}
	// H4 and H5 share the nibbles of 0xe5.
	h5 := int16(le.Uint16(b26[4:]))
	c.H4 = int16(int8(b26[3]))*16 + h5&0x0f
	c.H5 = h5 >> 4
	return c
}

func parseRaw(b []byte) RawSample {
	return RawSample{
		Pressure:    int32(b[0])<<12 | int32(b[1])<<4 | int32(b[2])>>4,
		Temperature: int32(b[3])<<12 | int32(b[4])<<4 | int32(b[5])>>4,
		Humidity:    int32(b[6])<<8 | int32(b[7]),
	}
}

// Compensate converts a raw sample into degrees Celsius, Pascal and
// percent relative humidity.
func Compensate(cal Calibration, raw RawSample) (t, p, h float64) {
	rt := float64(raw.Temperature)
	t1 := float64(cal.T1)
	var1 := (rt/16384 - t1/1024) * float64(cal.T2)
	var2 := (rt/131072 - t1/8192) * (rt/131072 - t1/8192) * float64(cal.T3)
	tFine := float64(int64(var1 + var2))
	t = clamp((var1+var2)/5120, -40, 85)

	var1 = tFine/2 - 64000
	var2 = var1 * var1 * float64(cal.P6) / 32768
	var2 += var1 * float64(cal.P5) * 2
	var2 = var2/4 + float64(cal.P4)*65536
	var1 = (float64(cal.P3)*var1*var1/524288 + float64(cal.P2)*var1) / 524288
	var1 = (1 + var1/32768) * float64(cal.P1)
	if var1 == 0 {
		p = 30000
	} else {
		p = ((1048576 - float64(raw.Pressure)) - var2/4096) * 6250 / var1
		var1 = float64(cal.P9) * p * p / 2147483648
		var2 = p * float64(cal.P8) / 32768
		p = clamp(p+(var1+var2+float64(cal.P7))/16, 30000, 110000)
	}

	x := tFine - 76800
	x = (float64(raw.Humidity) - (float64(cal.H4)*64 + float64(cal.H5)/16384*x)) *
		(float64(cal.H2) / 65536 * (1 + float64(cal.H6)/67108864*x*(1+float64(cal.H3)/67108864*x)))
	h = clamp(x*(1-float64(cal.H1)*x/524288), 0, 100)
	return t, p, h
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Dev is a handle to a BME280.
type Dev struct {
	d        *i2c.Dev
	opts     Opts
	mu       sync.Mutex
	cal      Calibration
	ctrlMeas byte
	ctrlHum  byte
	seaLevel float64
}

// NewI2C returns a device on the bus. opts may be nil, in which case
// DefaultOpts is used.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, opts: *opts, seaLevel: defaultLevel}
	if d.opts.ReadyPolls <= 0 {
		d.opts.ReadyPolls = DefaultOpts.ReadyPolls
	}
	hum, err := opts.Humidity.code()
	if err != nil {
		return nil, err
	}
	temp, err := opts.Temperature.code()
	if err != nil {
		return nil, err
	}
	press, err := opts.Pressure.code()
	if err != nil {
		return nil, err
	}
	d.ctrlHum = hum
	d.ctrlMeas = temp<<5 | press<<2

	b00 := make([]byte, calib00Size)
	if err := d.d.Tx([]byte{regCalib00}, b00); err != nil {
		return nil, fmt.Errorf("bme280: reading calibration: %w", err)
	}
	b26 := make([]byte, calib26Size)
	if err := d.d.Tx([]byte{regCalib26}, b26); err != nil {
		return nil, fmt.Errorf("bme280: reading calibration: %w", err)
	}
	d.cal = parseCalibration(b00, b26)

	if err := d.d.Tx([]byte{regCtrlMeas, d.ctrlMeas | modeSleep}, nil); err != nil {
		return nil, fmt.Errorf("bme280: %w", err)
	}
	return d, nil
}

// Calibration returns the factory calibration read at initialisation.
func (d *Dev) Calibration() Calibration {
	return d.cal
}

// ReadRaw triggers a forced conversion and returns the raw data registers.
func (d *Dev) ReadRaw() (RawSample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.d.Tx([]byte{regCtrlHum, d.ctrlHum}, nil); err != nil {
		return RawSample{}, fmt.Errorf("bme280: %w", err)
	}
	if err := d.d.Tx([]byte{regCtrlMeas, d.ctrlMeas | modeForced}, nil); err != nil {
		return RawSample{}, fmt.Errorf("bme280: %w", err)
	}
	ready := false
	status := make([]byte, 1)
	for range d.opts.ReadyPolls {
		if err := d.d.Tx([]byte{regStatus}, status); err != nil {
			return RawSample{}, fmt.Errorf("bme280: %w", err)
		}
		if status[0]&statusBusy == 0 {
			ready = true
			break
		}
		time.Sleep(d.opts.PollInterval)
	}
	if !ready {
		return RawSample{}, ErrNotReady
	}
	r := make([]byte, dataSize)
	if err := d.d.Tx([]byte{regData}, r); err != nil {
		return RawSample{}, fmt.Errorf("bme280: %w", err)
	}
	return parseRaw(r), nil
}

// ReadCompensated returns the temperature in °C, the pressure in Pa and the
// relative humidity in percent.
func (d *Dev) ReadCompensated() (float64, float64, float64, error) {
	raw, err := d.ReadRaw()
	if err != nil {
		return 0, 0, 0, err
	}
	t, p, h := Compensate(d.cal, raw)
	return t, p, h, nil
}

// Sense implements physic.SenseEnv.
func (d *Dev) Sense(env *physic.Env) error {
	t, p, h, err := d.ReadCompensated()
	if err != nil {
		return err
	}
	env.Temperature = physic.ZeroCelsius + physic.Temperature(t*float64(physic.Celsius))
	env.Pressure = physic.Pressure(p * float64(physic.Pascal))
	env.Humidity = physic.RelativeHumidity(h * float64(physic.PercentRH))
	return nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(env *physic.Env) {
	env.Temperature = 10 * physic.MilliKelvin
	env.Pressure = 180 * physic.MilliPascal
	env.Humidity = 800 * physic.TenthMicroRH
}

// SetSeaLevel sets the reference pressure in Pa used by Altitude. Values
// outside of (30000, 120000) are ignored.
func (d *Dev) SetSeaLevel(pa float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pa > 30000 && pa < 120000 {
		d.seaLevel = pa
	}
}

// SeaLevel returns the reference pressure in Pa.
func (d *Dev) SeaLevel() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seaLevel
}

// Altitude returns the altitude in metres relative to the sea level
// pressure.
func (d *Dev) Altitude() (float64, error) {
	_, p, _, err := d.ReadCompensated()
	if err != nil {
		return 0, err
	}
	return altitude(p, d.SeaLevel()), nil
}

// DewPoint returns the dew point in °C.
func (d *Dev) DewPoint() (float64, error) {
	t, _, h, err := d.ReadCompensated()
	if err != nil {
		return 0, err
	}
	return dewPoint(t, h)
}

func altitude(p, seaLevel float64) float64 {
	return 44330 * (1 - math.Pow(p/seaLevel, 0.1903))
}

// dewPoint uses the Magnus formula.
func dewPoint(t, h float64) (float64, error) {
	if h <= 0 {
		return 0, ErrDewPoint
	}
	x := (math.Log10(h)-2)/0.4343 + 17.62*t/(243.12+t)
	return 243.12 * x / (17.62 - x), nil
}

// Halt puts the sensor in sleep mode.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.d.Tx([]byte{regCtrlMeas, d.ctrlMeas | modeSleep}, nil)
}

func (d *Dev) String() string {
	return fmt.Sprintf("bme280: %s", d.d.String())
}
