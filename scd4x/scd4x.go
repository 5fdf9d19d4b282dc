// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd4x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// PPM=Parts Per Million. Units of measure for CO2 concentration.
type PPM int

// State of the sensor as tracked by the driver.
type State int

const (
	StateUninitialized State = iota
	StateConnected
	StateMeasuring
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateMeasuring:
		return "measuring"
	default:
		return "uninitialized"
	}
}

const (
	// These devices only support this i2c address.
	SensorAddress uint16 = 0x62
)

// Operating range of the sensor. Decoded values must satisfy
// min < value <= max.
const (
	minCO2         = 0
	maxCO2         = 40000
	minTemperature = -10.0
	maxTemperature = 60.0
	minHumidity    = 0.0
	maxHumidity    = 100.0
	maxPressure    = 1200 * 100 * physic.Pascal
	readyMask      = uint16(1<<11 - 1)
	stopSettleTime = 500 * time.Millisecond
)

type cmd uint16

// Structure to simplify sending commands to the device.
type command struct {
	// The 16-bit command words.
	cmdWord cmd
	// The expected number of bytes returned. 0, 3, or 9.
	responseSize int
	// Time the sensor needs before the response can be read or the next
	// command can be sent.
	execTime time.Duration
}

// The various implemented commands.

var cmdStartMeasurement = command{
	cmdWord: 0x21b1,
}

var cmdReadMeasurement = command{
	cmdWord:      0xec05,
	responseSize: 9,
	execTime:     time.Millisecond,
}

var cmdStopMeasurement = command{
	cmdWord: 0x3f86,
}
var cmdSetAmbientPressure = command{
	cmdWord:  0xe000,
	execTime: time.Millisecond,
}
var cmdSetASCEnabled = command{
	cmdWord:  0x2416,
	execTime: time.Millisecond,
}
var cmdGetASCEnabled = command{
	cmdWord:      0x2313,
	responseSize: 3,
	execTime:     time.Millisecond,
}
var cmdGetDataReadyStatus = command{
	cmdWord:      0xe4b8,
	responseSize: 3,
	execTime:     time.Millisecond,
}
var cmdPersistSettings = command{
	cmdWord:  0x3615,
	execTime: 800 * time.Millisecond,
}
var cmdPerformSelfTest = command{
	cmdWord:      0x3639,
	responseSize: 3,
	execTime:     10 * time.Second,
}
var cmdPerformFactoryReset = command{
	cmdWord:  0x3632,
	execTime: 1200 * time.Millisecond,
}

// Opts holds the configuration options for the device.
type Opts struct {
	// Retries is the number of attempts made for every bus write or read
	// before the error is surfaced. Default is 1000.
	Retries int
	// RetryDelay is the pause between two attempts. Default is 1µs.
	RetryDelay time.Duration
	// CO2Offset is added to every raw CO2 reading.
	CO2Offset PPM
	// AutoCalibration selects the automatic self calibration mode applied
	// by NewI2C.
	AutoCalibration bool
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	Retries:    1000,
	RetryDelay: time.Microsecond,
	CO2Offset:  -140,
}

// Dev represents an SCD4x device.
type Dev struct {
	// The i2c bus device.
	d    *i2c.Dev
	opts Opts
	mu   sync.Mutex

	state State
	// True when the calibration settings differ from the persisted ones.
	dirty   bool
	lastErr ErrorCode
	// Last valid reading.
	last Env
}

func (ppm *PPM) String() string {
	return fmt.Sprintf("%d PPM", *ppm)
}

// The sensor reading. Returns CO2 PPM, Temperature, and Humidity.
type Env struct {
	physic.Env
	CO2 PPM
}

// Return the sensor readings in string format.
func (e *Env) String() string {
	return fmt.Sprintf("Temperature: %s Humidity: %s CO2: %s", e.Temperature.String(), e.Humidity.String(), e.CO2.String())
}

// NewI2C creates a new SCD4x sensor using the supplied bus and address.
// The constant value SensorAddress should be supplied as the value for
// addr. opts may be nil, in which case DefaultOpts is used.
//
// The device is probed, the calibration mode from opts is applied and
// persisted if it changed, and periodic measurement is started.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, opts: *opts}
	if d.opts.Retries <= 0 {
		d.opts.Retries = 1
	}
	if err := d.Begin(); err != nil {
		return nil, err
	}
	if err := d.SetCalibrationMode(d.opts.AutoCalibration); err != nil {
		return nil, err
	}
	if err := d.SaveSettings(); err != nil {
		return nil, err
	}
	if err := d.StartPeriodicMeasurement(); err != nil {
		return nil, err
	}
	return d, nil
}

// Begin probes the device address with an empty write.
func (d *Dev) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.d.Tx(nil, nil); err != nil {
		d.lastErr = classify(err)
		return &Error{Code: d.lastErr, Op: "begin", Err: err}
	}
	d.lastErr = CodeSuccess
	d.state = StateConnected
	return nil
}

// IsConnected stops periodic measurement and runs the sensor self test,
// which takes 10 seconds. It returns true if the sensor reports no
// malfunction.
func (d *Dev) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.stop(); err != nil {
		return false
	}
	words, err := d.sendCommand(cmdPerformSelfTest)
	return err == nil && words[0] == 0
}

// StartPeriodicMeasurement starts the periodic measurement mode. A new
// sample is available every 5 seconds.
func (d *Dev) StartPeriodicMeasurement() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.sendCommand(cmdStartMeasurement); err != nil {
		return err
	}
	d.state = StateMeasuring
	return nil
}

// StopPeriodicMeasurement stops the periodic measurement mode. Most
// configuration commands are only accepted while stopped.
func (d *Dev) StopPeriodicMeasurement() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

// Halt stops periodic measurement.
func (d *Dev) Halt() error {
	return d.StopPeriodicMeasurement()
}

// IsDataReady reports whether a new sample can be read.
func (d *Dev) IsDataReady() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isDataReady()
}

// CalibrationMode returns true if automatic self calibration is enabled.
func (d *Dev) CalibrationMode() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calibrationMode()
}

// SetCalibrationMode enables or disables automatic self calibration. Periodic
// measurement is stopped first. The setting is only written when it differs
// from the current one, and then has to be committed with SaveSettings.
func (d *Dev) SetCalibrationMode(auto bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.stop(); err != nil {
		return err
	}
	current, err := d.calibrationMode()
	if err != nil {
		return err
	}
	if current == auto {
		return nil
	}
	var w uint16
	if auto {
		w = 1
	}
	if _, err := d.sendCommand(cmdSetASCEnabled, w); err != nil {
		return err
	}
	d.dirty = true
	return nil
}

// SaveSettings writes changed settings to the sensor EEPROM. Nothing is sent
// when no setting changed since the last save.
func (d *Dev) SaveSettings() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty {
		return nil
	}
	if _, err := d.sendCommand(cmdPersistSettings); err != nil {
		return err
	}
	d.dirty = false
	return nil
}

// SettingsChanged reports whether there are settings not yet saved.
func (d *Dev) SettingsChanged() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// ResetEEPROM stops periodic measurement and performs a factory reset.
func (d *Dev) ResetEEPROM() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.stop(); err != nil {
		return err
	}
	_, err := d.sendCommand(cmdPerformFactoryReset)
	return err
}

// SetAmbientPressure sets the pressure used by the sensor for its internal
// compensation. It is accepted while measuring.
func (d *Dev) SetAmbientPressure(p physic.Pressure) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setAmbientPressure(p)
}

// ReadMeasurement returns the latest reading. It never blocks: if the
// sensor has no new sample, the last valid reading is returned.
//
// If a pressure is supplied, it is forwarded to the sensor with
// SetAmbientPressure after a successful read.
//
// When the decoded values are outside of the sensor's operating range, the
// last valid reading is returned together with an *Error of code
// CodeOutOfRange.
func (d *Dev) ReadMeasurement(pressure ...physic.Pressure) (Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ready, err := d.isDataReady()
	if err != nil {
		return d.last, err
	}
	if !ready {
		return d.last, nil
	}
	if err := d.read(); err != nil {
		return d.last, err
	}
	if len(pressure) > 0 {
		if err := d.setAmbientPressure(pressure[0]); err != nil {
			return d.last, err
		}
	}
	return d.last, nil
}

// Sense returns readings (Temperature, Humidity, and CO2 concentration in PPM)
// from the device. Note that in normal acquisition mode, the minimum reading
// period is 5 seconds. If you call this function more frequently than this,
// it will block until data is ready.
func (d *Dev) Sense(env *Env) error {
	env.Temperature = 0
	env.Humidity = 0
	env.CO2 = 0
	env.Pressure = 0

	if d.State() != StateMeasuring {
		if err := d.StartPeriodicMeasurement(); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ready := false
	tCutoff := time.Now().Add(6 * time.Second)
	for !ready && time.Now().Before(tCutoff) {
		var err error
		ready, err = d.isDataReady()
		if err != nil {
			return err
		}
		if !ready {
			time.Sleep(time.Second)
		}
	}
	if !ready {
		return errors.New("scd4x: timeout waiting for data ready status")
	}
	if err := d.read(); err != nil {
		return err
	}
	*env = d.last
	return nil
}

// LastError returns the code of the last bus operation or measurement.
func (d *Dev) LastError() ErrorCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// State returns the state of the sensor as tracked by the driver.
func (d *Dev) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Precision returns the sensor's resolution, or minimum value between steps the
// device can make. The specified precision is 1 PPM for CO2, 1/65535 for temperature
// and humidity.
func (d *Dev) Precision(env *Env) {
	countIncrement := float64(1.0) / float64((1<<16)-1)
	env.Temperature = physic.Temperature(countIncrement * float64(physic.Celsius))
	env.Pressure = 0
	env.Humidity = physic.RelativeHumidity(float64(physic.PercentRH) * countIncrement)
	env.CO2 = 1
}

func (d *Dev) String() string {
	return fmt.Sprintf("scd4x: %s", d.d.String())
}

func (d *Dev) stop() error {
	measuring := d.state == StateMeasuring
	if _, err := d.sendCommand(cmdStopMeasurement); err != nil {
		return err
	}
	if measuring {
		d.state = StateConnected
		time.Sleep(stopSettleTime)
	}
	return nil
}

func (d *Dev) isDataReady() (bool, error) {
	words, err := d.sendCommand(cmdGetDataReadyStatus)
	if err != nil {
		return false, err
	}
	return words[0]&readyMask != 0, nil
}

func (d *Dev) calibrationMode() (bool, error) {
	words, err := d.sendCommand(cmdGetASCEnabled)
	if err != nil {
		return false, err
	}
	return words[0] != 0, nil
}

func (d *Dev) setAmbientPressure(p physic.Pressure) error {
	if p < 0 || p > maxPressure {
		return fmt.Errorf("%w: %s", ErrPressureRange, p)
	}
	_, err := d.sendCommand(cmdSetAmbientPressure, uint16(p/(100*physic.Pascal)))
	return err
}

// read fetches and validates one sample, updating the cache on success.
func (d *Dev) read() error {
	words, err := d.sendCommand(cmdReadMeasurement)
	if err != nil {
		return err
	}
	co2 := PPM(words[0]) + d.opts.CO2Offset
	t := countToCelsius(words[1])
	h := countToPercent(words[2])
	if !inRange(float64(co2), minCO2, maxCO2) || !inRange(t, minTemperature, maxTemperature) || !inRange(h, minHumidity, maxHumidity) {
		d.lastErr = CodeOutOfRange
		return &Error{Code: CodeOutOfRange, Op: "read measurement", Err: fmt.Errorf("%d ppm, %.2f°C, %.2f%%rH", co2, t, h)}
	}
	d.last = Env{CO2: co2}
	d.last.Temperature = countToTemp(words[1])
	d.last.Humidity = countToHumidity(words[2])
	return nil
}

// All commands to read or write to the sensor go through this function.
func (d *Dev) sendCommand(cmd command, writeData ...uint16) ([]uint16, error) {
	w := make([]byte, 2, 2+3*len(writeData))
	w[0] = byte(cmd.cmdWord >> 8)
	w[1] = byte(cmd.cmdWord)
	w = append(w, common.PackWords(writeData...)...)

	if err := d.retry(fmt.Sprintf("cmd 0x%x", cmd.cmdWord), func() error { return d.d.Tx(w, nil) }); err != nil {
		return nil, err
	}
	if cmd.execTime > 0 {
		time.Sleep(cmd.execTime)
	}
	if cmd.responseSize == 0 {
		return nil, nil
	}

	r := make([]byte, cmd.responseSize)
	if err := d.retry(fmt.Sprintf("cmd 0x%x read", cmd.cmdWord), func() error { return d.d.Tx(nil, r) }); err != nil {
		return nil, err
	}
	words, err := common.UnpackWords(r)
	if err != nil {
		d.lastErr = CodeOther
		return nil, &Error{Code: CodeOther, Op: fmt.Sprintf("cmd 0x%x", cmd.cmdWord), Err: err}
	}
	return words, nil
}

// retry runs tx until it succeeds or the configured number of attempts is
// exhausted.
func (d *Dev) retry(op string, tx func() error) error {
	var err error
	for range d.opts.Retries {
		if err = tx(); err == nil {
			d.lastErr = CodeSuccess
			return nil
		}
		if d.opts.RetryDelay > 0 {
			time.Sleep(d.opts.RetryDelay)
		}
	}
	d.lastErr = classify(err)
	return &Error{Code: d.lastErr, Op: op, Err: err}
}

func inRange(v, min, max float64) bool {
	return min < v && v <= max
}

// countToCelsius converts a device count to degrees Celsius.
func countToCelsius(count uint16) float64 {
	return -45 + 175*float64(count)/65536
}

// countToPercent converts a device count to relative humidity in percent.
func countToPercent(count uint16) float64 {
	return 100 * float64(count) / 65536
}

// countToTemp converts a device count to Temperature
func countToTemp(count uint16) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(float64(physic.Celsius)*countToCelsius(count))
}

func countToHumidity(count uint16) physic.RelativeHumidity {
	return physic.RelativeHumidity(countToPercent(count) * float64(physic.PercentRH))
}
