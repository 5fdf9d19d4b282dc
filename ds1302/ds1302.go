// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1302

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Register write addresses. The matching read address is always one higher.
const (
	regSecond  byte = 0x80
	regMinute  byte = 0x82
	regHour    byte = 0x84
	regDay     byte = 0x86
	regMonth   byte = 0x88
	regWeekday byte = 0x8a
	regYear    byte = 0x8c
	regWP      byte = 0x8e
	regRAM     byte = 0xc0
)

const (
	// RAMSize is the number of battery backed bytes available through
	// ReadRAM and WriteRAM.
	RAMSize = 31

	centuryBase = 2000
	clockHalt   = 0x80
	wpEnable    = 0x80
)

var (
	// ErrImplausible is returned by ReadTime when a decoded field is outside
	// of its calendar range.
	ErrImplausible = errors.New("ds1302: implausible time read from device")
	// ErrRAMIndex is returned for RAM indexes outside of 0..RAMSize-1.
	ErrRAMIndex = errors.New("ds1302: invalid ram index")
)

var weekdayNames = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Time is the calendar content of the clock registers, in decimal.
type Time struct {
	Year    int // 2000..2099
	Month   int // 1..12
	Day     int // 1..31
	Weekday int // 0..7, the chip does not interpret it
	Hour    int // 0..23
	Minute  int // 0..59
	Second  int // 0..59
}

// Valid reports whether every field is within its range.
func (t Time) Valid() bool {
	return t.Year >= centuryBase && t.Year < centuryBase+100 &&
		t.Month >= 1 && t.Month <= 12 &&
		t.Day >= 1 && t.Day <= 31 &&
		t.Weekday >= 0 && t.Weekday <= 7 &&
		t.Hour >= 0 && t.Hour <= 23 &&
		t.Minute >= 0 && t.Minute <= 59 &&
		t.Second >= 0 && t.Second <= 59
}

// ISO8601 formats the time as 2006-01-02T15:04:05.
func (t Time) ISO8601() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second)
}

// Std converts to a time.Time in loc.
func (t Time) Std(loc *time.Location) time.Time {
	return time.Date(t.Year, time.Month(t.Month), t.Day, t.Hour, t.Minute, t.Second, 0, loc)
}

func (t Time) String() string {
	return fmt.Sprintf("%s, %02d/%02d/%04d %02d:%02d:%02d", WeekdayName(t.Weekday), t.Day, t.Month, t.Year, t.Hour, t.Minute, t.Second)
}

// FromStd converts a time.Time into the register representation.
func FromStd(t time.Time) Time {
	return Time{
		Year:    t.Year(),
		Month:   int(t.Month()),
		Day:     t.Day(),
		Weekday: int(t.Weekday()),
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		Second:  t.Second(),
	}
}

// WeekdayName returns the English name of a weekday index, 0 being Sunday.
// Index 7 is treated as Sunday. Anything else returns "Unknown".
func WeekdayName(index int) string {
	if index == 7 {
		index = 0
	}
	if index < 0 || index >= len(weekdayNames) {
		return "Unknown"
	}
	return weekdayNames[index]
}

// Dev represents a DS1302 connected to three GPIO lines.
type Dev struct {
	mu  sync.Mutex
	clk gpio.PinOut
	dat gpio.PinIO
	rst gpio.PinOut
}

// New returns a DS1302 on the given lines. The lines are driven low and the
// oscillator is started if the clock halt flag is set.
func New(clk gpio.PinOut, dat gpio.PinIO, rst gpio.PinOut) (*Dev, error) {
	d := &Dev{clk: clk, dat: dat, rst: rst}
	if err := d.clk.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("ds1302: %w", err)
	}
	if err := d.rst.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("ds1302: %w", err)
	}
	if err := d.Start(); err != nil {
		return nil, err
	}
	return d, nil
}

// Start clears the clock halt flag, keeping the current seconds.
func (d *Dev) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.getReg(regSecond)
	if err != nil {
		return err
	}
	return d.wr(regSecond, s&^clockHalt)
}

// Stop sets the clock halt flag. The time keeps its value until Start.
func (d *Dev) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.getReg(regSecond)
	if err != nil {
		return err
	}
	return d.wr(regSecond, s|clockHalt)
}

// ReadTime reads all the calendar registers.
func (d *Dev) ReadTime() (Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var raw [7]byte
	for ix, reg := range []byte{regYear, regMonth, regDay, regWeekday, regHour, regMinute, regSecond} {
		v, err := d.getReg(reg)
		if err != nil {
			return Time{}, err
		}
		raw[ix] = v
	}
	t := Time{
		Year:    FromBCD(raw[0]) + centuryBase,
		Month:   FromBCD(raw[1]),
		Day:     FromBCD(raw[2]),
		Weekday: FromBCD(raw[3]),
		Hour:    FromBCD(raw[4]),
		Minute:  FromBCD(raw[5]),
		Second:  FromBCD(raw[6]&^clockHalt) % 60,
	}
	if !t.Valid() {
		return t, fmt.Errorf("%w: %+v", ErrImplausible, t)
	}
	return t, nil
}

// WriteTime sets the calendar registers. Each field is reduced modulo its
// register range before being written, negative values included, so out of
// range values never reach the chip.
func (d *Dev) WriteTime(t Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	writes := []struct {
		reg byte
		val int
	}{
		{regYear, wrap(t.Year, 100)},
		{regMonth, wrap(t.Month, 13)},
		{regDay, wrap(t.Day, 32)},
		{regWeekday, wrap(t.Weekday, 8)},
		{regHour, wrap(t.Hour, 24)},
		{regMinute, wrap(t.Minute, 60)},
		{regSecond, wrap(t.Second, 60)},
	}
	for _, w := range writes {
		if err := d.wr(w.reg, ToBCD(w.val)); err != nil {
			return err
		}
	}
	return nil
}

// ReadRAM returns one byte of the battery backed RAM.
func (d *Dev) ReadRAM(index int) (byte, error) {
	if index < 0 || index >= RAMSize {
		return 0, ErrRAMIndex
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getReg(regRAM + byte(index*2))
}

// WriteRAM stores one byte in the battery backed RAM.
func (d *Dev) WriteRAM(index int, value byte) error {
	if index < 0 || index >= RAMSize {
		return ErrRAMIndex
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wr(regRAM+byte(index*2), value)
}

// Halt drives all three lines low.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return errors.Join(d.rst.Out(gpio.Low), d.clk.Out(gpio.Low))
}

func (d *Dev) String() string {
	return fmt.Sprintf("ds1302{clk:%s, dat:%s, rst:%s}", d.clk, d.dat, d.rst)
}

// wrap reduces v into [0, m).
func wrap(v, m int) int {
	return ((v % m) + m) % m
}

// ToBCD converts 0..99 to binary-coded decimal.
func ToBCD(v int) byte {
	return byte((v/10)<<4 | v%10)
}

// FromBCD converts a binary-coded decimal byte to its value.
func FromBCD(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}

// wr writes a register with write protection lifted for the duration.
func (d *Dev) wr(reg, val byte) error {
	if err := d.setReg(regWP, 0); err != nil {
		return err
	}
	if err := d.setReg(reg, val); err != nil {
		return err
	}
	return d.setReg(regWP, wpEnable)
}

func (d *Dev) getReg(reg byte) (byte, error) {
	if err := d.rst.Out(gpio.High); err != nil {
		return 0, fmt.Errorf("ds1302: %w", err)
	}
	err := d.writeByte(reg | 0x01)
	var v byte
	if err == nil {
		v, err = d.readByte()
	}
	return v, errors.Join(err, d.rst.Out(gpio.Low))
}

func (d *Dev) setReg(reg, val byte) error {
	if err := d.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("ds1302: %w", err)
	}
	err := d.writeByte(reg &^ 0x01)
	if err == nil {
		err = d.writeByte(val)
	}
	return errors.Join(err, d.rst.Out(gpio.Low))
}

// writeByte clocks out b least significant bit first. The chip samples I/O on
// the rising edge of SCLK.
func (d *Dev) writeByte(b byte) error {
	for i := range 8 {
		if err := d.dat.Out(gpio.Level(b>>i&1 == 1)); err != nil {
			return fmt.Errorf("ds1302: %w", err)
		}
		if err := d.pulse(); err != nil {
			return err
		}
	}
	return nil
}

// readByte samples I/O least significant bit first. The chip presents the
// next bit after each falling edge of SCLK.
func (d *Dev) readByte() (byte, error) {
	if err := d.dat.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return 0, fmt.Errorf("ds1302: %w", err)
	}
	var b byte
	for i := range 8 {
		if d.dat.Read() == gpio.High {
			b |= 1 << i
		}
		if err := d.pulse(); err != nil {
			return 0, err
		}
	}
	return b, nil
}

func (d *Dev) pulse() error {
	if err := d.clk.Out(gpio.High); err != nil {
		return fmt.Errorf("ds1302: %w", err)
	}
	if err := d.clk.Out(gpio.Low); err != nil {
		return fmt.Errorf("ds1302: %w", err)
	}
	return nil
}
