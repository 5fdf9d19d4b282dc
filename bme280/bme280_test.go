// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bme280

import (
	"errors"
	"math"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

const addr = DefaultAddress

// T1=27504 T2=26435 T3=-1000 P1=36477 P2=-10685 P3=3024 P4=2855 P5=140
// P6=-7 P7=15500 P8=-14600 P9=6000 H1=75.
var calib00 = []byte{
	0x70, 0x6b, 0x43, 0x67, 0x18, 0xfc, 0x7d, 0x8e, 0x43, 0xd6, 0xd0, 0x0b, 0x27,
	0x0b, 0x8c, 0x00, 0xf9, 0xff, 0x8c, 0x3c, 0xf8, 0xc6, 0x70, 0x17, 0x00, 0x4b,
}

// H2=362 H3=0 H4=313 H5=50 H6=30.
var calib26 = []byte{0x6a, 0x01, 0x00, 0x13, 0x29, 0x03, 0x1e}

// Pressure 415148, temperature 519888, humidity 30000.
var sample = []byte{0x65, 0x5a, 0xc0, 0x7e, 0xed, 0x00, 0x75, 0x30}

var testCal = Calibration{
	T1: 27504, T2: 26435, T3: -1000,
	P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140, P6: -7, P7: 15500, P8: -14600, P9: 6000,
	H1: 75, H2: 362, H3: 0, H4: 313, H5: 50, H6: 30,
}

func initOps() []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: addr, W: []byte{regCalib00}, R: calib00},
		{Addr: addr, W: []byte{regCalib26}, R: calib26},
		{Addr: addr, W: []byte{regCtrlMeas, 0x90}},
	}
}

func readOps(busyPolls int) []i2ctest.IO {
	ops := []i2ctest.IO{
		{Addr: addr, W: []byte{regCtrlHum, 0x04}},
		{Addr: addr, W: []byte{regCtrlMeas, 0x91}},
	}
	for range busyPolls {
		ops = append(ops, i2ctest.IO{Addr: addr, W: []byte{regStatus}, R: []byte{0x08}})
	}
	return append(ops,
		i2ctest.IO{Addr: addr, W: []byte{regStatus}, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{regData}, R: sample})
}

func near(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestParseCalibration(t *testing.T) {
	if got := parseCalibration(calib00, calib26); got != testCal {
		t.Errorf("parseCalibration()=%+v expected %+v", got, testCal)
	}
}

func TestParseCalibrationNegativeH4H5(t *testing.T) {
	// H4=-100 (0xf9c), H5=-20 (0xfec).
	b26 := []byte{0, 0, 0, 0xf9, 0xcc, 0xfe, 0}
	c := parseCalibration(calib00, b26)
	if c.H4 != -100 || c.H5 != -20 {
		t.Errorf("H4=%d H5=%d expected -100 -20", c.H4, c.H5)
	}
}

func TestCompensate(t *testing.T) {
	tests := []struct {
		name    string
		cal     func(c *Calibration)
		raw     RawSample
		t, p, h float64
	}{
		{
			name: "datasheet",
			raw:  RawSample{Temperature: 519888, Pressure: 415148, Humidity: 30000},
			t:    25.0825, p: 100653.258, h: 55.0007,
		},
		{
			name: "zero pressure divisor",
			cal:  func(c *Calibration) { c.P1 = 0 },
			raw:  RawSample{Temperature: 519888, Pressure: 415148, Humidity: 30000},
			t:    25.0825, p: 30000, h: 55.0007,
		},
		{
			name: "lower clamps",
			raw:  RawSample{},
			t:    -40, p: 110000, h: 0,
		},
		{
			name: "humidity upper clamp",
			raw:  RawSample{Temperature: 524288, Humidity: 65535},
			t:    26.4608, p: 110000, h: 100,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cal := testCal
			if test.cal != nil {
				test.cal(&cal)
			}
			tc, p, h := Compensate(cal, test.raw)
			if !near(tc, test.t, 0.001) {
				t.Errorf("temperature %.4f expected %.4f", tc, test.t)
			}
			if !near(p, test.p, 0.01) {
				t.Errorf("pressure %.3f expected %.3f", p, test.p)
			}
			if !near(h, test.h, 0.001) {
				t.Errorf("humidity %.4f expected %.4f", h, test.h)
			}
		})
	}
}

func TestOversampling(t *testing.T) {
	for o, code := range map[Oversampling]byte{1: 1, 2: 2, 4: 3, 8: 4, 16: 5} {
		got, err := o.code()
		if err != nil || got != code {
			t.Errorf("Oversampling(%d).code()=%d, %v expected %d", o, got, err, code)
		}
	}
	opts := DefaultOpts
	opts.Pressure = 3
	if _, err := NewI2C(&i2ctest.Playback{}, addr, &opts); err == nil {
		t.Error("expected error for oversampling 3")
	}
}

func TestSense(t *testing.T) {
	pb := &i2ctest.Playback{Ops: append(append(initOps(), readOps(2)...), i2ctest.IO{Addr: addr, W: []byte{regCtrlMeas, 0x90}}), DontPanic: true}
	defer pb.Close()
	opts := DefaultOpts
	opts.PollInterval = time.Microsecond
	dev, err := NewI2C(pb, addr, &opts)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Calibration() != testCal {
		t.Errorf("calibration %+v", dev.Calibration())
	}
	env := physic.Env{}
	if err := dev.Sense(&env); err != nil {
		t.Fatal(err)
	}
	if c := env.Temperature.Celsius(); !near(c, 25.08, 0.01) {
		t.Errorf("temperature %.3f", c)
	}
	if p := float64(env.Pressure) / float64(physic.Pascal); !near(p, 100653.26, 0.01) {
		t.Errorf("pressure %.2f", p)
	}
	if h := float64(env.Humidity) / float64(physic.PercentRH); !near(h, 55.0, 0.01) {
		t.Errorf("humidity %.3f", h)
	}
	if err := dev.Halt(); err != nil {
		t.Error(err)
	}
	if len(dev.String()) == 0 {
		t.Error("empty String()")
	}
}

func TestNotReady(t *testing.T) {
	ops := append(initOps(),
		i2ctest.IO{Addr: addr, W: []byte{regCtrlHum, 0x04}},
		i2ctest.IO{Addr: addr, W: []byte{regCtrlMeas, 0x91}})
	opts := DefaultOpts
	opts.ReadyPolls = 3
	opts.PollInterval = time.Microsecond
	for range opts.ReadyPolls {
		ops = append(ops, i2ctest.IO{Addr: addr, W: []byte{regStatus}, R: []byte{0x08}})
	}
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, addr, &opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.ReadRaw(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestAltitudeAndDewPoint(t *testing.T) {
	pb := &i2ctest.Playback{Ops: append(append(initOps(), readOps(0)...), readOps(0)...), DontPanic: true}
	defer pb.Close()
	dev, err := NewI2C(pb, addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	dev.SetSeaLevel(20000)
	if dev.SeaLevel() != defaultLevel {
		t.Errorf("sea level %.0f accepted", dev.SeaLevel())
	}
	alt, err := dev.Altitude()
	if err != nil {
		t.Fatal(err)
	}
	if !near(alt, 56.08, 0.01) {
		t.Errorf("altitude %.3f expected 56.08", alt)
	}
	dp, err := dev.DewPoint()
	if err != nil {
		t.Fatal(err)
	}
	if !near(dp, 15.41, 0.01) {
		t.Errorf("dew point %.3f expected 15.41", dp)
	}
	if _, err := dewPoint(20, 0); !errors.Is(err, ErrDewPoint) {
		t.Errorf("expected ErrDewPoint, got %v", err)
	}
}

func TestPrecision(t *testing.T) {
	dev := &Dev{}
	env := physic.Env{}
	dev.Precision(&env)
	if env.Temperature != 10*physic.MilliKelvin || env.Humidity != 800*physic.TenthMicroRH {
		t.Errorf("unexpected precision %#v", env)
	}
}
