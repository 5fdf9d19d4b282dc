// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package l3gd20

import (
	"math"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestGyro(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddress, W: []byte{CtrlReg4, 0x00}},
			{Addr: DefaultAddress, W: []byte{CtrlReg1, 0x0f}},
			{Addr: DefaultAddress, W: []byte{0xa8}, R: []byte{0xe8, 0x03, 0x18, 0xfc, 0x00, 0x00}},
			{Addr: DefaultAddress, W: []byte{0xa8}, R: []byte{0xe8, 0x03, 0x18, 0xfc, 0x00, 0x00}},
			{Addr: DefaultAddress, W: []byte{StatusReg}, R: []byte{0x0f}},
			{Addr: DefaultAddress, W: []byte{CtrlReg1, 0x00}},
		},
		DontPanic: true,
	}
	defer pb.Close()
	d, err := NewI2C(pb, nil)
	if err != nil {
		t.Fatal(err)
	}
	dps, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(dps.X-8.75) > 1e-9 || math.Abs(dps.Y+8.75) > 1e-9 || dps.Z != 0 {
		t.Errorf("Read()=%+v", dps)
	}
	rad, err := d.Gyro()
	if err != nil {
		t.Fatal(err)
	}
	if want := 8.75 * math.Pi / 180; math.Abs(rad.X-want) > 1e-12 || math.Abs(rad.Y+want) > 1e-12 {
		t.Errorf("Gyro()=%+v", rad)
	}
	if s, err := d.Status(); err != nil || s != 0x0f {
		t.Errorf("Status()=%x, %v", s, err)
	}
	if err := d.Halt(); err != nil {
		t.Error(err)
	}
}

func TestRange(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddress, W: []byte{CtrlReg4, 0x20}},
			{Addr: DefaultAddress, W: []byte{CtrlReg1, 0xcf}},
			{Addr: DefaultAddress, W: []byte{0xa8}, R: []byte{0x64, 0x00, 0x00, 0x00, 0x9c, 0xff}},
		},
		DontPanic: true,
	}
	defer pb.Close()
	d, err := NewI2C(pb, &Opts{Range: Range2000DPS, Rate: Rate800Hz})
	if err != nil {
		t.Fatal(err)
	}
	dps, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(dps.X-7) > 1e-9 || math.Abs(dps.Z+7) > 1e-9 {
		t.Errorf("Read()=%+v", dps)
	}
	if _, err := NewI2C(pb, &Opts{Range: 0x30}); err == nil {
		t.Error("expected error for invalid range")
	}
}
