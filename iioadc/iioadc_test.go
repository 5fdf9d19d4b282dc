// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package iioadc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"periph.io/x/conn/v3/physic"
)

func writeAttr(t *testing.T, dir, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	writeAttr(t, dir, "in_voltage3_raw", "2048")
	writeAttr(t, dir, "in_voltage_scale", "0.805664062")

	c, err := Open(dir, 3)
	if err != nil {
		t.Fatal(err)
	}
	s, err := c.Read()
	if err != nil {
		t.Fatal(err)
	}
	if s.Raw != 2048 {
		t.Errorf("raw %d", s.Raw)
	}
	mv := float64(s.V) / float64(physic.MilliVolt)
	if mv < 1649.99 || mv > 1650.01 {
		t.Errorf("voltage %.3f mV expected 1650", mv)
	}

	writeAttr(t, dir, "in_voltage3_raw", "17")
	if s, _ = c.Read(); s.Raw != 17 {
		t.Errorf("raw %d after update", s.Raw)
	}
	if c.Number() != 3 || c.String() == "" {
		t.Errorf("unexpected identity %d %q", c.Number(), c.String())
	}
}

func TestChannelScaleOverridesShared(t *testing.T) {
	dir := t.TempDir()
	writeAttr(t, dir, "in_voltage0_raw", "100")
	writeAttr(t, dir, "in_voltage0_scale", "2")
	writeAttr(t, dir, "in_voltage_scale", "1")
	writeAttr(t, dir, "in_voltage0_offset", "-50")
	c, err := Open(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	s, err := c.Read()
	if err != nil {
		t.Fatal(err)
	}
	if s.V != 100*physic.MilliVolt {
		t.Errorf("voltage %s expected 100mV", s.V)
	}
}

func TestRelativeDevice(t *testing.T) {
	root := t.TempDir()
	old := SysfsRoot
	SysfsRoot = root
	defer func() { SysfsRoot = old }()
	dir := filepath.Join(root, "iio:device0")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeAttr(t, dir, "in_voltage1_raw", "5")
	c, err := Open("iio:device0", 1)
	if err != nil {
		t.Fatal(err)
	}
	if s, err := c.Read(); err != nil || s.Raw != 5 || s.V != 0 {
		t.Errorf("Read()=%v, %v", s, err)
	}
}

func TestBadInput(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir, 0); !errors.Is(err, ErrNoChannel) {
		t.Errorf("expected ErrNoChannel, got %v", err)
	}
	writeAttr(t, dir, "in_voltage0_raw", "garbage")
	c, err := Open(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Read(); err == nil {
		t.Error("expected parse error")
	}
	writeAttr(t, dir, "in_voltage_scale", "x")
	if _, err := Open(dir, 0); err == nil {
		t.Error("expected scale parse error")
	}
}
