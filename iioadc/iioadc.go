// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package iioadc reads ADC channels exposed by the Linux Industrial I/O
// subsystem in sysfs.
package iioadc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"
)

// SysfsRoot is the directory holding the IIO devices.
var SysfsRoot = "/sys/bus/iio/devices"

// ErrNoChannel is returned by Open when the channel has no raw attribute.
var ErrNoChannel = errors.New("iioadc: no such channel")

// Channel is one voltage input of an IIO device.
type Channel struct {
	mu     sync.Mutex
	device string
	index  int
	raw    string
	// Millivolts per count, 0 when the driver does not report it.
	scale  float64
	offset float64
}

// Open returns the channel index of device, e.g. "iio:device0". The scale
// and offset attributes are read once.
func Open(device string, index int) (*Channel, error) {
	dir := device
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(SysfsRoot, device)
	}
	c := &Channel{device: device, index: index, raw: filepath.Join(dir, fmt.Sprintf("in_voltage%d_raw", index))}
	if _, err := os.Stat(c.raw); err != nil {
		return nil, fmt.Errorf("%w: %s/%d: %v", ErrNoChannel, device, index, err)
	}
	var err error
	if c.scale, err = readAttr(dir, index, "scale"); err != nil {
		return nil, err
	}
	if c.offset, err = readAttr(dir, index, "offset"); err != nil {
		return nil, err
	}
	return c, nil
}

// readAttr returns the per channel attribute, falling back to the shared
// one and then to 0.
func readAttr(dir string, index int, attr string) (float64, error) {
	for _, name := range []string{fmt.Sprintf("in_voltage%d_%s", index, attr), "in_voltage_" + attr} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("iioadc: %w", err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
		if err != nil {
			return 0, fmt.Errorf("iioadc: %s: %w", name, err)
		}
		return v, nil
	}
	return 0, nil
}

// Read returns the raw count and, when the device reports a scale, the
// voltage.
func (c *Channel) Read() (analog.Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := os.ReadFile(c.raw)
	if err != nil {
		return analog.Sample{}, fmt.Errorf("iioadc: %w", err)
	}
	raw, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return analog.Sample{}, fmt.Errorf("iioadc: %s: %w", c, err)
	}
	mv := (float64(raw) + c.offset) * c.scale
	return analog.Sample{
		Raw: int32(raw),
		V:   physic.ElectricPotential(mv * float64(physic.MilliVolt)),
	}, nil
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return fmt.Sprintf("%s/in_voltage%d", c.device, c.index)
}

// Number returns the channel index.
func (c *Channel) Number() int {
	return c.index
}

func (c *Channel) String() string {
	return "iioadc: " + c.Name()
}

// Halt is a no-op, the kernel driver owns the device.
func (c *Channel) Halt() error {
	return nil
}
