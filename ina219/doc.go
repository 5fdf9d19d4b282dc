// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ina219 controls a Texas Instruments INA219 current,
// voltage and power monitor IC over an i2c bus.
//
// The calibration register is derived from the shunt resistance and the
// maximum expected current. A battery charge estimate is computed linearly
// between the configured empty and full pack voltages.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/ina219.pdf
package ina219
