// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bme280 provides a driver for the Bosch BME280 temperature,
// pressure and humidity sensor.
//
// The factory calibration is read once by NewI2C. Every reading triggers a
// forced mode conversion, waits for the status register to clear and then
// burst reads the eight data registers. Compensation uses the floating point
// formulas of the datasheet and clamps the results to the sensor's operating
// range.
//
// # Datasheet
//
// https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bme280-ds002.pdf
package bme280
