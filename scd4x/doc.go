// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// This package provides a driver for the Sensiron SCD4x CO2 sensors.
// The scd4x family provide a compact sensor that can be used to measure
// Temperature, Humidity, and CO2 concentration.
//
// The driver follows the sensor's own state machine: after NewI2C the
// device is connected, its automatic self calibration mode has been set and
// persisted if it changed, and periodic measurement is running. From then on
// ReadMeasurement never blocks: when the sensor has no new sample it returns
// the last valid reading.
//
// Bus transfers are retried a bounded number of times. When they keep failing
// the error is classified into one of the ErrorCode values and returned as an
// *Error. Decoded values outside of the sensor's operating range are treated
// the same way, with CodeOutOfRange, and the cached reading is kept.
//
// Refer to the datasheet for more information.
//
// https://sensirion.com/media/documents/48C4B7FB/66E05452/CD_DS_SCD4x_Datasheet_D1.pdf
package scd4x
