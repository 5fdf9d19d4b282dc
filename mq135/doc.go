// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mq135 converts the analog output of an MQ135 gas sensor into CO2
// and NH3 concentration estimates.
//
// The sensor resistance is derived from the ADC count and the load
// resistor, corrected for ambient temperature and humidity, and mapped
// through a power law curve per gas. GasConcentrations takes a series of
// estimates and reports the median of each.
//
// # Datasheet
//
// https://www.winsen-sensor.com/d/files/PDF/Semiconductor%20Gas%20Sensor/MQ135%20(Ver1.4)%20-%20Manual.pdf
package mq135
