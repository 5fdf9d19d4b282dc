// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds1302 controls a Maxim DS1302 trickle-charge timekeeping chip over
// its 3-wire interface (CE/RST, I/O and SCLK), bit-banged on three GPIO lines.
//
// The interface has no acknowledge of any kind, so a missing or glitching chip
// cannot be told apart from a valid one on the wire. ReadTime checks that
// every decoded field is within its calendar range and returns ErrImplausible
// when it is not, which catches the common failure of a floating I/O line.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS1302.pdf
package ds1302
