// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the CRC8 calculation and word framing used by Sensirion sensors.
package common

import (
	"errors"
	"fmt"
)

// ErrCRC is returned by UnpackWords when a word's checksum does not match.
var ErrCRC = errors.New("common: invalid crc")

// CRC8 calculates the 8-bit CRC of the byte slice parameter and returns the
// calculated value. CRC bytes are used in sensors from TI and Sensirion.
//
// Polynomial 0x31 (x^8 + x^5 + x^4 + 1), initial value 0xff.
func CRC8(bytes []byte) byte {
	var crc byte = 0xff
	for _, val := range bytes {
		crc ^= val
		for range 8 {
			if (crc & 0x80) == 0 {
				crc <<= 1
			} else {
				crc = (byte)((crc << 1) ^ 0x31)
			}
		}
	}
	return crc
}

// PackWords converts 16-bit words into the big-endian byte stream expected by
// Sensirion sensors, each word followed by its CRC.
func PackWords(words ...uint16) []byte {
	b := make([]byte, len(words)*3)
	for ix, val := range words {
		b[ix*3] = byte(val >> 8)
		b[ix*3+1] = byte(val)
		b[ix*3+2] = CRC8(b[ix*3 : ix*3+2])
	}
	return b
}

// UnpackWords is the inverse of PackWords. The length of b must be a multiple
// of 3 and every CRC must match.
func UnpackWords(b []byte) ([]uint16, error) {
	if len(b)%3 != 0 {
		return nil, fmt.Errorf("common: %d bytes is not a whole number of words", len(b))
	}
	words := make([]uint16, len(b)/3)
	for ix := range words {
		if CRC8(b[ix*3:ix*3+2]) != b[ix*3+2] {
			return nil, fmt.Errorf("word %d: %w", ix, ErrCRC)
		}
		words[ix] = uint16(b[ix*3])<<8 | uint16(b[ix*3+1])
	}
	return words, nil
}
