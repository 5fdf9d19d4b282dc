// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd4x

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
)

// ErrorCode is the last error recorded by the device.
type ErrorCode int

const (
	CodeSuccess        ErrorCode = 0
	CodeDataTooLong    ErrorCode = 1
	CodeAddressNACK    ErrorCode = 2
	CodeDataNACK       ErrorCode = 3
	CodeOther          ErrorCode = 4
	CodeTimeout        ErrorCode = 5
	CodeLengthMismatch ErrorCode = 6
	CodeOutOfRange     ErrorCode = 7
	CodeNoDevice       ErrorCode = 19
)

var codeText = map[ErrorCode]string{
	CodeSuccess:        "Success",
	CodeDataTooLong:    "I2C data too long to fit in transmit buffer",
	CodeAddressNACK:    "I2C received NACK on transmit of address",
	CodeDataNACK:       "I2C received NACK on transmit of data",
	CodeOther:          "I2C other error",
	CodeTimeout:        "I2C timeout",
	CodeLengthMismatch: "bytesReceived != bytesRequested",
	CodeOutOfRange:     "Measurement out of range",
	CodeNoDevice:       "No such device",
}

func (c ErrorCode) String() string {
	if s, ok := codeText[c]; ok {
		return s
	}
	return "Unknown error"
}

// ErrPressureRange is returned by SetAmbientPressure for values outside of
// 0..1200 hPa.
var ErrPressureRange = errors.New("scd4x: pressure must be between 0 and 1200 hPa")

// Error is returned when a bus transfer keeps failing or a measurement is
// rejected.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("scd4x %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("scd4x %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// errnoCodes maps the errors returned by the host's I2C driver. Extended per
// platform in errors_linux.go.
var errnoCodes = map[syscall.Errno]ErrorCode{
	syscall.EMSGSIZE:  CodeDataTooLong,
	syscall.ENXIO:     CodeAddressNACK,
	syscall.ETIMEDOUT: CodeTimeout,
	syscall.ENODEV:    CodeNoDevice,
}

func classify(err error) ErrorCode {
	if err == nil {
		return CodeSuccess
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if code, ok := errnoCodes[errno]; ok {
			return code
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.ErrShortWrite):
		return CodeLengthMismatch
	}
	return CodeOther
}
