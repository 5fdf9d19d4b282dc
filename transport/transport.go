// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package transport carries record lines from the node to the host
// computer, over a UART or an MQTT broker.
package transport

import (
	"errors"
	"time"
)

// ErrTimeout is returned by Receive when no complete line arrived in time.
// The partial line received so far is returned with it.
var ErrTimeout = errors.New("transport: receive timeout")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("transport: closed")

// Transport sends and receives newline terminated text lines.
type Transport interface {
	// Send writes line followed by "\n".
	Send(line string) error
	// Receive returns the next line without its terminator.
	Receive(timeout time.Duration) (string, error)
	Close() error
}

var (
	_ Transport = (*Serial)(nil)
	_ Transport = (*MQTT)(nil)
)
