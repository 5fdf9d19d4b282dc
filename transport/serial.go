// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate of the UART link.
const DefaultBaudRate = 115200

// Port is the part of serial.Port the transport uses. A read that times out
// returns 0 bytes and no error.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Serial is a line transport over a UART.
type Serial struct {
	name string

	wmu  sync.Mutex
	rmu  sync.Mutex
	port Port
	// Bytes received after the last returned line.
	pending []byte
	closed  atomic.Bool
}

// OpenSerial opens the named port, e.g. "/dev/ttyAMA0". A baud rate of 0
// selects DefaultBaudRate.
func OpenSerial(name string, baudRate int) (*Serial, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	p, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	s := NewSerial(p)
	s.name = name
	return s, nil
}

// NewSerial wraps an already open port.
func NewSerial(p Port) *Serial {
	return &Serial{port: p}
}

// Send writes line and a newline.
func (s *Serial) Send(line string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	b := make([]byte, 0, len(line)+1)
	b = append(b, line...)
	b = append(b, '\n')
	for len(b) > 0 {
		n, err := s.port.Write(b)
		if err != nil {
			return fmt.Errorf("transport: write %s: %w", s.name, err)
		}
		b = b[n:]
	}
	return nil
}

// Receive returns the next line with "\n" and a trailing "\r" removed. On
// timeout the bytes received so far are returned with ErrTimeout and
// discarded.
func (s *Serial) Receive(timeout time.Duration) (string, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)
	for {
		if s.closed.Load() {
			return "", ErrClosed
		}
		if line, ok := s.nextLine(); ok {
			return line, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			partial := string(s.pending)
			s.pending = s.pending[:0]
			return partial, ErrTimeout
		}
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return "", fmt.Errorf("transport: %w", err)
		}
		n, err := s.port.Read(buf)
		if err != nil {
			if s.closed.Load() {
				return "", ErrClosed
			}
			return "", fmt.Errorf("transport: read %s: %w", s.name, err)
		}
		s.pending = append(s.pending, buf[:n]...)
	}
}

func (s *Serial) nextLine() (string, bool) {
	i := bytes.IndexByte(s.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(s.pending[:i], []byte{'\r'}))
	s.pending = append(s.pending[:0], s.pending[i+1:]...)
	return line, true
}

// Close closes the port.
func (s *Serial) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.port.Close()
}

func (s *Serial) String() string {
	return "serial " + s.name
}
