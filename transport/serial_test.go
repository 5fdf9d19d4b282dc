// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort returns one scripted chunk per Read and times out once they
// are exhausted.
type fakePort struct {
	chunks  [][]byte
	written bytes.Buffer
	timeout time.Duration
	closed  bool
	readErr error
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.chunks) == 0 {
		time.Sleep(min(p.timeout, 5*time.Millisecond))
		return 0, nil
	}
	n := copy(b, p.chunks[0])
	p.chunks[0] = p.chunks[0][n:]
	if len(p.chunks[0]) == 0 {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func TestSerialSend(t *testing.T) {
	p := &fakePort{}
	s := NewSerial(p)
	require.NoError(t, s.Send(`{"co2":416}`))
	require.NoError(t, s.Send(`{"co2":420}`))
	assert.Equal(t, "{\"co2\":416}\n{\"co2\":420}\n", p.written.String())

	require.NoError(t, s.Close())
	assert.True(t, p.closed)
	assert.ErrorIs(t, s.Send("x"), ErrClosed)
}

func TestSerialReceiveLines(t *testing.T) {
	p := &fakePort{chunks: [][]byte{[]byte("set_ti"), []byte("me 2024\r\nping\nrest")}}
	s := NewSerial(p)

	line, err := s.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "set_time 2024", line)

	line, err = s.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ping", line)

	line, err = s.Receive(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "rest", line)

	line, err = s.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, line)
}

func TestSerialReadError(t *testing.T) {
	p := &fakePort{readErr: errors.New("device unplugged")}
	s := NewSerial(p)
	_, err := s.Receive(time.Second)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}

// blockingPort blocks reads until it is closed, like a UART with no
// traffic.
type blockingPort struct {
	fakePort
	done chan struct{}
}

func (p *blockingPort) Read(b []byte) (int, error) {
	<-p.done
	return 0, errors.New("port has been closed")
}

func (p *blockingPort) Close() error {
	close(p.done)
	return nil
}

func TestSerialReceiveAfterClose(t *testing.T) {
	s := NewSerial(&fakePort{chunks: [][]byte{[]byte("ping\n")}})
	require.NoError(t, s.Close())
	_, err := s.Receive(time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, s.Close())
}

func TestSerialCloseUnblocksReceive(t *testing.T) {
	s := NewSerial(&blockingPort{done: make(chan struct{})})
	errc := make(chan error, 1)
	go func() {
		_, err := s.Receive(time.Minute)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Receive still blocked after Close")
	}
}
