// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GermanBionicSystems/sensorhub/ds1302"
	"github.com/GermanBionicSystems/sensorhub/transport"
)

// ErrUnknownCommand is returned by Handle for a line it does not understand.
var ErrUnknownCommand = errors.New("cycle: unknown command")

// Receiver returns the lines sent by the host.
type Receiver interface {
	Receive(timeout time.Duration) (string, error)
}

// TimeSetter is implemented by *ds1302.Dev.
type TimeSetter interface {
	WriteTime(t ds1302.Time) error
}

// Commands executes the lines sent by the host:
//
//	time 2024-05-01T12:30:00Z   sets the real time clock
//	ping                        answers "pong" through Reply
type Commands struct {
	RTC    TimeSetter
	Reply  Sender
	Logger *slog.Logger
}

// Handle executes one line.
func (c *Commands) Handle(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "time":
		if len(fields) != 2 {
			return errors.New("cycle: usage: time <RFC 3339 timestamp>")
		}
		if c.RTC == nil {
			return errors.New("cycle: no real time clock")
		}
		t, err := time.Parse(time.RFC3339, fields[1])
		if err != nil {
			return fmt.Errorf("cycle: %w", err)
		}
		return c.RTC.WriteTime(ds1302.FromStd(t))
	case "ping":
		if c.Reply == nil {
			return nil
		}
		return c.Reply.Send("pong")
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
}

// Listen handles received lines until ctx is cancelled or the receiver is
// closed. poll bounds each wait for a line.
func (c *Commands) Listen(ctx context.Context, rx Receiver, poll time.Duration) error {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	for ctx.Err() == nil {
		line, err := rx.Receive(poll)
		switch {
		case errors.Is(err, transport.ErrTimeout):
			continue
		case errors.Is(err, transport.ErrClosed):
			return nil
		case err != nil:
			return err
		}
		log.Info("received command", "line", line)
		if err := c.Handle(line); err != nil {
			log.Warn("command failed", "line", line, "err", err)
		}
	}
	return ctx.Err()
}
