// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cycle runs the acquisition loop of the node.
//
// Every tick reads the enabled sensors in order into one record, sounds the
// alarms they raised and sends the record as one line. A sensor that fails
// or panics contributes an "error_<name>" key and does not stop the tick.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GermanBionicSystems/sensorhub/ds1302"
	"github.com/GermanBionicSystems/sensorhub/ky006"
	"github.com/GermanBionicSystems/sensorhub/metrics"
	"github.com/GermanBionicSystems/sensorhub/record"
)

// Sensor is one device read during a tick.
type Sensor interface {
	// Name is the device name used in error keys and logs.
	Name() string
	// Read adds the readings to f.Record.
	Read(f *Frame) error
}

// Clock provides the timestamp of a tick.
type Clock interface {
	ReadTime() (ds1302.Time, error)
}

// Buzzer sounds alarms.
type Buzzer interface {
	SoundAlarm(a ky006.Alarm) error
}

// Sender delivers record lines.
type Sender interface {
	Send(line string) error
}

// Opts holds the collaborators of a Cycle. Every field but Sender may be
// nil.
type Opts struct {
	Clock   Clock
	Buzzer  Buzzer
	Sender  Sender
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Interval is the pause between two ticks.
	Interval time.Duration
	// Nested sends dotted keys as nested objects.
	Nested bool
}

// Cycle reads the sensors, one tick at a time.
type Cycle struct {
	sensors []Sensor
	opts    Opts
	rec     *record.Record
	start   time.Time
	now     func() time.Time
}

// New returns a cycle reading sensors in the given order.
func New(sensors []Sensor, opts *Opts) (*Cycle, error) {
	if opts == nil || opts.Sender == nil {
		return nil, errors.New("cycle: a sender is required")
	}
	c := &Cycle{
		sensors: sensors,
		opts:    *opts,
		rec:     record.New(),
		now:     time.Now,
	}
	if c.opts.Logger == nil {
		c.opts.Logger = slog.Default()
	}
	c.start = c.now()
	return c, nil
}

// Run ticks until ctx is cancelled. Send failures are logged and do not
// stop the loop.
func (c *Cycle) Run(ctx context.Context) error {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Tick(ctx); err != nil {
			c.opts.Logger.Error("sending record failed", "err", err)
		}
		t.Reset(c.opts.Interval)
	}
}

// Tick runs one cycle and returns the send error, if any.
func (c *Cycle) Tick(ctx context.Context) error {
	start := c.now()
	defer c.rec.Clear()
	f := newFrame(c.rec)

	c.timestamp(f)
	for _, s := range c.sensors {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := c.read(s, f)
		c.opts.Metrics.SensorRead(s.Name(), err)
		if err != nil {
			f.Record.Set("error_"+s.Name(), err.Error())
			c.opts.Logger.Error("sensor read failed", "device", s.Name(), "err", err)
		}
	}
	for _, a := range f.Alarms() {
		c.opts.Metrics.Alarm(string(a))
		c.opts.Logger.Warn("alarm", "alarm", a)
		if c.opts.Buzzer == nil {
			continue
		}
		if err := c.opts.Buzzer.SoundAlarm(a); err != nil {
			f.Record.Set("error_ky006", err.Error())
			c.opts.Logger.Error("sounding alarm failed", "alarm", a, "err", err)
		}
	}

	err := c.send()
	c.opts.Metrics.Cycle(c.now().Sub(start).Seconds())
	return err
}

// ReportInitError sends a record holding only an "error" key, as done at
// boot for every device that failed to initialise.
func (c *Cycle) ReportInitError(device string, err error) error {
	defer c.rec.Clear()
	c.rec.Clear()
	c.rec.Set("error", fmt.Sprintf("initializing %s: %v", device, err))
	c.opts.Logger.Error("device initialization failed", "device", device, "err", err)
	return c.send()
}

func (c *Cycle) timestamp(f *Frame) {
	if c.opts.Clock == nil {
		f.Record.Set("uptime_min", c.uptime())
		return
	}
	t, err := c.opts.Clock.ReadTime()
	if err != nil {
		f.Record.Set("error_ds1302", err.Error())
		f.Record.Set("uptime_min", c.uptime())
		c.opts.Logger.Error("reading clock failed", "err", err)
		c.opts.Metrics.SensorRead("ds1302", err)
		return
	}
	c.opts.Metrics.SensorRead("ds1302", nil)
	f.Record.Set("timestamp", t.ISO8601())
}

func (c *Cycle) uptime() float64 {
	return c.now().Sub(c.start).Minutes()
}

// read calls s.Read, turning a panic into an error.
func (c *Cycle) read(s Sensor, f *Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Read(f)
}

func (c *Cycle) send() error {
	var line string
	if c.opts.Nested {
		b, err := c.rec.Nested()
		if err != nil {
			c.opts.Metrics.SendError()
			return fmt.Errorf("cycle: encoding record: %w", err)
		}
		line = string(b)
	} else {
		l, err := c.rec.Line()
		if err != nil {
			c.opts.Metrics.SendError()
			return fmt.Errorf("cycle: encoding record: %w", err)
		}
		line = l
	}
	c.opts.Logger.Debug("record", "line", line)
	if err := c.opts.Sender.Send(line); err != nil {
		c.opts.Metrics.SendError()
		return fmt.Errorf("cycle: %w", err)
	}
	return nil
}
