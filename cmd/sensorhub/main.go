// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// sensorhub polls the sensors of the node and forwards one JSON line per
// cycle to the host computer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GermanBionicSystems/sensorhub/bme280"
	"github.com/GermanBionicSystems/sensorhub/config"
	"github.com/GermanBionicSystems/sensorhub/cycle"
	"github.com/GermanBionicSystems/sensorhub/ds1302"
	"github.com/GermanBionicSystems/sensorhub/hc020k"
	"github.com/GermanBionicSystems/sensorhub/hcsr04"
	"github.com/GermanBionicSystems/sensorhub/iioadc"
	"github.com/GermanBionicSystems/sensorhub/ina219"
	"github.com/GermanBionicSystems/sensorhub/ky006"
	"github.com/GermanBionicSystems/sensorhub/ky026"
	"github.com/GermanBionicSystems/sensorhub/l3gd20"
	"github.com/GermanBionicSystems/sensorhub/logging"
	"github.com/GermanBionicSystems/sensorhub/lsm303"
	"github.com/GermanBionicSystems/sensorhub/metrics"
	"github.com/GermanBionicSystems/sensorhub/mq135"
	"github.com/GermanBionicSystems/sensorhub/scd4x"
	"github.com/GermanBionicSystems/sensorhub/transport"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// initFailure is a device that could not be brought up at boot.
type initFailure struct {
	device string
	err    error
}

type halter interface {
	Halt() error
}

// node holds everything brought up at boot.
type node struct {
	log      *slog.Logger
	clock    cycle.Clock
	rtc      cycle.TimeSetter
	buzzer   cycle.Buzzer
	sensors  []cycle.Sensor
	failures []initFailure
	halt     []halter
	closers  []func() error
}

func (n *node) fail(device string, err error) {
	n.failures = append(n.failures, initFailure{device: device, err: err})
}

func (n *node) close() {
	for _, h := range n.halt {
		if err := h.Halt(); err != nil {
			n.log.Warn("halt failed", "device", h, "err", err)
		}
	}
	for _, c := range n.closers {
		if err := c(); err != nil {
			n.log.Warn("close failed", "err", err)
		}
	}
}

func pin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no gpio pin %q", name)
	}
	return p, nil
}

func openTransport(c config.TransportConfig) (transport.Transport, error) {
	if c.Kind == config.TransportMQTT {
		return transport.DialMQTT(transport.MQTTOptions{
			Broker:       c.Broker,
			ClientID:     c.ClientID,
			Topic:        c.Topic,
			CommandTopic: c.CommandTopic,
		})
	}
	return transport.OpenSerial(c.Port, c.Baud)
}

// setup brings up every enabled device in the order of the cycle. Failing
// devices are recorded and left out.
func setup(cfg *config.Config, log *slog.Logger) *node {
	n := &node{log: log}

	if cfg.RTC.Enabled {
		if err := setupRTC(n, cfg.RTC); err != nil {
			n.fail("ds1302", err)
		}
	}
	if cfg.Buzzer.Enabled {
		if p, err := pin(cfg.Buzzer.Pin); err != nil {
			n.fail("ky006", err)
		} else if d, err := ky006.New(p); err != nil {
			n.fail("ky006", err)
		} else {
			n.buzzer = d
			n.halt = append(n.halt, d)
		}
	}

	var (
		env     cycle.Sensor
		power   cycle.Sensor
		gyro    cycle.Sensor
		compass cycle.Sensor
		co2     cycle.Sensor
	)
	if cfg.I2C.Enabled {
		bus, err := i2creg.Open(cfg.I2C.Bus)
		if err != nil {
			n.fail("i2c", err)
		} else {
			n.closers = append(n.closers, bus.Close)
			if cfg.BME280.Enabled {
				if d, err := bme280.NewI2C(bus, cfg.BME280.Address, nil); err != nil {
					n.fail("bme280", err)
				} else {
					d.SetSeaLevel(cfg.BME280.SeaLevel)
					env = &cycle.BME280{Dev: d}
					n.halt = append(n.halt, d)
				}
			}
			if cfg.INA219.Enabled {
				opts := ina219.DefaultOpts
				opts.Address = cfg.INA219.Address
				opts.BatteryEmpty = cfg.INA219.BatteryEmpty
				opts.BatteryFull = cfg.INA219.BatteryFull
				if d, err := ina219.New(bus, &opts); err != nil {
					n.fail("ina219", err)
				} else {
					power = &cycle.INA219{Dev: d}
					n.halt = append(n.halt, d)
				}
			}
			if cfg.L3GD20.Enabled {
				if d, err := l3gd20.NewI2C(bus, nil); err != nil {
					n.fail("l3gd20", err)
				} else {
					gyro = &cycle.L3GD20{Dev: d}
					n.halt = append(n.halt, d)
				}
			}
			if cfg.LSM303.Enabled {
				if d, err := lsm303.NewI2C(bus, nil); err != nil {
					n.fail("lsm303d", err)
				} else {
					compass = &cycle.LSM303{Dev: d}
					n.halt = append(n.halt, d)
				}
			}
			if cfg.SCD41.Enabled {
				opts := scd4x.DefaultOpts
				opts.CO2Offset = scd4x.PPM(cfg.SCD41.CO2Offset)
				opts.AutoCalibration = cfg.SCD41.AutoCalibration
				if d, err := scd4x.NewI2C(bus, cfg.SCD41.Address, &opts); err != nil {
					n.fail("scd41", err)
				} else {
					co2 = &cycle.SCD41{Dev: d, Threshold: cfg.SCD41.Threshold}
					n.halt = append(n.halt, d)
				}
			}
		}
	}

	var wheels []cycle.Wheel
	for _, e := range cfg.HC020K {
		if !e.Enabled {
			continue
		}
		p, err := pin(e.Pin)
		if err != nil {
			n.fail("hc020k", fmt.Errorf("%s: %w", e.Position, err))
			continue
		}
		d, err := hc020k.New(p, nil)
		if err != nil {
			n.fail("hc020k", fmt.Errorf("%s: %w", e.Position, err))
			continue
		}
		wheels = append(wheels, cycle.Wheel{Position: e.Position, Dev: d})
		n.halt = append(n.halt, d)
	}

	var rangers []cycle.Ranged
	for _, u := range cfg.HCSR04 {
		if !u.Enabled {
			continue
		}
		d, err := setupRanger(u)
		if err != nil {
			n.fail("hcsr04", fmt.Errorf("%s: %w", u.Position, err))
			continue
		}
		rangers = append(rangers, cycle.Ranged{Position: u.Position, Dev: d})
		n.halt = append(n.halt, d)
	}

	var flame, gas cycle.Sensor
	if cfg.KY026.Enabled {
		if ch, err := iioadc.Open(cfg.KY026.ADC.Device, cfg.KY026.ADC.Channel); err != nil {
			n.fail("ky026", err)
		} else if d, err := ky026.New(ch, cfg.KY026.Threshold); err != nil {
			n.fail("ky026", err)
		} else {
			flame = &cycle.KY026{Dev: d}
		}
	}
	if cfg.MQ135.Enabled {
		if ch, err := iioadc.Open(cfg.MQ135.ADC.Device, cfg.MQ135.ADC.Channel); err != nil {
			n.fail("mq135", err)
		} else if d, err := mq135.New(ch, nil); err != nil {
			n.fail("mq135", err)
		} else {
			gas = &cycle.MQ135{Dev: d, Threshold: cfg.MQ135.Threshold}
		}
	}

	var wheelSensor, rangeSensor cycle.Sensor
	if len(wheels) > 0 {
		wheelSensor = &cycle.HC020K{Wheels: wheels}
	}
	if len(rangers) > 0 {
		rangeSensor = &cycle.HCSR04{Rangers: rangers}
	}
	// The environmental sensor comes first so that later sensors are
	// compensated with its readings.
	for _, s := range []cycle.Sensor{env, wheelSensor, rangeSensor, power, flame, gas, gyro, compass, co2} {
		if s != nil {
			n.sensors = append(n.sensors, s)
		}
	}
	return n
}

func setupRTC(n *node, c config.RTCConfig) error {
	clk, err := pin(c.CLK)
	if err != nil {
		return err
	}
	dat, err := pin(c.DAT)
	if err != nil {
		return err
	}
	rst, err := pin(c.RST)
	if err != nil {
		return err
	}
	d, err := ds1302.New(clk, dat, rst)
	if err != nil {
		return err
	}
	n.clock = d
	n.rtc = d
	n.halt = append(n.halt, d)
	return nil
}

func setupRanger(u config.UltrasonicConfig) (*hcsr04.Dev, error) {
	trig, err := pin(u.Trig)
	if err != nil {
		return nil, err
	}
	echo, err := pin(u.Echo)
	if err != nil {
		return nil, err
	}
	return hcsr04.New(trig, echo, nil)
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	log.Info("serving metrics", "addr", addr)
}

func mainImpl(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logging.New(level, os.Stderr)
	slog.SetDefault(log)

	if _, err := host.Init(); err != nil {
		return err
	}

	tx, err := openTransport(cfg.Transport)
	if err != nil {
		return err
	}
	defer tx.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		serveMetrics(ctx, cfg.Metrics.Addr, m, log)
	}

	n := setup(cfg, log)
	defer n.close()

	c, err := cycle.New(n.sensors, &cycle.Opts{
		Clock:    n.clock,
		Buzzer:   n.buzzer,
		Sender:   tx,
		Logger:   log,
		Metrics:  m,
		Interval: cfg.Interval,
		Nested:   cfg.Transport.Nested,
	})
	if err != nil {
		return err
	}
	for _, f := range n.failures {
		if err := c.ReportInitError(f.device, f.err); err != nil {
			log.Error("reporting init failure", "device", f.device, "err", err)
		}
	}
	log.Info("sensorhub started", "sensors", len(n.sensors), "transport", tx)

	cmds := &cycle.Commands{RTC: n.rtc, Reply: tx, Logger: log}
	go func() {
		if err := cmds.Listen(ctx, tx, time.Second); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("command listener stopped", "err", err)
		}
	}()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("sensorhub stopped")
	return nil
}

func main() {
	configPath := flag.String("config", "/etc/sensorhub.yaml", "path to the YAML configuration")
	flag.Parse()
	if err := mainImpl(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "sensorhub: %s.\n", err)
		os.Exit(1)
	}
}
