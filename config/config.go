// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the sensor node configuration from a YAML file.
//
// The configuration is read once at boot and handed to the cycle by
// pointer; nothing modifies it afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the node configuration.
type Config struct {
	I2C       I2CConfig          `yaml:"i2c"`
	RTC       RTCConfig          `yaml:"rtc"`
	Buzzer    BuzzerConfig       `yaml:"buzzer"`
	BME280    BME280Config       `yaml:"bme280"`
	SCD41     SCD41Config        `yaml:"scd41"`
	MQ135     MQ135Config        `yaml:"mq135"`
	KY026     KY026Config        `yaml:"ky026"`
	INA219    INA219Config       `yaml:"ina219"`
	L3GD20    DeviceConfig       `yaml:"l3gd20"`
	LSM303    DeviceConfig       `yaml:"lsm303"`
	HCSR04    []UltrasonicConfig `yaml:"hcsr04"`
	HC020K    []EncoderConfig    `yaml:"hc020k"`
	Interval  time.Duration      `yaml:"interval"`
	Transport TransportConfig    `yaml:"transport"`
	Metrics   MetricsConfig      `yaml:"metrics"`
	Log       LogConfig          `yaml:"log"`
}

// I2CConfig selects the bus shared by every I2C sensor.
type I2CConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bus     string `yaml:"bus"` // i2creg name, empty for the first bus
}

// RTCConfig holds the three DS1302 lines.
type RTCConfig struct {
	Enabled bool   `yaml:"enabled"`
	CLK     string `yaml:"clk"`
	DAT     string `yaml:"dat"`
	RST     string `yaml:"rst"`
}

// BuzzerConfig holds the KY-006 line.
type BuzzerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Pin     string `yaml:"pin"`
}

// DeviceConfig is used by sensors with nothing to configure but presence.
type DeviceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BME280Config configures the environmental sensor.
type BME280Config struct {
	Enabled  bool    `yaml:"enabled"`
	Address  uint16  `yaml:"address"`
	SeaLevel float64 `yaml:"sea_level"` // Pa
}

// SCD41Config configures the CO2 sensor.
type SCD41Config struct {
	Enabled         bool   `yaml:"enabled"`
	Address         uint16 `yaml:"address"`
	CO2Offset       int    `yaml:"co2_offset"` // ppm added to every reading
	AutoCalibration bool   `yaml:"auto_calibration"`
	Threshold       int    `yaml:"threshold"` // ppm
}

// ADCChannel names a Linux IIO voltage channel.
type ADCChannel struct {
	Device  string `yaml:"device"`
	Channel int    `yaml:"channel"`
}

// MQ135Config configures the gas sensor.
type MQ135Config struct {
	Enabled   bool       `yaml:"enabled"`
	ADC       ADCChannel `yaml:"adc"`
	Threshold float64    `yaml:"threshold"` // NH3 ppb
}

// KY026Config configures the flame detector.
type KY026Config struct {
	Enabled   bool       `yaml:"enabled"`
	ADC       ADCChannel `yaml:"adc"`
	Threshold int32      `yaml:"threshold"` // ADC count
}

// INA219Config configures the power monitor.
type INA219Config struct {
	Enabled      bool    `yaml:"enabled"`
	Address      uint16  `yaml:"address"`
	BatteryEmpty float64 `yaml:"battery_empty"` // V
	BatteryFull  float64 `yaml:"battery_full"`  // V
}

// UltrasonicConfig is one HC-SR04 ranger.
type UltrasonicConfig struct {
	Position string `yaml:"position"`
	Enabled  bool   `yaml:"enabled"`
	Trig     string `yaml:"trig"`
	Echo     string `yaml:"echo"`
}

// EncoderConfig is one HC-020K wheel encoder.
type EncoderConfig struct {
	Position string `yaml:"position"`
	Enabled  bool   `yaml:"enabled"`
	Pin      string `yaml:"pin"`
}

// Transport kinds.
const (
	TransportSerial = "serial"
	TransportMQTT   = "mqtt"
)

// TransportConfig selects how records leave the node.
type TransportConfig struct {
	Kind         string `yaml:"kind"`
	Port         string `yaml:"port"`
	Baud         int    `yaml:"baud"`
	Broker       string `yaml:"broker"`
	ClientID     string `yaml:"client_id"`
	Topic        string `yaml:"topic"`
	CommandTopic string `yaml:"command_topic"`
	// Nested sends dotted keys as nested objects.
	Nested bool `yaml:"nested"`
}

// MetricsConfig holds the Prometheus listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// LogConfig holds the diagnostic stream settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration of the reference wiring on a
// Raspberry Pi.
func Default() *Config {
	return &Config{
		I2C: I2CConfig{Enabled: true},
		RTC: RTCConfig{
			Enabled: true,
			CLK:     "GPIO23",
			DAT:     "GPIO18",
			RST:     "GPIO19",
		},
		Buzzer: BuzzerConfig{Enabled: true, Pin: "GPIO13"},
		BME280: BME280Config{Enabled: true, Address: 0x76, SeaLevel: 101325},
		SCD41: SCD41Config{
			Enabled:         true,
			Address:         0x62,
			CO2Offset:       -140,
			AutoCalibration: true,
			Threshold:       1000,
		},
		MQ135: MQ135Config{
			Enabled:   true,
			ADC:       ADCChannel{Device: "iio:device0", Channel: 0},
			Threshold: 2880,
		},
		KY026: KY026Config{
			Enabled:   true,
			ADC:       ADCChannel{Device: "iio:device0", Channel: 1},
			Threshold: 1000,
		},
		INA219: INA219Config{Enabled: true, Address: 0x40, BatteryEmpty: 6.0, BatteryFull: 8.4},
		L3GD20: DeviceConfig{Enabled: true},
		LSM303: DeviceConfig{Enabled: true},
		HCSR04: []UltrasonicConfig{
			{Position: "front", Enabled: true, Trig: "GPIO26", Echo: "GPIO16"},
			{Position: "left", Enabled: true, Trig: "GPIO25", Echo: "GPIO20"},
			{Position: "right", Enabled: true, Trig: "GPIO24", Echo: "GPIO21"},
			{Position: "rear", Enabled: false, Trig: "GPIO12", Echo: "GPIO6"},
		},
		HC020K: []EncoderConfig{
			{Position: "front_left", Enabled: true, Pin: "GPIO17"},
			{Position: "front_right", Enabled: true, Pin: "GPIO27"},
			{Position: "rear_left", Enabled: false, Pin: "GPIO22"},
			{Position: "rear_right", Enabled: false, Pin: "GPIO4"},
		},
		Interval: 100 * time.Millisecond,
		Transport: TransportConfig{
			Kind:         TransportSerial,
			Port:         "/dev/serial0",
			Baud:         115200,
			Topic:        "sensorhub/records",
			CommandTopic: "sensorhub/commands",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load loads the configuration from a YAML file. A missing file yields the
// defaults, and so do missing fields.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports settings the node cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative, got %s", c.Interval))
	}
	switch c.Transport.Kind {
	case TransportSerial:
		if c.Transport.Port == "" {
			errs = append(errs, errors.New("transport.port is required for serial"))
		}
	case TransportMQTT:
		if c.Transport.Broker == "" {
			errs = append(errs, errors.New("transport.broker is required for mqtt"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport kind %q", c.Transport.Kind))
	}
	if c.INA219.BatteryFull <= c.INA219.BatteryEmpty {
		errs = append(errs, errors.New("ina219.battery_full must be above battery_empty"))
	}
	seen := map[string]bool{}
	for _, u := range c.HCSR04 {
		if u.Position == "" {
			errs = append(errs, errors.New("hcsr04 entry without position"))
		} else if seen["hcsr04."+u.Position] {
			errs = append(errs, fmt.Errorf("duplicate hcsr04 position %q", u.Position))
		}
		seen["hcsr04."+u.Position] = true
	}
	for _, e := range c.HC020K {
		if e.Position == "" {
			errs = append(errs, errors.New("hc020k entry without position"))
		} else if seen["hc020k."+e.Position] {
			errs = append(errs, fmt.Errorf("duplicate hc020k position %q", e.Position))
		}
		seen["hc020k."+e.Position] = true
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ensureDefaults fills zero values left by a partial file.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.RTC.CLK == "" {
		c.RTC.CLK = def.RTC.CLK
	}
	if c.RTC.DAT == "" {
		c.RTC.DAT = def.RTC.DAT
	}
	if c.RTC.RST == "" {
		c.RTC.RST = def.RTC.RST
	}
	if c.Buzzer.Pin == "" {
		c.Buzzer.Pin = def.Buzzer.Pin
	}
	if c.BME280.Address == 0 {
		c.BME280.Address = def.BME280.Address
	}
	if c.BME280.SeaLevel == 0 {
		c.BME280.SeaLevel = def.BME280.SeaLevel
	}
	if c.SCD41.Address == 0 {
		c.SCD41.Address = def.SCD41.Address
	}
	if c.SCD41.Threshold == 0 {
		c.SCD41.Threshold = def.SCD41.Threshold
	}
	if c.MQ135.ADC.Device == "" {
		c.MQ135.ADC = def.MQ135.ADC
	}
	if c.MQ135.Threshold == 0 {
		c.MQ135.Threshold = def.MQ135.Threshold
	}
	if c.KY026.ADC.Device == "" {
		c.KY026.ADC = def.KY026.ADC
	}
	if c.KY026.Threshold == 0 {
		c.KY026.Threshold = def.KY026.Threshold
	}
	if c.INA219.Address == 0 {
		c.INA219.Address = def.INA219.Address
	}
	if c.INA219.BatteryEmpty == 0 {
		c.INA219.BatteryEmpty = def.INA219.BatteryEmpty
	}
	if c.INA219.BatteryFull == 0 {
		c.INA219.BatteryFull = def.INA219.BatteryFull
	}
	if c.Interval == 0 {
		c.Interval = def.Interval
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = def.Transport.Kind
	}
	if c.Transport.Baud == 0 {
		c.Transport.Baud = def.Transport.Baud
	}
	if c.Transport.Topic == "" {
		c.Transport.Topic = def.Transport.Topic
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
