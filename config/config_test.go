// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "sensorhub.yaml")
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))
	return name
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.True(t, cfg.I2C.Enabled)
	assert.Equal(t, uint16(0x76), cfg.BME280.Address)
	assert.Equal(t, uint16(0x62), cfg.SCD41.Address)
	assert.Equal(t, -140, cfg.SCD41.CO2Offset)
	assert.Equal(t, 1000, cfg.SCD41.Threshold)
	assert.Equal(t, float64(2880), cfg.MQ135.Threshold)
	assert.Equal(t, 100*time.Millisecond, cfg.Interval)
	assert.Equal(t, TransportSerial, cfg.Transport.Kind)
	assert.Len(t, cfg.HCSR04, 4)
	assert.False(t, cfg.HCSR04[3].Enabled)
	assert.Len(t, cfg.HC020K, 4)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	name := writeFile(t, `
i2c:
  enabled: true
  bus: "/dev/i2c-3"
scd41:
  enabled: false
  threshold: 1500
mq135:
  adc:
    device: "iio:device1"
    channel: 2
hcsr04:
  - position: front
    enabled: true
    trig: GPIO5
    echo: GPIO6
interval: 250ms
transport:
  kind: mqtt
  broker: "tcp://localhost:1883"
  nested: true
log:
  level: debug
`)

	cfg, err := Load(name)
	require.NoError(t, err)

	assert.Equal(t, "/dev/i2c-3", cfg.I2C.Bus)
	assert.False(t, cfg.SCD41.Enabled)
	assert.Equal(t, 1500, cfg.SCD41.Threshold)
	assert.Equal(t, ADCChannel{Device: "iio:device1", Channel: 2}, cfg.MQ135.ADC)
	require.Len(t, cfg.HCSR04, 1)
	assert.Equal(t, "GPIO5", cfg.HCSR04[0].Trig)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	assert.Equal(t, TransportMQTT, cfg.Transport.Kind)
	assert.True(t, cfg.Transport.Nested)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_PartialYAML(t *testing.T) {
	name := writeFile(t, `
scd41:
  address: 0
transport:
  port: "/dev/ttyUSB0"
  baud: 0
`)

	cfg, err := Load(name)
	require.NoError(t, err)

	// Zero values fall back to the defaults.
	assert.Equal(t, "/dev/ttyUSB0", cfg.Transport.Port)
	assert.Equal(t, 115200, cfg.Transport.Baud)
	assert.Equal(t, uint16(0x62), cfg.SCD41.Address)
	assert.True(t, cfg.BME280.Enabled)
	assert.Equal(t, 100*time.Millisecond, cfg.Interval)
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "invalid: yaml: content: ["))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_Invalid(t *testing.T) {
	cfg, err := Load(writeFile(t, "transport:\n  kind: carrier-pigeon\n"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"negative interval", func(c *Config) { c.Interval = -time.Second }},
		{"mqtt without broker", func(c *Config) { c.Transport.Kind = TransportMQTT }},
		{"serial without port", func(c *Config) { c.Transport.Port = "" }},
		{"battery range", func(c *Config) { c.INA219.BatteryFull = c.INA219.BatteryEmpty }},
		{"duplicate position", func(c *Config) { c.HCSR04[1].Position = c.HCSR04[0].Position }},
		{"missing position", func(c *Config) { c.HC020K[0].Position = "" }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Transport.Port = "/dev/ttyAMA0"
	cfg.KY026.Threshold = 900

	name := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(name))

	loaded, err := Load(name)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
