// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cycle

import (
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/sensorhub/ina219"
	"github.com/GermanBionicSystems/sensorhub/ky006"
	"github.com/GermanBionicSystems/sensorhub/l3gd20"
	"github.com/GermanBionicSystems/sensorhub/lsm303"
	"github.com/GermanBionicSystems/sensorhub/scd4x"
	"periph.io/x/conn/v3/physic"
)

// EnvSensor is implemented by *bme280.Dev.
type EnvSensor interface {
	ReadCompensated() (float64, float64, float64, error)
}

// BME280 publishes temperature, pressure and humidity.
type BME280 struct {
	Dev EnvSensor
}

func (s *BME280) Name() string { return "bme280" }

func (s *BME280) Read(f *Frame) error {
	t, p, h, err := s.Dev.ReadCompensated()
	if err != nil {
		return err
	}
	hPa := p / 100
	f.Record.Set("temperature", t)
	f.Record.Set("pressure", hPa)
	f.Record.Set("humidity", h)
	f.SetAmbient(t, h)
	f.SetPressure(hPa)
	return nil
}

// CO2Sensor is implemented by *scd4x.Dev.
type CO2Sensor interface {
	ReadMeasurement(pressure ...physic.Pressure) (scd4x.Env, error)
}

// SCD41 publishes the CO2 concentration and raises the co2 alarm above
// Threshold ppm.
type SCD41 struct {
	Dev       CO2Sensor
	Threshold int
}

func (s *SCD41) Name() string { return "scd41" }

func (s *SCD41) Read(f *Frame) error {
	var env scd4x.Env
	var err error
	if hPa, ok := f.Pressure(); ok {
		env, err = s.Dev.ReadMeasurement(physic.Pressure(hPa * 100 * float64(physic.Pascal)))
	} else {
		env, err = s.Dev.ReadMeasurement()
	}
	if err != nil {
		// An out of range decode still carries the last good reading.
		var e *scd4x.Error
		if !errors.As(err, &e) || e.Code != scd4x.CodeOutOfRange {
			return err
		}
	}
	// Nothing measured yet.
	if env.CO2 <= 0 {
		return err
	}
	f.Record.Set("co2", int(env.CO2))
	alarm := int(env.CO2) > s.Threshold
	f.Record.Set("co2_alarm", alarm)
	if alarm {
		f.Raise(ky006.CO2)
	}
	return err
}

// GasSensor is implemented by *mq135.Dev.
type GasSensor interface {
	ReadRaw() (int32, error)
	GasConcentrations(t, h float64) (co2, nh3 float64, err error)
}

// MQ135 publishes the raw count and the gas estimates, compensated with
// the ambient conditions of the frame, and raises the nh3 alarm above
// Threshold ppb.
type MQ135 struct {
	Dev       GasSensor
	Threshold float64
}

func (s *MQ135) Name() string { return "mq135" }

func (s *MQ135) Read(f *Frame) error {
	raw, err := s.Dev.ReadRaw()
	if err != nil {
		return err
	}
	f.Record.Set("raw_nh3", raw)
	t, h, ok := f.Ambient()
	if !ok {
		t, h = referenceCelsius, referenceHumidity
	}
	co2, nh3, err := s.Dev.GasConcentrations(t, h)
	if err != nil {
		return err
	}
	f.Record.Set("nh3", nh3)
	alarm := nh3 > s.Threshold
	f.Record.Set("nh3_alarm", alarm)
	f.Record.Set("co2_mq135", co2)
	if alarm {
		f.Raise(ky006.NH3)
	}
	return nil
}

// FlameSensor is implemented by *ky026.Dev.
type FlameSensor interface {
	FlameDetected() (bool, error)
}

// KY026 publishes flame detection and raises the flame alarm.
type KY026 struct {
	Dev FlameSensor
}

func (s *KY026) Name() string { return "ky026" }

func (s *KY026) Read(f *Frame) error {
	flame, err := s.Dev.FlameDetected()
	if err != nil {
		return err
	}
	f.Record.Set("flame", flame)
	if flame {
		f.Raise(ky006.Flame)
	}
	return nil
}

// Ranger is implemented by *hcsr04.Dev.
type Ranger interface {
	MeasureMedian() (float64, error)
}

// Ranged is a ranger and its mounting position.
type Ranged struct {
	Position string
	Dev      Ranger
}

// HCSR04 publishes "distance.<position>" in cm for every ranger. A failing
// ranger does not prevent the others from being read.
type HCSR04 struct {
	Rangers []Ranged
}

func (s *HCSR04) Name() string { return "hcsr04" }

func (s *HCSR04) Read(f *Frame) error {
	var errs []error
	for _, r := range s.Rangers {
		cm, err := r.Dev.MeasureMedian()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Position, err))
			continue
		}
		f.Record.Set("distance."+r.Position, cm)
	}
	return errors.Join(errs...)
}

// Encoder is implemented by *hc020k.Dev.
type Encoder interface {
	SpeedCMPS() float64
	DistanceM() float64
}

// Wheel is an encoder and the position of its wheel.
type Wheel struct {
	Position string
	Dev      Encoder
}

// HC020K publishes "speed.<position>" in cm/s and "traveled.<position>" in
// m for every wheel.
type HC020K struct {
	Wheels []Wheel
}

func (s *HC020K) Name() string { return "hc020k" }

func (s *HC020K) Read(f *Frame) error {
	for _, w := range s.Wheels {
		f.Record.Set("speed."+w.Position, w.Dev.SpeedCMPS())
		f.Record.Set("traveled."+w.Position, w.Dev.DistanceM())
	}
	return nil
}

// PowerMonitor is implemented by *ina219.Dev.
type PowerMonitor interface {
	Read() (ina219.Reading, error)
	BatteryPercentage(v physic.ElectricPotential) float64
}

// INA219 publishes the bus voltage in V, current in mA, power in mW and the
// battery charge estimate.
type INA219 struct {
	Dev PowerMonitor
}

func (s *INA219) Name() string { return "ina219" }

func (s *INA219) Read(f *Frame) error {
	r, err := s.Dev.Read()
	if err != nil {
		return err
	}
	f.Record.Set("bus_voltage", float64(r.BusVoltage)/float64(physic.Volt))
	f.Record.Set("current", float64(r.Current)/float64(physic.MilliAmpere))
	f.Record.Set("power", float64(r.Power)/float64(physic.MilliWatt))
	f.Record.Set("battery_percentage", s.Dev.BatteryPercentage(r.BusVoltage))
	return nil
}

// Gyroscope is implemented by *l3gd20.Dev.
type Gyroscope interface {
	Gyro() (l3gd20.Axes, error)
}

// L3GD20 publishes the angular rates in rad/s.
type L3GD20 struct {
	Dev Gyroscope
}

func (s *L3GD20) Name() string { return "l3gd20" }

func (s *L3GD20) Read(f *Frame) error {
	a, err := s.Dev.Gyro()
	if err != nil {
		return err
	}
	f.Record.Set("gyroscope.x", a.X)
	f.Record.Set("gyroscope.y", a.Y)
	f.Record.Set("gyroscope.z", a.Z)
	return nil
}

// Compass is implemented by *lsm303.Dev.
type Compass interface {
	ReadAccel() (lsm303.Axes, error)
	ReadMag() (lsm303.Axes, error)
}

// LSM303 publishes the acceleration in m/s² and the magnetic field in µT.
type LSM303 struct {
	Dev Compass
}

func (s *LSM303) Name() string { return "lsm303d" }

func (s *LSM303) Read(f *Frame) error {
	a, err := s.Dev.ReadAccel()
	if err != nil {
		return err
	}
	m, err := s.Dev.ReadMag()
	if err != nil {
		return err
	}
	f.Record.Set("accelerometer.x", a.X)
	f.Record.Set("accelerometer.y", a.Y)
	f.Record.Set("accelerometer.z", a.Z)
	f.Record.Set("magnetometer.x", m.X)
	f.Record.Set("magnetometer.y", m.Y)
	f.Record.Set("magnetometer.z", m.Z)
	return nil
}
