// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mq135

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"periph.io/x/conn/v3/analog"
)

// ADC is the analog input the sensor is wired to.
type ADC interface {
	Read() (analog.Sample, error)
}

// Gas selects the concentration curve.
type Gas int

const (
	CO2 Gas = iota
	NH3
)

func (g Gas) String() string {
	switch g {
	case CO2:
		return "CO2"
	case NH3:
		return "NH3"
	}
	return fmt.Sprintf("Gas(%d)", int(g))
}

type curve struct {
	a, b float64
}

var curves = map[Gas]curve{
	CO2: {a: -0.32, b: 1.0},
	NH3: {a: -0.41, b: 1.0},
}

// Temperature and humidity correction coefficients.
const (
	corA = 0.00035
	corB = 0.02718
	corC = 1.39538
	corD = 0.0018
	corE = -0.003333333
	corF = -0.001923077
	corG = 1.130128205
)

var (
	// ErrInvalidRatio is returned when the resistance ratio is not positive,
	// typically because the ADC reads 0.
	ErrInvalidRatio = errors.New("mq135: invalid resistance ratio")
	// ErrUnknownGas is returned by Concentration for an unsupported Gas.
	ErrUnknownGas = errors.New("mq135: unknown gas")
)

// Opts holds the configuration options for the sensor.
type Opts struct {
	// FullScale is the ADC count corresponding to the reference voltage.
	FullScale float64
	// RLoad is the load resistance on the board in kΩ.
	RLoad float64
	// RoCleanAir is the Rs/Ro ratio of the sensor in clean air.
	RoCleanAir float64
	// Samples is the number of readings averaged for Ro and Rs.
	Samples int
	// SampleDelay separates two readings of an average.
	SampleDelay time.Duration
	// Estimates is the number of concentration estimates GasConcentrations
	// takes the median of.
	Estimates int
	// EstimateInterval separates two estimates.
	EstimateInterval time.Duration
	// NH3Offset in ppm is added to the NH3 estimate.
	NH3Offset float64
}

// DefaultOpts matches a 12 bit ADC and the usual breakout board.
var DefaultOpts = Opts{
	FullScale:        4096,
	RLoad:            10,
	RoCleanAir:       3.7,
	Samples:          5,
	SampleDelay:      time.Microsecond,
	Estimates:        20,
	EstimateInterval: 40 * time.Millisecond,
	NH3Offset:        -2.8,
}

// Dev is an MQ135 sensor behind an ADC channel.
type Dev struct {
	adc  ADC
	opts Opts
	mu   sync.Mutex
	raw  int32
}

// New returns a sensor reading from adc. opts may be nil, in which case
// DefaultOpts is used.
func New(adc ADC, opts *Opts) (*Dev, error) {
	if adc == nil {
		return nil, errors.New("mq135: nil ADC")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{adc: adc, opts: *opts}
	if d.opts.Samples <= 0 {
		d.opts.Samples = DefaultOpts.Samples
	}
	if d.opts.Estimates <= 0 {
		d.opts.Estimates = DefaultOpts.Estimates
	}
	if d.opts.FullScale <= 0 {
		d.opts.FullScale = DefaultOpts.FullScale
	}
	return d, nil
}

// ReadRaw returns the ADC count.
func (d *Dev) ReadRaw() (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRaw()
}

// LastRaw returns the count of the most recent ADC read.
func (d *Dev) LastRaw() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raw
}

// Resistance returns the sensor resistance in kΩ, or 0 when the ADC count
// is 1 or less.
func (d *Dev) Resistance() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resistance()
}

// CorrectedResistance returns the resistance divided by the temperature and
// humidity correction factor. The uncorrected value is returned when the
// factor is not positive.
func (d *Dev) CorrectedResistance(t, h float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.correctedResistance(t, h)
}

// Ratio returns Rs/Ro for the ambient conditions.
func (d *Dev) Ratio(t, h float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ratio(t, h)
}

// Concentration returns the estimate for gas: CO2 in ppm, NH3 in ppb.
func (d *Dev) Concentration(gas Gas, t, h float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.concentration(gas, t, h)
}

// GasConcentrations returns the median of Opts.Estimates estimates of CO2 in
// ppm and NH3 in ppb.
func (d *Dev) GasConcentrations(t, h float64) (co2, nh3 float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	co2s := make([]float64, 0, d.opts.Estimates)
	nh3s := make([]float64, 0, d.opts.Estimates)
	for i := range d.opts.Estimates {
		c, err := d.concentration(CO2, t, h)
		if err != nil {
			return 0, 0, err
		}
		n, err := d.concentration(NH3, t, h)
		if err != nil {
			return 0, 0, err
		}
		co2s = append(co2s, c)
		nh3s = append(nh3s, n)
		if i < d.opts.Estimates-1 && d.opts.EstimateInterval > 0 {
			time.Sleep(d.opts.EstimateInterval)
		}
	}
	return median(co2s), median(nh3s), nil
}

func (d *Dev) String() string {
	return "mq135"
}

// CorrectionFactor models the dependence of the sensor on temperature in °C
// and relative humidity in percent.
func CorrectionFactor(t, h float64) float64 {
	if t < 20 {
		return corA*t*t - corB*t + corC - (h-33)*corD
	}
	return corE*t + corF*h + corG
}

func (d *Dev) readRaw() (int32, error) {
	s, err := d.adc.Read()
	if err != nil {
		return 0, fmt.Errorf("mq135: %w", err)
	}
	d.raw = s.Raw
	return s.Raw, nil
}

func (d *Dev) resistance() (float64, error) {
	raw, err := d.readRaw()
	if err != nil {
		return 0, err
	}
	if raw <= 1 {
		return 0, nil
	}
	return (d.opts.FullScale/float64(raw) - 1) * d.opts.RLoad, nil
}

func (d *Dev) correctedResistance(t, h float64) (float64, error) {
	r, err := d.resistance()
	if err != nil {
		return 0, err
	}
	if f := CorrectionFactor(t, h); f > 0 {
		return r / f, nil
	}
	return r, nil
}

func (d *Dev) meanResistance(t, h float64) (float64, error) {
	sum := 0.0
	for i := range d.opts.Samples {
		r, err := d.correctedResistance(t, h)
		if err != nil {
			return 0, err
		}
		sum += r
		if i < d.opts.Samples-1 && d.opts.SampleDelay > 0 {
			time.Sleep(d.opts.SampleDelay)
		}
	}
	return sum / float64(d.opts.Samples), nil
}

func (d *Dev) ratio(t, h float64) (float64, error) {
	ro, err := d.meanResistance(t, h)
	if err != nil {
		return 0, err
	}
	ro /= d.opts.RoCleanAir
	rs, err := d.meanResistance(t, h)
	if err != nil {
		return 0, err
	}
	r := rs
	if ro > 0 {
		r = rs / ro
	}
	if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, ErrInvalidRatio
	}
	return r, nil
}

func (d *Dev) concentration(gas Gas, t, h float64) (float64, error) {
	c, ok := curves[gas]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownGas, gas)
	}
	r, err := d.ratio(t, h)
	if err != nil {
		return 0, err
	}
	ppm := math.Pow(10, (math.Log10(r)-c.b)/c.a)
	if gas == NH3 {
		return (ppm + d.opts.NH3Offset) * 1000, nil
	}
	return ppm, nil
}

// median returns the upper median of v. v is sorted in place.
func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sort.Float64s(v)
	return v[len(v)/2]
}
