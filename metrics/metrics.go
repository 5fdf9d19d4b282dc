// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package metrics exposes counters of the acquisition cycle to Prometheus.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one node.
type Metrics struct {
	reg          *prometheus.Registry
	cycles       prometheus.Counter
	sendErrors   prometheus.Counter
	sensorReads  *prometheus.CounterVec
	sensorErrors *prometheus.CounterVec
	alarms       *prometheus.CounterVec
	cycleSeconds prometheus.Histogram
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_cycles_total",
			Help: "Total acquisition cycles run.",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_send_errors_total",
			Help: "Total records the transport failed to send.",
		}),
		sensorReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorhub_sensor_reads_total",
			Help: "Total sensor reads by device.",
		}, []string{"device"}),
		sensorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorhub_sensor_errors_total",
			Help: "Total failed sensor reads by device.",
		}, []string{"device"}),
		alarms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorhub_alarms_total",
			Help: "Total alarms raised by category.",
		}, []string{"alarm"}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensorhub_cycle_duration_seconds",
			Help:    "Histogram of acquisition cycle durations.",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10},
		}),
	}
	m.reg.MustRegister(
		m.cycles,
		m.sendErrors,
		m.sensorReads,
		m.sensorErrors,
		m.alarms,
		m.cycleSeconds,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Cycle records one completed cycle lasting seconds.
func (m *Metrics) Cycle(seconds float64) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleSeconds.Observe(seconds)
}

// SensorRead records a read of device, failed when err is not nil.
func (m *Metrics) SensorRead(device string, err error) {
	if m == nil {
		return
	}
	m.sensorReads.WithLabelValues(device).Inc()
	if err != nil {
		m.sensorErrors.WithLabelValues(device).Inc()
	}
}

// Alarm records a raised alarm.
func (m *Metrics) Alarm(name string) {
	if m == nil {
		return
	}
	m.alarms.WithLabelValues(name).Inc()
}

// SendError records a failed transport send.
func (m *Metrics) SendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}
