// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Cycle(0.2)
	m.Cycle(0.3)
	m.SensorRead("scd41", nil)
	m.SensorRead("scd41", errors.New("nack"))
	m.Alarm("co2")
	m.SendError()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.cycles))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.sensorReads.WithLabelValues("scd41")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sensorErrors.WithLabelValues("scd41")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.alarms.WithLabelValues("co2")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sendErrors))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Alarm("flame")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sensorhub_alarms_total{alarm="flame"} 1`)
}

func TestNil(t *testing.T) {
	var m *Metrics
	m.Cycle(1)
	m.SensorRead("bme280", errors.New("x"))
	m.Alarm("nh3")
	m.SendError()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
