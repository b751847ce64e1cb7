// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wunderground

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhr-fau/sensorstore/internal/store"
)

const sampleResponse = `{
	"observations": [
		{
			"epoch": 1704067200,
			"stationID": "KTEST1",
			"humidityAvg": 55.5,
			"imperial": {"tempAvg": 68.2, "pressureAvg": 29.92, "windspeedAvg": 4.3}
		}
	]
}`

func newTestCatalog(t *testing.T) *store.SensorCatalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensors.db")
	cat, err := store.NewSensorCatalog(store.DefaultManager(), path)
	require.NoError(t, err)
	return cat
}

func TestPollOnceWritesFourSensors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "KTEST1", r.URL.Query().Get("stationId"))
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	cat := newTestCatalog(t)
	p := NewPoller(Config{StationID: "KTEST1", APIKey: "secret", BaseURL: srv.URL}, cat)

	require.NoError(t, p.pollOnce(context.Background()))

	expectTs := time.Unix(1704067200, 0).UTC()
	for name, want := range map[string]float64{
		"KTEST1_temp_f":            68.2,
		"KTEST1_relative_humidity": 55.5,
		"KTEST1_pressure_in":       29.92,
		"KTEST1_wind_speed_mph":    4.3,
	} {
		sensor, err := cat.Get(name)
		require.NoError(t, err)
		last, err := sensor.LastTimestamp()
		require.NoError(t, err)
		assert.True(t, expectTs.Equal(last), "%s: timestamp", name)
		v, err := sensor.LastValue()
		require.NoError(t, err)
		assert.Equal(t, float64(float32(want)), v, name)
	}
}

func TestPollOnceRejectsEmptyObservations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{"observations": []}`))
	}))
	defer srv.Close()

	cat := newTestCatalog(t)
	p := NewPoller(Config{StationID: "KTEST1", BaseURL: srv.URL}, cat)

	err := p.pollOnce(context.Background())
	assert.ErrorIs(t, err, store.ErrDecode)
}

func TestPollOnceSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cat := newTestCatalog(t)
	p := NewPoller(Config{StationID: "KTEST1", BaseURL: srv.URL}, cat)

	err := p.pollOnce(context.Background())
	assert.ErrorIs(t, err, store.ErrIO)
}

func TestRunRejectsNonPositiveInterval(t *testing.T) {
	cat := newTestCatalog(t)
	p := NewPoller(Config{StationID: "KTEST1", BaseURL: "http://unused.invalid"}, cat)
	err := p.Run(context.Background())
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
}
