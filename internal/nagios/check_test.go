// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package nagios

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhr-fau/sensorstore/internal/store"
)

func writeSensorAt(t *testing.T, path, name string, ts time.Time) {
	t.Helper()
	cat, err := store.NewSensorCatalog(store.DefaultManager(), path)
	require.NoError(t, err)
	sensor, err := cat.Get(name)
	require.NoError(t, err)
	_, err = sensor.Write(ts, 1.0, false, 0)
	require.NoError(t, err)
}

func TestCheckOKWhenFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.db")
	writeSensorAt(t, path, "outside_temp", time.Now().Add(-time.Second))

	code, msg := Check(path, []string{"outside_temp"}, time.Minute, 5*time.Minute)
	assert.Equal(t, StatusOK, code)
	assert.Contains(t, msg, "OK")
}

func TestCheckWarningWhenStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.db")
	writeSensorAt(t, path, "outside_temp", time.Now().Add(-2*time.Minute))

	code, msg := Check(path, []string{"outside_temp"}, time.Minute, 5*time.Minute)
	assert.Equal(t, StatusWarning, code)
	assert.Contains(t, msg, "WARNING")
}

func TestCheckCriticalWhenVeryStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.db")
	writeSensorAt(t, path, "outside_temp", time.Now().Add(-time.Hour))

	code, msg := Check(path, []string{"outside_temp"}, time.Minute, 5*time.Minute)
	assert.Equal(t, StatusCritical, code)
	assert.Contains(t, msg, "CRITICAL")
}

func TestCheckWorstStatusAcrossSensors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.db")
	writeSensorAt(t, path, "fresh_one", time.Now().Add(-time.Second))
	writeSensorAt(t, path, "stale_one", time.Now().Add(-time.Hour))

	code, _ := Check(path, []string{"fresh_one", "stale_one"}, time.Minute, 5*time.Minute)
	assert.Equal(t, StatusCritical, code)
}

func TestCheckUnknownOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.db")

	code, msg := Check(path, []string{"outside_temp"}, time.Minute, 5*time.Minute)
	assert.Equal(t, StatusUnknown, code)
	assert.Contains(t, msg, "UNKNOWN")
}

func TestCheckUnknownOnMissingSensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.db")
	writeSensorAt(t, path, "outside_temp", time.Now())

	code, msg := Check(path, []string{"never_written"}, time.Minute, 5*time.Minute)
	assert.Equal(t, StatusUnknown, code)
	assert.Contains(t, msg, "UNKNOWN")
}

func TestCheckRejectsInvertedThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.db")
	writeSensorAt(t, path, "outside_temp", time.Now())

	code, msg := Check(path, []string{"outside_temp"}, 5*time.Minute, time.Minute)
	assert.Equal(t, StatusUnknown, code)
	assert.Contains(t, msg, "UNKNOWN")
}
