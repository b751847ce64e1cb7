// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMissingFileReturnsDefault(t *testing.T) {
	keys, err := Init(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, Default, keys)
}

func TestInitLoadsAndValidates(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "config.json")
	require.NoError(t, writeFile(fp, `{
		"addr": ":9090",
		"db-path": "/var/lib/sensorstore/sensors.db",
		"mqtt": {"broker": "tcp://localhost:1883", "topic-filter": "sensors/+/value"},
		"nagios": {"sensors": ["outside_temp"], "warn-age": "5m", "crit-age": "15m"}
	}`))

	keys, err := Init(fp)
	require.NoError(t, err)
	assert.Equal(t, ":9090", keys.Addr)
	require.NotNil(t, keys.MQTT)
	assert.Equal(t, "tcp://localhost:1883", keys.MQTT.Broker)
	require.NotNil(t, keys.Nagios)
	assert.Equal(t, []string{"outside_temp"}, keys.Nagios.Sensors)
}

func TestInitRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "config.json")
	require.NoError(t, writeFile(fp, `{"not-a-real-field": true}`))

	_, err := Init(fp)
	assert.Error(t, err)
}

func TestParseDurationEmptyIsZero(t *testing.T) {
	d, err := ParseDuration("")
	require.NoError(t, err)
	assert.Zero(t, d)
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
