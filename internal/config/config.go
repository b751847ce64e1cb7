// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config holds process configuration for the sensorstore
// daemon: listen address, database path, and the optional MQTT,
// Wunderground, and Nagios front ends.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	slog "github.com/nhr-fau/sensorstore/pkg/log"
)

// MQTTConfig configures the optional MQTT ingestor.
type MQTTConfig struct {
	Broker       string `json:"broker"`
	ClientID     string `json:"client-id"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	TopicFilter  string `json:"topic-filter"`
	OnlyIfChanged bool  `json:"only-if-changed"`
	MaxAge       string `json:"max-age"`
}

// WundergroundConfig configures the optional PWS poller.
type WundergroundConfig struct {
	StationID string `json:"station-id"`
	APIKey    string `json:"api-key"`
	Interval  string `json:"interval"`
}

// NagiosConfig configures the health-check front end.
type NagiosConfig struct {
	Sensors  []string `json:"sensors"`
	WarnAge  string   `json:"warn-age"`
	CritAge  string   `json:"crit-age"`
}

// Keys is the process-wide configuration, populated by Init.
type Keys struct {
	Addr         string              `json:"addr"`
	DBPath       string              `json:"db-path"`
	MQTT         *MQTTConfig         `json:"mqtt"`
	Wunderground *WundergroundConfig `json:"wunderground"`
	Nagios       *NagiosConfig       `json:"nagios"`
}

// Default is the configuration used when no config file is supplied.
var Default = Keys{
	Addr:   ":8080",
	DBPath: "./var/sensors.db",
}

// Init loads a JSON configuration file, validates it against Schema, and
// returns the decoded Keys. A missing file is not an error; Default is
// returned instead.
func Init(path string) (Keys, error) {
	keys := Default

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return Keys{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := Validate(raw); err != nil {
		return Keys{}, fmt.Errorf("validating config file %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&keys); err != nil {
		return Keys{}, fmt.Errorf("decoding config file %s: %w", path, err)
	}

	slog.Infof("[CONFIG]> loaded configuration from %s", path)
	return keys, nil
}

// Validate checks raw against Schema.
func Validate(raw []byte) error {
	sch, err := jsonschema.CompileString("sensorstore-config.json", Schema)
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("parsing config as json: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config does not satisfy schema: %w", err)
	}
	return nil
}

// ParseDuration parses a Go duration string, returning 0 for an empty
// string rather than an error, since most of the duration-bearing config
// fields above are optional.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
