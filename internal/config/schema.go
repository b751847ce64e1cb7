// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// Schema is the JSON Schema validated against every config file loaded
// by Init, in the teacher's "Keys struct plus an embedded schema
// string" style (internal/memorystore/configSchema.go).
const Schema = `{
    "type": "object",
    "description": "Configuration for the sensorstore daemon.",
    "properties": {
        "addr": {
            "description": "Address the HTTP API listens on, e.g. ':8080'.",
            "type": "string"
        },
        "db-path": {
            "description": "Path to the bbolt-backed sensor data file.",
            "type": "string"
        },
        "mqtt": {
            "description": "Configuration for the optional MQTT ingestor.",
            "type": "object",
            "properties": {
                "broker": {
                    "description": "MQTT broker URL, e.g. 'tcp://localhost:1883'.",
                    "type": "string"
                },
                "client-id": { "type": "string" },
                "username": { "type": "string" },
                "password": { "type": "string" },
                "topic-filter": {
                    "description": "Topic filter to subscribe to, default 'sensors/+/value'.",
                    "type": "string"
                },
                "only-if-changed": {
                    "description": "Suppress writes that do not change the sensor's value.",
                    "type": "boolean"
                },
                "max-age": {
                    "description": "Write anyway once the last sample is older than this, as a Go duration string.",
                    "type": "string"
                }
            }
        },
        "wunderground": {
            "description": "Configuration for the optional Weather Underground PWS poller.",
            "type": "object",
            "properties": {
                "station-id": { "type": "string" },
                "api-key": { "type": "string" },
                "interval": {
                    "description": "Poll interval as a Go duration string, e.g. '5m'.",
                    "type": "string"
                }
            }
        },
        "nagios": {
            "description": "Configuration for the nagios-check subcommand.",
            "type": "object",
            "properties": {
                "sensors": {
                    "description": "Sensor names to check.",
                    "type": "array",
                    "items": { "type": "string" }
                },
                "warn-age": { "type": "string" },
                "crit-age": { "type": "string" }
            }
        }
    }
}`
