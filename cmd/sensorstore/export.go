// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/nhr-fau/sensorstore/internal/store"
)

func runExport(args []string) error {
	flags := pflag.NewFlagSet("export", pflag.ExitOnError)
	dbPath := flags.String("db", "./var/sensors.db", "path to the sensor database file")
	sensors := flags.String("sensors", "", "comma-separated sensor names to export (required)")
	since := flags.String("since", "", "RFC3339 lower bound, default: the Unix epoch (no lower bound)")
	until := flags.String("until", "", "RFC3339 upper bound, default: now")
	format := flags.String("format", "csv", "output format: csv or json")
	output := flags.String("output", "-", "output file, or '-' for stdout")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *sensors == "" {
		return fmt.Errorf("%w: --sensors is required", store.ErrInvalidArgument)
	}

	sinceTime, err := parseOptionalTime(*since, time.Unix(0, 0).UTC())
	if err != nil {
		return fmt.Errorf("parsing --since: %w", err)
	}
	untilTime, err := parseOptionalTime(*until, time.Now())
	if err != nil {
		return fmt.Errorf("parsing --until: %w", err)
	}

	catalog, err := store.NewSensorCatalog(store.DefaultManager(), *dbPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", *dbPath, err)
	}
	engine := store.NewExportEngine(catalog)

	out := os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", *output, err)
		}
		defer f.Close()
		out = f
	}

	names := strings.Split(*sensors, ",")
	switch *format {
	case "csv":
		return engine.ExportCSV(out, names, sinceTime, untilTime, store.EndpointBoth, true)
	case "json":
		return engine.ExportJSON(out, names, sinceTime, untilTime, store.EndpointBoth)
	default:
		return fmt.Errorf("%w: unknown --format %q, want csv or json", store.ErrInvalidArgument, *format)
	}
}

func parseOptionalTime(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, s)
}
