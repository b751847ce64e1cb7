// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/nhr-fau/sensorstore/internal/store"
	slog "github.com/nhr-fau/sensorstore/pkg/log"
)

// runImportCSV reads a ";"-delimited file shaped like ExportCSV's own
// output ("Time";name1;name2;...) and writes each non-empty cell back
// to its column's sensor, the inverse of `sensorstore export`. Every
// cell is parsed as a number and each column is written to the sensor
// named by its header cell, so the per-field columns of a packed sensor
// ("<name> Field <i>") are imported as separate scalar sensors.
func runImportCSV(args []string) error {
	flags := pflag.NewFlagSet("import-csv", pflag.ExitOnError)
	dbPath := flags.String("db", "./var/sensors.db", "path to the sensor database file")
	inputPath := flags.String("input", "", "path to the CSV file to import (required)")
	onlyIfChanged := flags.Bool("only-if-changed", true, "suppress writes that do not change the sensor's value")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *inputPath == "" {
		return fmt.Errorf("%w: --input is required", store.ErrInvalidArgument)
	}

	f, err := os.Open(*inputPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", *inputPath, err)
	}
	defer f.Close()

	catalog, err := store.NewSensorCatalog(store.DefaultManager(), *dbPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", *dbPath, err)
	}

	scanner := bufio.NewScanner(f)
	var columns []string
	var sensors []*store.Sensor
	rows := 0

	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ";")
		for i, field := range fields {
			fields[i] = strings.Trim(field, `"`)
		}

		if columns == nil {
			columns = fields[1:]
			sensors = make([]*store.Sensor, len(columns))
			for i, name := range columns {
				sensor, err := catalog.Get(name)
				if err != nil {
					return fmt.Errorf("resolving sensor %q: %w", name, err)
				}
				sensors[i] = sensor
			}
			continue
		}

		// ExportCSV writes UTC times without a zone suffix; RFC3339 is
		// accepted as well.
		ts, err := time.Parse("2006-01-02T15:04:05", fields[0])
		if err != nil {
			ts, err = time.Parse(time.RFC3339, fields[0])
		}
		if err != nil {
			return fmt.Errorf("parsing timestamp %q: %w", fields[0], err)
		}

		for i, raw := range fields[1:] {
			if raw == "" || i >= len(sensors) {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("parsing value %q for sensor %q: %w", raw, columns[i], err)
			}
			if _, err := sensors[i].Write(ts, v, *onlyIfChanged, 0); err != nil {
				return fmt.Errorf("writing sensor %q: %w", columns[i], err)
			}
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", *inputPath, err)
	}

	slog.Infof("[MAIN]> imported %d rows from %s into %s", rows, *inputPath, *dbPath)
	return nil
}
