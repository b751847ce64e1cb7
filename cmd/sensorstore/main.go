// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command sensorstore runs the sensor telemetry store: an HTTP server
// for querying and exporting sensor data, plus ingestion front ends
// (MQTT, Weather Underground) and a Nagios-style freshness check.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nhr-fau/sensorstore/internal/config"
	slog "github.com/nhr-fau/sensorstore/pkg/log"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "import-csv":
		err = runImportCSV(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "nagios-check":
		os.Exit(runNagiosCheck(os.Args[2:]))
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "sensorstore: unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Errorf("[MAIN]> %s", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sensorstore <serve|import-csv|export|nagios-check> [flags]")
}

// loadConfig loads the daemon config file named by --config, applying
// config.Default when the file is absent, exactly as Init documents.
func loadConfig(flags *pflag.FlagSet) (config.Keys, error) {
	path, err := flags.GetString("config")
	if err != nil {
		return config.Keys{}, err
	}
	return config.Init(path)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
