// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/nhr-fau/sensorstore/internal/nagios"
)

// runNagiosCheck runs the freshness check and returns the process exit
// code it should use, printing the one-line summary itself (Nagios
// plugins communicate their result via stdout + exit code, not stderr).
func runNagiosCheck(args []string) int {
	flags := pflag.NewFlagSet("nagios-check", pflag.ExitOnError)
	dbPath := flags.String("db", "./var/sensors.db", "path to the sensor database file")
	sensorList := flags.String("sensors", "", "comma-separated sensor names to check (required)")
	warnAge := flags.Duration("warn-age", time.Minute, "age of the last sample above which the status is WARNING")
	critAge := flags.Duration("crit-age", 5*time.Minute, "age of the last sample above which the status is CRITICAL")
	if err := flags.Parse(args); err != nil {
		fmt.Println("UNKNOWN -", err)
		return nagios.StatusUnknown
	}
	if *sensorList == "" {
		fmt.Println("UNKNOWN - --sensors is required")
		return nagios.StatusUnknown
	}

	code, msg := nagios.Check(*dbPath, strings.Split(*sensorList, ","), *warnAge, *critAge)
	fmt.Println(msg)
	return code
}
