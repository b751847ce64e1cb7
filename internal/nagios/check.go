// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package nagios implements a Nagios-style freshness check over a set
// of sensors: each sensor's last_timestamp is compared against a warn
// and a critical age threshold, and the worst status across all of
// them is reported.
package nagios

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nhr-fau/sensorstore/internal/store"
)

// Nagios plugin exit codes, https://nagios-plugins.org/doc/guidelines.html#AEN78
const (
	StatusOK = iota
	StatusWarning
	StatusCritical
	StatusUnknown
)

func statusText(code int) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Check opens file, which must already exist (it is opened read-write,
// and the catalog and sensor views create any missing sub-stores in
// it), inspects the last_timestamp of each named
// sensor, and returns the worst Nagios status across all of them along
// with a one-line summary. warnAge must be smaller than critAge.
func Check(file string, sensors []string, warnAge, critAge time.Duration) (code int, msg string) {
	if len(sensors) == 0 {
		return StatusUnknown, "UNKNOWN - no sensors given to check"
	}
	if warnAge >= critAge {
		return StatusUnknown, fmt.Sprintf("UNKNOWN - warn age %s must be smaller than crit age %s", warnAge, critAge)
	}

	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return StatusUnknown, fmt.Sprintf("UNKNOWN - file %s does not exist", file)
		}
		return StatusUnknown, fmt.Sprintf("UNKNOWN - %s", err)
	}

	catalog, err := store.NewSensorCatalog(store.DefaultManager(), file)
	if err != nil {
		return StatusUnknown, fmt.Sprintf("UNKNOWN - opening %s: %s", file, err)
	}

	worst := StatusOK
	var details []string
	now := time.Now()

	for _, name := range sensors {
		sensor, err := catalog.Get(name)
		if err != nil {
			return StatusUnknown, fmt.Sprintf("UNKNOWN - resolving sensor %q: %s", name, err)
		}

		last, err := sensor.LastTimestamp()
		if err != nil {
			return StatusUnknown, fmt.Sprintf("UNKNOWN - no data found for sensor %q in %s", name, file)
		}

		age := now.Sub(last)
		status := StatusOK
		switch {
		case age > critAge:
			status = StatusCritical
		case age > warnAge:
			status = StatusWarning
		}
		if status > worst {
			worst = status
		}
		details = append(details, fmt.Sprintf("%s age=%s", name, age.Round(time.Second)))
	}

	msg = fmt.Sprintf("%s - %s|%s", statusText(worst), strings.Join(details, ", "), perfData(details, warnAge, critAge))
	return worst, msg
}

func perfData(details []string, warnAge, critAge time.Duration) string {
	return fmt.Sprintf("warn=%ds;crit=%ds;count=%d", int(warnAge.Seconds()), int(critAge.Seconds()), len(details))
}
