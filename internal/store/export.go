// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ExportEngine produces aligned multi-sensor exports over a merged axis:
// the sorted union of timestamps across a set of sensors within a query
// window, gap-filled by LOCF (spec.md §4.7, GLOSSARY "Merged axis").
type ExportEngine struct {
	catalog *SensorCatalog
}

// NewExportEngine builds an export engine over the sensors of catalog.
func NewExportEngine(catalog *SensorCatalog) *ExportEngine {
	return &ExportEngine{catalog: catalog}
}

type exportColumn struct {
	sensor *Sensor
	label  string
	// fieldIndex is -1 for a scalar sensor, or the tuple index to extract
	// for one column of a packed sensor expanded into "<name> Field <i>".
	fieldIndex int
}

func (e *ExportEngine) resolveColumns(names []string) ([]exportColumn, error) {
	var cols []exportColumn
	for _, name := range names {
		sensor, err := e.catalog.Get(name)
		if err != nil {
			return nil, err
		}
		if !sensor.Formatted() || sensor.Format().Kind != KindPacked {
			cols = append(cols, exportColumn{sensor: sensor, label: name, fieldIndex: -1})
			continue
		}

		arity := len(sensor.Format().Layout)
		fieldNames, err := sensor.FieldNames()
		if err != nil {
			return nil, err
		}
		for i := 0; i < arity; i++ {
			label := fmt.Sprintf("%s Field %d", name, i)
			if i < len(fieldNames) {
				label = fmt.Sprintf("%s %s", name, fieldNames[i])
			}
			cols = append(cols, exportColumn{sensor: sensor, label: label, fieldIndex: i})
		}
	}
	return cols, nil
}

func (e *ExportEngine) mergedAxis(sensors []*Sensor, since, until time.Time, endpoint Endpoint) ([]time.Time, error) {
	var axis []time.Time
	for _, s := range sensors {
		times, _, err := s.Range(since, until, endpoint, 0, Keys)
		if err != nil {
			return nil, err
		}
		axis = append(axis, times...)
	}
	return sortedUniqueTimes(axis), nil
}

func uniqueSensors(cols []exportColumn) []*Sensor {
	seen := make(map[string]bool)
	var out []*Sensor
	for _, c := range cols {
		if !seen[c.sensor.Name()] {
			seen[c.sensor.Name()] = true
			out = append(out, c.sensor)
		}
	}
	return out
}

// valueAt performs the LOCF lookup underlying every export cell,
// translating "no sample exists at or before t yet" into a clean
// missing-value result instead of an error.
func valueAt(s *Sensor, t, since, until time.Time, endpoint Endpoint) (any, bool, error) {
	out, err := s.At([]time.Time{t}, since, until, endpoint, false)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return out[0], true, nil
}

func tupleElement(v any, i int) any {
	tuple, ok := v.([]any)
	if !ok || i >= len(tuple) {
		return nil
	}
	return tuple[i]
}

func formatCSVValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case float32:
		return formatCSVValue(float64(val))
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func formatCSVTime(t time.Time) string {
	base := t.UTC().Format("2006-01-02T15:04:05")
	micros := t.Nanosecond() / 1000
	if micros == 0 {
		return base
	}
	frac := fmt.Sprintf("%06d", micros)
	frac = strings.TrimRight(frac, "0")
	return base + "." + frac
}

// ExportCSV writes a ';'-delimited, optionally headered, LOCF-filled
// table over the merged axis of names within [since, until] (endpoint
// controls inclusion of the two bounds, as in Range). Packed sensors are
// expanded into one column per tuple element, labeled from field_names
// metadata when present, else "<name> Field <i>" (spec.md §4.7,
// scenario S3).
func (e *ExportEngine) ExportCSV(w io.Writer, names []string, since, until time.Time, endpoint Endpoint, includeHeader bool) error {
	cols, err := e.resolveColumns(names)
	if err != nil {
		return err
	}
	sensors := uniqueSensors(cols)
	axis, err := e.mergedAxis(sensors, since, until, endpoint)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	if includeHeader {
		header := make([]string, 0, len(cols)+1)
		header = append(header, `"Time"`)
		for _, c := range cols {
			header = append(header, fmt.Sprintf("%q", c.label))
		}
		if _, err := fmt.Fprintln(bw, strings.Join(header, ";")); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	for _, t := range axis {
		cache := make(map[string]any, len(sensors))
		for _, s := range sensors {
			v, ok, err := valueAt(s, t, since, until, endpoint)
			if err != nil {
				return err
			}
			if ok {
				cache[s.Name()] = v
			}
		}

		row := make([]string, 0, len(cols)+1)
		row = append(row, formatCSVTime(t))
		for _, c := range cols {
			v := cache[c.sensor.Name()]
			if c.fieldIndex >= 0 {
				v = tupleElement(v, c.fieldIndex)
			}
			row = append(row, formatCSVValue(v))
		}
		if _, err := fmt.Fprintln(bw, strings.Join(row, ";")); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	return nil
}

// ExportJSON streams a columnar JSON object over the merged axis of
// names within [since, until]: a "Time" array of UTC ISO-8601 timestamps
// without a zone suffix (the same form as ExportCSV's first column),
// plus one "<name>": {"values": [...], "metadata": {...}?, "notes":
// [...]?} member per sensor, each value LOCF-filled (null before a
// sensor's first sample). Packed sensor values are emitted as nested
// arrays, not expanded into columns. A top-level "notes" key carries
// the file's own notes, attached once rather than per sensor (spec.md
// §4.7, scenario S4).
func (e *ExportEngine) ExportJSON(w io.Writer, names []string, since, until time.Time, endpoint Endpoint) error {
	sensors := make([]*Sensor, 0, len(names))
	for _, name := range names {
		s, err := e.catalog.Get(name)
		if err != nil {
			return err
		}
		sensors = append(sensors, s)
	}

	axis, err := e.mergedAxis(sensors, since, until, endpoint)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	if _, err := io.WriteString(bw, `{"Time":[`); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	for i, t := range axis {
		if i > 0 {
			if _, err := io.WriteString(bw, ","); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
		}
		if _, err := fmt.Fprintf(bw, "%q", formatCSVTime(t)); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if _, err := io.WriteString(bw, "]"); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	for _, s := range sensors {
		if _, err := fmt.Fprintf(bw, `,%q:{"values":[`, s.Name()); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		for i, t := range axis {
			if i > 0 {
				if _, err := io.WriteString(bw, ","); err != nil {
					return fmt.Errorf("%w: %v", ErrIO, err)
				}
			}
			v, ok, err := valueAt(s, t, since, until, endpoint)
			if err != nil {
				return err
			}
			if !ok {
				if _, err := io.WriteString(bw, "null"); err != nil {
					return fmt.Errorf("%w: %v", ErrIO, err)
				}
				continue
			}
			if err := writeJSONValue(bw, v); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(bw, "]"); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}

		meta, err := sensorMetadata(s)
		if err != nil {
			return err
		}
		if len(meta) > 0 {
			if _, err := io.WriteString(bw, `,"metadata":`); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
			if err := writeJSONValue(bw, meta); err != nil {
				return err
			}
		}

		noteTimes, notes, err := s.Notes(since, until)
		if err != nil {
			return err
		}
		if len(notes) > 0 {
			if _, err := io.WriteString(bw, `,"notes":`); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
			if err := writeJSONNotes(bw, noteTimes, notes); err != nil {
				return err
			}
		}

		if _, err := io.WriteString(bw, "}"); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	fileNoteTimes, fileNotes, err := e.catalog.FileNotes()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(bw, `,"notes":`); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := writeJSONNotes(bw, fileNoteTimes, fileNotes); err != nil {
		return err
	}

	_, err = io.WriteString(bw, "}")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// sensorMetadata collects a sensor's full metadata map for embedding in
// ExportJSON's per-sensor object.
func sensorMetadata(s *Sensor) (map[string]any, error) {
	keys, err := s.MetadataKeys()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok, err := s.Metadata(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// writeJSONNotes renders a [time]/[Note] pair as a JSON array of
// {"time", "short", "long"?} objects, in the order given.
func writeJSONNotes(w io.Writer, times []time.Time, notes []Note) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	for i, n := range notes {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
		}
		if _, err := fmt.Fprintf(w, `{"time":%q,"short":%q`, formatCSVTime(times[i]), n.Short); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		if n.HasLong {
			if _, err := fmt.Fprintf(w, `,"long":%q`, n.Long); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
		}
		if _, err := io.WriteString(w, "}"); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	_, err := io.WriteString(w, "]")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func writeJSONValue(w io.Writer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		if _, err := io.WriteString(w, "{"); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return fmt.Errorf("%w: %v", ErrIO, err)
				}
			}
			if _, err := fmt.Fprintf(w, "%q:", k); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
			if err := writeJSONValue(w, val[k]); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "}")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		return nil
	case []any:
		if _, err := io.WriteString(w, "["); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		for i, e := range val {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return fmt.Errorf("%w: %v", ErrIO, err)
				}
			}
			if err := writeJSONValue(w, e); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "]")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		return nil
	case string:
		_, err := fmt.Fprintf(w, "%q", val)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		return nil
	default:
		_, err := fmt.Fprint(w, formatJSONScalar(val))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		return nil
	}
}

func formatJSONScalar(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return "null"
	default:
		return fmt.Sprint(val)
	}
}
