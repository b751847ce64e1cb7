// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// SensorStatistics summarizes one sensor for SensorCatalog.Statistics.
type SensorStatistics struct {
	Count      int
	Since      string // UTC "2006-01-02T15:04:05.000000", no zone suffix; empty if the sensor has no samples
	Until      string
	Meta       map[string]any
	DataFormat string
}

// FileStatistics summarizes an entire environment file.
type FileStatistics struct {
	Filename string
	Filesize int64
	Sensors  map[string]SensorStatistics
}

// SensorCatalog enumerates and manages the sensors stored in one
// environment file (spec.md §4.6).
type SensorCatalog struct {
	mgr  *Manager
	path string

	notes      *OrderedMap
	plotGroups *OrderedMap
}

// NewSensorCatalog opens the catalog view for the environment at path.
func NewSensorCatalog(mgr *Manager, path string) (*SensorCatalog, error) {
	notes, err := NewOrderedMap(mgr, path, "notes")
	if err != nil {
		return nil, err
	}
	plotGroups, err := NewOrderedMap(mgr, path, "plot_groups")
	if err != nil {
		return nil, err
	}
	return &SensorCatalog{mgr: mgr, path: path, notes: notes, plotGroups: plotGroups}, nil
}

// Names enumerates the sensors present in the file: every sub-store
// beginning with "data_", stripped of the prefix, in the underlying
// file's own enumeration order (spec.md §4.6).
func (c *SensorCatalog) Names() ([]string, error) {
	subStores, err := c.mgr.Enumerate(c.path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, s := range subStores {
		if strings.HasPrefix(s, dataPrefix) {
			names = append(names, strings.TrimPrefix(s, dataPrefix))
		}
	}
	return names, nil
}

// Get constructs a view onto the named sensor. It reads the sensor's
// format and creates any of its four sub-stores that do not exist yet,
// so after Get the name is listed by Names even if nothing was written.
func (c *SensorCatalog) Get(name string) (*Sensor, error) {
	return NewSensor(c.mgr, c.path, name, nil)
}

// Delete drops all four sub-stores of the named sensor. It is
// idempotent: deleting an absent sensor is not an error.
func (c *SensorCatalog) Delete(name string) error {
	return DeleteSensor(c.mgr, c.path, name)
}

// PlotGroup returns the named plot group's member sensor names.
func (c *SensorCatalog) PlotGroup(name string) ([]string, bool, error) {
	raw, ok, err := c.plotGroups.Get([]byte(name))
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := Unpack(FormatDescriptor{Kind: KindYAML}, raw)
	if err != nil {
		return nil, false, err
	}
	members, ok := v.([]any)
	if !ok {
		return nil, false, fmt.Errorf("%w: plot group %q is not a sequence", ErrDecode, name)
	}
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = toText(m)
	}
	return out, true, nil
}

// SetPlotGroup stores the named plot group's member sensor names.
func (c *SensorCatalog) SetPlotGroup(name string, members []string) error {
	raw, err := Pack(FormatDescriptor{Kind: KindYAML}, members)
	if err != nil {
		return err
	}
	return c.plotGroups.Put([]byte(name), raw)
}

// AddFileNote adds a file-level annotation at t, symmetric to
// Sensor.AddNote but keyed on the catalog's "notes" sub-store rather
// than a per-sensor one (spec.md §4.6, "File-level collaborators:
// file-level notes and plot_groups sub-stores").
func (c *SensorCatalog) AddFileNote(t time.Time, n Note) error {
	key, err := PackTimeKey(t)
	if err != nil {
		return err
	}
	m := map[string]any{noteShortKey: n.Short}
	if n.HasLong {
		m[noteLongKey] = n.Long
	}
	raw, err := Pack(FormatDescriptor{Kind: KindYAML}, m)
	if err != nil {
		return err
	}
	return c.notes.Put(key, raw)
}

// FileNotes returns every file-level annotation, in chronological order.
func (c *SensorCatalog) FileNotes() ([]time.Time, []Note, error) {
	pairs, err := c.notes.Iter(Items)
	if err != nil {
		return nil, nil, err
	}

	times := make([]time.Time, len(pairs))
	notes := make([]Note, len(pairs))
	for i, kv := range pairs {
		t, err := UnpackTimeKey(kv.Key)
		if err != nil {
			return nil, nil, err
		}
		v, err := Unpack(FormatDescriptor{Kind: KindYAML}, kv.Value)
		if err != nil {
			return nil, nil, err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("%w: file note entry is not a mapping", ErrDecode)
		}
		short, ok := m[noteShortKey]
		if !ok {
			return nil, nil, fmt.Errorf("%w: file note entry is missing required key %q", ErrDecode, noteShortKey)
		}
		n := Note{Short: toText(short)}
		if long, ok := m[noteLongKey]; ok {
			n.Long = toText(long)
			n.HasLong = true
		}
		times[i] = t
		notes[i] = n
	}
	return times, notes, nil
}

// Statistics reports per-sensor sample counts, time spans, metadata, and
// data formats for the whole file, plus the file's own size on disk.
func (c *SensorCatalog) Statistics() (FileStatistics, error) {
	names, err := c.Names()
	if err != nil {
		return FileStatistics{}, err
	}
	sort.Strings(names)

	out := FileStatistics{Filename: c.path, Sensors: make(map[string]SensorStatistics, len(names))}
	if info, err := os.Stat(c.path); err == nil {
		out.Filesize = info.Size()
	}

	for _, name := range names {
		sensor, err := c.Get(name)
		if err != nil {
			return FileStatistics{}, err
		}
		stats, err := sensor.Statistics()
		if err != nil {
			return FileStatistics{}, err
		}

		meta := make(map[string]any)
		keys, err := sensor.MetadataKeys()
		if err != nil {
			return FileStatistics{}, err
		}
		for _, k := range keys {
			v, ok, err := sensor.Metadata(k)
			if err != nil {
				return FileStatistics{}, err
			}
			if ok {
				meta[k] = v
			}
		}

		sensorStats := SensorStatistics{Count: stats.Count, Meta: meta}
		if stats.Count > 0 {
			sensorStats.Since = stats.First.Format("2006-01-02T15:04:05.000000")
			sensorStats.Until = stats.Last.Format("2006-01-02T15:04:05.000000")
		}
		if sensor.Formatted() {
			sensorStats.DataFormat = sensor.Format().String()
		}
		out.Sensors[name] = sensorStats
	}
	return out, nil
}
