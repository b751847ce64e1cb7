// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"errors"
	"fmt"
	"time"
)

// Reserved metadata keys used by renderers (spec.md §4.5).
const (
	MetaLabel       = "label"
	MetaUnit        = "unit"
	MetaPlotMinVal  = "plot_min_val"
	MetaPlotMaxVal  = "plot_max_val"
	MetaGroup       = "group"
	MetaFieldNames  = "field_names"
	noteShortKey    = "short"
	noteLongKey     = "long"
	dataPrefix      = "data_"
	metaPrefix      = "meta_"
	formatPrefix    = "format_"
	notesPrefix     = "notes_"
)

// Sensor is a named logical time series: a thin, stateless view over
// four co-named sub-stores (data_, meta_, format_, notes_). Two Sensor
// values constructed for the same name see the same underlying state,
// since all I/O is routed through the shared Manager/Env (spec.md §4.5).
type Sensor struct {
	mgr  *Manager
	path string
	name string

	data      *TimestampStore
	meta      *OrderedMap
	format    *TimestampStore // KindString codec; history of (time, descriptor)
	notes     *TimestampStore // KindYAML codec; {short, long?} maps
	formatted bool
}

// NewSensor opens a sensor view, resolving its data format from the
// latest entry in its format-history sub-store. If forced is non-nil it
// is used instead (and is itself recorded into the history), matching
// the "constructor argument or latest history entry, else unformatted"
// resolution order of spec.md §4.5.
func NewSensor(mgr *Manager, path, name string, forced *FormatDescriptor) (*Sensor, error) {
	format, err := NewTimestampStore(mgr, path, formatPrefix+name, FormatDescriptor{Kind: KindString, raw: "str"})
	if err != nil {
		return nil, err
	}
	notes, err := NewTimestampStore(mgr, path, notesPrefix+name, FormatDescriptor{Kind: KindYAML, raw: "yaml"})
	if err != nil {
		return nil, err
	}
	meta, err := NewOrderedMap(mgr, path, metaPrefix+name)
	if err != nil {
		return nil, err
	}

	s := &Sensor{mgr: mgr, path: path, name: name, meta: meta, format: format, notes: notes}

	var resolved FormatDescriptor
	switch {
	case forced != nil:
		resolved = *forced
		if _, err := s.format.Write(time.Now(), resolved.String(), false, 0); err != nil {
			return nil, err
		}
		s.formatted = true
	default:
		raw, err := format.LastValue()
		switch {
		case err == nil:
			resolved, err = ParseFormatDescriptor(raw.(string))
			if err != nil {
				return nil, err
			}
			s.formatted = true
		case errors.Is(err, ErrNotFound):
			s.formatted = false
		default:
			return nil, err
		}
	}

	data, err := NewTimestampStore(mgr, path, dataPrefix+name, resolved)
	if err != nil {
		return nil, err
	}
	s.data = data
	return s, nil
}

// Name returns the sensor's base name.
func (s *Sensor) Name() string { return s.name }

// Formatted reports whether the sensor's data format has been
// established, either explicitly or by a previous write.
func (s *Sensor) Formatted() bool { return s.formatted }

// Format returns the sensor's current data format descriptor. It is
// only meaningful once Formatted reports true.
func (s *Sensor) Format() FormatDescriptor { return s.data.Format }

func (s *Sensor) resolveFormat(sample any) error {
	if s.formatted {
		return nil
	}
	fd, err := GuessFormat(sample)
	if err != nil {
		return err
	}
	if _, err := s.format.Write(time.Now(), fd.String(), false, 0); err != nil {
		return err
	}
	s.data.Format = fd
	s.formatted = true
	return nil
}

// Write stores v at t, guessing and recording the sensor's data format
// first if it is not yet established (spec.md §4.5).
func (s *Sensor) Write(t time.Time, v any, onlyIfValueChanged bool, maxAge time.Duration) (bool, error) {
	if err := s.resolveFormat(v); err != nil {
		return false, err
	}
	return s.data.Write(t, v, onlyIfValueChanged, maxAge)
}

// WriteMany bulk-writes (ts[i], vs[i]) pairs, guessing the data format
// from vs[0] first if it is not yet established.
func (s *Sensor) WriteMany(ts []time.Time, vs []any) (int, error) {
	if len(vs) == 0 {
		return 0, fmt.Errorf("%w: write_many requires at least one value", ErrInvalidArgument)
	}
	if err := s.resolveFormat(vs[0]); err != nil {
		return 0, err
	}
	return s.data.WriteMany(ts, vs)
}

// Range, RangeDecimated, At, DeleteRange, FirstTimestamp, LastTimestamp,
// FirstValue, LastValue, LastChanged and Statistics forward to the
// sensor's data store.
func (s *Sensor) Range(since, until time.Time, endpoint Endpoint, limit int, what What) ([]time.Time, []any, error) {
	return s.data.Range(since, until, endpoint, limit, what)
}

func (s *Sensor) RangeDecimated(bucket time.Duration, since, until time.Time, limit int, tsChunker TimeChunker, valChunker ValueChunker) ([]time.Time, []any, error) {
	return s.data.RangeDecimated(bucket, since, until, limit, tsChunker, valChunker)
}

func (s *Sensor) At(at []time.Time, since, until time.Time, endpoint Endpoint, onlyAtTimes bool) ([]any, error) {
	return s.data.At(at, since, until, endpoint, onlyAtTimes)
}

func (s *Sensor) DeleteRange(since, until time.Time) (int, error) {
	return s.data.DeleteRange(since, until)
}

func (s *Sensor) FirstTimestamp() (time.Time, error) { return s.data.FirstTimestamp() }
func (s *Sensor) LastTimestamp() (time.Time, error)  { return s.data.LastTimestamp() }
func (s *Sensor) FirstValue() (any, error)           { return s.data.FirstValue() }
func (s *Sensor) LastValue() (any, error)             { return s.data.LastValue() }
func (s *Sensor) LastChanged() (time.Time, error)     { return s.data.LastChanged() }
func (s *Sensor) Statistics() (TimestampStatistics, error) { return s.data.Statistics() }

// Metadata returns the decoded YAML value stored under key, or
// (nil, false) if the key is absent.
func (s *Sensor) Metadata(key string) (any, bool, error) {
	raw, ok, err := s.meta.Get([]byte(key))
	if err != nil || !ok {
		return nil, ok, err
	}
	var out any
	if err := unpackYAMLMetadata(raw, &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// SetMetadata stores value, YAML-encoded, under key.
func (s *Sensor) SetMetadata(key string, value any) error {
	raw, err := Pack(FormatDescriptor{Kind: KindYAML}, value)
	if err != nil {
		return err
	}
	return s.meta.Put([]byte(key), raw)
}

// MetadataKeys returns every metadata key currently set.
func (s *Sensor) MetadataKeys() ([]string, error) {
	kvs, err := s.meta.Iter(Keys)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(kvs))
	for i, kv := range kvs {
		out[i] = string(kv.Key)
	}
	return out, nil
}

// FieldNames returns the field_names metadata used to expand a packed
// sensor's tuple values into named columns, or nil if unset.
func (s *Sensor) FieldNames() ([]string, error) {
	v, ok, err := s.Metadata(MetaFieldNames)
	if err != nil || !ok {
		return nil, err
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: field_names metadata must be a sequence of strings", ErrInvalidArgument)
	}
	out := make([]string, len(raw))
	for i, e := range raw {
		out[i] = toText(e)
	}
	return out, nil
}

func unpackYAMLMetadata(raw []byte, out *any) error {
	v, err := Unpack(FormatDescriptor{Kind: KindYAML}, raw)
	if err != nil {
		return err
	}
	*out = v
	return nil
}

// Note is a single notes-store entry.
type Note struct {
	Short string
	Long  string
	HasLong bool
}

// AddNote writes n at t as a {short, long?} mapping; "long" is stored
// only when n.HasLong is set. Notes are passed as a Note value, so bare
// strings and arbitrary mappings are not accepted.
func (s *Sensor) AddNote(t time.Time, n Note) error {
	m := map[string]any{noteShortKey: n.Short}
	if n.HasLong {
		m[noteLongKey] = n.Long
	}
	_, err := s.notes.Write(t, m, false, 0)
	return err
}

// Notes returns the decoded notes in [since, until].
func (s *Sensor) Notes(since, until time.Time) ([]time.Time, []Note, error) {
	times, values, err := s.notes.Range(since, until, EndpointBoth, 0, Items)
	if err != nil {
		return nil, nil, err
	}
	notes := make([]Note, len(values))
	for i, v := range values {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("%w: note entry is not a mapping", ErrDecode)
		}
		short, ok := m[noteShortKey]
		if !ok {
			return nil, nil, fmt.Errorf("%w: note entry is missing required key %q", ErrDecode, noteShortKey)
		}
		n := Note{Short: toText(short)}
		if long, ok := m[noteLongKey]; ok {
			n.Long = toText(long)
			n.HasLong = true
		}
		notes[i] = n
	}
	return times, notes, nil
}

// CopyTo duplicates all four of this sensor's sub-stores under newName,
// in this file or, if newPath is non-empty, in another file. It fails if
// ANY of the four destination sub-stores already exists, checked before
// any copy is performed, so a CopyTo refused for an existing destination
// leaves nothing behind. The four copies are separate transactions: an
// error while copying leaves the sub-stores already copied in place.
func (s *Sensor) CopyTo(newName string, newPath ...string) error {
	destPath := s.path
	if len(newPath) > 0 && newPath[0] != "" {
		destPath = newPath[0]
	}

	for _, prefix := range []string{dataPrefix, metaPrefix, formatPrefix, notesPrefix} {
		exists, err := s.mgr.Exists(destPath, prefix+newName)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: sub-store %q already exists", ErrAlreadyExists, prefix+newName)
		}
	}

	if err := s.data.CopyTo(dataPrefix+newName, newPath...); err != nil {
		return err
	}
	if err := s.meta.CopyTo(metaPrefix+newName, newPath...); err != nil {
		return err
	}
	if err := s.format.CopyTo(formatPrefix+newName, newPath...); err != nil {
		return err
	}
	if err := s.notes.CopyTo(notesPrefix+newName, newPath...); err != nil {
		return err
	}
	return nil
}

// DeleteSensor drops all four sub-stores of the sensor named name.
// Missing sub-stores are ignored (spec.md §4.6).
func DeleteSensor(mgr *Manager, path, name string) error {
	for _, prefix := range []string{dataPrefix, metaPrefix, formatPrefix, notesPrefix} {
		if err := mgr.Drop(path, prefix+name); err != nil {
			return err
		}
	}
	return nil
}
