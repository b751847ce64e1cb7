// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Endpoint selects which ends of a [since, until] range a Range or At
// query includes, per spec.md §4.4. RangeDecimated always includes both.
type Endpoint int

const (
	EndpointBoth Endpoint = iota
	EndpointLeft
	EndpointRight
	EndpointNone
)

func (e Endpoint) includesSince() bool { return e == EndpointBoth || e == EndpointLeft }
func (e Endpoint) includesUntil() bool { return e == EndpointBoth || e == EndpointRight }

// TimestampStatistics summarizes a TimestampStore's contents.
type TimestampStatistics struct {
	Count int
	First time.Time
	Last  time.Time
}

// TimestampStore is a datetime-keyed sub-store: an OrderedMap whose keys
// are packed instants and whose values are decoded through a single
// FormatDescriptor owned by the store itself (spec.md §4.4). A Sensor
// sets Format once, at creation or after a guess, and every read and
// write thereafter goes through it.
type TimestampStore struct {
	mgr    *Manager
	env    *Env
	path   string
	name   string
	Format FormatDescriptor
}

// NewTimestampStore opens (creating if necessary) a datetime-keyed
// sub-store using the given value codec.
func NewTimestampStore(mgr *Manager, path, name string, format FormatDescriptor) (*TimestampStore, error) {
	env, err := mgr.Open(path)
	if err != nil {
		return nil, err
	}
	if err := mgr.Sub(env, name); err != nil {
		return nil, err
	}
	return &TimestampStore{mgr: mgr, env: env, path: path, name: name, Format: format}, nil
}

// seekLE positions at the entry with the greatest key <= key, the cursor
// primitive shared by conditional Write and the LOCF At lookup
// (spec.md §4.4, grounded on the original's cursor seek-then-prev
// pattern for both operations).
func seekLE(c *bolt.Cursor, key []byte) (k, v []byte) {
	k, v = c.Seek(key)
	if k != nil && bytes.Equal(k, key) {
		return k, v
	}
	if k == nil {
		return c.Last()
	}
	return c.Prev()
}

// Write stores v at t. If onlyIfValueChanged is true, the write is
// suppressed when the greatest existing key <= t carries the same
// encoded value and maxAge is zero or has not yet elapsed since that
// key's timestamp; maxAge thus acts as a periodic-heartbeat override on
// top of value-change suppression. Write reports whether it actually
// wrote.
func (ts *TimestampStore) Write(t time.Time, v any, onlyIfValueChanged bool, maxAge time.Duration) (bool, error) {
	key, err := PackTimeKey(t)
	if err != nil {
		return false, err
	}
	encoded, err := Pack(ts.Format, v)
	if err != nil {
		return false, err
	}

	txn, err := ts.mgr.Begin(ts.env, ts.name, true)
	if err != nil {
		return false, err
	}
	b := txn.Bucket()
	if b == nil {
		txn.Rollback()
		if err := ts.mgr.Sub(ts.env, ts.name); err != nil {
			return false, err
		}
		return ts.Write(t, v, onlyIfValueChanged, maxAge)
	}

	if onlyIfValueChanged {
		pk, pv := seekLE(b.Cursor(), key)
		if pk != nil && bytes.Equal(pv, encoded) {
			var age time.Duration
			if prevT, err := UnpackTimeKey(pk); err == nil {
				age = t.Sub(prevT)
			}
			if maxAge <= 0 || age < maxAge {
				return false, txn.Rollback()
			}
		}
	}

	if err := b.Put(key, encoded); err != nil {
		txn.Rollback()
		return false, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// WriteMany unconditionally writes every (times[i], values[i]) pair in a
// single transaction, for bulk loads where per-sample change detection
// is not needed.
func (ts *TimestampStore) WriteMany(times []time.Time, values []any) (int, error) {
	if len(times) != len(values) {
		return 0, fmt.Errorf("%w: times and values must have the same length", ErrInvalidArgument)
	}
	if len(times) == 0 {
		return 0, nil
	}
	if err := ts.mgr.Sub(ts.env, ts.name); err != nil {
		return 0, err
	}

	txn, err := ts.mgr.Begin(ts.env, ts.name, true)
	if err != nil {
		return 0, err
	}
	b := txn.Bucket()
	for i, t := range times {
		key, err := PackTimeKey(t)
		if err != nil {
			txn.Rollback()
			return 0, err
		}
		encoded, err := Pack(ts.Format, values[i])
		if err != nil {
			txn.Rollback()
			return 0, err
		}
		if err := b.Put(key, encoded); err != nil {
			txn.Rollback()
			return 0, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return len(times), nil
}

// DeleteRange removes every entry with a key in [since, until] and
// reports how many were removed.
func (ts *TimestampStore) DeleteRange(since, until time.Time) (int, error) {
	sinceKey, err := PackTimeKey(since)
	if err != nil {
		return 0, err
	}
	untilKey, err := PackTimeKey(until)
	if err != nil {
		return 0, err
	}

	txn, err := ts.mgr.Begin(ts.env, ts.name, true)
	if err != nil {
		return 0, err
	}
	b := txn.Bucket()
	if b == nil {
		return 0, txn.Rollback()
	}

	var doomed [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(sinceKey); k != nil && bytes.Compare(k, untilKey) <= 0; k, _ = c.Next() {
		doomed = append(doomed, append([]byte(nil), k...))
	}
	for _, k := range doomed {
		if err := b.Delete(k); err != nil {
			txn.Rollback()
			return 0, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return len(doomed), nil
}

// Range returns the decoded samples in [since, until], subject to
// endpoint and capped at limit samples (0 means unlimited). what selects
// whether Times, Values, or both (Items) are populated in the result.
func (ts *TimestampStore) Range(since, until time.Time, endpoint Endpoint, limit int, what What) ([]time.Time, []any, error) {
	sinceKey, err := PackTimeKey(since)
	if err != nil {
		return nil, nil, err
	}
	untilKey, err := PackTimeKey(until)
	if err != nil {
		return nil, nil, err
	}

	txn, err := ts.mgr.Begin(ts.env, ts.name, false)
	if err != nil {
		return nil, nil, err
	}
	defer txn.Rollback()

	b := txn.Bucket()
	if b == nil {
		return nil, nil, nil
	}

	var times []time.Time
	var values []any
	c := b.Cursor()
	for k, v := c.Seek(sinceKey); k != nil && bytes.Compare(k, untilKey) <= 0; k, v = c.Next() {
		if bytes.Equal(k, sinceKey) && !endpoint.includesSince() {
			continue
		}
		if bytes.Equal(k, untilKey) && !endpoint.includesUntil() {
			continue
		}
		if limit > 0 && len(times) >= limit {
			break
		}
		if what == Keys || what == Items {
			t, err := UnpackTimeKey(k)
			if err != nil {
				return nil, nil, err
			}
			times = append(times, t)
		}
		if what == Values || what == Items {
			val, err := Unpack(ts.Format, v)
			if err != nil {
				return nil, nil, err
			}
			values = append(values, val)
		}
	}
	return times, values, nil
}

// RangeDecimated buckets [since, until] into fixed-width windows of
// length bucket (or, when bucket <= 0, an "auto" width of
// (until-since)/limit) and reduces each non-empty window through
// tsChunker and valChunker independently, concatenating their outputs in
// window order (spec.md §4.4/§4.8).
func (ts *TimestampStore) RangeDecimated(bucket time.Duration, since, until time.Time, limit int, tsChunker TimeChunker, valChunker ValueChunker) ([]time.Time, []any, error) {
	if bucket <= 0 {
		if limit <= 0 {
			return nil, nil, fmt.Errorf("%w: auto bucket width requires a positive limit", ErrInvalidArgument)
		}
		bucket = until.Sub(since) / time.Duration(limit)
		if bucket <= 0 {
			bucket = time.Nanosecond
		}
	}

	times, values, err := ts.Range(since, until, EndpointBoth, 0, Items)
	if err != nil {
		return nil, nil, err
	}
	if len(times) == 0 {
		return nil, nil, nil
	}

	var outTimes []time.Time
	var outValues []any

	windowStart := 0
	windowEnd := since.Add(bucket)
	for i := 1; i <= len(times); i++ {
		if i < len(times) && times[i].Before(windowEnd) {
			continue
		}
		winTimes := times[windowStart:i]
		winValues := values[windowStart:i]

		chunkedTimes := tsChunker(winTimes)
		chunkedValues, err := valChunker(winValues)
		if err != nil {
			return nil, nil, err
		}
		n := len(chunkedTimes)
		if len(chunkedValues) < n {
			n = len(chunkedValues)
		}
		outTimes = append(outTimes, chunkedTimes[:n]...)
		outValues = append(outValues, chunkedValues[:n]...)

		windowStart = i
		for i < len(times) && !times[i].Before(windowEnd) {
			windowEnd = windowEnd.Add(bucket)
		}
	}
	return outTimes, outValues, nil
}

// CopyTo duplicates this store's entries into a new datetime-keyed
// sub-store named targetName, in this file or, if targetPath is
// non-empty, in another file. It fails if the destination already
// exists.
func (ts *TimestampStore) CopyTo(targetName string, targetPath ...string) error {
	destPath := ts.path
	if len(targetPath) > 0 && targetPath[0] != "" {
		destPath = targetPath[0]
	}

	exists, err := ts.mgr.Exists(destPath, targetName)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: sub-store %q already exists", ErrAlreadyExists, targetName)
	}

	first, err := ts.FirstTimestamp()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, err := NewTimestampStore(ts.mgr, destPath, targetName, ts.Format)
			return err
		}
		return err
	}
	last, err := ts.LastTimestamp()
	if err != nil {
		return err
	}
	times, values, err := ts.Range(first, last, EndpointBoth, 0, Items)
	if err != nil {
		return err
	}

	dest, err := NewTimestampStore(ts.mgr, destPath, targetName, ts.Format)
	if err != nil {
		return err
	}
	_, err = dest.WriteMany(times, values)
	return err
}

// At performs a last-observation-carried-forward lookup for each
// instant in at, returning one value per instant. An instant outside
// [since, until] is an ErrInvalidArgument; the lookup itself may carry
// forward a sample stored before since. A matched sample lying exactly
// on a bound that endpoint excludes, or no sample at or before the
// instant, yields ErrNotFound for the whole call. When onlyAtTimes is
// true, an instant with no exact match yields ErrNotFound instead of
// carrying the preceding value forward.
func (ts *TimestampStore) At(at []time.Time, since, until time.Time, endpoint Endpoint, onlyAtTimes bool) ([]any, error) {
	txn, err := ts.mgr.Begin(ts.env, ts.name, false)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	b := txn.Bucket()
	if b == nil {
		return nil, fmt.Errorf("%w: sub-store is empty", ErrNotFound)
	}

	sinceKey, err := PackTimeKey(since)
	if err != nil {
		return nil, err
	}
	untilKey, err := PackTimeKey(until)
	if err != nil {
		return nil, err
	}

	out := make([]any, len(at))
	for i, t := range at {
		key, err := PackTimeKey(t)
		if err != nil {
			return nil, err
		}
		if bytes.Compare(key, sinceKey) < 0 || bytes.Compare(key, untilKey) > 0 {
			return nil, fmt.Errorf("%w: requested instant is outside [since, until]", ErrInvalidArgument)
		}

		k, v := seekLE(b.Cursor(), key)
		if k == nil {
			return nil, fmt.Errorf("%w: no sample at or before %s", ErrNotFound, t)
		}
		if onlyAtTimes && !bytes.Equal(k, key) {
			return nil, fmt.Errorf("%w: no sample exactly at %s", ErrNotFound, t)
		}
		if bytes.Equal(k, sinceKey) && !endpoint.includesSince() {
			return nil, fmt.Errorf("%w: matched sample is at the excluded since endpoint", ErrNotFound)
		}
		if bytes.Equal(k, untilKey) && !endpoint.includesUntil() {
			return nil, fmt.Errorf("%w: matched sample is at the excluded until endpoint", ErrNotFound)
		}

		val, err := Unpack(ts.Format, v)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

func (ts *TimestampStore) firstOrLast(last bool) (time.Time, []byte, error) {
	txn, err := ts.mgr.Begin(ts.env, ts.name, false)
	if err != nil {
		return time.Time{}, nil, err
	}
	defer txn.Rollback()

	b := txn.Bucket()
	if b == nil {
		return time.Time{}, nil, fmt.Errorf("%w: sub-store is empty", ErrNotFound)
	}
	c := b.Cursor()
	var k, v []byte
	if last {
		k, v = c.Last()
	} else {
		k, v = c.First()
	}
	if k == nil {
		return time.Time{}, nil, fmt.Errorf("%w: sub-store is empty", ErrNotFound)
	}
	t, err := UnpackTimeKey(k)
	if err != nil {
		return time.Time{}, nil, err
	}
	return t, append([]byte(nil), v...), nil
}

// FirstTimestamp returns the earliest stored instant.
func (ts *TimestampStore) FirstTimestamp() (time.Time, error) {
	t, _, err := ts.firstOrLast(false)
	return t, err
}

// LastTimestamp returns the latest stored instant.
func (ts *TimestampStore) LastTimestamp() (time.Time, error) {
	t, _, err := ts.firstOrLast(true)
	return t, err
}

// FirstValue returns the decoded value at the earliest stored instant.
func (ts *TimestampStore) FirstValue() (any, error) {
	_, raw, err := ts.firstOrLast(false)
	if err != nil {
		return nil, err
	}
	return Unpack(ts.Format, raw)
}

// LastValue returns the decoded value at the latest stored instant.
func (ts *TimestampStore) LastValue() (any, error) {
	_, raw, err := ts.firstOrLast(true)
	if err != nil {
		return nil, err
	}
	return Unpack(ts.Format, raw)
}

// LastChanged walks backward from the latest sample while its encoded
// value is unchanged, returning the earliest instant of that run: the
// moment the store's current value took effect.
func (ts *TimestampStore) LastChanged() (time.Time, error) {
	txn, err := ts.mgr.Begin(ts.env, ts.name, false)
	if err != nil {
		return time.Time{}, err
	}
	defer txn.Rollback()

	b := txn.Bucket()
	if b == nil {
		return time.Time{}, fmt.Errorf("%w: sub-store is empty", ErrNotFound)
	}
	c := b.Cursor()
	k, v := c.Last()
	if k == nil {
		return time.Time{}, fmt.Errorf("%w: sub-store is empty", ErrNotFound)
	}
	lastValue := append([]byte(nil), v...)
	changedKey := k
	for {
		pk, pv := c.Prev()
		if pk == nil || !bytes.Equal(pv, lastValue) {
			break
		}
		changedKey = pk
	}
	return UnpackTimeKey(changedKey)
}

// Statistics returns the sample count and time span of the store.
func (ts *TimestampStore) Statistics() (TimestampStatistics, error) {
	txn, err := ts.mgr.Begin(ts.env, ts.name, false)
	if err != nil {
		return TimestampStatistics{}, err
	}
	defer txn.Rollback()

	b := txn.Bucket()
	if b == nil {
		return TimestampStatistics{}, nil
	}
	stats := TimestampStatistics{Count: b.Stats().KeyN}
	c := b.Cursor()
	if k, _ := c.First(); k != nil {
		stats.First, err = UnpackTimeKey(k)
		if err != nil {
			return TimestampStatistics{}, err
		}
	}
	if k, _ := c.Last(); k != nil {
		stats.Last, err = UnpackTimeKey(k)
		if err != nil {
			return TimestampStatistics{}, err
		}
	}
	return stats, nil
}
