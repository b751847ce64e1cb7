// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTimestampStore(t *testing.T, fd FormatDescriptor) *TimestampStore {
	t.Helper()
	mgr, path := newTestManager(t)
	ts, err := NewTimestampStore(mgr, path, "ts", fd)
	require.NoError(t, err)
	return ts
}

var floatFD = FormatDescriptor{Kind: KindFloat, raw: "f"}

func TestTimestampWriteAndRangeOrdering(t *testing.T) {
	ts := newTestTimestampStore(t, floatFD)
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, v := range []float64{3, 1, 2} {
		wrote, err := ts.Write(t0.Add(time.Duration(i)*time.Second), v, false, 0)
		require.NoError(t, err)
		assert.True(t, wrote)
	}

	times, values, err := ts.Range(t0, t0.Add(10*time.Second), EndpointBoth, 0, Items)
	require.NoError(t, err)
	require.Len(t, times, 3)
	for i := 1; i < len(times); i++ {
		assert.True(t, times[i-1].Before(times[i]), "Range must return samples in chronological order")
	}
	assert.Equal(t, []any{3.0, 1.0, 2.0}, values)
}

func TestTimestampRangeEndpointInclusion(t *testing.T) {
	ts := newTestTimestampStore(t, floatFD)
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	_, err := ts.Write(t0, 1.0, false, 0)
	require.NoError(t, err)
	_, err = ts.Write(t1, 2.0, false, 0)
	require.NoError(t, err)

	both, _, err := ts.Range(t0, t1, EndpointBoth, 0, Keys)
	require.NoError(t, err)
	assert.Len(t, both, 2)

	left, _, err := ts.Range(t0, t1, EndpointLeft, 0, Keys)
	require.NoError(t, err)
	assert.Len(t, left, 1)
	assert.True(t, left[0].Equal(t0))

	right, _, err := ts.Range(t0, t1, EndpointRight, 0, Keys)
	require.NoError(t, err)
	assert.Len(t, right, 1)
	assert.True(t, right[0].Equal(t1))

	none, _, err := ts.Range(t0, t1, EndpointNone, 0, Keys)
	require.NoError(t, err)
	assert.Len(t, none, 0)
}

func TestTimestampConditionalWriteSuppression(t *testing.T) {
	ts := newTestTimestampStore(t, floatFD)
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	wrote, err := ts.Write(t0, 1.0, true, 0)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = ts.Write(t0.Add(time.Second), 1.0, true, 0)
	require.NoError(t, err)
	assert.False(t, wrote, "an unchanged value must be suppressed")

	wrote, err = ts.Write(t0.Add(2*time.Second), 2.0, true, 0)
	require.NoError(t, err)
	assert.True(t, wrote, "a changed value must always be written")

	stats, err := ts.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
}

func TestTimestampConditionalWriteMaxAgeOverride(t *testing.T) {
	ts := newTestTimestampStore(t, floatFD)
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := ts.Write(t0, 1.0, true, 0)
	require.NoError(t, err)

	wrote, err := ts.Write(t0.Add(500*time.Millisecond), 1.0, true, time.Second)
	require.NoError(t, err)
	assert.False(t, wrote, "within maxAge, an unchanged value is still suppressed")

	wrote, err = ts.Write(t0.Add(2*time.Second), 1.0, true, time.Second)
	require.NoError(t, err)
	assert.True(t, wrote, "past maxAge, an unchanged value must be written anyway")
}

func TestTimestampWriteIdempotence(t *testing.T) {
	ts := newTestTimestampStore(t, floatFD)
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := ts.Write(t0, 1.0, true, 0)
		require.NoError(t, err)
	}
	stats, err := ts.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count, "repeated identical conditional writes at the same instant must not grow the store")
}

func TestTimestampAtLOCF(t *testing.T) {
	ts := newTestTimestampStore(t, floatFD)
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := ts.Write(t0, 1.0, false, 0)
	require.NoError(t, err)
	_, err = ts.Write(t0.Add(10*time.Second), 2.0, false, 0)
	require.NoError(t, err)

	out, err := ts.At([]time.Time{t0.Add(5 * time.Second)}, t0, t0.Add(20*time.Second), EndpointBoth, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out[0], "LOCF must carry forward the last value before the query instant")

	out, err = ts.At([]time.Time{t0.Add(10 * time.Second)}, t0, t0.Add(20*time.Second), EndpointBoth, false)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out[0])
}

func TestTimestampAtOnlyAtTimes(t *testing.T) {
	ts := newTestTimestampStore(t, floatFD)
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := ts.Write(t0, 1.0, false, 0)
	require.NoError(t, err)

	_, err = ts.At([]time.Time{t0.Add(time.Second)}, t0, t0.Add(10*time.Second), EndpointBoth, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTimestampDeleteRangeTotality(t *testing.T) {
	ts := newTestTimestampStore(t, floatFD)
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := ts.Write(t0.Add(time.Duration(i)*time.Second), float64(i), false, 0)
		require.NoError(t, err)
	}

	n, err := ts.DeleteRange(t0, t0.Add(4*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	stats, err := ts.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
}

func TestTimestampRangeDecimatedMinMeanMax(t *testing.T) {
	ts := newTestTimestampStore(t, floatFD)
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	// 91 one-second samples (values 0..90) span exactly 13 windows of 7s.
	for i := 0; i <= 90; i++ {
		_, err := ts.Write(t0.Add(time.Duration(i)*time.Second), float64(i), false, 0)
		require.NoError(t, err)
	}

	times, values, err := ts.RangeDecimated(7*time.Second, t0, t0.Add(90*time.Second), 0, ChunkTimeCenter, ChunkValueMean)
	require.NoError(t, err)
	require.Len(t, times, 13)
	require.Len(t, values, 13)

	assert.True(t, times[0].Equal(t0.Add(3*time.Second)), "center timestamp is the midpoint between the window's first and last sample")
	assert.InDelta(t, 3.0, values[0], 1e-9)

	timesMMM, valuesMMM, err := ts.RangeDecimated(7*time.Second, t0, t0.Add(90*time.Second), 0, ChunkTimeMinMeanMax, ChunkValueMinMeanMax)
	require.NoError(t, err)
	require.Len(t, timesMMM, 13*3)
	require.Len(t, valuesMMM, 13*3)
	assert.InDelta(t, 0.0, valuesMMM[0], 1e-9)
	assert.InDelta(t, 3.0, valuesMMM[1], 1e-9)
	assert.InDelta(t, 6.0, valuesMMM[2], 1e-9)
}

func TestTimestampLastChanged(t *testing.T) {
	ts := newTestTimestampStore(t, FormatDescriptor{Kind: KindBytes, raw: "bytes"})
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	writes := []struct {
		offset time.Duration
		v      []byte
	}{
		{0, []byte("1")},
		{time.Second, []byte("1")},
		{10 * time.Second, []byte("0")},
		{11 * time.Second, []byte("0")},
	}
	for _, w := range writes {
		_, err := ts.Write(t0.Add(w.offset), w.v, false, 0)
		require.NoError(t, err)
	}

	changed, err := ts.LastChanged()
	require.NoError(t, err)
	assert.True(t, changed.Equal(t0.Add(10*time.Second)))
}

func TestTimestampCopyToIdentity(t *testing.T) {
	ts := newTestTimestampStore(t, floatFD)
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := ts.Write(t0.Add(time.Duration(i)*time.Second), float64(i), false, 0)
		require.NoError(t, err)
	}

	require.NoError(t, ts.CopyTo("ts2"))

	copyTs := &TimestampStore{mgr: ts.mgr, env: ts.env, path: ts.path, name: "ts2", Format: ts.Format}
	origTimes, origValues, err := ts.Range(t0, t0.Add(10*time.Second), EndpointBoth, 0, Items)
	require.NoError(t, err)
	copyTimes, copyValues, err := copyTs.Range(t0, t0.Add(10*time.Second), EndpointBoth, 0, Items)
	require.NoError(t, err)

	assert.Equal(t, origTimes, copyTimes)
	assert.Equal(t, origValues, copyValues)

	err = ts.CopyTo("ts2")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}
