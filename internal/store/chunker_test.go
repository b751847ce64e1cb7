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

func sampleTimes(n int, step time.Duration) []time.Time {
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = t0.Add(time.Duration(i) * step)
	}
	return out
}

func TestChunkTime(t *testing.T) {
	ts := sampleTimes(4, time.Second) // t0..t0+3s

	assert.Equal(t, []time.Time{ts[0]}, ChunkTimeLeft(ts))
	assert.Equal(t, []time.Time{ts[3]}, ChunkTimeRight(ts))
	assert.True(t, ChunkTimeCenter(ts)[0].Equal(ts[0].Add(1500*time.Millisecond)))

	single := ts[:1]
	assert.Equal(t, []time.Time{ts[0]}, ChunkTimeCenter(single))
	assert.Equal(t, []time.Time{ts[0], ts[0], ts[0]}, ChunkTimeMinMeanMax(single))

	mmm := ChunkTimeMinMeanMax(ts)
	require.Len(t, mmm, 3)
	assert.True(t, mmm[0].Equal(ts[0]))
	assert.True(t, mmm[2].Equal(ts[3]))
}

func TestChunkValueAggregates(t *testing.T) {
	values := []any{1.0, 2.0, 3.0, 4.0}

	min, err := ChunkValueMin(values)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, min)

	max, err := ChunkValueMax(values)
	require.NoError(t, err)
	assert.Equal(t, []any{4.0}, max)

	mean, err := ChunkValueMean(values)
	require.NoError(t, err)
	assert.Equal(t, []any{2.5}, mean)

	median, err := ChunkValueMedian(values)
	require.NoError(t, err)
	assert.Equal(t, []any{2.5}, median)

	mmm, err := ChunkValueMinMeanMax(values)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.5, 4.0}, mmm)
}

func TestChunkValueMinMeanMaxSingleSample(t *testing.T) {
	mmm, err := ChunkValueMinMeanMax([]any{7.0})
	require.NoError(t, err)
	assert.Equal(t, []any{7.0, 7.0, 7.0}, mmm)
}

func TestChunkValueElementwiseOnTuples(t *testing.T) {
	values := []any{
		[]any{1.0, 10.0},
		[]any{3.0, 20.0},
		[]any{2.0, 30.0},
	}
	mean, err := ChunkValueMean(values)
	require.NoError(t, err)
	require.Len(t, mean, 1)
	tuple := mean[0].([]any)
	assert.InDelta(t, 2.0, tuple[0], 1e-9)
	assert.InDelta(t, 20.0, tuple[1], 1e-9)
}

func TestChunkValueRejectsNonNumeric(t *testing.T) {
	_, err := ChunkValueMean([]any{"not a number"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
