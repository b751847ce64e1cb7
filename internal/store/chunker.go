// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"sort"
	"time"
)

// TimeChunker maps a non-empty window of timestamps to 1 or 3
// representative timestamps (spec.md §4.8).
type TimeChunker func(ts []time.Time) []time.Time

// ValueChunker maps a non-empty window of decoded values to 1 or 3
// representative values.
type ValueChunker func(values []any) ([]any, error)

// ChunkTimeLeft returns the first timestamp in the window.
func ChunkTimeLeft(ts []time.Time) []time.Time { return []time.Time{ts[0]} }

// ChunkTimeRight returns the last timestamp in the window.
func ChunkTimeRight(ts []time.Time) []time.Time { return []time.Time{ts[len(ts)-1]} }

// ChunkTimeCenter returns the window's time midpoint, or its only
// timestamp when the window has a single sample.
func ChunkTimeCenter(ts []time.Time) []time.Time {
	if len(ts) == 1 {
		return []time.Time{ts[0]}
	}
	return []time.Time{timeMidpoint(ts[0], ts[len(ts)-1])}
}

// ChunkTimeMinMeanMax returns (first, center, last), or the single
// timestamp triplicated when the window has one sample.
func ChunkTimeMinMeanMax(ts []time.Time) []time.Time {
	if len(ts) == 1 {
		return []time.Time{ts[0], ts[0], ts[0]}
	}
	return []time.Time{ts[0], timeMidpoint(ts[0], ts[len(ts)-1]), ts[len(ts)-1]}
}

func timeMidpoint(a, b time.Time) time.Time {
	return a.Add(b.Sub(a) / 2)
}

// ChunkValueLeft returns the first value in the window.
func ChunkValueLeft(values []any) ([]any, error) { return []any{values[0]}, nil }

// ChunkValueRight returns the last value in the window.
func ChunkValueRight(values []any) ([]any, error) { return []any{values[len(values)-1]}, nil }

// ChunkValueMin returns the element-wise minimum across the window.
func ChunkValueMin(values []any) ([]any, error) {
	return reduceElementwise(values, func(acc, v float64) float64 {
		if v < acc {
			return v
		}
		return acc
	})
}

// ChunkValueMax returns the element-wise maximum across the window.
func ChunkValueMax(values []any) ([]any, error) {
	return reduceElementwise(values, func(acc, v float64) float64 {
		if v > acc {
			return v
		}
		return acc
	})
}

// ChunkValueMean returns the element-wise arithmetic mean across the
// window.
func ChunkValueMean(values []any) ([]any, error) {
	rows, arity, err := floatRows(values)
	if err != nil {
		return nil, err
	}
	out := make([]float64, arity)
	for _, row := range rows {
		for i, f := range row {
			out[i] += f
		}
	}
	n := float64(len(rows))
	for i := range out {
		out[i] /= n
	}
	return valuesFromFloats(out, sampleArity(values)), nil
}

// ChunkValueMedian returns the element-wise median across the window.
func ChunkValueMedian(values []any) ([]any, error) {
	rows, arity, err := floatRows(values)
	if err != nil {
		return nil, err
	}
	out := make([]float64, arity)
	col := make([]float64, len(rows))
	for i := 0; i < arity; i++ {
		for j, row := range rows {
			col[j] = row[i]
		}
		sort.Float64s(col)
		out[i] = median(col)
	}
	return valuesFromFloats(out, sampleArity(values)), nil
}

// ChunkValueMinMeanMax returns (min, mean, max), element-wise, or the
// single value triplicated when the window has one sample.
func ChunkValueMinMeanMax(values []any) ([]any, error) {
	if len(values) == 1 {
		return []any{values[0], values[0], values[0]}, nil
	}
	mn, err := ChunkValueMin(values)
	if err != nil {
		return nil, err
	}
	mean, err := ChunkValueMean(values)
	if err != nil {
		return nil, err
	}
	mx, err := ChunkValueMax(values)
	if err != nil {
		return nil, err
	}
	return []any{mn[0], mean[0], mx[0]}, nil
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func reduceElementwise(values []any, f func(acc, v float64) float64) ([]any, error) {
	rows, arity, err := floatRows(values)
	if err != nil {
		return nil, err
	}
	out := append([]float64(nil), rows[0]...)
	for _, row := range rows[1:] {
		for i, v := range row {
			out[i] = f(out[i], v)
		}
	}
	return valuesFromFloats(out, arity), nil
}

// sampleArity reports the element count of the first value (1 for a
// scalar, n for a packed tuple of arity n).
func sampleArity(values []any) int {
	if row, ok := values[0].([]any); ok {
		return len(row)
	}
	return 1
}

// floatRows converts each value to a row of float64s (arity 1 for a
// scalar, arity n for a packed tuple), verifying all rows share the same
// arity.
func floatRows(values []any) ([][]float64, int, error) {
	rows := make([][]float64, len(values))
	arity := sampleArity(values)
	for i, v := range values {
		row, err := toFloatRow(v)
		if err != nil {
			return nil, 0, err
		}
		if len(row) != arity {
			return nil, 0, fmt.Errorf("%w: chunker requires uniform arity, got %d and %d", ErrInvalidArgument, arity, len(row))
		}
		rows[i] = row
	}
	return rows, arity, nil
}

func toFloatRow(v any) ([]float64, error) {
	if tuple, ok := v.([]any); ok {
		out := make([]float64, len(tuple))
		for i, e := range tuple {
			f, err := toFloat64(e)
			if err != nil {
				return nil, fmt.Errorf("%w: chunker requires numeric values: %v", ErrInvalidArgument, err)
			}
			out[i] = f
		}
		return out, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("%w: chunker requires numeric values: %v", ErrInvalidArgument, err)
	}
	return []float64{f}, nil
}

// valuesFromFloats packs the aggregate back into the shape the input
// values had: a bare float64 for arity 1, a []any tuple otherwise.
func valuesFromFloats(out []float64, arity int) []any {
	if arity == 1 {
		return []any{out[0]}
	}
	tuple := make([]any, len(out))
	for i, f := range out {
		tuple[i] = f
	}
	return []any{tuple}
}
