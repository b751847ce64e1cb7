// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatDescriptor(t *testing.T) {
	t.Run("well-known forms", func(t *testing.T) {
		for s, kind := range map[string]Kind{
			"f": KindFloat, "int": KindInt, "str": KindString, "bytes": KindBytes,
			"json": KindJSON, "yaml": KindYAML, "regex": KindRegex,
		} {
			fd, err := ParseFormatDescriptor(s)
			require.NoError(t, err)
			assert.Equal(t, kind, fd.Kind)
			assert.Equal(t, s, fd.String())
		}
	})

	t.Run("packed layout", func(t *testing.T) {
		fd, err := ParseFormatDescriptor("hHq")
		require.NoError(t, err)
		assert.Equal(t, KindPacked, fd.Kind)
		assert.Equal(t, "hHq", fd.Layout)
	})

	t.Run("rejects empty and unknown", func(t *testing.T) {
		_, err := ParseFormatDescriptor("")
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = ParseFormatDescriptor("zz")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestGuessFormat(t *testing.T) {
	cases := []struct {
		name string
		v    any
		kind Kind
	}{
		{"numeric scalar", 3.5, KindFloat},
		{"numeric string", "42", KindFloat},
		{"plain string", "hello", KindString},
		{"numeric slice", []float64{1, 2, 3}, KindPacked},
		{"map", map[string]any{"a": 1}, KindJSON},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fd, err := GuessFormat(tc.v)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, fd.Kind)
		})
	}

	t.Run("nil is an error", func(t *testing.T) {
		_, err := GuessFormat(nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		fd   string
		v    any
	}{
		{"float", "f", 12.5},
		{"int", "int", int64(-1234)},
		{"string", "str", "hello world"},
		{"bytes", "bytes", []byte("raw bytes")},
		{"json", "json", map[string]any{"a": float64(1), "b": "two"}},
		{"regex", "regex", `^[a-z]+$`},
		{"packed bBhiIqQfd", "bBhiIqQfd", []any{int64(-1), uint64(200), int64(-2), int64(-3), uint64(40000), int64(-4), uint64(1), 1.5, 2.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fd, err := ParseFormatDescriptor(tc.fd)
			require.NoError(t, err)

			encoded, err := Pack(fd, tc.v)
			require.NoError(t, err)

			decoded, err := Unpack(fd, encoded)
			require.NoError(t, err)
			assert.EqualValues(t, tc.v, decoded)
		})
	}
}

func TestPackedRejectsLegacyUnsignedShort(t *testing.T) {
	fd, err := ParseFormatDescriptor("H")
	require.NoError(t, err)

	_, err = Pack(fd, []any{1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Unpack(fd, []byte{0, 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestIntRejectsOverflow(t *testing.T) {
	fd, err := ParseFormatDescriptor("int")
	require.NoError(t, err)

	_, err = Pack(fd, math.MaxInt16+1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Pack(fd, math.MinInt16-1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestIntUnpackRejectsWrongWidth(t *testing.T) {
	fd, err := ParseFormatDescriptor("int")
	require.NoError(t, err)

	_, err = Unpack(fd, []byte{0, 0, 0})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestTimeKeyOrdering(t *testing.T) {
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := PackTimeKey(t0)
	require.NoError(t, err)
	b, err := PackTimeKey(t0.Add(time.Second))
	require.NoError(t, err)

	assert.Less(t, string(a), string(b), "lexicographic order of keys must match chronological order")

	back, err := UnpackTimeKey(b)
	require.NoError(t, err)
	assert.True(t, back.Equal(t0.Add(time.Second)))
}

func TestTimeKeyRejectsPreEpoch(t *testing.T) {
	_, err := PackTimeKey(time.Unix(-1, 0))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
