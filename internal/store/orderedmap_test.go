// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrderedMap(t *testing.T, name string) *OrderedMap {
	t.Helper()
	mgr, path := newTestManager(t)
	om, err := NewOrderedMap(mgr, path, name)
	require.NoError(t, err)
	return om
}

func TestOrderedMapPutGetDelete(t *testing.T) {
	om := newTestOrderedMap(t, "m")

	_, ok, err := om.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, om.Put([]byte("k"), []byte("v1")))
	v, ok, err := om.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, om.Delete([]byte("k")))
	err = om.Delete([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderedMapIterOrdering(t *testing.T) {
	om := newTestOrderedMap(t, "m")
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, om.Put([]byte(k), []byte(k+"v")))
	}

	items, err := om.Iter(Items)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", string(items[0].Key))
	assert.Equal(t, "b", string(items[1].Key))
	assert.Equal(t, "c", string(items[2].Key))
}

func TestOrderedMapLenAndIsEmpty(t *testing.T) {
	om := newTestOrderedMap(t, "m")
	empty, err := om.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, om.Put([]byte("a"), []byte("1")))
	n, err := om.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOrderedMapClearIsSafe(t *testing.T) {
	om := newTestOrderedMap(t, "m")
	for i := 0; i < 50; i++ {
		require.NoError(t, om.Put([]byte{byte(i)}, []byte("v")))
	}
	require.NoError(t, om.Clear())
	empty, err := om.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestOrderedMapPopLast(t *testing.T) {
	om := newTestOrderedMap(t, "m")
	require.NoError(t, om.Put([]byte("a"), []byte("1")))
	require.NoError(t, om.Put([]byte("b"), []byte("2")))

	kv, err := om.PopLast()
	require.NoError(t, err)
	assert.Equal(t, "b", string(kv.Key))

	n, err := om.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOrderedMapCopyToIdentity(t *testing.T) {
	om := newTestOrderedMap(t, "m")
	require.NoError(t, om.Put([]byte("a"), []byte("1")))
	require.NoError(t, om.Put([]byte("b"), []byte("2")))

	require.NoError(t, om.CopyTo("m2"))
	dest := &OrderedMap{mgr: om.mgr, env: om.env, path: om.path, name: "m2"}

	equal, err := om.Equal(dest)
	require.NoError(t, err)
	assert.True(t, equal)

	err = om.CopyTo("m2")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}
