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

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	mgr := &Manager{envs: make(map[string]*Env)}
	path := filepath.Join(t.TempDir(), "test.db")
	t.Cleanup(func() { _ = mgr.CloseAll() })
	return mgr, path
}

func TestManagerOpenIsIdempotent(t *testing.T) {
	mgr, path := newTestManager(t)

	a, err := mgr.Open(path)
	require.NoError(t, err)
	b, err := mgr.Open(filepath.Join(filepath.Dir(path), filepath.Base(path)))
	require.NoError(t, err)

	assert.Same(t, a, b, "Open must return the same Env for the same canonical path")
}

func TestManagerSubAndEnumerate(t *testing.T) {
	mgr, path := newTestManager(t)
	env, err := mgr.Open(path)
	require.NoError(t, err)

	require.NoError(t, mgr.Sub(env, "data_s1"))
	require.NoError(t, mgr.Sub(env, "data_s2"))
	require.NoError(t, mgr.Sub(env, "data_s1")) // idempotent

	names, err := mgr.Enumerate(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"data_s1", "data_s2"}, names)
}

func TestManagerExistsAndDrop(t *testing.T) {
	mgr, path := newTestManager(t)
	env, err := mgr.Open(path)
	require.NoError(t, err)

	ok, err := mgr.Exists(path, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mgr.Sub(env, "present"))
	ok, err = mgr.Exists(path, "present")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mgr.Drop(path, "present"))
	require.NoError(t, mgr.Drop(path, "present")) // idempotent

	ok, err = mgr.Exists(path, "present")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerBeginRejectsConcurrentWrites(t *testing.T) {
	mgr, path := newTestManager(t)
	env, err := mgr.Open(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Sub(env, "s"))

	txn, err := mgr.Begin(env, "s", true)
	require.NoError(t, err)

	_, err = mgr.Begin(env, "s", true)
	assert.ErrorIs(t, err, ErrConcurrency)

	require.NoError(t, txn.Rollback())

	txn2, err := mgr.Begin(env, "s", true)
	require.NoError(t, err)
	require.NoError(t, txn2.Commit())
}

func TestManagerCloseAndReopen(t *testing.T) {
	mgr, path := newTestManager(t)
	env, err := mgr.Open(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Sub(env, "s"))

	require.NoError(t, mgr.Close(path))

	ok, err := mgr.Exists(path, "s")
	require.NoError(t, err)
	assert.True(t, ok, "data must survive a close/reopen cycle")
}
