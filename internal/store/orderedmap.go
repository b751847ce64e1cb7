// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"fmt"
)

// What selects which part of a key/value pair an iteration yields.
type What int

const (
	Keys What = iota
	Values
	Items
)

// KV is a single key/value pair, as yielded by iteration.
type KV struct {
	Key   []byte
	Value []byte
}

// OrderedMap is a named sub-store: a byte-keyed, lexicographically
// ordered view over one bucket inside an environment (spec.md §4.3).
type OrderedMap struct {
	mgr  *Manager
	env  *Env
	path string
	name string
}

// NewOrderedMap opens (creating if necessary) the named sub-store in the
// file at path, using mgr as the environment registry.
func NewOrderedMap(mgr *Manager, path, name string) (*OrderedMap, error) {
	env, err := mgr.Open(path)
	if err != nil {
		return nil, err
	}
	if err := mgr.Sub(env, name); err != nil {
		return nil, err
	}
	return &OrderedMap{mgr: mgr, env: env, path: path, name: name}, nil
}

// Name returns the sub-store's name.
func (om *OrderedMap) Name() string { return om.name }

// Get returns the value stored under k, or (nil, false) if absent.
func (om *OrderedMap) Get(k []byte) ([]byte, bool, error) {
	txn, err := om.mgr.Begin(om.env, om.name, false)
	if err != nil {
		return nil, false, err
	}
	defer txn.Rollback()

	b := txn.Bucket()
	if b == nil {
		return nil, false, nil
	}
	v := b.Get(k)
	if v == nil {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put creates or overwrites k. As an optimization, if k already maps to
// exactly v, no write transaction is committed (spec.md §4.3).
func (om *OrderedMap) Put(k, v []byte) error {
	txn, err := om.mgr.Begin(om.env, om.name, true)
	if err != nil {
		return err
	}

	b := txn.Bucket()
	if b == nil {
		txn.Rollback()
		if err := om.mgr.Sub(om.env, om.name); err != nil {
			return err
		}
		return om.Put(k, v)
	}

	if existing := b.Get(k); existing != nil && bytes.Equal(existing, v) {
		return txn.Rollback()
	}

	if err := b.Put(k, v); err != nil {
		txn.Rollback()
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return txn.Commit()
}

// Delete removes k. It is an error to delete an absent key.
func (om *OrderedMap) Delete(k []byte) error {
	txn, err := om.mgr.Begin(om.env, om.name, true)
	if err != nil {
		return err
	}
	b := txn.Bucket()
	if b == nil || b.Get(k) == nil {
		txn.Rollback()
		return fmt.Errorf("%w: key not present", ErrNotFound)
	}
	if err := b.Delete(k); err != nil {
		txn.Rollback()
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return txn.Commit()
}

// Contains reports whether k is present.
func (om *OrderedMap) Contains(k []byte) (bool, error) {
	_, ok, err := om.Get(k)
	return ok, err
}

// Len returns the number of entries.
func (om *OrderedMap) Len() (int, error) {
	txn, err := om.mgr.Begin(om.env, om.name, false)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()
	b := txn.Bucket()
	if b == nil {
		return 0, nil
	}
	return b.Stats().KeyN, nil
}

// IsEmpty reports whether the sub-store has no entries.
func (om *OrderedMap) IsEmpty() (bool, error) {
	n, err := om.Len()
	return n == 0, err
}

// Iter yields keys, values, or items in ascending key order.
func (om *OrderedMap) Iter(what What) ([]KV, error) {
	txn, err := om.mgr.Begin(om.env, om.name, false)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	b := txn.Bucket()
	if b == nil {
		return nil, nil
	}

	var out []KV
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		kv := KV{}
		if what == Keys || what == Items {
			kv.Key = append([]byte(nil), k...)
		}
		if what == Values || what == Items {
			kv.Value = append([]byte(nil), v...)
		}
		out = append(out, kv)
	}
	return out, nil
}

// Update performs a bulk put of pairs in a single write transaction.
// Individual row failures do not roll back prior successful rows within
// the same call; the return value is the AND of per-row success.
func (om *OrderedMap) Update(pairs []KV) (bool, error) {
	if len(pairs) == 0 {
		return true, nil
	}
	if err := om.mgr.Sub(om.env, om.name); err != nil {
		return false, err
	}

	txn, err := om.mgr.Begin(om.env, om.name, true)
	if err != nil {
		return false, err
	}
	b := txn.Bucket()
	ok := true
	for _, kv := range pairs {
		if err := b.Put(kv.Key, kv.Value); err != nil {
			ok = false
		}
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return ok, nil
}

// PopLast removes and returns the entry with the greatest key.
func (om *OrderedMap) PopLast() (KV, error) {
	txn, err := om.mgr.Begin(om.env, om.name, true)
	if err != nil {
		return KV{}, err
	}
	b := txn.Bucket()
	if b == nil {
		txn.Rollback()
		return KV{}, fmt.Errorf("%w: sub-store is empty", ErrNotFound)
	}
	c := b.Cursor()
	k, v := c.Last()
	if k == nil {
		txn.Rollback()
		return KV{}, fmt.Errorf("%w: sub-store is empty", ErrNotFound)
	}
	kv := KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}
	if err := b.Delete(k); err != nil {
		txn.Rollback()
		return KV{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := txn.Commit(); err != nil {
		return KV{}, err
	}
	return kv, nil
}

// Clear removes every entry. Implemented by dropping and recreating the
// bucket rather than iterating-then-deleting, so it is always safe even
// though the underlying iteration-while-deleting behavior of the
// original source was unspecified (spec.md §9).
func (om *OrderedMap) Clear() error {
	if err := om.mgr.Drop(om.path, om.name); err != nil {
		return err
	}
	return om.mgr.Sub(om.env, om.name)
}

// CopyTo duplicates this sub-store's entries into a new sub-store named
// targetName, in this file or, if targetPath is non-empty, in another
// file. It fails if the destination already exists. The destination is
// created in one write transaction and filled in a second, so the copy
// as a whole is not atomic: a failure while filling leaves the
// destination in place.
func (om *OrderedMap) CopyTo(targetName string, targetPath ...string) error {
	destPath := om.path
	if len(targetPath) > 0 && targetPath[0] != "" {
		destPath = targetPath[0]
	}

	exists, err := om.mgr.Exists(destPath, targetName)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: sub-store %q already exists", ErrAlreadyExists, targetName)
	}

	items, err := om.Iter(Items)
	if err != nil {
		return err
	}

	destEnv, err := om.mgr.Open(destPath)
	if err != nil {
		return err
	}
	if err := om.mgr.Sub(destEnv, targetName); err != nil {
		return err
	}

	dest := &OrderedMap{mgr: om.mgr, env: destEnv, path: destPath, name: targetName}
	_, err = dest.Update(items)
	return err
}

// Equal reports whether om and other contain exactly the same set of
// key/value pairs.
func (om *OrderedMap) Equal(other *OrderedMap) (bool, error) {
	a, err := om.Iter(Items)
	if err != nil {
		return false, err
	}
	b, err := other.Iter(Items)
	if err != nil {
		return false, err
	}
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		if !bytes.Equal(a[i].Key, b[i].Key) || !bytes.Equal(a[i].Value, b[i].Value) {
			return false, nil
		}
	}
	return true, nil
}
