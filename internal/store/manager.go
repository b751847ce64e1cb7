// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	slog "github.com/nhr-fau/sensorstore/pkg/log"
)

// MaxSubStores is the soft cap on the number of sub-stores (buckets) a
// single environment will create, mirroring the "allow up to 1024
// sub-stores" provisioning policy of spec.md §4.2. bbolt itself imposes
// no such limit; this is purely a guard against runaway sensor/sub-store
// creation.
const MaxSubStores = 1024

// Env is a single open environment: one memory-mapped file shared by
// every caller in the process that asked for this path.
type Env struct {
	path string
	db   *bolt.DB

	mu        sync.Mutex
	writeOpen bool // true while a write Txn obtained via Begin is outstanding
	subStores int
}

// Manager is the process-wide registry mapping a canonical file path to
// a single open Env, per spec.md §4.2 and the "process-global handle
// registry" design note in §9.
type Manager struct {
	mu   sync.Mutex
	envs map[string]*Env
}

// defaultManager is the process singleton, returned by DefaultManager;
// Open/Close/etc. below are methods callable on it or on any other
// Manager. The singleton mirrors the teacher's
// sync.Once-guarded package-level MemoryStore singleton
// (internal/memorystore/memorystore.go).
var defaultManager = &Manager{envs: make(map[string]*Env)}

// DefaultManager returns the process-wide EnvManager singleton.
func DefaultManager() *Manager { return defaultManager }

// Open resolves path to its canonical absolute form and returns the
// shared Env for it, opening the underlying file if this is the first
// request for that path. Safe for concurrent use; idempotent.
func (m *Manager) Open(path string) (*Env, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if env, ok := m.envs[abs]; ok {
		return env, nil
	}

	db, err := bolt.Open(abs, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, abs, err)
	}

	env := &Env{path: abs, db: db}
	m.envs[abs] = env
	slog.Debugf("[ENVMANAGER]> opened %s", abs)
	return env, nil
}

// Sub opens (creating if absent) the named sub-store inside env. It must
// be called with no write Txn outstanding on env, obtained via Begin;
// violating this returns ErrConcurrency rather than risking a deadlock
// against bbolt's single-writer lock (spec.md §4.2/§5).
func (m *Manager) Sub(env *Env, name string) error {
	env.mu.Lock()
	if env.writeOpen {
		env.mu.Unlock()
		return fmt.Errorf("%w: cannot open sub-store %q while a write transaction is active", ErrConcurrency, name)
	}
	env.mu.Unlock()

	var created bool
	err := env.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) != nil {
			return nil
		}
		env.mu.Lock()
		count := env.subStores
		env.mu.Unlock()
		if count >= MaxSubStores {
			return fmt.Errorf("%w: environment already has the maximum of %d sub-stores", ErrInvalidArgument, MaxSubStores)
		}
		if _, err := tx.CreateBucket([]byte(name)); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		created = true
		return nil
	})
	if err != nil {
		return err
	}
	if created {
		env.mu.Lock()
		env.subStores++
		env.mu.Unlock()
	}
	return nil
}

// Txn is a transaction scoped to a single sub-store, begun via Begin.
// Callers must call Commit or Rollback exactly once.
type Txn struct {
	env    *Env
	tx     *bolt.Tx
	bucket *bolt.Bucket // nil if the sub-store does not exist (read-only)
	write  bool
}

// Bucket returns the underlying bucket, or nil if the sub-store does not
// exist yet. A nil bucket on a read transaction is a normal "empty
// store" condition (spec.md §4.9 "missing sub-stores on read return
// empty results without creating them").
func (t *Txn) Bucket() *bolt.Bucket { return t.bucket }

// Commit commits a write transaction. bbolt fsyncs on every commit by
// default, which is how spec.md §5/§9's "sync() after every committed
// write" requirement is satisfied uniformly, with no extra code.
func (t *Txn) Commit() error {
	defer t.release()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Rollback discards a transaction's effects (a no-op for reads).
func (t *Txn) Rollback() error {
	defer t.release()
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (t *Txn) release() {
	if t.write {
		t.env.mu.Lock()
		t.env.writeOpen = false
		t.env.mu.Unlock()
	}
}

// Begin starts a read or write transaction scoped to the named
// sub-store. The sub-store must already have been created via Sub if
// the caller intends to write to a new bucket.
func (m *Manager) Begin(env *Env, name string, write bool) (*Txn, error) {
	if write {
		env.mu.Lock()
		if env.writeOpen {
			env.mu.Unlock()
			return nil, fmt.Errorf("%w: a write transaction is already active on this environment", ErrConcurrency)
		}
		env.writeOpen = true
		env.mu.Unlock()
	}

	tx, err := env.db.Begin(write)
	if err != nil {
		if write {
			env.mu.Lock()
			env.writeOpen = false
			env.mu.Unlock()
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	return &Txn{env: env, tx: tx, bucket: tx.Bucket([]byte(name)), write: write}, nil
}

// Exists reports whether the named sub-store exists, without creating
// it, by probing the root map for the name as a top-level bucket
// (spec.md §4.2).
func (m *Manager) Exists(path, name string) (bool, error) {
	env, err := m.Open(path)
	if err != nil {
		return false, err
	}
	var found bool
	err = env.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(name)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return found, nil
}

// Drop deletes the named sub-store. Missing sub-stores are not an
// error (idempotent), matching the sensor-deletion contract of §3.
func (m *Manager) Drop(path, name string) error {
	env, err := m.Open(path)
	if err != nil {
		return err
	}
	err = env.db.Update(func(tx *bolt.Tx) error {
		derr := tx.DeleteBucket([]byte(name))
		if derr == bolt.ErrBucketNotFound {
			return nil
		}
		return derr
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	env.mu.Lock()
	if env.subStores > 0 {
		env.subStores--
	}
	env.mu.Unlock()
	return nil
}

// Enumerate returns the root map's sub-store names, in the file's own
// (byte-lexicographic) enumeration order.
func (m *Manager) Enumerate(path string) ([]string, error) {
	env, err := m.Open(path)
	if err != nil {
		return nil, err
	}
	var names []string
	err = env.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the handle for path, if open.
func (m *Manager) Close(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	m.mu.Lock()
	env, ok := m.envs[abs]
	if ok {
		delete(m.envs, abs)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := env.db.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// CloseAll releases every open handle. Called implicitly at process
// teardown by callers that own the Manager's lifetime.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	envs := make([]*Env, 0, len(m.envs))
	for k, env := range m.envs {
		envs = append(envs, env)
		delete(m.envs, k)
	}
	m.mu.Unlock()

	var firstErr error
	for _, env := range envs {
		if err := env.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	return firstErr
}
