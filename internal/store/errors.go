// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import "errors"

// Sentinel error kinds. Callers should use errors.Is against these,
// never inspect formatted messages.
var (
	// ErrNotFound is returned when a key or sub-store required to be
	// present is missing.
	ErrNotFound = errors.New("sensorstore: not found")

	// ErrAlreadyExists is returned when a copy/create target is already
	// present.
	ErrAlreadyExists = errors.New("sensorstore: already exists")

	// ErrInvalidArgument covers malformed timestamps, non-monotonic
	// ranges, unknown format descriptors, uncompilable regexes, and
	// packed values whose arity/types don't match the descriptor.
	ErrInvalidArgument = errors.New("sensorstore: invalid argument")

	// ErrDecode is returned when stored bytes cannot be decoded with the
	// current codec.
	ErrDecode = errors.New("sensorstore: decode error")

	// ErrIO is returned when the underlying storage reports failure
	// during put/delete/sync/copy.
	ErrIO = errors.New("sensorstore: io error")

	// ErrConcurrency is returned when a sub-store is opened inside an
	// active transaction on the same environment.
	ErrConcurrency = errors.New("sensorstore: concurrent transaction")
)
