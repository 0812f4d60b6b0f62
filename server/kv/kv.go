// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package kv

import "context"

// KeyValue is a single versioned entry loaded from the metastore.
type KeyValue struct {
	Key     string
	Value   []byte
	Version int64
}

// Base is an abstract interface over a versioned key-value metastore. The
// store assigns a monotonically increasing version to a key on every
// successful write; Save and Remove apply only when the caller's expected
// version matches the current one, otherwise they fail with a Conflict
// error. Every mutation is a single atomic store operation, so abandoning an
// in-flight call cannot leave a partial write behind.
type Base interface {
	// Load returns the current entry for key, or nil if the key is absent.
	Load(ctx context.Context, key string) (*KeyValue, error)
	// Create writes a new key and returns its initial version. It fails
	// with a Conflict error if the key already exists.
	Create(ctx context.Context, key string, value []byte) (int64, error)
	// Save overwrites an existing key if its current version equals
	// expect, and returns the new version. A missing key also counts as a
	// Conflict.
	Save(ctx context.Context, key string, value []byte, expect int64) (int64, error)
	// Remove deletes a key if its current version equals expect.
	Remove(ctx context.Context, key string, expect int64) error
	// LoadPrefix returns all entries under prefix, consistent with a
	// single point in time.
	LoadPrefix(ctx context.Context, prefix string) ([]KeyValue, error)
}
