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

import (
	"context"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
)

// Update runs a read-merge-save loop against key until the write applies or
// the retry budget runs out. merge receives the current entry (nil when the
// key is absent) and returns the value to write; an error from merge aborts
// the loop immediately and is returned as is. Only Conflict errors from the
// store are retried, everything else surfaces at once.
//
// Database, table and user mutations all share this loop instead of
// reimplementing it per entity kind.
func Update(ctx context.Context, base Base, key string, retries int, merge func(old *KeyValue) ([]byte, error)) (int64, error) {
	for i := 0; i <= retries; i++ {
		old, err := base.Load(ctx, key)
		if err != nil {
			return 0, err
		}
		value, err := merge(old)
		if err != nil {
			return 0, err
		}
		var version int64
		if old == nil {
			version, err = base.Create(ctx, key, value)
		} else {
			version, err = base.Save(ctx, key, value, old.Version)
		}
		if err == nil {
			return version, nil
		}
		if !errs.IsConflict(err) {
			return 0, err
		}
	}
	return 0, errs.Conflictf("update of %q lost to concurrent writers after %d attempts", key, retries+1)
}
