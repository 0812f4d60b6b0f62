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

package id

import (
	"context"
	"strconv"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/pingcap-incubator/tinymeta/server/kv"
	"github.com/pkg/errors"
)

// maxRetryCount bounds the compare-and-set attempts of one allocation.
const maxRetryCount = 100

// IDRange is a half-open interval [Begin, End) of allocatable IDs.
type IDRange struct {
	Begin uint64
	End   uint64
}

// Contains reports whether id falls inside the range.
func (r IDRange) Contains(id uint64) bool {
	return id >= r.Begin && id < r.End
}

// Overlaps reports whether the two ranges share any ID.
func (r IDRange) Overlaps(o IDRange) bool {
	return r.Begin < o.End && o.Begin < r.End
}

// Allocator hands out unique, monotonically increasing IDs.
type Allocator interface {
	Alloc(ctx context.Context) (uint64, error)
}

// allocator keeps its counter in the metastore so IDs stay unique across
// processes and restarts. The counter is only ever incremented: an ID
// retired by a drop is never handed out again, so restoring metadata from an
// old backup can not resurrect an ambiguous ID.
type allocator struct {
	base kv.Base
	key  string
	rng  IDRange
}

// NewAllocator creates an Allocator over the counter stored at key,
// constrained to rng.
func NewAllocator(base kv.Base, key string, rng IDRange) Allocator {
	return &allocator{
		base: base,
		key:  key,
		rng:  rng,
	}
}

// Alloc returns the next free ID in the range. Losing a compare-and-set just
// means another allocator won that ID; the loop re-reads and tries the next
// one until the retry budget runs out.
func (a *allocator) Alloc(ctx context.Context) (uint64, error) {
	for i := 0; i < maxRetryCount; i++ {
		old, err := a.base.Load(ctx, a.key)
		if err != nil {
			return 0, err
		}
		next := a.rng.Begin
		if old != nil {
			cur, err := strconv.ParseUint(string(old.Value), 10, 64)
			if err != nil {
				return 0, errors.WithStack(err)
			}
			next = cur + 1
		}
		if !a.rng.Contains(next) {
			return 0, errs.AllocExhaustedf("id range [%d, %d) exhausted", a.rng.Begin, a.rng.End)
		}
		value := []byte(strconv.FormatUint(next, 10))
		if old == nil {
			_, err = a.base.Create(ctx, a.key, value)
		} else {
			_, err = a.base.Save(ctx, a.key, value, old.Version)
		}
		if err == nil {
			idGauge.WithLabelValues("id").Set(float64(next))
			return next, nil
		}
		if !errs.IsConflict(err) {
			return 0, err
		}
	}
	return 0, errs.AllocExhaustedf("allocation of %q lost to concurrent writers after %d attempts", a.key, maxRetryCount)
}
