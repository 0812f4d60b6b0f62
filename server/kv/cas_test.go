// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package kv

import (
	"context"
	"strconv"
	"sync"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	. "github.com/pingcap/check"
	"github.com/pkg/errors"
)

type testCASSuite struct{}

var _ = Suite(&testCASSuite{})

func (s *testCASSuite) TestUpdateCreatesAndMerges(c *C) {
	ctx := context.Background()
	base := NewMemoryKV()

	v1, err := Update(ctx, base, "counter", 3, func(old *KeyValue) ([]byte, error) {
		c.Assert(old, IsNil)
		return []byte("1"), nil
	})
	c.Assert(err, IsNil)
	c.Assert(v1, Greater, int64(0))

	v2, err := Update(ctx, base, "counter", 3, func(old *KeyValue) ([]byte, error) {
		c.Assert(old, NotNil)
		c.Assert(string(old.Value), Equals, "1")
		return []byte("2"), nil
	})
	c.Assert(err, IsNil)
	c.Assert(v2, Greater, v1)

	entry, err := base.Load(ctx, "counter")
	c.Assert(err, IsNil)
	c.Assert(string(entry.Value), Equals, "2")
}

func (s *testCASSuite) TestUpdateMergeErrorAborts(c *C) {
	ctx := context.Background()
	base := NewMemoryKV()
	abort := errors.New("abort")

	_, err := Update(ctx, base, "key", 3, func(old *KeyValue) ([]byte, error) {
		return nil, abort
	})
	c.Assert(errors.Cause(err), Equals, abort)
}

// conflictingKV injects a Conflict on every conditional write to drive the
// retry loop to exhaustion.
type conflictingKV struct {
	Base
}

func (kv *conflictingKV) Save(ctx context.Context, key string, value []byte, expect int64) (int64, error) {
	return 0, errs.Conflictf("injected conflict for %q", key)
}

func (s *testCASSuite) TestUpdateRetryExhaustion(c *C) {
	ctx := context.Background()
	base := NewMemoryKV()
	_, err := base.Create(ctx, "key", []byte("val"))
	c.Assert(err, IsNil)

	calls := 0
	_, err = Update(ctx, &conflictingKV{Base: base}, "key", 2, func(old *KeyValue) ([]byte, error) {
		calls++
		return []byte("new"), nil
	})
	c.Assert(errs.IsConflict(err), IsTrue)
	c.Assert(calls, Equals, 3)
}

func (s *testCASSuite) TestUpdateConcurrent(c *C) {
	ctx := context.Background()
	base := NewMemoryKV()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := Update(ctx, base, "counter", 1000, func(old *KeyValue) ([]byte, error) {
					cur := 0
					if old != nil {
						var err error
						cur, err = strconv.Atoi(string(old.Value))
						if err != nil {
							return nil, err
						}
					}
					return []byte(strconv.Itoa(cur + 1)), nil
				})
				c.Assert(err, IsNil)
			}
		}()
	}
	wg.Wait()

	entry, err := base.Load(ctx, "counter")
	c.Assert(err, IsNil)
	c.Assert(string(entry.Value), Equals, "200")
}
