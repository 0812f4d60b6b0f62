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

package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/pingcap-incubator/tinymeta/server/id"
	"github.com/pingcap-incubator/tinymeta/server/kv"
	. "github.com/pingcap/check"
)

var _ = Suite(&testDatabaseCatalogSuite{})

type testDatabaseCatalogSuite struct{}

func newTestCatalog(c *C) *DatabaseCatalog {
	base := kv.NewMemoryKV()
	alloc := id.NewAllocator(base, "test/id/next", DefaultUserIDRange())
	imm, err := NewImmutableCatalog(DefaultSysIDRange())
	c.Assert(err, IsNil)
	mut := NewMutableCatalog(base, alloc, "test")
	return NewDatabaseCatalog(imm, mut, DefaultSysIDRange())
}

func (s *testDatabaseCatalogSuite) TestSystemNamesShadowUserNames(c *C) {
	ctx := context.Background()
	cat := newTestCatalog(c)

	// A system name can never be taken by a user database.
	_, err := cat.CreateDatabase(ctx, "system", "DEFAULT")
	c.Assert(errs.IsAlreadyExists(err), IsTrue)

	db, err := cat.GetDatabase(ctx, "system")
	c.Assert(err, IsNil)
	c.Assert(db.Engine, Equals, "SYSTEM")
}

func (s *testDatabaseCatalogSuite) TestSystemTierIsReadOnly(c *C) {
	ctx := context.Background()
	cat := newTestCatalog(c)

	c.Assert(errs.IsReadOnly(cat.DropDatabase(ctx, "system", false)), IsTrue)
	_, err := cat.CreateTable(ctx, "system", "t1", testSchema, "FUSE")
	c.Assert(errs.IsReadOnly(err), IsTrue)
	c.Assert(errs.IsReadOnly(cat.DropTable(ctx, "system", "one", false)), IsTrue)
	c.Assert(errs.IsReadOnly(cat.RenameTable(ctx, "system", "one", "two")), IsTrue)
}

func (s *testDatabaseCatalogSuite) TestListingMergesTiers(c *C) {
	ctx := context.Background()
	cat := newTestCatalog(c)

	const n = 5
	for i := 0; i < n; i++ {
		_, err := cat.CreateDatabase(ctx, fmt.Sprintf("db%d", i), "DEFAULT")
		c.Assert(err, IsNil)
	}

	dbs, err := cat.ListDatabases(ctx)
	c.Assert(err, IsNil)
	c.Assert(dbs, HasLen, n+1)
	c.Assert(dbs[0].Name, Equals, "system")

	seen := make(map[string]struct{})
	for _, db := range dbs {
		_, dup := seen[db.Name]
		c.Assert(dup, IsFalse)
		seen[db.Name] = struct{}{}
	}
}

func (s *testDatabaseCatalogSuite) TestByIDDispatch(c *C) {
	ctx := context.Background()
	cat := newTestCatalog(c)

	userDB, err := cat.CreateDatabase(ctx, "db1", "DEFAULT")
	c.Assert(err, IsNil)
	userTbl, err := cat.CreateTable(ctx, "db1", "t1", testSchema, "FUSE")
	c.Assert(err, IsNil)

	sysDB, err := cat.GetDatabaseByID(ctx, 1)
	c.Assert(err, IsNil)
	c.Assert(sysDB.Name, Equals, "system")

	gotDB, err := cat.GetDatabaseByID(ctx, userDB.ID)
	c.Assert(err, IsNil)
	c.Assert(gotDB.Name, Equals, "db1")

	sysTbl, err := cat.GetTableByID(ctx, 2)
	c.Assert(err, IsNil)
	c.Assert(sysTbl.Name, Equals, "one")

	gotTbl, err := cat.GetTableByID(ctx, userTbl.ID)
	c.Assert(err, IsNil)
	c.Assert(gotTbl.Name, Equals, "t1")

	_, err = cat.GetTableByID(ctx, 9999)
	c.Assert(errs.IsNotFound(err), IsTrue)
}

func (s *testDatabaseCatalogSuite) TestConcurrentCreateTableOneWinner(c *C) {
	ctx := context.Background()
	cat := newTestCatalog(c)

	_, err := cat.CreateDatabase(ctx, "db1", "DEFAULT")
	c.Assert(err, IsNil)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cat.CreateTable(ctx, "db1", "t1", testSchema, "FUSE")
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			c.Assert(errs.IsAlreadyExists(err), IsTrue)
		}()
	}
	wg.Wait()

	c.Assert(created, Equals, 1)
	tables, err := cat.ListTables(ctx, "db1")
	c.Assert(err, IsNil)
	c.Assert(tables, HasLen, 1)
}
