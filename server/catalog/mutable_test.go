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

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/pingcap-incubator/tinymeta/server/id"
	"github.com/pingcap-incubator/tinymeta/server/kv"
	. "github.com/pingcap/check"
)

var _ = Suite(&testMutableSuite{})

type testMutableSuite struct{}

func newTestMutable() *MutableCatalog {
	base := kv.NewMemoryKV()
	alloc := id.NewAllocator(base, "test/id/next", DefaultUserIDRange())
	return NewMutableCatalog(base, alloc, "test")
}

var testSchema = TableSchema{
	Columns: []ColumnDef{
		{Name: "id", Type: "UInt64"},
		{Name: "payload", Type: "String", Nullable: true},
	},
}

func (s *testMutableSuite) TestDatabaseLifecycle(c *C) {
	ctx := context.Background()
	mut := newTestMutable()

	_, err := mut.GetDatabase(ctx, "db1")
	c.Assert(errs.IsNotFound(err), IsTrue)

	db, err := mut.CreateDatabase(ctx, "db1", "DEFAULT")
	c.Assert(err, IsNil)
	c.Assert(db.ID, Equals, UserIDBegin)
	c.Assert(db.Engine, Equals, "DEFAULT")

	_, err = mut.CreateDatabase(ctx, "db1", "DEFAULT")
	c.Assert(errs.IsAlreadyExists(err), IsTrue)

	got, err := mut.GetDatabase(ctx, "db1")
	c.Assert(err, IsNil)
	c.Assert(got.ID, Equals, db.ID)

	byID, err := mut.GetDatabaseByID(ctx, db.ID)
	c.Assert(err, IsNil)
	c.Assert(byID.Name, Equals, "db1")

	dbs, err := mut.ListDatabases(ctx)
	c.Assert(err, IsNil)
	c.Assert(dbs, HasLen, 1)

	c.Assert(mut.DropDatabase(ctx, "db1", false), IsNil)
	_, err = mut.GetDatabase(ctx, "db1")
	c.Assert(errs.IsNotFound(err), IsTrue)

	err = mut.DropDatabase(ctx, "db1", false)
	c.Assert(errs.IsNotFound(err), IsTrue)
	c.Assert(mut.DropDatabase(ctx, "db1", true), IsNil)
}

func (s *testMutableSuite) TestIDsAreNeverReused(c *C) {
	ctx := context.Background()
	mut := newTestMutable()

	db1, err := mut.CreateDatabase(ctx, "db1", "DEFAULT")
	c.Assert(err, IsNil)
	c.Assert(mut.DropDatabase(ctx, "db1", false), IsNil)

	db2, err := mut.CreateDatabase(ctx, "db1", "DEFAULT")
	c.Assert(err, IsNil)
	c.Assert(db2.ID, Greater, db1.ID)
}

func (s *testMutableSuite) TestTableLifecycle(c *C) {
	ctx := context.Background()
	mut := newTestMutable()

	_, err := mut.CreateTable(ctx, "db1", "t1", testSchema, "FUSE")
	c.Assert(errs.IsNotFound(err), IsTrue)

	db, err := mut.CreateDatabase(ctx, "db1", "DEFAULT")
	c.Assert(err, IsNil)

	tbl, err := mut.CreateTable(ctx, "db1", "t1", testSchema, "FUSE")
	c.Assert(err, IsNil)
	c.Assert(tbl.DatabaseID, Equals, db.ID)
	c.Assert(tbl.ID, Greater, db.ID)

	_, err = mut.CreateTable(ctx, "db1", "t1", testSchema, "FUSE")
	c.Assert(errs.IsAlreadyExists(err), IsTrue)

	got, err := mut.GetTable(ctx, "db1", "t1")
	c.Assert(err, IsNil)
	c.Assert(got.ID, Equals, tbl.ID)
	c.Assert(got.Schema.Columns, HasLen, 2)
	c.Assert(got.Schema.Columns[1].Nullable, IsTrue)

	byID, err := mut.GetTableByID(ctx, tbl.ID)
	c.Assert(err, IsNil)
	c.Assert(byID.Name, Equals, "t1")

	tables, err := mut.ListTables(ctx, "db1")
	c.Assert(err, IsNil)
	c.Assert(tables, HasLen, 1)

	c.Assert(mut.DropTable(ctx, "db1", "t1", false), IsNil)
	_, err = mut.GetTable(ctx, "db1", "t1")
	c.Assert(errs.IsNotFound(err), IsTrue)

	err = mut.DropTable(ctx, "db1", "t1", false)
	c.Assert(errs.IsNotFound(err), IsTrue)
	c.Assert(mut.DropTable(ctx, "db1", "t1", true), IsNil)
	// ifExists also covers a missing database.
	c.Assert(mut.DropTable(ctx, "nope", "t1", true), IsNil)
}

func (s *testMutableSuite) TestDropDatabaseClearsTables(c *C) {
	ctx := context.Background()
	mut := newTestMutable()

	db, err := mut.CreateDatabase(ctx, "db1", "DEFAULT")
	c.Assert(err, IsNil)
	for i := 0; i < 3; i++ {
		_, err = mut.CreateTable(ctx, "db1", fmt.Sprintf("t%d", i), testSchema, "FUSE")
		c.Assert(err, IsNil)
	}
	c.Assert(mut.DropDatabase(ctx, "db1", false), IsNil)

	entries, err := mut.base.LoadPrefix(ctx, mut.tablePrefix(db.ID))
	c.Assert(err, IsNil)
	c.Assert(entries, HasLen, 0)
}

func (s *testMutableSuite) TestTablesAreScopedToDatabase(c *C) {
	ctx := context.Background()
	mut := newTestMutable()

	_, err := mut.CreateDatabase(ctx, "db1", "DEFAULT")
	c.Assert(err, IsNil)
	_, err = mut.CreateDatabase(ctx, "db2", "DEFAULT")
	c.Assert(err, IsNil)

	_, err = mut.CreateTable(ctx, "db1", "t1", testSchema, "FUSE")
	c.Assert(err, IsNil)
	_, err = mut.CreateTable(ctx, "db2", "t1", testSchema, "FUSE")
	c.Assert(err, IsNil)

	tables, err := mut.ListTables(ctx, "db1")
	c.Assert(err, IsNil)
	c.Assert(tables, HasLen, 1)
	_, err = mut.GetTable(ctx, "db2", "t1")
	c.Assert(err, IsNil)

	c.Assert(mut.DropTable(ctx, "db1", "t1", false), IsNil)
	_, err = mut.GetTable(ctx, "db2", "t1")
	c.Assert(err, IsNil)
}

func (s *testMutableSuite) TestRenameTable(c *C) {
	ctx := context.Background()
	mut := newTestMutable()

	_, err := mut.CreateDatabase(ctx, "db1", "DEFAULT")
	c.Assert(err, IsNil)
	tbl, err := mut.CreateTable(ctx, "db1", "t1", testSchema, "FUSE")
	c.Assert(err, IsNil)
	_, err = mut.CreateTable(ctx, "db1", "t2", testSchema, "FUSE")
	c.Assert(err, IsNil)

	err = mut.RenameTable(ctx, "db1", "t1", "t2")
	c.Assert(errs.IsAlreadyExists(err), IsTrue)
	err = mut.RenameTable(ctx, "db1", "nope", "t3")
	c.Assert(errs.IsNotFound(err), IsTrue)

	c.Assert(mut.RenameTable(ctx, "db1", "t1", "t3"), IsNil)
	_, err = mut.GetTable(ctx, "db1", "t1")
	c.Assert(errs.IsNotFound(err), IsTrue)
	got, err := mut.GetTable(ctx, "db1", "t3")
	c.Assert(err, IsNil)
	c.Assert(got.Name, Equals, "t3")
	// The record keeps its identity across the rename.
	c.Assert(got.ID, Equals, tbl.ID)
	c.Assert(got.DatabaseID, Equals, tbl.DatabaseID)
}
