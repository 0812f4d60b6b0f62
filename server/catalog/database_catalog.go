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

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/pingcap-incubator/tinymeta/server/id"
)

// Catalog is the surface the rest of the engine programs against.
type Catalog interface {
	GetDatabase(ctx context.Context, name string) (*DatabaseMeta, error)
	GetDatabaseByID(ctx context.Context, dbID uint64) (*DatabaseMeta, error)
	ListDatabases(ctx context.Context) ([]DatabaseMeta, error)
	CreateDatabase(ctx context.Context, name, engine string) (*DatabaseMeta, error)
	DropDatabase(ctx context.Context, name string, ifExists bool) error

	GetTable(ctx context.Context, dbName, tableName string) (*TableMeta, error)
	GetTableByID(ctx context.Context, tableID uint64) (*TableMeta, error)
	ListTables(ctx context.Context, dbName string) ([]TableMeta, error)
	CreateTable(ctx context.Context, dbName, tableName string, schema TableSchema, engine string) (*TableMeta, error)
	DropTable(ctx context.Context, dbName, tableName string, ifExists bool) error
	RenameTable(ctx context.Context, dbName, oldName, newName string) error
}

// DatabaseCatalog stitches the immutable system tier and the mutable user
// tier into the one namespace the engine sees. System names shadow user
// names, and since the two tiers' ID ranges are disjoint, dispatching an ID
// lookup is a plain range test independent of catalog size.
type DatabaseCatalog struct {
	immutable *ImmutableCatalog
	mutable   *MutableCatalog
	sysRange  id.IDRange
}

var _ Catalog = (*DatabaseCatalog)(nil)

// NewDatabaseCatalog combines the two catalog tiers.
func NewDatabaseCatalog(immutable *ImmutableCatalog, mutable *MutableCatalog, sysRange id.IDRange) *DatabaseCatalog {
	return &DatabaseCatalog{
		immutable: immutable,
		mutable:   mutable,
		sysRange:  sysRange,
	}
}

// GetDatabase resolves a database name, system tier first.
func (c *DatabaseCatalog) GetDatabase(ctx context.Context, name string) (*DatabaseMeta, error) {
	if c.immutable.HasDatabase(name) {
		return c.immutable.GetDatabase(name)
	}
	return c.mutable.GetDatabase(ctx, name)
}

// GetDatabaseByID resolves a database ID by range membership.
func (c *DatabaseCatalog) GetDatabaseByID(ctx context.Context, dbID uint64) (*DatabaseMeta, error) {
	if c.sysRange.Contains(dbID) {
		return c.immutable.GetDatabaseByID(dbID)
	}
	return c.mutable.GetDatabaseByID(ctx, dbID)
}

// ListDatabases returns the system databases followed by the user databases.
func (c *DatabaseCatalog) ListDatabases(ctx context.Context) ([]DatabaseMeta, error) {
	dbs := c.immutable.ListDatabases()
	userDBs, err := c.mutable.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	return append(dbs, userDBs...), nil
}

// CreateDatabase creates a user database. A name collision with a system
// database is rejected even though the system tier itself is immutable.
func (c *DatabaseCatalog) CreateDatabase(ctx context.Context, name, engine string) (*DatabaseMeta, error) {
	if c.immutable.HasDatabase(name) {
		return nil, errs.AlreadyExistsf("database %s already exists", name)
	}
	return c.mutable.CreateDatabase(ctx, name, engine)
}

// DropDatabase drops a user database; system databases are read-only.
func (c *DatabaseCatalog) DropDatabase(ctx context.Context, name string, ifExists bool) error {
	if c.immutable.HasDatabase(name) {
		return c.immutable.DropDatabase(name)
	}
	return c.mutable.DropDatabase(ctx, name, ifExists)
}

// GetTable resolves a table name through the owning tier of its database.
func (c *DatabaseCatalog) GetTable(ctx context.Context, dbName, tableName string) (*TableMeta, error) {
	if c.immutable.HasDatabase(dbName) {
		return c.immutable.GetTable(dbName, tableName)
	}
	return c.mutable.GetTable(ctx, dbName, tableName)
}

// GetTableByID resolves a table ID by range membership.
func (c *DatabaseCatalog) GetTableByID(ctx context.Context, tableID uint64) (*TableMeta, error) {
	if c.sysRange.Contains(tableID) {
		return c.immutable.GetTableByID(tableID)
	}
	return c.mutable.GetTableByID(ctx, tableID)
}

// ListTables lists the tables of one database, whichever tier owns it.
func (c *DatabaseCatalog) ListTables(ctx context.Context, dbName string) ([]TableMeta, error) {
	if c.immutable.HasDatabase(dbName) {
		return c.immutable.ListTables(dbName)
	}
	return c.mutable.ListTables(ctx, dbName)
}

// CreateTable creates a user table; system databases are read-only.
func (c *DatabaseCatalog) CreateTable(ctx context.Context, dbName, tableName string, schema TableSchema, engine string) (*TableMeta, error) {
	if c.immutable.HasDatabase(dbName) {
		return c.immutable.CreateTable(dbName, tableName)
	}
	return c.mutable.CreateTable(ctx, dbName, tableName, schema, engine)
}

// DropTable drops a user table; system databases are read-only.
func (c *DatabaseCatalog) DropTable(ctx context.Context, dbName, tableName string, ifExists bool) error {
	if c.immutable.HasDatabase(dbName) {
		return c.immutable.DropTable(dbName, tableName)
	}
	return c.mutable.DropTable(ctx, dbName, tableName, ifExists)
}

// RenameTable renames a user table; system databases are read-only.
func (c *DatabaseCatalog) RenameTable(ctx context.Context, dbName, oldName, newName string) error {
	if c.immutable.HasDatabase(dbName) {
		return c.immutable.RenameTable(dbName, oldName, newName)
	}
	return c.mutable.RenameTable(ctx, dbName, oldName, newName)
}
