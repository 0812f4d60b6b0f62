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
	"sort"
	"time"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/pingcap-incubator/tinymeta/server/id"
	"github.com/pkg/errors"
)

// The compiled-in system objects. IDs must stay inside the system range and
// must never change between releases: they are persisted nowhere, but user
// metadata may reference them.
var systemDatabases = []systemDatabaseDef{
	{
		meta: DatabaseMeta{ID: 1, Name: "system", Engine: "SYSTEM"},
		tables: []TableMeta{
			{ID: 2, DatabaseID: 1, Name: "one", Engine: "SystemOne", Schema: TableSchema{
				Columns: []ColumnDef{{Name: "dummy", Type: "UInt8"}},
			}},
			{ID: 3, DatabaseID: 1, Name: "databases", Engine: "SystemDatabases", Schema: TableSchema{
				Columns: []ColumnDef{{Name: "name", Type: "String"}, {Name: "engine", Type: "String"}},
			}},
			{ID: 4, DatabaseID: 1, Name: "tables", Engine: "SystemTables", Schema: TableSchema{
				Columns: []ColumnDef{{Name: "database", Type: "String"}, {Name: "name", Type: "String"}, {Name: "engine", Type: "String"}},
			}},
		},
	},
}

type systemDatabaseDef struct {
	meta   DatabaseMeta
	tables []TableMeta
}

// ImmutableCatalog serves the built-in system databases and tables. It is
// constructed once at startup from the compiled-in definitions and never
// changes for the process lifetime, so every read is lock-free.
type ImmutableCatalog struct {
	dbs        map[string]*DatabaseMeta
	dbsByID    map[uint64]*DatabaseMeta
	tables     map[string]map[string]*TableMeta
	tablesByID map[uint64]*TableMeta
}

// NewImmutableCatalog builds the system catalog, validating that every
// built-in ID falls inside rng.
func NewImmutableCatalog(rng id.IDRange) (*ImmutableCatalog, error) {
	c := &ImmutableCatalog{
		dbs:        make(map[string]*DatabaseMeta),
		dbsByID:    make(map[uint64]*DatabaseMeta),
		tables:     make(map[string]map[string]*TableMeta),
		tablesByID: make(map[uint64]*TableMeta),
	}
	now := time.Now()
	for _, def := range systemDatabases {
		db := def.meta
		db.CreatedAt = now
		if !rng.Contains(db.ID) {
			return nil, errors.Errorf("system database %s id %d outside system range [%d, %d)", db.Name, db.ID, rng.Begin, rng.End)
		}
		c.dbs[db.Name] = &db
		c.dbsByID[db.ID] = &db
		c.tables[db.Name] = make(map[string]*TableMeta)
		for i := range def.tables {
			tbl := def.tables[i]
			tbl.CreatedAt = now
			if !rng.Contains(tbl.ID) {
				return nil, errors.Errorf("system table %s.%s id %d outside system range [%d, %d)", db.Name, tbl.Name, tbl.ID, rng.Begin, rng.End)
			}
			c.tables[db.Name][tbl.Name] = &tbl
			c.tablesByID[tbl.ID] = &tbl
		}
	}
	return c, nil
}

// HasDatabase reports whether name is a system database.
func (c *ImmutableCatalog) HasDatabase(name string) bool {
	_, ok := c.dbs[name]
	return ok
}

// GetDatabase returns the system database with the given name.
func (c *ImmutableCatalog) GetDatabase(name string) (*DatabaseMeta, error) {
	db, ok := c.dbs[name]
	if !ok {
		return nil, errs.NotFoundf("database %s not found", name)
	}
	return db, nil
}

// GetDatabaseByID returns the system database with the given ID.
func (c *ImmutableCatalog) GetDatabaseByID(dbID uint64) (*DatabaseMeta, error) {
	db, ok := c.dbsByID[dbID]
	if !ok {
		return nil, errs.NotFoundf("database id %d not found", dbID)
	}
	return db, nil
}

// ListDatabases returns all system databases.
func (c *ImmutableCatalog) ListDatabases() []DatabaseMeta {
	dbs := make([]DatabaseMeta, 0, len(c.dbs))
	for _, db := range c.dbs {
		dbs = append(dbs, *db)
	}
	sort.Slice(dbs, func(i, j int) bool { return dbs[i].ID < dbs[j].ID })
	return dbs
}

// GetTable returns a system table by database and table name.
func (c *ImmutableCatalog) GetTable(dbName, tableName string) (*TableMeta, error) {
	tables, ok := c.tables[dbName]
	if !ok {
		return nil, errs.NotFoundf("database %s not found", dbName)
	}
	tbl, ok := tables[tableName]
	if !ok {
		return nil, errs.NotFoundf("table %s.%s not found", dbName, tableName)
	}
	return tbl, nil
}

// GetTableByID returns the system table with the given ID.
func (c *ImmutableCatalog) GetTableByID(tableID uint64) (*TableMeta, error) {
	tbl, ok := c.tablesByID[tableID]
	if !ok {
		return nil, errs.NotFoundf("table id %d not found", tableID)
	}
	return tbl, nil
}

// ListTables returns all tables of a system database.
func (c *ImmutableCatalog) ListTables(dbName string) ([]TableMeta, error) {
	tables, ok := c.tables[dbName]
	if !ok {
		return nil, errs.NotFoundf("database %s not found", dbName)
	}
	list := make([]TableMeta, 0, len(tables))
	for _, tbl := range tables {
		list = append(list, *tbl)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// System objects are never user-modifiable; every mutation fails the same
// way.

// CreateDatabase always fails with ReadOnly.
func (c *ImmutableCatalog) CreateDatabase(name, engine string) (*DatabaseMeta, error) {
	return nil, errs.ReadOnlyf("cannot create database %s: system catalog is read-only", name)
}

// DropDatabase always fails with ReadOnly.
func (c *ImmutableCatalog) DropDatabase(name string) error {
	return errs.ReadOnlyf("cannot drop database %s: system catalog is read-only", name)
}

// CreateTable always fails with ReadOnly.
func (c *ImmutableCatalog) CreateTable(dbName, tableName string) (*TableMeta, error) {
	return nil, errs.ReadOnlyf("cannot create table %s.%s: system catalog is read-only", dbName, tableName)
}

// DropTable always fails with ReadOnly.
func (c *ImmutableCatalog) DropTable(dbName, tableName string) error {
	return errs.ReadOnlyf("cannot drop table %s.%s: system catalog is read-only", dbName, tableName)
}

// RenameTable always fails with ReadOnly.
func (c *ImmutableCatalog) RenameTable(dbName, oldName, newName string) error {
	return errs.ReadOnlyf("cannot rename table %s.%s: system catalog is read-only", dbName, oldName)
}
