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

import "time"

// ColumnDef describes one column of a table schema.
type ColumnDef struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable,omitempty"`
}

// TableSchema is the ordered column list of a table.
type TableSchema struct {
	Columns []ColumnDef `json:"columns"`
}

// DatabaseMeta is the persisted metadata of a database. Records are stored
// as JSON so the layout can grow fields without breaking old readers.
type DatabaseMeta struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Engine    string    `json:"engine"`
	CreatedAt time.Time `json:"created_at"`
}

// TableMeta is the persisted metadata of a table. The table name is unique
// within its database; the ID is unique across the whole catalog.
type TableMeta struct {
	ID         uint64      `json:"id"`
	DatabaseID uint64      `json:"database_id"`
	Name       string      `json:"name"`
	Schema     TableSchema `json:"schema"`
	Engine     string      `json:"engine"`
	CreatedAt  time.Time   `json:"created_at"`
}
