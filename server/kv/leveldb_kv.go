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
	"encoding/binary"
	"strings"
	"sync"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// revisionKey holds the store-wide revision counter. The NUL prefix keeps it
// outside any prefix a caller could list.
const revisionKey = "\x00revision"

// LeveldbKV is a versioned kv store backed by a local leveldb, for
// single-node deployments. leveldb has no conditional writes, so a
// process-local mutex provides the compare-and-set; the revision counter is
// persisted in the same batch as each write to keep versions monotonic
// across restarts.
type LeveldbKV struct {
	mu       sync.Mutex
	db       *leveldb.DB
	revision int64
}

// NewLeveldbKV opens (or creates) a leveldb store under dir.
func NewLeveldbKV(dir string) (*LeveldbKV, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	kv := &LeveldbKV{db: db}
	raw, err := db.Get([]byte(revisionKey), nil)
	if err != nil && err != leveldb.ErrNotFound {
		db.Close()
		return nil, errors.WithStack(err)
	}
	if err == nil {
		kv.revision = int64(binary.BigEndian.Uint64(raw))
	}
	return kv, nil
}

// Close closes the underlying database.
func (kv *LeveldbKV) Close() error {
	return errors.WithStack(kv.db.Close())
}

// Each record is an 8-byte big-endian version followed by the raw value.
func encodeRecord(version int64, value []byte) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, uint64(version))
	copy(buf[8:], value)
	return buf
}

func decodeRecord(key string, raw []byte) (*KeyValue, error) {
	if len(raw) < 8 {
		return nil, errors.Errorf("corrupted record for key %q", key)
	}
	return &KeyValue{
		Key:     key,
		Value:   append([]byte(nil), raw[8:]...),
		Version: int64(binary.BigEndian.Uint64(raw)),
	}, nil
}

func (kv *LeveldbKV) load(key string) (*KeyValue, error) {
	raw, err := kv.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return decodeRecord(key, raw)
}

func (kv *LeveldbKV) write(key string, value []byte) (int64, error) {
	kv.revision++
	batch := new(leveldb.Batch)
	batch.Put([]byte(key), encodeRecord(kv.revision, value))
	revBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(revBuf, uint64(kv.revision))
	batch.Put([]byte(revisionKey), revBuf)
	if err := kv.db.Write(batch, nil); err != nil {
		return 0, errors.WithStack(err)
	}
	return kv.revision, nil
}

// Load gets the versioned entry for a given key.
func (kv *LeveldbKV) Load(ctx context.Context, key string) (*KeyValue, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.load(key)
}

// Create writes a new key, failing with Conflict if it already exists.
func (kv *LeveldbKV) Create(ctx context.Context, key string, value []byte) (int64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	old, err := kv.load(key)
	if err != nil {
		return 0, err
	}
	if old != nil {
		return 0, errs.Conflictf("key %q already exists", key)
	}
	return kv.write(key, value)
}

// Save overwrites key if its current version equals expect.
func (kv *LeveldbKV) Save(ctx context.Context, key string, value []byte, expect int64) (int64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	old, err := kv.load(key)
	if err != nil {
		return 0, err
	}
	if old == nil || old.Version != expect {
		return 0, errs.Conflictf("version mismatch for key %q, expect %d", key, expect)
	}
	return kv.write(key, value)
}

// Remove deletes key if its current version equals expect.
func (kv *LeveldbKV) Remove(ctx context.Context, key string, expect int64) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	old, err := kv.load(key)
	if err != nil {
		return err
	}
	if old == nil || old.Version != expect {
		return errs.Conflictf("version mismatch for key %q, expect %d", key, expect)
	}
	return errors.WithStack(kv.db.Delete([]byte(key), nil))
}

// LoadPrefix returns all entries under prefix.
func (kv *LeveldbKV) LoadPrefix(ctx context.Context, prefix string) ([]KeyValue, error) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	kv.mu.Lock()
	defer kv.mu.Unlock()
	iter := kv.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	kvs := make([]KeyValue, 0)
	for iter.Next() {
		entry, err := decodeRecord(string(iter.Key()), iter.Value())
		if err != nil {
			return nil, err
		}
		kvs = append(kvs, *entry)
	}
	return kvs, errors.WithStack(iter.Error())
}
