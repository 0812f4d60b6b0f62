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
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/pingcap-incubator/tinymeta/pkg/errs"
)

type memoryKV struct {
	sync.RWMutex
	tree     *btree.BTree
	revision int64
}

// NewMemoryKV returns an in-memory versioned kv store, mainly for tests and
// single-process deployments without persistence.
func NewMemoryKV() Base {
	return &memoryKV{
		tree: btree.New(2),
	}
}

type memoryKVItem struct {
	key     string
	value   []byte
	version int64
}

func (s *memoryKVItem) Less(than btree.Item) bool {
	return s.key < than.(*memoryKVItem).key
}

func (kv *memoryKV) Load(ctx context.Context, key string) (*KeyValue, error) {
	kv.RLock()
	defer kv.RUnlock()
	item := kv.tree.Get(&memoryKVItem{key: key})
	if item == nil {
		return nil, nil
	}
	found := item.(*memoryKVItem)
	return &KeyValue{
		Key:     found.key,
		Value:   append([]byte(nil), found.value...),
		Version: found.version,
	}, nil
}

func (kv *memoryKV) Create(ctx context.Context, key string, value []byte) (int64, error) {
	kv.Lock()
	defer kv.Unlock()
	if kv.tree.Get(&memoryKVItem{key: key}) != nil {
		return 0, errs.Conflictf("key %q already exists", key)
	}
	kv.revision++
	kv.tree.ReplaceOrInsert(&memoryKVItem{key: key, value: append([]byte(nil), value...), version: kv.revision})
	return kv.revision, nil
}

func (kv *memoryKV) Save(ctx context.Context, key string, value []byte, expect int64) (int64, error) {
	kv.Lock()
	defer kv.Unlock()
	item := kv.tree.Get(&memoryKVItem{key: key})
	if item == nil || item.(*memoryKVItem).version != expect {
		return 0, errs.Conflictf("version mismatch for key %q, expect %d", key, expect)
	}
	kv.revision++
	kv.tree.ReplaceOrInsert(&memoryKVItem{key: key, value: append([]byte(nil), value...), version: kv.revision})
	return kv.revision, nil
}

func (kv *memoryKV) Remove(ctx context.Context, key string, expect int64) error {
	kv.Lock()
	defer kv.Unlock()
	item := kv.tree.Get(&memoryKVItem{key: key})
	if item == nil || item.(*memoryKVItem).version != expect {
		return errs.Conflictf("version mismatch for key %q, expect %d", key, expect)
	}
	kv.tree.Delete(item)
	return nil
}

func (kv *memoryKV) LoadPrefix(ctx context.Context, prefix string) ([]KeyValue, error) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	kv.RLock()
	defer kv.RUnlock()
	kvs := make([]KeyValue, 0)
	kv.tree.AscendGreaterOrEqual(&memoryKVItem{key: prefix}, func(item btree.Item) bool {
		found := item.(*memoryKVItem)
		if !strings.HasPrefix(found.key, prefix) {
			return false
		}
		kvs = append(kvs, KeyValue{
			Key:     found.key,
			Value:   append([]byte(nil), found.value...),
			Version: found.version,
		})
		return true
	})
	return kvs, nil
}
