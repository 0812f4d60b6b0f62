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
	"path"
	"strings"
	"time"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/pingcap-incubator/tinymeta/pkg/etcdutil"
	"github.com/pingcap/log"
	"go.etcd.io/etcd/clientv3"
	"go.uber.org/zap"
)

const (
	requestTimeout  = etcdutil.DefaultRequestTimeout
	slowRequestTime = etcdutil.DefaultSlowRequestTime
)

// EtcdKVBase is a versioned kv store over an etcd cluster. etcd's
// ModRevision serves as the version token; every conditional write is a
// single transaction guarded by a revision compare, so the store itself is
// the only serialization point and no lock is held across a round trip.
type EtcdKVBase struct {
	client   *clientv3.Client
	rootPath string
}

// NewEtcdKVBase creates an EtcdKVBase with all keys placed under rootPath.
func NewEtcdKVBase(client *clientv3.Client, rootPath string) *EtcdKVBase {
	return &EtcdKVBase{
		client:   client,
		rootPath: rootPath,
	}
}

// Load gets the versioned entry for a given key.
func (kv *EtcdKVBase) Load(ctx context.Context, key string) (*KeyValue, error) {
	fullKey := path.Join(kv.rootPath, key)
	resp, err := etcdutil.EtcdKVGet(ctx, kv.client, fullKey)
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	item := resp.Kvs[0]
	return &KeyValue{
		Key:     key,
		Value:   append([]byte(nil), item.Value...),
		Version: item.ModRevision,
	}, nil
}

// Create writes a new key, failing with Conflict if it already exists.
func (kv *EtcdKVBase) Create(ctx context.Context, key string, value []byte) (int64, error) {
	fullKey := path.Join(kv.rootPath, key)
	resp, err := NewSlowLogTxn(ctx, kv.client).
		If(clientv3.Compare(clientv3.CreateRevision(fullKey), "=", 0)).
		Then(clientv3.OpPut(fullKey, string(value))).
		Commit()
	if err != nil {
		return 0, errs.Network(err)
	}
	if !resp.Succeeded {
		return 0, errs.Conflictf("key %q already exists", key)
	}
	return resp.Header.Revision, nil
}

// Save overwrites key if its current ModRevision equals expect.
func (kv *EtcdKVBase) Save(ctx context.Context, key string, value []byte, expect int64) (int64, error) {
	// A zero expect would compare equal against a missing key and turn the
	// save into a create; versions handed out by the store are always
	// positive.
	if expect <= 0 {
		return 0, errs.Conflictf("version mismatch for key %q, expect %d", key, expect)
	}
	fullKey := path.Join(kv.rootPath, key)
	resp, err := NewSlowLogTxn(ctx, kv.client).
		If(clientv3.Compare(clientv3.ModRevision(fullKey), "=", expect)).
		Then(clientv3.OpPut(fullKey, string(value))).
		Commit()
	if err != nil {
		return 0, errs.Network(err)
	}
	if !resp.Succeeded {
		return 0, errs.Conflictf("version mismatch for key %q, expect %d", key, expect)
	}
	return resp.Header.Revision, nil
}

// Remove deletes key if its current ModRevision equals expect.
func (kv *EtcdKVBase) Remove(ctx context.Context, key string, expect int64) error {
	if expect <= 0 {
		return errs.Conflictf("version mismatch for key %q, expect %d", key, expect)
	}
	fullKey := path.Join(kv.rootPath, key)
	resp, err := NewSlowLogTxn(ctx, kv.client).
		If(clientv3.Compare(clientv3.ModRevision(fullKey), "=", expect)).
		Then(clientv3.OpDelete(fullKey)).
		Commit()
	if err != nil {
		return errs.Network(err)
	}
	if !resp.Succeeded {
		return errs.Conflictf("version mismatch for key %q, expect %d", key, expect)
	}
	return nil
}

// LoadPrefix returns all entries under prefix. A single etcd range read is
// atomic, so the result is a consistent snapshot.
func (kv *EtcdKVBase) LoadPrefix(ctx context.Context, prefix string) ([]KeyValue, error) {
	fullPrefix := strings.TrimSuffix(path.Join(kv.rootPath, prefix), "/") + "/"
	resp, err := etcdutil.EtcdKVGet(ctx, kv.client, fullPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	root := strings.TrimSuffix(path.Join(kv.rootPath), "/") + "/"
	kvs := make([]KeyValue, 0, len(resp.Kvs))
	for _, item := range resp.Kvs {
		kvs = append(kvs, KeyValue{
			Key:     strings.TrimPrefix(string(item.Key), root),
			Value:   append([]byte(nil), item.Value...),
			Version: item.ModRevision,
		})
	}
	return kvs, nil
}

// SlowLogTxn wraps etcd transactions with a request timeout, slow-request
// logging and txn metrics.
type SlowLogTxn struct {
	clientv3.Txn
	cancel context.CancelFunc
}

// NewSlowLogTxn creates a SlowLogTxn bound to the caller's context.
func NewSlowLogTxn(ctx context.Context, client *clientv3.Client) clientv3.Txn {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	return &SlowLogTxn{
		Txn:    client.Txn(ctx),
		cancel: cancel,
	}
}

// If takes a list of comparisons.
func (t *SlowLogTxn) If(cs ...clientv3.Cmp) clientv3.Txn {
	return &SlowLogTxn{
		Txn:    t.Txn.If(cs...),
		cancel: t.cancel,
	}
}

// Then takes a list of operations.
func (t *SlowLogTxn) Then(ops ...clientv3.Op) clientv3.Txn {
	return &SlowLogTxn{
		Txn:    t.Txn.Then(ops...),
		cancel: t.cancel,
	}
}

// Commit implements Txn Commit interface.
func (t *SlowLogTxn) Commit() (*clientv3.TxnResponse, error) {
	start := time.Now()
	resp, err := t.Txn.Commit()
	t.cancel()

	cost := time.Since(start)
	if cost > slowRequestTime {
		log.Warn("txn runs too slow",
			zap.Error(err),
			zap.Reflect("response", resp),
			zap.Duration("cost", cost))
	}
	label := "success"
	if err != nil {
		label = "failed"
	}
	txnCounter.WithLabelValues(label).Inc()
	txnDuration.WithLabelValues(label).Observe(cost.Seconds())

	return resp, err
}
