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

package etcdutil

import (
	"context"
	"time"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/pingcap/log"
	"go.etcd.io/etcd/clientv3"
	"go.uber.org/zap"
)

const (
	// DefaultDialTimeout is the timeout to create an etcd client.
	DefaultDialTimeout = 3 * time.Second

	// DefaultRequestTimeout is the timeout of a single etcd request. It is
	// long enough to ride out a leader election inside the metastore
	// cluster.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultSlowRequestTime is the threshold above which a request is
	// logged as slow.
	DefaultSlowRequestTime = 1 * time.Second
)

// EtcdKVGet issues a Get with the default request timeout and logs slow
// requests. Transport failures come back as Network errors.
func EtcdKVGet(ctx context.Context, c *clientv3.Client, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := clientv3.NewKV(c).Get(ctx, key, opts...)
	if cost := time.Since(start); cost > DefaultSlowRequestTime {
		log.Warn("kv gets too slow",
			zap.String("request-key", key),
			zap.Duration("cost", cost),
			zap.Error(err))
	}
	if err != nil {
		return resp, errs.Network(err)
	}
	return resp, nil
}
