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
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"path"
	"strconv"

	"github.com/pingcap-incubator/tinymeta/pkg/tempurl"
	. "github.com/pingcap/check"
	"go.etcd.io/etcd/clientv3"
	"go.etcd.io/etcd/embed"
)

type testEtcdKVSuite struct{}

var _ = Suite(&testEtcdKVSuite{})

func (s *testEtcdKVSuite) TestEtcdKV(c *C) {
	cfg := newTestSingleConfig()
	etcd, err := embed.StartEtcd(cfg)
	c.Assert(err, IsNil)
	defer func() {
		etcd.Close()
		cleanConfig(cfg)
	}()

	ep := cfg.LCUrls[0].String()
	client, err := clientv3.New(clientv3.Config{
		Endpoints: []string{ep},
	})
	c.Assert(err, IsNil)
	rootPath := path.Join("/tinymeta", strconv.FormatUint(100, 10))

	kv := NewEtcdKVBase(client, rootPath)
	(&testKVSuite{}).testVersionedKV(c, kv)
}

func (s *testEtcdKVSuite) TestEtcdKVRootIsolation(c *C) {
	cfg := newTestSingleConfig()
	etcd, err := embed.StartEtcd(cfg)
	c.Assert(err, IsNil)
	defer func() {
		etcd.Close()
		cleanConfig(cfg)
	}()

	ep := cfg.LCUrls[0].String()
	client, err := clientv3.New(clientv3.Config{
		Endpoints: []string{ep},
	})
	c.Assert(err, IsNil)

	ctx := context.Background()
	a := NewEtcdKVBase(client, "/tinymeta/a")
	b := NewEtcdKVBase(client, "/tinymeta/b")

	_, err = a.Create(ctx, "shared/key", []byte("from-a"))
	c.Assert(err, IsNil)

	// The same key under a different root is a different entry.
	entry, err := b.Load(ctx, "shared/key")
	c.Assert(err, IsNil)
	c.Assert(entry, IsNil)

	_, err = b.Create(ctx, "shared/key", []byte("from-b"))
	c.Assert(err, IsNil)

	kvs, err := a.LoadPrefix(ctx, "shared")
	c.Assert(err, IsNil)
	c.Assert(kvs, HasLen, 1)
	c.Assert(kvs[0].Key, Equals, "shared/key")
	c.Assert(string(kvs[0].Value), Equals, "from-a")
}

func newTestSingleConfig() *embed.Config {
	cfg := embed.NewConfig()
	cfg.Name = "test_etcd"
	cfg.Dir, _ = ioutil.TempDir("/tmp", "test_etcd")
	cfg.WalDir = ""
	cfg.Logger = "zap"
	cfg.LogOutputs = []string{"stdout"}

	pu, _ := url.Parse(tempurl.Alloc())
	cfg.LPUrls = []url.URL{*pu}
	cfg.APUrls = cfg.LPUrls
	cu, _ := url.Parse(tempurl.Alloc())
	cfg.LCUrls = []url.URL{*cu}
	cfg.ACUrls = cfg.LCUrls

	cfg.StrictReconfigCheck = false
	cfg.InitialCluster = fmt.Sprintf("%s=%s", cfg.Name, &cfg.LPUrls[0])
	cfg.ClusterState = embed.ClusterStateFlagNew
	return cfg
}

func cleanConfig(cfg *embed.Config) {
	// Clean data directory
	os.RemoveAll(cfg.Dir)
}
