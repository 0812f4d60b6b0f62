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

package server

import (
	"context"
	"path"
	"strings"
	"sync/atomic"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/pingcap-incubator/tinymeta/pkg/etcdutil"
	"github.com/pingcap-incubator/tinymeta/server/catalog"
	"github.com/pingcap-incubator/tinymeta/server/config"
	"github.com/pingcap-incubator/tinymeta/server/id"
	"github.com/pingcap-incubator/tinymeta/server/kv"
	"github.com/pingcap-incubator/tinymeta/server/user"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.etcd.io/etcd/clientv3"
	"go.uber.org/zap"
)

// Server ties the metastore client, the two catalog tiers and the principal
// manager together. One Server is constructed per process at startup and
// shared by reference across all request handlers; tests construct their own
// against an isolated store.
type Server struct {
	cfg *config.Config

	// Only one of these is set, depending on the configured backend.
	client *clientv3.Client
	ldb    *kv.LeveldbKV

	storage kv.Base
	idAlloc id.Allocator
	catalog *catalog.DatabaseCatalog
	userMgr *user.Manager

	isClosed int64
}

// CreateServer builds a Server from the configuration. It opens the
// metastore backend but performs no catalog writes; call Bootstrap for
// those.
func CreateServer(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info("create tinymeta server",
		zap.String("name", cfg.Name),
		zap.String("tenant", cfg.Tenant),
		zap.String("backend", cfg.Backend))

	s := &Server{cfg: cfg}
	switch cfg.Backend {
	case config.BackendEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   strings.Split(cfg.MetaEndpoints, ","),
			DialTimeout: etcdutil.DefaultDialTimeout,
		})
		if err != nil {
			return nil, errs.Network(err)
		}
		s.client = client
		s.storage = kv.NewEtcdKVBase(client, cfg.RootPath)
	case config.BackendLeveldb:
		ldb, err := kv.NewLeveldbKV(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		s.ldb = ldb
		s.storage = ldb
	case config.BackendMemory:
		s.storage = kv.NewMemoryKV()
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}

	s.idAlloc = id.NewAllocator(s.storage, path.Join(cfg.Tenant, "id", "next"), cfg.UserIDRange())

	immutable, err := catalog.NewImmutableCatalog(cfg.SysIDRange())
	if err != nil {
		s.Close()
		return nil, err
	}
	mutable := catalog.NewMutableCatalog(s.storage, s.idAlloc, cfg.Tenant)
	s.catalog = catalog.NewDatabaseCatalog(immutable, mutable, cfg.SysIDRange())
	s.userMgr = user.NewManager(s.storage, cfg.Tenant)

	return s, nil
}

// Bootstrap creates the initial user objects every fresh deployment is
// expected to have. It is idempotent, so every server replica can run it on
// startup.
func (s *Server) Bootstrap(ctx context.Context) error {
	_, err := s.catalog.CreateDatabase(ctx, "default", "DEFAULT")
	if err != nil && !errs.IsAlreadyExists(err) {
		return errs.WithContext(err, "(while bootstrap default database)")
	}
	return nil
}

// Close shuts the backend connection down. Safe to call more than once.
func (s *Server) Close() {
	if !atomic.CompareAndSwapInt64(&s.isClosed, 0, 1) {
		// server is already closed
		return
	}
	log.Info("closing tinymeta server")
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Error("close etcd client failed", zap.Error(err))
		}
	}
	if s.ldb != nil {
		if err := s.ldb.Close(); err != nil {
			log.Error("close leveldb failed", zap.Error(err))
		}
	}
}

// IsClosed checks whether the server is closed.
func (s *Server) IsClosed() bool {
	return atomic.LoadInt64(&s.isClosed) == 1
}

// GetConfig returns the server configuration.
func (s *Server) GetConfig() *config.Config {
	return s.cfg
}

// GetStorage returns the versioned metastore the server runs against.
func (s *Server) GetStorage() kv.Base {
	return s.storage
}

// GetAllocator returns the user-tier ID allocator.
func (s *Server) GetAllocator() id.Allocator {
	return s.idAlloc
}

// GetCatalog returns the composite catalog.
func (s *Server) GetCatalog() *catalog.DatabaseCatalog {
	return s.catalog
}

// GetUserManager returns the principal manager.
func (s *Server) GetUserManager() *user.Manager {
	return s.userMgr
}
