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

package user

import (
	"context"
	"encoding/json"
	"path"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/pingcap-incubator/tinymeta/server/kv"
	"github.com/pkg/errors"
)

const (
	// maxUpdateRetry bounds the compare-and-set attempts of one partial
	// update.
	maxUpdateRetry = 5
	// dropRetryCount is how many times a lookup-then-delete is retried.
	dropRetryCount = 2
)

// Manager maintains the principal records of one tenant in the versioned
// metastore, with the same compare-and-set discipline as the catalog. One
// Manager is constructed per server process and shared by every session.
type Manager struct {
	base   kv.Base
	tenant string
}

// NewManager creates a Manager scoped to one tenant.
func NewManager(base kv.Base, tenant string) *Manager {
	return &Manager{
		base:   base,
		tenant: tenant,
	}
}

func (m *Manager) userPath(name, host string) string {
	return path.Join(m.tenant, "users", name, host)
}

func (m *Manager) userPrefix() string {
	return path.Join(m.tenant, "users")
}

func decodeUser(value []byte) (*UserInfo, error) {
	info := &UserInfo{}
	if err := json.Unmarshal(value, info); err != nil {
		return nil, errors.WithStack(err)
	}
	return info, nil
}

// GetUser returns the principal for (name, host).
//
// The reserved identities "default", "" and "root" are a deliberate
// bootstrap escape hatch: they resolve to a fixed no-authentication
// principal for any host and never consult the store. Keep this branch
// separate from the store-backed path: the admin path must work before (and
// regardless of) any user records.
func (m *Manager) GetUser(ctx context.Context, name, host string) (*UserInfo, error) {
	switch name {
	case "default", "", "root":
		info := NewUserInfo(m.tenant, name, "%", AuthNone, nil)
		return &info, nil
	}

	entry, err := m.base.Load(ctx, m.userPath(name, host))
	if err != nil {
		return nil, errs.WithContext(err, "(while get user)")
	}
	if entry == nil {
		return nil, errs.UnknownUserf("unknown user %s@%s", name, host)
	}
	return decodeUser(entry.Value)
}

// GetUsers lists all principals of the tenant, in store listing order.
func (m *Manager) GetUsers(ctx context.Context) ([]UserInfo, error) {
	entries, err := m.base.LoadPrefix(ctx, m.userPrefix())
	if err != nil {
		return nil, errs.WithContext(err, "(while get users)")
	}
	users := make([]UserInfo, 0, len(entries))
	for i := range entries {
		info, err := decodeUser(entries[i].Value)
		if err != nil {
			return nil, err
		}
		users = append(users, *info)
	}
	return users, nil
}

// AddUser persists a new principal and returns the record version.
func (m *Manager) AddUser(ctx context.Context, info UserInfo) (int64, error) {
	info.Tenant = m.tenant
	value, err := json.Marshal(&info)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	version, err := m.base.Create(ctx, m.userPath(info.Name, info.Host), value)
	if err != nil {
		if errs.IsConflict(err) {
			return 0, errs.AlreadyExistsf("user %s@%s already exists", info.Name, info.Host)
		}
		return 0, errs.WithContext(err, "(while add user)")
	}
	return version, nil
}

// UpdateUser partially updates a principal: nil arguments leave the
// corresponding field unchanged. Returns the new record version.
func (m *Manager) UpdateUser(ctx context.Context, name, host string, newAuthType *AuthType, newPassword []byte) (int64, error) {
	version, err := kv.Update(ctx, m.base, m.userPath(name, host), maxUpdateRetry, func(old *kv.KeyValue) ([]byte, error) {
		if old == nil {
			return nil, errs.UnknownUserf("unknown user %s@%s", name, host)
		}
		info, err := decodeUser(old.Value)
		if err != nil {
			return nil, err
		}
		if newAuthType != nil {
			info.AuthType = *newAuthType
		}
		if newPassword != nil {
			info.Password = newPassword
		}
		value, err := json.Marshal(info)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return value, nil
	})
	if err != nil {
		return 0, errs.WithContext(err, "(while alter user)")
	}
	return version, nil
}

// DropUser removes a principal. With ifExist set an unknown user is not an
// error; only the UnknownUser kind is converted, anything else still
// surfaces.
func (m *Manager) DropUser(ctx context.Context, name, host string, ifExist bool) error {
	key := m.userPath(name, host)
	for i := 0; i < dropRetryCount; i++ {
		entry, err := m.base.Load(ctx, key)
		if err != nil {
			return errs.WithContext(err, "(while drop user)")
		}
		if entry == nil {
			if ifExist {
				return nil
			}
			return errs.UnknownUserf("unknown user %s@%s", name, host)
		}
		err = m.base.Remove(ctx, key, entry.Version)
		if err == nil {
			return nil
		}
		if !errs.IsConflict(err) {
			return errs.WithContext(err, "(while drop user)")
		}
	}
	return errs.WithContext(
		errs.Conflictf("user %s@%s changed concurrently during drop", name, host),
		"(while drop user)")
}
