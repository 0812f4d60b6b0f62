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
	"encoding/json"

	"github.com/pkg/errors"
)

// AuthType is the authentication method declared for a principal. It
// decides how the stored credential material is interpreted: empty for
// None, the raw password bytes for PlainText, and the respective digest for
// DoubleSha1 and Sha256.
type AuthType int

// Supported authentication methods.
const (
	AuthNone AuthType = iota
	AuthPlainText
	AuthDoubleSha1
	AuthSha256
)

var authTypeNames = map[AuthType]string{
	AuthNone:       "none",
	AuthPlainText:  "plaintext",
	AuthDoubleSha1: "double_sha1",
	AuthSha256:     "sha256",
}

func (t AuthType) String() string {
	if name, ok := authTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseAuthType converts an auth type name back to its value.
func ParseAuthType(name string) (AuthType, error) {
	for t, n := range authTypeNames {
		if n == name {
			return t, nil
		}
	}
	return AuthNone, errors.Errorf("unknown auth type %q", name)
}

// MarshalJSON encodes the auth type by name, so stored records stay
// readable and the enum can be reordered without breaking them.
func (t AuthType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the auth type from its name.
func (t *AuthType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return errors.WithStack(err)
	}
	parsed, err := ParseAuthType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UserInfo is the persisted identity record of one principal, keyed by
// (tenant, name, host pattern).
type UserInfo struct {
	Tenant   string   `json:"tenant"`
	Name     string   `json:"name"`
	Host     string   `json:"host"`
	AuthType AuthType `json:"auth_type"`
	Password []byte   `json:"password,omitempty"`
}

// NewUserInfo builds a UserInfo record.
func NewUserInfo(tenant, name, host string, authType AuthType, password []byte) UserInfo {
	return UserInfo{
		Tenant:   tenant,
		Name:     name,
		Host:     host,
		AuthType: authType,
		Password: password,
	}
}

// CertifiedInfo carries the request-scoped credentials a client connection
// supplied. It lives for the duration of one authentication attempt and is
// never persisted.
type CertifiedInfo struct {
	UserName      string
	UserPassword  []byte
	ClientAddress string
}

// NewCertifiedInfo builds a CertifiedInfo from connection data.
func NewCertifiedInfo(user string, password []byte, address string) CertifiedInfo {
	return CertifiedInfo{
		UserName:      user,
		UserPassword:  append([]byte(nil), password...),
		ClientAddress: address,
	}
}
