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
	"crypto/sha1"
	"crypto/sha256"
	"testing"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
	"github.com/stretchr/testify/assert"
)

func doubleSha1(password []byte) []byte {
	first := sha1.Sum(password)
	second := sha1.Sum(first[:])
	return second[:]
}

func TestAuthenticateNone(t *testing.T) {
	stored := NewUserInfo("t", "u", "%", AuthNone, nil)
	supplied := NewCertifiedInfo("u", []byte("anything"), "127.0.0.1")
	assert.True(t, Authenticate(&stored, &supplied))

	supplied = NewCertifiedInfo("u", nil, "127.0.0.1")
	assert.True(t, Authenticate(&stored, &supplied))
}

func TestAuthenticatePlainText(t *testing.T) {
	stored := NewUserInfo("t", "u", "%", AuthPlainText, []byte("secret"))

	ok := NewCertifiedInfo("u", []byte("secret"), "127.0.0.1")
	assert.True(t, Authenticate(&stored, &ok))

	bad := NewCertifiedInfo("u", []byte("secret2"), "127.0.0.1")
	assert.False(t, Authenticate(&stored, &bad))

	empty := NewCertifiedInfo("u", nil, "127.0.0.1")
	assert.False(t, Authenticate(&stored, &empty))
}

func TestAuthenticateDoubleSha1(t *testing.T) {
	// The stored credential is the double hash; the client supplies the
	// single hash.
	stored := NewUserInfo("t", "u", "%", AuthDoubleSha1, doubleSha1([]byte("pw")))

	clientHash := sha1.Sum([]byte("pw"))
	ok := NewCertifiedInfo("u", clientHash[:], "127.0.0.1")
	assert.True(t, Authenticate(&stored, &ok))

	// The raw password is not accepted.
	raw := NewCertifiedInfo("u", []byte("pw"), "127.0.0.1")
	assert.False(t, Authenticate(&stored, &raw))

	wrongHash := sha1.Sum([]byte("pw2"))
	bad := NewCertifiedInfo("u", wrongHash[:], "127.0.0.1")
	assert.False(t, Authenticate(&stored, &bad))
}

func TestAuthenticateSha256(t *testing.T) {
	sum := sha256.Sum256([]byte("pw"))
	stored := NewUserInfo("t", "u", "%", AuthSha256, sum[:])

	ok := NewCertifiedInfo("u", []byte("pw"), "127.0.0.1")
	assert.True(t, Authenticate(&stored, &ok))

	bad := NewCertifiedInfo("u", []byte("pw2"), "127.0.0.1")
	assert.False(t, Authenticate(&stored, &bad))
}

func TestAuthUser(t *testing.T) {
	m := NewManager(nil, "t")
	stored := NewUserInfo("t", "u", "%", AuthPlainText, []byte("secret"))

	ok := NewCertifiedInfo("u", []byte("secret"), "127.0.0.1")
	assert.NoError(t, m.AuthUser(&stored, &ok))

	bad := NewCertifiedInfo("u", []byte("wrong"), "127.0.0.1")
	err := m.AuthUser(&stored, &bad)
	assert.True(t, errs.IsAuthFailed(err))
}
