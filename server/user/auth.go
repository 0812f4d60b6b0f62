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
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/pingcap-incubator/tinymeta/pkg/errs"
)

// Authenticate reports whether the supplied credentials match the stored
// principal, dispatching on the principal's declared auth method. It is a
// pure function over its two arguments and touches no state.
func Authenticate(stored *UserInfo, supplied *CertifiedInfo) bool {
	switch stored.AuthType {
	case AuthNone:
		return true
	case AuthPlainText:
		return bytes.Equal(stored.Password, supplied.UserPassword)
	case AuthDoubleSha1:
		// MySQL-family clients already send sha1(password) and the stored
		// credential is sha1(sha1(password)), so hashing the supplied value
		// once more lines the two up.
		first := sha1.Sum(supplied.UserPassword)
		return subtle.ConstantTimeCompare(stored.Password, first[:]) == 1
	case AuthSha256:
		sum := sha256.Sum256(supplied.UserPassword)
		return subtle.ConstantTimeCompare(stored.Password, sum[:]) == 1
	}
	return false
}

// AuthUser wraps Authenticate with a typed failure for the session layer.
func (m *Manager) AuthUser(stored *UserInfo, supplied *CertifiedInfo) error {
	if Authenticate(stored, supplied) {
		return nil
	}
	return errs.AuthFailedf("authentication failed for user %s@%s", stored.Name, stored.Host)
}
