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

package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the errors surfaced by the catalog and user managers so
// that callers can map them to protocol error codes without string matching.
type Kind int

// Error kinds. Conflict is the only retryable kind: it means a
// compare-and-set lost to a concurrent writer and the caller should re-read
// before retrying. Network means the metastore was unreachable or timed out;
// it must never be treated as NotFound.
const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindConflict
	KindAllocExhausted
	KindReadOnly
	KindUnknownUser
	KindAuthFailed
	KindNetwork
)

type kindError struct {
	kind  Kind
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// NotFoundf creates a NotFound error.
func NotFoundf(format string, args ...interface{}) error {
	return &kindError{kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

// AlreadyExistsf creates an AlreadyExists error.
func AlreadyExistsf(format string, args ...interface{}) error {
	return &kindError{kind: KindAlreadyExists, msg: fmt.Sprintf(format, args...)}
}

// Conflictf creates a Conflict error.
func Conflictf(format string, args ...interface{}) error {
	return &kindError{kind: KindConflict, msg: fmt.Sprintf(format, args...)}
}

// AllocExhaustedf creates an AllocExhausted error.
func AllocExhaustedf(format string, args ...interface{}) error {
	return &kindError{kind: KindAllocExhausted, msg: fmt.Sprintf(format, args...)}
}

// ReadOnlyf creates a ReadOnly error.
func ReadOnlyf(format string, args ...interface{}) error {
	return &kindError{kind: KindReadOnly, msg: fmt.Sprintf(format, args...)}
}

// UnknownUserf creates an UnknownUser error.
func UnknownUserf(format string, args ...interface{}) error {
	return &kindError{kind: KindUnknownUser, msg: fmt.Sprintf(format, args...)}
}

// AuthFailedf creates an AuthFailed error.
func AuthFailedf(format string, args ...interface{}) error {
	return &kindError{kind: KindAuthFailed, msg: fmt.Sprintf(format, args...)}
}

// Network marks err as a metastore transport failure. The underlying error
// is kept so retry layers can inspect timeouts.
func Network(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindNetwork, msg: "metastore request failed", cause: errors.WithStack(err)}
}

// WithContext appends a short operation context to err, e.g.
// "(while add user)". The underlying error text and kind are preserved; the
// Is* predicates see through any number of WithContext layers.
func WithContext(err error, ctx string) error {
	if err == nil {
		return nil
	}
	return &contextError{err: err, ctx: ctx}
}

type contextError struct {
	err error
	ctx string
}

func (e *contextError) Error() string { return e.err.Error() + " " + e.ctx }

// Cause implements the causer interface of github.com/pkg/errors.
func (e *contextError) Cause() error { return e.err }

// KindOf reports the kind of err, unwrapping any context layers. Errors not
// created by this package report KindUnknown.
func KindOf(err error) Kind {
	if ke, ok := errors.Cause(err).(*kindError); ok {
		return ke.kind
	}
	return KindUnknown
}

// IsNotFound checks whether err is a NotFound error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsAlreadyExists checks whether err is an AlreadyExists error.
func IsAlreadyExists(err error) bool { return KindOf(err) == KindAlreadyExists }

// IsConflict checks whether err is a Conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsAllocExhausted checks whether err is an AllocExhausted error.
func IsAllocExhausted(err error) bool { return KindOf(err) == KindAllocExhausted }

// IsReadOnly checks whether err is a ReadOnly error.
func IsReadOnly(err error) bool { return KindOf(err) == KindReadOnly }

// IsUnknownUser checks whether err is an UnknownUser error.
func IsUnknownUser(err error) bool { return KindOf(err) == KindUnknownUser }

// IsAuthFailed checks whether err is an AuthFailed error.
func IsAuthFailed(err error) bool { return KindOf(err) == KindAuthFailed }

// IsNetwork checks whether err is a Network error.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }
