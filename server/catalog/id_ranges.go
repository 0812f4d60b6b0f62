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

package catalog

import (
	"math"

	"github.com/pingcap-incubator/tinymeta/server/id"
)

// Built-in system objects occupy a fixed low ID range compiled into the
// binary; user objects are allocated above it. The two ranges are fixed at
// startup and never negotiated at runtime, so an object's ID alone
// identifies its owning tier.
const (
	SysIDBegin  uint64 = 1
	SysIDEnd    uint64 = 10000
	UserIDBegin uint64 = 10000
	UserIDEnd   uint64 = math.MaxUint64
)

// DefaultSysIDRange returns the reserved range of the system tier.
func DefaultSysIDRange() id.IDRange {
	return id.IDRange{Begin: SysIDBegin, End: SysIDEnd}
}

// DefaultUserIDRange returns the allocatable range of the user tier.
func DefaultUserIDRange() id.IDRange {
	return id.IDRange{Begin: UserIDBegin, End: UserIDEnd}
}
