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

package tempurl

import (
	"fmt"
	"net"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

var (
	mu    sync.Mutex
	taken = make(map[string]struct{})
)

// Alloc returns a local http URL with a free port for the embedded etcd
// used in tests. Ports already handed out in this process are skipped so
// two test servers never collide on a recycled port.
func Alloc() string {
	for {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			log.Fatal("listen failed", zap.Error(err))
		}
		addr := fmt.Sprintf("http://%s", l.Addr())
		if err := l.Close(); err != nil {
			log.Fatal("close listener failed", zap.Error(err))
		}

		mu.Lock()
		_, dup := taken[addr]
		if !dup {
			taken[addr] = struct{}{}
		}
		mu.Unlock()
		if !dup {
			return addr
		}
	}
}
