// Copyright 2021 TiKV Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package txn

import (
	"github.com/txnkv/executor/config"
)

// priorityPool is a bounded goroutine pool split into NORMAL and HIGH
// lanes, matching the per-priority pools named in §5. Each lane is a
// fixed-size worker set draining its own task channel so HIGH-priority
// commands never queue behind a backlog of NORMAL ones.
type priorityPool struct {
	normal chan func()
	high   chan func()
}

// NewPriorityPool starts a pool sized from cfg and returns it as a
// WorkerPool. cfg sets the number of workers per lane; each lane's queue
// holds 4096 tasks, and Spawn blocks only once that queue is full.
func NewPriorityPool(cfg config.Config) WorkerPool {
	p := &priorityPool{
		normal: make(chan func(), 4096),
		high:   make(chan func(), 4096),
	}
	for i := 0; i < cfg.NormalWorkerPoolSize; i++ {
		go p.loop(p.normal)
	}
	for i := 0; i < cfg.HighWorkerPoolSize; i++ {
		go p.loop(p.high)
	}
	return p
}

func (p *priorityPool) loop(tasks chan func()) {
	for fn := range tasks {
		fn()
	}
}

// Spawn enqueues fn onto the lane matching priority.
func (p *priorityPool) Spawn(priority Priority, fn func()) {
	if priority == PriorityHigh {
		p.high <- fn
		return
	}
	p.normal <- fn
}
