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
	"time"

	"github.com/txnkv/executor/internal/mvccstore"
)

// MsgKind tags one of the four messages the executor posts to the
// scheduler.
type MsgKind int

const (
	MsgReadFinished MsgKind = iota
	MsgWriteFinished
	MsgFinishedWithErr
	MsgWaitForLock
)

// Msg is what this package emits onto the scheduler's message bus. Only
// the fields matching Kind are meaningful.
type Msg struct {
	Kind MsgKind
	Cid  uint64
	Tag  string

	PR     ProcessResult
	Err    error
	Result error

	StartTS       uint64
	Lock          LockDescriptor
	IsFirstLock   bool
	WaitTimeoutMs int64
}

// MsgScheduler receives the Msg values this package emits. Implementations
// must be safe to call from any goroutine.
type MsgScheduler interface {
	OnMsg(msg Msg)
}

// notifyScheduler is a thin, always-safe forwarder to the scheduler handle.
func notifyScheduler(sched MsgScheduler, msg Msg) {
	sched.OnMsg(msg)
}

// LockManager receives WakeUp calls when a command releases locks. WakeUp
// must be idempotent on an empty hash list and must never block.
type LockManager interface {
	WakeUp(startTS uint64, hashes []uint64, commitTS uint64, pessimistic bool)
}

// Engine is the raw KV engine's write path: apply a batch of modifications
// asynchronously and invoke cb with the result once durable.
type Engine interface {
	AsyncWrite(ctx interface{}, modifies []mvccstore.Modify, cb func(error)) error
}

// WorkerPool is a bounded goroutine pool the orchestrator dispatches onto.
// Two priorities are modeled, matching the NORMAL/HIGH split named in §5.
type WorkerPool interface {
	Spawn(priority Priority, fn func())
}

// Priority selects which of the worker pool's priority lanes a task runs
// on, derived from the command's context.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// SlowCommandThreshold equals config.Default()'s slow-command threshold.
// The orchestrator does not read it: logSlow compares against its own
// Config.SlowCommandThreshold.
var SlowCommandThreshold = 500 * time.Millisecond
