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

// Package txn is the command-processing pipeline between a scheduler and
// an MVCC storage engine: dispatch from command variant to MVCC
// operation, the released-lock bookkeeping that wakes pessimistic
// waiters, and the asynchronous hand-off across the dispatcher goroutine,
// the worker pool, and the engine's completion goroutine.
//
//  1. The dispatcher (often the engine's own snapshot-completion
//     goroutine) calls Execute and must never block inline.
//  2. The worker pool runs processRead/processWrite and invokes
//     engine.AsyncWrite.
//  3. The engine's completion goroutine re-enters the worker pool before
//     posting the terminal scheduler message.
package txn

import (
	"time"

	"go.uber.org/zap"

	"github.com/txnkv/executor/config"
	"github.com/txnkv/executor/internal/logutil"
	"github.com/txnkv/executor/metrics"
)

// CbContext is the per-callback context the engine's snapshot stage
// attaches, carrying the raft term a write should be tagged with.
type CbContext struct {
	Term *uint64
}

// SnapshotResult is the (snapshot, error) pair the engine's
// snapshot-completion goroutine hands to Execute.
type SnapshotResult struct {
	Snap Snapshot
	Err  error
}

// Executor owns the worker pool handle, the scheduler handle, the
// lock-manager handle, and the engine handle; each is captured by the
// closures it hands to the pool at dispatch time, never read from shared
// mutable state.
type Executor struct {
	Pool    WorkerPool
	Sched   MsgScheduler
	LockMgr LockManager
	Engine  Engine
	Config  config.Config
}

// NewExecutor builds an orchestrator wired to the given collaborators.
func NewExecutor(pool WorkerPool, sched MsgScheduler, lockMgr LockManager, engine Engine, cfg config.Config) *Executor {
	return &Executor{Pool: pool, Sched: sched, LockMgr: lockMgr, Engine: engine, Config: cfg}
}

// Execute is the orchestrator's sole entry point: given a snapshot result
// for task, it dispatches read or write processing onto the worker pool
// and never performs processing work on the calling goroutine.
func (e *Executor) Execute(cbCtx CbContext, res SnapshotResult, task *Task) {
	if res.Err != nil {
		err := res.Err
		e.Pool.Spawn(priorityOf(task), func() {
			metrics.SchedStageCounterVec.WithLabelValues(task.Tag, "snapshot_err").Inc()
			e.finishWithErr(task, err)
		})
		return
	}
	if cbCtx.Term != nil && task.Cmd.Ctx != nil {
		task.Cmd.Ctx.Term = *cbCtx.Term
	}
	snap := res.Snap
	if task.Cmd.Kind.Readonly() {
		e.Pool.Spawn(priorityOf(task), func() {
			e.runRead(snap, task)
		})
		return
	}
	e.Pool.Spawn(priorityOf(task), func() {
		e.runWrite(snap, task)
	})
}

func priorityOf(task *Task) Priority {
	if task.Cmd.Ctx != nil && task.Cmd.Ctx.Priority == 2 {
		return PriorityHigh
	}
	return PriorityNormal
}

func (e *Executor) finishWithErr(task *Task, err error) {
	notifyScheduler(e.Sched, Msg{Kind: MsgFinishedWithErr, Cid: task.Cid, Tag: task.Tag, Err: err})
}

func (e *Executor) runRead(snap Snapshot, task *Task) {
	start := time.Now()
	metrics.SchedStageCounterVec.WithLabelValues(task.Tag, "snapshot_ok").Inc()
	pr, err := processRead(snap, task.Cmd, e.Config)
	if err != nil {
		e.finishWithErr(task, err)
		return
	}
	metrics.CommandDurationHistogramVec.WithLabelValues(task.Tag).Observe(time.Since(start).Seconds())
	e.logSlow(task, start)
	notifyScheduler(e.Sched, Msg{Kind: MsgReadFinished, Cid: task.Cid, Tag: task.Tag, PR: pr})
}

func (e *Executor) runWrite(snap Snapshot, task *Task) {
	start := time.Now()
	metrics.SchedStageCounterVec.WithLabelValues(task.Tag, "write").Inc()
	wr, err := processWrite(snap, task.Cmd, e.Config, e.LockMgr)
	if err != nil {
		metrics.SchedStageCounterVec.WithLabelValues(task.Tag, "prepare_write_err").Inc()
		e.finishWithErr(task, err)
		return
	}
	metrics.CommandDurationHistogramVec.WithLabelValues(task.Tag).Observe(time.Since(start).Seconds())
	e.logSlow(task, start)

	if wr.LockWait != nil {
		notifyScheduler(e.Sched, Msg{
			Kind:          MsgWaitForLock,
			Cid:           task.Cid,
			Tag:           task.Tag,
			PR:            wr.PR,
			StartTS:       task.StartTS(),
			Lock:          wr.LockWait.Lock,
			IsFirstLock:   wr.LockWait.IsFirstLock,
			WaitTimeoutMs: wr.LockWait.WaitTimeoutMs,
		})
		return
	}

	if len(wr.ToBeWrite) == 0 {
		notifyScheduler(e.Sched, Msg{Kind: MsgWriteFinished, Cid: task.Cid, Tag: task.Tag, PR: wr.PR})
		return
	}

	err = e.Engine.AsyncWrite(wr.Ctx, wr.ToBeWrite, func(writeErr error) {
		e.Pool.Spawn(priorityOf(task), func() {
			if writeErr != nil {
				metrics.SchedStageCounterVec.WithLabelValues(task.Tag, "async_write_err").Inc()
			}
			notifyScheduler(e.Sched, Msg{Kind: MsgWriteFinished, Cid: task.Cid, Tag: task.Tag, PR: wr.PR, Result: writeErr})
			metrics.KeyWriteHistogramVec.WithLabelValues(task.Tag).Observe(float64(wr.Rows))
		})
	})
	if err != nil {
		metrics.SchedStageCounterVec.WithLabelValues(task.Tag, "async_write_err").Inc()
		e.finishWithErr(task, err)
	}
}

func (e *Executor) logSlow(task *Task, start time.Time) {
	if d := time.Since(start); d >= e.Config.SlowCommandThreshold {
		logutil.BgLogger().Warn("slow command",
			zap.Uint64("cid", task.Cid),
			zap.String("tag", task.Tag),
			zap.Duration("took", d))
	}
}
