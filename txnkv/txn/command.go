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
	"go.uber.org/atomic"

	"github.com/pingcap/kvproto/pkg/kvrpcpb"
)

// Kind tags a Command's variant. Every processor dispatch is a switch over
// Kind with an explicit case per variant and a panic default.
type Kind int

const (
	KindPrewrite Kind = iota
	KindAcquirePessimisticLock
	KindCommit
	KindCleanup
	KindRollback
	KindPessimisticRollback
	KindResolveLock
	KindResolveLockLite
	KindTxnHeartBeat
	KindPause
	KindMvccByKey
	KindMvccByStartTs
	KindScanLock
)

// Readonly reports whether Kind belongs to the read processor.
func (k Kind) Readonly() bool {
	switch k {
	case KindMvccByKey, KindMvccByStartTs, KindScanLock:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindPrewrite:
		return "prewrite"
	case KindAcquirePessimisticLock:
		return "acquire_pessimistic_lock"
	case KindCommit:
		return "commit"
	case KindCleanup:
		return "cleanup"
	case KindRollback:
		return "rollback"
	case KindPessimisticRollback:
		return "pessimistic_rollback"
	case KindResolveLock:
		return "resolve_lock"
	case KindResolveLockLite:
		return "resolve_lock_lite"
	case KindTxnHeartBeat:
		return "txn_heart_beat"
	case KindPause:
		return "pause"
	case KindMvccByKey:
		return "mvcc_by_key"
	case KindMvccByStartTs:
		return "mvcc_by_start_ts"
	case KindScanLock:
		return "scan_lock"
	default:
		return "unknown"
	}
}

// Options carries the prewrite/pessimistic-lock tunables. Invariant: if
// ForUpdateTS > 0, IsPessimisticLock must have one entry per mutation.
type Options struct {
	ForUpdateTS        uint64
	IsPessimisticLock  []bool
	IsFirstLock        bool
	WaitTimeoutMs       int64
	LockTTL            uint64
	MinCommitTS        uint64
	TxnSize            uint64
	SkipConstraintCheck bool
}

// TxnStatusEntry is one (start_ts -> commit_ts) mapping entry for
// ResolveLock. commit_ts == 0 means the transaction was rolled back.
type TxnStatusEntry struct {
	StartTS  uint64
	CommitTS uint64
}

// Command is a tagged union with one case per transactional operation,
// matching the variants named in §3 of the design this repo implements.
type Command struct {
	Kind Kind
	Ctx  *kvrpcpb.Context

	// Prewrite
	Mutations []*kvrpcpb.Mutation
	PrimaryKey []byte
	StartTS    uint64
	Options    *Options

	// AcquirePessimisticLock
	PLMutations []PLMutation

	// Commit / Rollback / PessimisticRollback / TxnHeartBeat shared fields
	Keys        [][]byte
	LockTS      uint64
	CommitTS    uint64
	ForUpdateTS uint64
	CurrentTS   uint64
	AdviseTTL   uint64

	// ResolveLock
	TxnStatus map[uint64]uint64
	ScanKey   []byte
	KeyLocks  []KeyLock

	// ResolveLockLite
	ResolveKeys [][]byte

	// Pause
	PauseMs uint64

	// Read commands
	Key      []byte
	MaxTS    uint64
	StartKey []byte
	Limit    int
}

// Task wraps a Command with a scheduler-assigned id and metrics tag.
type Task struct {
	Cid  uint64
	Cmd  *Command
	Tag  string
}

var cidGen atomic.Uint64

// NewTask allocates the next command id and wraps cmd.
func NewTask(cmd *Command) *Task {
	return &Task{Cid: cidGen.Inc(), Cmd: cmd, Tag: cmd.Kind.String()}
}

// RegionID returns the command's region id, cached from its context.
func (t *Task) RegionID() uint64 {
	if t.Cmd.Ctx == nil {
		return 0
	}
	return t.Cmd.Ctx.GetRegionId()
}

// StartTS returns the transaction start_ts relevant to this command, used
// by WaitForLock and logging; 0 if the command has none (e.g. ScanLock).
func (t *Task) StartTS() uint64 {
	switch t.Cmd.Kind {
	case KindPrewrite, KindAcquirePessimisticLock, KindCleanup, KindRollback, KindPessimisticRollback, KindTxnHeartBeat, KindMvccByStartTs:
		return t.Cmd.StartTS
	case KindCommit:
		return t.Cmd.LockTS
	default:
		return 0
	}
}
