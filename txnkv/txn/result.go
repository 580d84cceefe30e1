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
	"github.com/pingcap/kvproto/pkg/kvrpcpb"

	"github.com/txnkv/executor/internal/mvccstore"
)

// PRKind tags a ProcessResult variant.
type PRKind int

const (
	PRRes PRKind = iota
	PRMultiRes
	PRMvccKey
	PRMvccStartTs
	PRLocks
	PRTxnStatus
	PRNextCommand
	PRFailed
)

// KeyResult is one entry of a MultiRes: either ok, or the error the
// mutation hit (always a KeyIsLocked in this design).
type KeyResult struct {
	Err error
}

// MvccInfo is the {lock, writes, values} triple MvccByKey/MvccByStartTs
// return, matching find_mvcc_infos_by_key's shape.
type MvccInfo struct {
	Lock   *mvccstore.Lock
	Writes []VersionedValue
	Values []VersionedValue
}

// LockInfo is the ScanLock projection of a (key, lock) pair.
type LockInfo struct {
	PrimaryLock []byte
	LockVersion uint64
	Key         []byte
}

// ProcessResult is the tagged outcome of a read or write command. Only the
// field matching Kind is meaningful.
type ProcessResult struct {
	Kind PRKind

	MultiRes []KeyResult
	MvccKey  *MvccInfo
	// MvccStartTsKey is the raw key MvccByStartTs resolved to, nil if not found.
	MvccStartTsKey []byte
	MvccStartTs    *MvccInfo
	Locks          []LockInfo
	LockTTL        uint64
	CommitTS       uint64
	NextCommand    *Command
	Err            error
}

func prRes() ProcessResult                { return ProcessResult{Kind: PRRes} }
func prMultiRes(r []KeyResult) ProcessResult { return ProcessResult{Kind: PRMultiRes, MultiRes: r} }
func prFailed(err error) ProcessResult    { return ProcessResult{Kind: PRFailed, Err: err} }

// LockDescriptor is the lock info carried by WaitForLock, projecting a
// *mvccstore.Lock the way kvrpcpb.LockInfo does.
type LockDescriptor struct {
	Key         []byte
	PrimaryLock []byte
	LockVersion uint64
	LockTTL     uint64
	LockType    kvrpcpb.Op
}

// PessimisticLockWait is non-nil in a WriteResult iff the command is a
// pessimistic-lock acquisition that hit a conflict: the orchestrator must
// then post WaitForLock instead of writing.
type PessimisticLockWait struct {
	Lock        LockDescriptor
	IsFirstLock bool
	WaitTimeoutMs int64
}

// WriteResult is the hand-off between the write processor and the
// orchestrator. Invariant: LockWait != nil implies ToBeWrite is empty and
// Rows == 0.
type WriteResult struct {
	Ctx       *kvrpcpb.Context
	ToBeWrite []mvccstore.Modify
	Rows      int
	PR        ProcessResult
	LockWait  *PessimisticLockWait
}

// ReleasedLocks aggregates the hashes of keys a command unlocked, for one
// (start_ts, commit_ts) pair, plus whether any was pessimistic.
type ReleasedLocks struct {
	StartTS     uint64
	CommitTS    uint64
	Hashes      []uint64
	Pessimistic bool
}

// NewReleasedLocks starts an aggregator for one (start_ts, commit_ts) pair.
func NewReleasedLocks(startTS, commitTS uint64) *ReleasedLocks {
	return &ReleasedLocks{StartTS: startTS, CommitTS: commitTS}
}

// Push appends a freed lock's hash, if any, and folds in its pessimistic
// flag. Passing nil is a no-op, matching push(Option<ReleasedLock>).
func (rl *ReleasedLocks) Push(released *ReleasedLock) {
	if released == nil {
		return
	}
	rl.Hashes = append(rl.Hashes, released.Hash)
	rl.Pessimistic = rl.Pessimistic || released.Pessimistic
}

// WakeUp forwards a single batched wake-up to lockMgr, if present and if
// any hashes were collected. lockMgr.WakeUp must never block. Each call
// forwards again; callers invoke WakeUp once per aggregator.
func (rl *ReleasedLocks) WakeUp(lockMgr LockManager) {
	if lockMgr == nil || len(rl.Hashes) == 0 {
		return
	}
	lockMgr.WakeUp(rl.StartTS, rl.Hashes, rl.CommitTS, rl.Pessimistic)
}

// CallbackKind enumerates the six typed user-callback variants of §4.6.
type CallbackKind int

const (
	CallbackBoolean CallbackKind = iota
	CallbackBooleans
	CallbackMvccInfoByKey
	CallbackMvccInfoByStartTs
	CallbackLocks
	CallbackTxnStatus
)

// Callback is a finite, strongly-typed sink for one ProcessResult. Exactly
// one Kind field is populated, matching its CallbackKind.
type Callback struct {
	Kind CallbackKind

	Boolean           func(error)
	Booleans          func([]KeyResult, error)
	MvccInfoByKey     func(*MvccInfo, error)
	MvccInfoByStartTs func([]byte, *MvccInfo, error)
	Locks             func([]LockInfo, error)
	TxnStatus         func(lockTTL, commitTS uint64, err error)
}

// ExecuteCallback is the C7 result-delivery dispatch: a finite mapping
// from (cb.Kind, pr.Kind) to a strongly-typed invocation. Any other
// pairing is a programmer error and panics — it can only happen if a
// processor produces a ProcessResult kind its own callback kind does not
// expect.
func ExecuteCallback(cb Callback, pr ProcessResult) {
	switch cb.Kind {
	case CallbackBoolean:
		switch pr.Kind {
		case PRRes:
			cb.Boolean(nil)
		case PRFailed:
			cb.Boolean(pr.Err)
		default:
			panic("execute_callback: Boolean callback given incompatible ProcessResult")
		}
	case CallbackBooleans:
		switch pr.Kind {
		case PRMultiRes:
			cb.Booleans(pr.MultiRes, nil)
		case PRFailed:
			cb.Booleans(nil, pr.Err)
		default:
			panic("execute_callback: Booleans callback given incompatible ProcessResult")
		}
	case CallbackMvccInfoByKey:
		switch pr.Kind {
		case PRMvccKey:
			cb.MvccInfoByKey(pr.MvccKey, nil)
		case PRFailed:
			cb.MvccInfoByKey(nil, pr.Err)
		default:
			panic("execute_callback: MvccInfoByKey callback given incompatible ProcessResult")
		}
	case CallbackMvccInfoByStartTs:
		switch pr.Kind {
		case PRMvccStartTs:
			cb.MvccInfoByStartTs(pr.MvccStartTsKey, pr.MvccStartTs, nil)
		case PRFailed:
			cb.MvccInfoByStartTs(nil, nil, pr.Err)
		default:
			panic("execute_callback: MvccInfoByStartTs callback given incompatible ProcessResult")
		}
	case CallbackLocks:
		switch pr.Kind {
		case PRLocks:
			cb.Locks(pr.Locks, nil)
		case PRFailed:
			cb.Locks(nil, pr.Err)
		default:
			panic("execute_callback: Locks callback given incompatible ProcessResult")
		}
	case CallbackTxnStatus:
		switch pr.Kind {
		case PRTxnStatus:
			cb.TxnStatus(pr.LockTTL, pr.CommitTS, nil)
		case PRFailed:
			cb.TxnStatus(0, 0, pr.Err)
		default:
			panic("execute_callback: TxnStatus callback given incompatible ProcessResult")
		}
	default:
		panic("execute_callback: unknown callback kind")
	}
}
