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

	"github.com/txnkv/executor/config"
	"github.com/txnkv/executor/internal/mvccstore"
)

// ErrInvalidTxnTso is returned when a commit_ts / lock_ts ordering
// invariant is violated.
type ErrInvalidTxnTso struct {
	StartTS  uint64
	CommitTS uint64
}

func (e *ErrInvalidTxnTso) Error() string {
	return "invalid txn tso"
}

// processWrite runs a write command against snap, yielding the
// WriteResult the orchestrator hands off to the lock manager or engine.
func processWrite(snap Snapshot, cmd *Command, cfg config.Config, lockMgr LockManager) (*WriteResult, error) {
	txn := NewMvccTxn(snap, cmd.StartTS, true)
	defer tlsAddStatistics(cmd.Kind.String(), txn.Stats())

	var wr *WriteResult
	var err error
	switch cmd.Kind {
	case KindPrewrite:
		wr, err = processPrewrite(txn, cmd)
	case KindAcquirePessimisticLock:
		wr, err = processAcquirePessimisticLock(txn, cmd)
	case KindCommit:
		wr, err = processCommit(txn, cmd, lockMgr)
	case KindCleanup:
		wr, err = processCleanup(txn, cmd, lockMgr)
	case KindRollback:
		wr, err = processRollback(txn, cmd, lockMgr)
	case KindPessimisticRollback:
		wr, err = processPessimisticRollback(txn, cmd, lockMgr)
	case KindResolveLock:
		wr, err = processResolveLockWriteHalf(snap, cmd, cfg, lockMgr)
	case KindResolveLockLite:
		wr, err = processResolveLockLite(txn, cmd, lockMgr)
	case KindTxnHeartBeat:
		wr, err = processTxnHeartBeat(txn, cmd)
	case KindPause:
		wr, err = processPause(cmd)
	default:
		panic("processWrite: unsupported command kind " + cmd.Kind.String())
	}
	if err != nil {
		return nil, err
	}
	wr.Ctx = cmd.Ctx
	return wr, nil
}

func processPrewrite(txn *MvccTxn, cmd *Command) (*WriteResult, error) {
	var locks []KeyResult
	for i, m := range cmd.Mutations {
		var err error
		if cmd.Options.ForUpdateTS == 0 {
			err = txn.Prewrite(m, cmd.PrimaryKey, cmd.Options)
		} else {
			isPL := false
			if i < len(cmd.Options.IsPessimisticLock) {
				isPL = cmd.Options.IsPessimisticLock[i]
			}
			err = txn.PessimisticPrewrite(m, cmd.PrimaryKey, isPL, cmd.Options)
		}
		if err == nil {
			continue
		}
		if _, ok := err.(*mvccstore.ErrKeyIsLocked); ok {
			locks = append(locks, KeyResult{Err: err})
			continue
		}
		return nil, err
	}
	if len(locks) > 0 {
		return &WriteResult{PR: prMultiRes(locks)}, nil
	}
	modifies := txn.IntoModifies()
	return &WriteResult{
		ToBeWrite: modifies,
		Rows:      len(cmd.Mutations),
		PR:        prMultiRes(nil),
	}, nil
}

func processAcquirePessimisticLock(txn *MvccTxn, cmd *Command) (*WriteResult, error) {
	for _, m := range cmd.PLMutations {
		err := txn.AcquirePessimisticLock(m, cmd.PrimaryKey, cmd.Options)
		if err == nil {
			continue
		}
		keyLockErr, ok := err.(*mvccstore.ErrKeyIsLocked)
		if !ok {
			return nil, err
		}
		return &WriteResult{
			PR: prMultiRes([]KeyResult{{Err: keyLockErr}}),
			LockWait: &PessimisticLockWait{
				Lock: LockDescriptor{
					Key:         keyLockErr.Key,
					PrimaryLock: keyLockErr.Primary,
					LockVersion: keyLockErr.StartTS,
					LockTTL:     keyLockErr.TTL,
					LockType:    keyLockErr.LockType,
				},
				IsFirstLock:   cmd.Options.IsFirstLock,
				WaitTimeoutMs: cmd.Options.WaitTimeoutMs,
			},
		}, nil
	}
	modifies := txn.IntoModifies()
	return &WriteResult{ToBeWrite: modifies, Rows: len(cmd.PLMutations), PR: prMultiRes(nil)}, nil
}

func processCommit(txn *MvccTxn, cmd *Command, lockMgr LockManager) (*WriteResult, error) {
	if cmd.CommitTS <= cmd.LockTS {
		return nil, &ErrInvalidTxnTso{StartTS: cmd.LockTS, CommitTS: cmd.CommitTS}
	}
	txn.StartTS = cmd.LockTS
	released := NewReleasedLocks(cmd.LockTS, cmd.CommitTS)
	for _, k := range cmd.Keys {
		rl, err := txn.Commit(k, cmd.CommitTS)
		if err != nil {
			return nil, err
		}
		released.Push(rl)
	}
	released.WakeUp(lockMgr)
	return &WriteResult{ToBeWrite: txn.IntoModifies(), Rows: len(cmd.Keys), PR: prRes()}, nil
}

func processCleanup(txn *MvccTxn, cmd *Command, lockMgr LockManager) (*WriteResult, error) {
	txn.StartTS = cmd.StartTS
	released := NewReleasedLocks(cmd.StartTS, 0)
	rl, err := txn.Cleanup(cmd.Key, cmd.CurrentTS)
	if err != nil {
		return nil, err
	}
	released.Push(rl)
	released.WakeUp(lockMgr)
	return &WriteResult{ToBeWrite: txn.IntoModifies(), Rows: 1, PR: prRes()}, nil
}

func processRollback(txn *MvccTxn, cmd *Command, lockMgr LockManager) (*WriteResult, error) {
	txn.StartTS = cmd.StartTS
	released := NewReleasedLocks(cmd.StartTS, 0)
	for _, k := range cmd.Keys {
		rl, err := txn.Rollback(k)
		if err != nil {
			return nil, err
		}
		released.Push(rl)
	}
	released.WakeUp(lockMgr)
	return &WriteResult{ToBeWrite: txn.IntoModifies(), Rows: len(cmd.Keys), PR: prRes()}, nil
}

func processPessimisticRollback(txn *MvccTxn, cmd *Command, lockMgr LockManager) (*WriteResult, error) {
	if lockMgr == nil {
		panic("processPessimisticRollback: lock manager must be present")
	}
	txn.StartTS = cmd.StartTS
	released := NewReleasedLocks(cmd.StartTS, 0)
	for _, k := range cmd.Keys {
		rl, err := txn.PessimisticRollback(k, cmd.ForUpdateTS)
		if err != nil {
			return nil, err
		}
		released.Push(rl)
	}
	released.WakeUp(lockMgr)
	return &WriteResult{ToBeWrite: txn.IntoModifies(), Rows: len(cmd.Keys), PR: prMultiRes(nil)}, nil
}

// processResolveLockWriteHalf resolves a batch of key_locks, stopping
// early once the accumulated modification size reaches
// cfg.MaxTxnWriteSize, per the ResolveLock batching invariant.
func processResolveLockWriteHalf(snap Snapshot, cmd *Command, cfg config.Config, lockMgr LockManager) (*WriteResult, error) {
	txn := NewMvccTxn(snap, 0, true)
	defer tlsAddStatistics(cmd.Kind.String(), txn.Stats())
	aggregators := map[uint64]*ReleasedLocks{}
	scanKey := cmd.ScanKey
	processed := 0

	for _, kl := range cmd.KeyLocks {
		lockTS := kl.Lock.StartTS
		commitTS, ok := cmd.TxnStatus[lockTS]
		if !ok {
			panic("processResolveLockWriteHalf: txn_status missing entry for lock ts")
		}
		txn.StartTS = lockTS
		agg, ok := aggregators[lockTS]
		if !ok {
			agg = NewReleasedLocks(lockTS, commitTS)
			aggregators[lockTS] = agg
		}

		var rl *ReleasedLock
		var err error
		switch {
		case commitTS == 0:
			rl, err = txn.Rollback(kl.Key)
		case commitTS > lockTS:
			rl, err = txn.Commit(kl.Key, commitTS)
		default:
			return nil, &ErrInvalidTxnTso{StartTS: lockTS, CommitTS: commitTS}
		}
		if err != nil {
			return nil, err
		}
		agg.Push(rl)
		processed++

		if txn.WriteSize() >= cfg.MaxTxnWriteSize {
			scanKey = kl.Key
			break
		}
	}

	for _, agg := range aggregators {
		agg.WakeUp(lockMgr)
	}

	modifies := txn.IntoModifies()
	if scanKey == nil {
		return &WriteResult{ToBeWrite: modifies, Rows: processed, PR: prRes()}, nil
	}
	next := &Command{
		Kind:      KindResolveLock,
		Ctx:       cmd.Ctx,
		TxnStatus: cmd.TxnStatus,
		ScanKey:   scanKey,
	}
	return &WriteResult{
		ToBeWrite: modifies,
		Rows:      processed,
		PR:        ProcessResult{Kind: PRNextCommand, NextCommand: next},
	}, nil
}

func processResolveLockLite(txn *MvccTxn, cmd *Command, lockMgr LockManager) (*WriteResult, error) {
	txn.StartTS = cmd.StartTS
	released := NewReleasedLocks(cmd.StartTS, cmd.CommitTS)
	for _, k := range cmd.ResolveKeys {
		var rl *ReleasedLock
		var err error
		switch {
		case cmd.CommitTS == 0:
			rl, err = txn.Rollback(k)
		case cmd.CommitTS > cmd.StartTS:
			rl, err = txn.Commit(k, cmd.CommitTS)
		default:
			return nil, &ErrInvalidTxnTso{StartTS: cmd.StartTS, CommitTS: cmd.CommitTS}
		}
		if err != nil {
			return nil, err
		}
		released.Push(rl)
	}
	released.WakeUp(lockMgr)
	return &WriteResult{ToBeWrite: txn.IntoModifies(), Rows: len(cmd.ResolveKeys), PR: prRes()}, nil
}

func processTxnHeartBeat(txn *MvccTxn, cmd *Command) (*WriteResult, error) {
	ttl, err := txn.TxnHeartBeat(cmd.PrimaryKey, cmd.AdviseTTL)
	if err != nil {
		return nil, err
	}
	return &WriteResult{
		ToBeWrite: txn.IntoModifies(),
		Rows:      1,
		PR:        ProcessResult{Kind: PRTxnStatus, LockTTL: ttl, CommitTS: 0},
	}, nil
}

// processPause blocks the worker for cmd.PauseMs, a test/fault-injection
// hook (§4.3, §9). Acceptable only because it is never dispatched in a
// production deployment.
func processPause(cmd *Command) (*WriteResult, error) {
	sleep(time.Duration(cmd.PauseMs) * time.Millisecond)
	return &WriteResult{PR: prRes()}, nil
}
