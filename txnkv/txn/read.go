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
	"math"

	"github.com/txnkv/executor/config"
	"github.com/txnkv/executor/internal/mvccstore"
)

// processRead runs a read-only command against snap, returning the
// ProcessResult to post as ReadFinished.
func processRead(snap Snapshot, cmd *Command, cfg config.Config) (ProcessResult, error) {
	reader := NewMvccReader(snap)
	defer tlsAddStatistics(cmd.Kind.String(), reader.Stats())

	switch cmd.Kind {
	case KindMvccByKey:
		info, err := findMvccInfosByKey(reader, cmd.Key, math.MaxUint64)
		if err != nil {
			return ProcessResult{}, err
		}
		return ProcessResult{Kind: PRMvccKey, MvccKey: info}, nil

	case KindMvccByStartTs:
		_, ok, err := reader.SeekTS(cmd.Key, cmd.StartTS)
		if err != nil {
			return ProcessResult{}, err
		}
		if !ok {
			return ProcessResult{Kind: PRMvccStartTs}, nil
		}
		info, err := findMvccInfosByKey(reader, cmd.Key, math.MaxUint64)
		if err != nil {
			return ProcessResult{}, err
		}
		return ProcessResult{Kind: PRMvccStartTs, MvccStartTsKey: cmd.Key, MvccStartTs: info}, nil

	case KindScanLock:
		locks, _, err := reader.ScanLocks(cmd.StartKey, cmd.MaxTS, cmd.Limit)
		if err != nil {
			return ProcessResult{}, err
		}
		out := make([]LockInfo, 0, len(locks))
		for _, kl := range locks {
			out = append(out, LockInfo{
				PrimaryLock: kl.Lock.Primary,
				LockVersion: kl.Lock.StartTS,
				Key:         kl.Key,
			})
		}
		return ProcessResult{Kind: PRLocks, Locks: out}, nil

	case KindResolveLock:
		return processResolveLockReadHalf(reader, cmd, cfg)

	default:
		panic("processRead: unsupported command kind " + cmd.Kind.String())
	}
}

// processResolveLockReadHalf scans for locks whose start_ts is a key of
// cmd.TxnStatus, building a NextCommand carrying the write half once
// key_locks are ready, per §4.2's read/write ping-pong.
func processResolveLockReadHalf(reader *MvccReader, cmd *Command, cfg config.Config) (ProcessResult, error) {
	var matched []KeyLock
	hasRemain := false
	err := reader.snap.store.ScanLocks(cmd.ScanKey, nil, math.MaxUint64, func(key []byte, lock *mvccstore.Lock) (bool, error) {
		reader.stats.LockReads++
		if _, ok := cmd.TxnStatus[lock.StartTS]; !ok {
			return true, nil
		}
		if cfg.ResolveLockBatchSize > 0 && len(matched) >= cfg.ResolveLockBatchSize {
			hasRemain = true
			return false, nil
		}
		matched = append(matched, KeyLock{Key: key, Lock: lock})
		return true, nil
	})
	if err != nil {
		return ProcessResult{}, err
	}
	if len(matched) == 0 {
		return prRes(), nil
	}
	var nextScanKey []byte
	if hasRemain {
		nextScanKey = matched[len(matched)-1].Key
	}
	next := &Command{
		Kind:      KindResolveLock,
		Ctx:       cmd.Ctx,
		TxnStatus: cmd.TxnStatus,
		ScanKey:   nextScanKey,
		KeyLocks:  matched,
	}
	return ProcessResult{Kind: PRNextCommand, NextCommand: next}, nil
}

// findMvccInfosByKey loads key's current lock, then walks its write chain
// backward from ts harvesting (commit_ts, write) pairs, then collects the
// raw version values, matching the Rust source's function of the same
// name.
func findMvccInfosByKey(reader *MvccReader, key []byte, ts uint64) (*MvccInfo, error) {
	lock, err := reader.LoadLock(key)
	if err != nil {
		return nil, err
	}
	var writes []VersionedValue
	cur := ts
	for {
		commitTS, w, err := reader.SeekWrite(key, cur)
		if err != nil {
			return nil, err
		}
		if w == nil {
			break
		}
		writes = append(writes, VersionedValue{StartTS: w.StartTS, CommitTS: commitTS, Write: w})
		if commitTS == 0 {
			break
		}
		cur = commitTS - 1
	}
	values, err := reader.ScanValuesInDefault(key)
	if err != nil {
		return nil, err
	}
	return &MvccInfo{Lock: lock, Writes: writes, Values: values}, nil
}
