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

	"github.com/txnkv/executor/internal/mvccstore"
)

// MvccReader is a snapshot-scoped reader used by read-only commands. It
// never mutates the store; every call folds its cost into stats.
type MvccReader struct {
	snap  Snapshot
	stats Statistics
}

// NewMvccReader builds a reader over snap.
func NewMvccReader(snap Snapshot) *MvccReader {
	return &MvccReader{snap: snap}
}

// Stats returns the reader's accumulated statistics.
func (r *MvccReader) Stats() *Statistics { return &r.stats }

// LoadLock returns key's current lock, or nil.
func (r *MvccReader) LoadLock(key []byte) (*mvccstore.Lock, error) {
	r.stats.LockReads++
	return r.snap.store.GetLock(key)
}

// SeekWrite finds the newest write record for key with commit_ts <= ts.
func (r *MvccReader) SeekWrite(key []byte, ts uint64) (uint64, *mvccstore.Write, error) {
	var found *mvccstore.Write
	var foundVer uint64
	err := r.snap.store.IterateVersions(key, func(ver uint64, w *mvccstore.Write) (bool, error) {
		r.stats.WriteReads++
		if ver > ts {
			return true, nil
		}
		found = w
		foundVer = ver
		return false, nil
	})
	if err != nil {
		return 0, nil, err
	}
	return foundVer, found, nil
}

// SeekTS locates the commit_ts of the write whose start_ts equals startTS,
// scanning newest-to-oldest versions of key. MvccByStartTs calls it once,
// on the command's own Key; other keys are not searched.
func (r *MvccReader) SeekTS(key []byte, startTS uint64) (uint64, bool, error) {
	var commitTS uint64
	var found bool
	err := r.snap.store.IterateVersions(key, func(ver uint64, w *mvccstore.Write) (bool, error) {
		r.stats.WriteReads++
		if w.StartTS == startTS {
			commitTS = ver
			found = true
			return false, nil
		}
		return true, nil
	})
	return commitTS, found, err
}

// ScanValuesInDefault returns every version of key, newest first.
func (r *MvccReader) ScanValuesInDefault(key []byte) ([]VersionedValue, error) {
	var out []VersionedValue
	err := r.snap.store.IterateVersions(key, func(ver uint64, w *mvccstore.Write) (bool, error) {
		r.stats.WriteReads++
		out = append(out, VersionedValue{StartTS: w.StartTS, CommitTS: ver, Write: w})
		return true, nil
	})
	return out, err
}

// VersionedValue is one entry of a key's version chain.
type VersionedValue struct {
	StartTS  uint64
	CommitTS uint64
	Write    *mvccstore.Write
}

// ScanLocks walks locks from startKey to the end of the key space whose StartTS <=
// maxTS, up to limit (0 = unbounded), returning the matched (key, lock)
// pairs and whether the scan may have more beyond limit.
func (r *MvccReader) ScanLocks(startKey []byte, maxTS uint64, limit int) ([]KeyLock, bool, error) {
	var out []KeyLock
	hasRemain := false
	err := r.snap.store.ScanLocks(startKey, nil, math.MaxUint64, func(key []byte, lock *mvccstore.Lock) (bool, error) {
		r.stats.LockReads++
		if lock.StartTS > maxTS {
			return true, nil
		}
		if limit > 0 && len(out) >= limit {
			hasRemain = true
			return false, nil
		}
		out = append(out, KeyLock{Key: key, Lock: lock})
		return true, nil
	})
	return out, hasRemain, err
}

// KeyLock pairs a raw key with its decoded lock.
type KeyLock struct {
	Key  []byte
	Lock *mvccstore.Lock
}
