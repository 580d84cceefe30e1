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
	"sync"

	farm "github.com/dgryski/go-farm"
	"github.com/pingcap/kvproto/pkg/kvrpcpb"
	"github.com/pkg/errors"

	"github.com/txnkv/executor/internal/mvccstore"
)

// Statistics accumulates the per-command read-side counters the Rust
// source folds into thread-local statics. Go has no direct analogue, so
// callers thread one explicitly through a command's reader/txn calls and
// merge it into the process-wide aggregator when the command completes.
type Statistics struct {
	LockReads  int
	WriteReads int
	ScanSteps  int
}

// Add merges other into s.
func (s *Statistics) Add(other *Statistics) {
	s.LockReads += other.LockReads
	s.WriteReads += other.WriteReads
	s.ScanSteps += other.ScanSteps
}

var (
	tlsStatsMu  sync.Mutex
	tlsStatsAgg = map[string]*Statistics{}
)

// tlsAddStatistics merges a command's Statistics into the process-wide
// aggregator keyed by command tag.
func tlsAddStatistics(tag string, stats *Statistics) {
	tlsStatsMu.Lock()
	defer tlsStatsMu.Unlock()
	agg, ok := tlsStatsAgg[tag]
	if !ok {
		agg = &Statistics{}
		tlsStatsAgg[tag] = agg
	}
	agg.Add(stats)
}

// Snapshot is the point-in-time view a command runs against. It is cheap
// to copy and is held immutably for a command's duration.
type Snapshot struct {
	store *mvccstore.Store
}

// NewSnapshot wraps a store for use by a single command.
func NewSnapshot(store *mvccstore.Store) Snapshot {
	return Snapshot{store: store}
}

// PLMutation is one key of an AcquirePessimisticLock command.
type PLMutation struct {
	Key            []byte
	ShouldNotExist bool
}

// ReleasedLock describes a lock a command freed, forwarded into a
// ReleasedLocks aggregator and eventually the lock manager's WakeUp.
type ReleasedLock struct {
	Hash        uint64
	Pessimistic bool
}

func releasedLockOf(key []byte, op kvrpcpb.Op) *ReleasedLock {
	return &ReleasedLock{
		Hash:        farm.Fingerprint64(key),
		Pessimistic: op == kvrpcpb.Op_PessimisticLock,
	}
}

// MvccTxn is a per-command builder of MVCC mutations over a Snapshot. It
// never writes to the store directly; Commit/Rollback/Prewrite accumulate
// Modify values in txn.modifies, read through the snapshot's store, and
// yield the batch via IntoModifies once the command is done.
type MvccTxn struct {
	snap     Snapshot
	StartTS  uint64
	fillCache bool

	modifies []mvccstore.Modify
	size     int
	stats    Statistics
}

// NewMvccTxn constructs a txn over snap starting at startTS.
func NewMvccTxn(snap Snapshot, startTS uint64, fillCache bool) *MvccTxn {
	return &MvccTxn{snap: snap, StartTS: startTS, fillCache: fillCache}
}

// Stats returns the accumulated read statistics for this command.
func (txn *MvccTxn) Stats() *Statistics { return &txn.stats }

// WriteSize reports the accumulated size, in bytes, of pending
// modifications, used by ResolveLock's batch-size cutoff.
func (txn *MvccTxn) WriteSize() int { return txn.size }

// IntoModifies drains and returns the accumulated modification batch.
func (txn *MvccTxn) IntoModifies() []mvccstore.Modify {
	out := txn.modifies
	txn.modifies = nil
	txn.size = 0
	return out
}

func (txn *MvccTxn) put(m mvccstore.Modify) {
	txn.modifies = append(txn.modifies, m)
	txn.size += len(m.EncodedKey) + len(m.Value)
}

func (txn *MvccTxn) putLock(key []byte, lock *mvccstore.Lock) error {
	m, err := mvccstore.PutLock(key, lock)
	if err != nil {
		return err
	}
	txn.put(m)
	return nil
}

func (txn *MvccTxn) deleteLock(key []byte) {
	txn.put(mvccstore.DeleteLock(key))
}

func (txn *MvccTxn) putWrite(key []byte, ts uint64, w *mvccstore.Write) error {
	m, err := mvccstore.PutWrite(key, ts, w)
	if err != nil {
		return err
	}
	txn.put(m)
	return nil
}

func (txn *MvccTxn) getLock(key []byte) (*mvccstore.Lock, error) {
	txn.stats.LockReads++
	return txn.snap.store.GetLock(key)
}

// Prewrite runs the optimistic prewrite path for one mutation.
func (txn *MvccTxn) Prewrite(mutation *kvrpcpb.Mutation, primary []byte, options *Options) error {
	return txn.prewriteMutation(mutation, primary, false, options)
}

// PessimisticPrewrite runs the pessimistic prewrite path for one mutation,
// which must already hold (or not require) a pessimistic lock per
// isPessimisticLock.
func (txn *MvccTxn) PessimisticPrewrite(mutation *kvrpcpb.Mutation, primary []byte, isPessimisticLock bool, options *Options) error {
	return txn.prewriteMutation(mutation, primary, isPessimisticLock, options)
}

func (txn *MvccTxn) prewriteMutation(mutation *kvrpcpb.Mutation, primary []byte, isPessimisticLock bool, options *Options) error {
	key := mutation.Key
	lock, err := txn.getLock(key)
	if err != nil {
		return err
	}
	if lock != nil {
		if lock.StartTS != txn.StartTS {
			return lock.LockErr(key)
		}
	} else if isPessimisticLock {
		return errors.Errorf("pessimistic prewrite key %q missing its pessimistic lock", key)
	}

	if options.ForUpdateTS == 0 {
		// Optimistic path: conflict-check against the newest committed
		// version visible after our own start_ts.
		if ok, err := txn.hasNewerWrite(key); err != nil {
			return err
		} else if ok {
			return mvccstore.ErrRetryable("write conflict")
		}
	}
	if mutation.Op == kvrpcpb.Op_Insert || mutation.Op == kvrpcpb.Op_CheckNotExists {
		exists, err := txn.keyExists(key)
		if err != nil {
			return err
		}
		if exists {
			return &mvccstore.ErrKeyAlreadyExist{Key: key}
		}
		if mutation.Op == kvrpcpb.Op_CheckNotExists {
			return nil
		}
	}

	op := mutation.Op
	if op == kvrpcpb.Op_Insert {
		op = kvrpcpb.Op_Put
	}
	newLock := &mvccstore.Lock{
		StartTS:     txn.StartTS,
		Primary:     primary,
		Value:       mutation.Value,
		Op:          op,
		TTL:         options.LockTTL,
		ForUpdateTS: options.ForUpdateTS,
		MinCommitTS: options.MinCommitTS,
		TxnSize:     options.TxnSize,
	}
	return txn.putLock(key, newLock)
}

// hasNewerWrite reports whether a committed write exists with commit_ts >=
// txn.StartTS, the optimistic-prewrite conflict condition.
func (txn *MvccTxn) hasNewerWrite(key []byte) (bool, error) {
	found := false
	err := txn.snap.store.IterateVersions(key, func(ver uint64, w *mvccstore.Write) (bool, error) {
		txn.stats.WriteReads++
		if w.CommitTS >= txn.StartTS {
			found = true
			return false, nil
		}
		return false, nil
	})
	return found, err
}

func (txn *MvccTxn) keyExists(key []byte) (bool, error) {
	v, err := txn.snap.store.GetValue(key, txn.StartTS)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// AcquirePessimisticLock locks one key for a pessimistic transaction.
func (txn *MvccTxn) AcquirePessimisticLock(mutation PLMutation, primary []byte, options *Options) error {
	key := mutation.Key
	lock, err := txn.getLock(key)
	if err != nil {
		return err
	}
	if lock != nil {
		if lock.StartTS != txn.StartTS {
			return lock.LockErr(key)
		}
		return nil
	}
	if mutation.ShouldNotExist {
		exists, err := txn.keyExists(key)
		if err != nil {
			return err
		}
		if exists {
			return &mvccstore.ErrKeyAlreadyExist{Key: key}
		}
	}
	newLock := &mvccstore.Lock{
		StartTS:     txn.StartTS,
		Primary:     primary,
		Op:          kvrpcpb.Op_PessimisticLock,
		TTL:         options.LockTTL,
		ForUpdateTS: options.ForUpdateTS,
		MinCommitTS: options.MinCommitTS,
		TxnSize:     options.TxnSize,
	}
	return txn.putLock(key, newLock)
}

// Commit replaces key's lock with a committed write at commitTS.
func (txn *MvccTxn) Commit(key []byte, commitTS uint64) (*ReleasedLock, error) {
	lock, err := txn.getLock(key)
	if err != nil {
		return nil, err
	}
	if lock == nil || lock.StartTS != txn.StartTS {
		w, ok, err := txn.snap.store.GetTxnCommitInfo(key, txn.StartTS)
		if err != nil {
			return nil, err
		}
		if ok && w.Type != mvccstore.TypeRollback {
			return nil, nil
		}
		return nil, mvccstore.ErrRetryable("txn not locked")
	}
	var wt mvccstore.ValueType
	switch lock.Op {
	case kvrpcpb.Op_Put:
		wt = mvccstore.TypePut
	case kvrpcpb.Op_Lock:
		wt = mvccstore.TypeLock
	default:
		wt = mvccstore.TypeDelete
	}
	w := &mvccstore.Write{Type: wt, StartTS: txn.StartTS, CommitTS: commitTS, Value: lock.Value}
	if err := txn.putWrite(key, commitTS, w); err != nil {
		return nil, err
	}
	txn.deleteLock(key)
	return releasedLockOf(key, lock.Op), nil
}

// Rollback removes key's lock (if it belongs to this txn) and leaves a
// rollback tombstone.
func (txn *MvccTxn) Rollback(key []byte) (*ReleasedLock, error) {
	lock, err := txn.getLock(key)
	if err != nil {
		return nil, err
	}
	if lock == nil || lock.StartTS != txn.StartTS {
		w, ok, err := txn.snap.store.GetTxnCommitInfo(key, txn.StartTS)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, mvccstore.ErrAlreadyCommitted(w.CommitTS)
		}
		w := &mvccstore.Write{Type: mvccstore.TypeRollback, StartTS: txn.StartTS, CommitTS: txn.StartTS}
		return nil, txn.putWrite(key, txn.StartTS, w)
	}
	w := &mvccstore.Write{Type: mvccstore.TypeRollback, StartTS: txn.StartTS, CommitTS: txn.StartTS}
	if err := txn.putWrite(key, txn.StartTS, w); err != nil {
		return nil, err
	}
	txn.deleteLock(key)
	return releasedLockOf(key, lock.Op), nil
}

// PessimisticRollback removes a pessimistic lock without leaving a write
// record, used to release locks that never reached prewrite.
func (txn *MvccTxn) PessimisticRollback(key []byte, forUpdateTS uint64) (*ReleasedLock, error) {
	lock, err := txn.getLock(key)
	if err != nil {
		return nil, err
	}
	if lock == nil || lock.StartTS != txn.StartTS || lock.Op != kvrpcpb.Op_PessimisticLock || lock.ForUpdateTS > forUpdateTS {
		return nil, nil
	}
	txn.deleteLock(key)
	return releasedLockOf(key, lock.Op), nil
}

// Cleanup rolls back a single key exactly as Rollback does; currentTS is
// not consulted.
func (txn *MvccTxn) Cleanup(key []byte, currentTS uint64) (*ReleasedLock, error) {
	return txn.Rollback(key)
}

// TxnHeartBeat advances a lock's TTL, returning the effective TTL after
// the update (the max of the current TTL and adviseTTL).
func (txn *MvccTxn) TxnHeartBeat(primaryKey []byte, adviseTTL uint64) (uint64, error) {
	lock, err := txn.getLock(primaryKey)
	if err != nil {
		return 0, err
	}
	if lock == nil || lock.StartTS != txn.StartTS {
		return 0, &mvccstore.ErrTxnNotFound{StartTS: txn.StartTS, PrimaryKey: primaryKey}
	}
	if lock.TTL < adviseTTL {
		lock.TTL = adviseTTL
	}
	if err := txn.putLock(primaryKey, lock); err != nil {
		return 0, err
	}
	return lock.TTL, nil
}
