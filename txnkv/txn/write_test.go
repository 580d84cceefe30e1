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
	"testing"

	"github.com/pingcap/kvproto/pkg/kvrpcpb"
	"github.com/stretchr/testify/require"

	"github.com/txnkv/executor/config"
	"github.com/txnkv/executor/internal/mvccstore"
)

func applyWriteResult(t *testing.T, snap Snapshot, wr *WriteResult) {
	t.Helper()
	if len(wr.ToBeWrite) == 0 {
		return
	}
	require.NoError(t, snap.store.Apply(wr.ToBeWrite))
}

func TestProcessPrewriteCleanReturnsFullBatch(t *testing.T) {
	snap := newTestSnapshot(t)
	cmd := &Command{
		Kind:       KindPrewrite,
		Mutations:  []*kvrpcpb.Mutation{{Op: kvrpcpb.Op_Put, Key: []byte("k1"), Value: []byte("v1")}},
		PrimaryKey: []byte("k1"),
		StartTS:    100,
		Options:    &Options{LockTTL: 1000},
	}
	wr, err := processWrite(snap, cmd, config.Default(), nil)
	require.NoError(t, err)
	require.Equal(t, PRMultiRes, wr.PR.Kind)
	require.Empty(t, wr.PR.MultiRes)
	require.NotEmpty(t, wr.ToBeWrite)
}

func TestProcessPrewriteWithOneConflictReturnsLocks(t *testing.T) {
	snap := newTestSnapshot(t)
	holder := NewMvccTxn(snap, 10, true)
	require.NoError(t, holder.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.Op_Put, Key: []byte("k1"), Value: []byte("v0")}, []byte("k1"), &Options{LockTTL: 1000}))
	applyTxn(t, snap, holder)

	cmd := &Command{
		Kind: KindPrewrite,
		Mutations: []*kvrpcpb.Mutation{
			{Op: kvrpcpb.Op_Put, Key: []byte("k1"), Value: []byte("v1")},
			{Op: kvrpcpb.Op_Put, Key: []byte("k2"), Value: []byte("v2")},
		},
		PrimaryKey: []byte("k1"),
		StartTS:    20,
		Options:    &Options{LockTTL: 1000},
	}
	wr, err := processWrite(snap, cmd, config.Default(), nil)
	require.NoError(t, err)
	require.Equal(t, PRMultiRes, wr.PR.Kind)
	require.Len(t, wr.PR.MultiRes, 1)
	require.Empty(t, wr.ToBeWrite, "a lock conflict must discard any partial modifications")
}

func TestProcessCommitRejectsNonIncreasingTS(t *testing.T) {
	snap := newTestSnapshot(t)
	cmd := &Command{Kind: KindCommit, Keys: [][]byte{[]byte("k1")}, LockTS: 100, CommitTS: 100}
	_, err := processWrite(snap, cmd, config.Default(), nil)
	require.Error(t, err)
	_, ok := err.(*ErrInvalidTxnTso)
	require.True(t, ok)
}

func TestProcessCommitWakesUpLockManager(t *testing.T) {
	snap := newTestSnapshot(t)
	txn := NewMvccTxn(snap, 100, true)
	require.NoError(t, txn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.Op_Put, Key: []byte("k1"), Value: []byte("v1")}, []byte("k1"), &Options{LockTTL: 1000}))
	applyTxn(t, snap, txn)

	lm := &fakeLockManager{}
	cmd := &Command{Kind: KindCommit, Ctx: &kvrpcpb.Context{}, Keys: [][]byte{[]byte("k1")}, LockTS: 100, CommitTS: 110}
	wr, err := processWrite(snap, cmd, config.Default(), lm)
	require.NoError(t, err)
	require.Equal(t, PRRes, wr.PR.Kind)
	applyWriteResult(t, snap, wr)
	require.Len(t, lm.calls, 1)
	require.Equal(t, uint64(110), lm.calls[0].commitTS)
}

func TestProcessAcquirePessimisticLockHitsExistingLock(t *testing.T) {
	snap := newTestSnapshot(t)
	holder := NewMvccTxn(snap, 150, true)
	require.NoError(t, holder.AcquirePessimisticLock(PLMutation{Key: []byte("k2")}, []byte("k2"), &Options{ForUpdateTS: 150, LockTTL: 1000}))
	applyTxn(t, snap, holder)

	cmd := &Command{
		Kind:        KindAcquirePessimisticLock,
		Ctx:         &kvrpcpb.Context{},
		PLMutations: []PLMutation{{Key: []byte("k2")}},
		PrimaryKey:  []byte("k2"),
		StartTS:     200,
		Options:     &Options{ForUpdateTS: 200, LockTTL: 1000, IsFirstLock: true, WaitTimeoutMs: 1000},
	}
	wr, err := processWrite(snap, cmd, config.Default(), nil)
	require.NoError(t, err)
	require.NotNil(t, wr.LockWait)
	require.Empty(t, wr.ToBeWrite)
	require.Equal(t, uint64(150), wr.LockWait.Lock.LockVersion)
	require.True(t, wr.LockWait.IsFirstLock)
}

func TestProcessResolveLockWriteHalfResolvesEachLockByTxnStatus(t *testing.T) {
	snap := newTestSnapshot(t)
	txn := NewMvccTxn(snap, 10, true)
	require.NoError(t, txn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.Op_Put, Key: []byte("k1"), Value: []byte("v1")}, []byte("k1"), &Options{LockTTL: 1000}))
	applyTxn(t, snap, txn)
	txn2 := NewMvccTxn(snap, 20, true)
	require.NoError(t, txn2.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.Op_Put, Key: []byte("k2"), Value: []byte("v2")}, []byte("k2"), &Options{LockTTL: 1000}))
	applyTxn(t, snap, txn2)

	cmd := &Command{
		Kind: KindResolveLock,
		Ctx:  &kvrpcpb.Context{},
		TxnStatus: map[uint64]uint64{
			10: 15,
			20: 0,
		},
		KeyLocks: []KeyLock{
			{Key: []byte("k1"), Lock: &mvccstore.Lock{StartTS: 10}},
			{Key: []byte("k2"), Lock: &mvccstore.Lock{StartTS: 20}},
		},
	}
	lm := &fakeLockManager{}
	cfg := config.Default()
	wr, err := processWrite(snap, cmd, cfg, lm)
	require.NoError(t, err)
	require.Equal(t, PRRes, wr.PR.Kind)
	applyWriteResult(t, snap, wr)

	lock, err := snap.store.GetLock([]byte("k1"))
	require.NoError(t, err)
	require.Nil(t, lock)
	lock, err = snap.store.GetLock([]byte("k2"))
	require.NoError(t, err)
	require.Nil(t, lock)

	v, err := snap.store.GetValue([]byte("k1"), 100)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
	require.Len(t, lm.calls, 2, "one wake-up per distinct start_ts aggregator")
}

func TestProcessResolveLockWriteHalfStopsAtWriteSizeBudget(t *testing.T) {
	snap := newTestSnapshot(t)
	keyLocks := make([]KeyLock, 0, 3)
	txnStatus := map[uint64]uint64{}
	for i := uint64(1); i <= 3; i++ {
		txn := NewMvccTxn(snap, i, true)
		require.NoError(t, txn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.Op_Put, Key: []byte{byte('a' + i)}, Value: []byte("v")}, []byte{byte('a' + i)}, &Options{LockTTL: 1000}))
		applyTxn(t, snap, txn)
		keyLocks = append(keyLocks, KeyLock{Key: []byte{byte('a' + i)}, Lock: &mvccstore.Lock{StartTS: i}})
		txnStatus[i] = i + 100
	}

	cfg := config.Default()
	cfg.MaxTxnWriteSize = 1
	cmd := &Command{Kind: KindResolveLock, Ctx: &kvrpcpb.Context{}, TxnStatus: txnStatus, KeyLocks: keyLocks}
	wr, err := processWrite(snap, cmd, cfg, nil)
	require.NoError(t, err)
	require.Equal(t, PRNextCommand, wr.PR.Kind)
	require.NotNil(t, wr.PR.NextCommand)
	require.Equal(t, KindResolveLock, wr.PR.NextCommand.Kind)
	require.NotEmpty(t, wr.PR.NextCommand.ScanKey, "must carry a resume point when the batch stops early")
}

func TestProcessTxnHeartBeatReturnsTxnStatus(t *testing.T) {
	snap := newTestSnapshot(t)
	txn := NewMvccTxn(snap, 100, true)
	require.NoError(t, txn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.Op_Put, Key: []byte("k1"), Value: []byte("v1")}, []byte("k1"), &Options{LockTTL: 1000}))
	applyTxn(t, snap, txn)

	cmd := &Command{Kind: KindTxnHeartBeat, Ctx: &kvrpcpb.Context{}, StartTS: 100, PrimaryKey: []byte("k1"), AdviseTTL: 9000}
	wr, err := processWrite(snap, cmd, config.Default(), nil)
	require.NoError(t, err)
	require.Equal(t, PRTxnStatus, wr.PR.Kind)
	require.Equal(t, uint64(9000), wr.PR.LockTTL)
}

func TestProcessResolveLockWriteHalfFlushesInnerTxnStatistics(t *testing.T) {
	snap := newTestSnapshot(t)
	txn := NewMvccTxn(snap, 10, true)
	require.NoError(t, txn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.Op_Put, Key: []byte("k1"), Value: []byte("v1")}, []byte("k1"), &Options{LockTTL: 1000}))
	applyTxn(t, snap, txn)

	cmd := &Command{
		Kind:      KindResolveLock,
		Ctx:       &kvrpcpb.Context{},
		TxnStatus: map[uint64]uint64{10: 15},
		KeyLocks:  []KeyLock{{Key: []byte("k1"), Lock: &mvccstore.Lock{StartTS: 10}}},
	}

	tlsStatsMu.Lock()
	before := tlsStatsAgg[cmd.Kind.String()]
	var beforeReads int
	if before != nil {
		beforeReads = before.LockReads
	}
	tlsStatsMu.Unlock()

	_, err := processWrite(snap, cmd, config.Default(), nil)
	require.NoError(t, err)

	tlsStatsMu.Lock()
	defer tlsStatsMu.Unlock()
	after := tlsStatsAgg[cmd.Kind.String()]
	require.NotNil(t, after, "processResolveLockWriteHalf must flush its own MvccTxn's statistics")
	require.Greater(t, after.LockReads, beforeReads, "resolving a lock reads the key's current lock before committing it")
}

func TestProcessWritePanicsOnUnsupportedKind(t *testing.T) {
	snap := newTestSnapshot(t)
	cmd := &Command{Kind: KindScanLock}
	require.Panics(t, func() {
		_, _ = processWrite(snap, cmd, config.Default(), nil)
	})
}
