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
	"errors"
	"testing"
	"time"

	"github.com/pingcap/kvproto/pkg/kvrpcpb"
	"github.com/stretchr/testify/require"

	"github.com/txnkv/executor/config"
	"github.com/txnkv/executor/internal/mvccstore"
)

type fakeEngine struct {
	store *mvccstore.Store
}

func (e *fakeEngine) AsyncWrite(_ interface{}, modifies []mvccstore.Modify, cb func(error)) error {
	go cb(e.store.Apply(modifies))
	return nil
}

type collectingScheduler struct {
	msgs chan Msg
}

func (s *collectingScheduler) OnMsg(msg Msg) { s.msgs <- msg }

func newTestExecutor(t *testing.T) (*Executor, Snapshot, *collectingScheduler, *fakeLockManager) {
	t.Helper()
	store, err := mvccstore.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	snap := NewSnapshot(store)
	sched := &collectingScheduler{msgs: make(chan Msg, 16)}
	lm := &fakeLockManager{}
	cfg := config.Default()
	pool := NewPriorityPool(cfg)
	exec := NewExecutor(pool, sched, lm, &fakeEngine{store: store}, cfg)
	return exec, snap, sched, lm
}

func recvMsg(t *testing.T, ch chan Msg) Msg {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduler message")
		return Msg{}
	}
}

func TestExecutorPrewriteThenCommitEndToEnd(t *testing.T) {
	exec, snap, sched, _ := newTestExecutor(t)

	prewrite := &Command{
		Kind:       KindPrewrite,
		Ctx:        &kvrpcpb.Context{},
		Mutations:  []*kvrpcpb.Mutation{{Op: kvrpcpb.Op_Put, Key: []byte("k1"), Value: []byte("v1")}},
		PrimaryKey: []byte("k1"),
		StartTS:    100,
		Options:    &Options{LockTTL: 3000},
	}
	exec.Execute(CbContext{}, SnapshotResult{Snap: snap}, NewTask(prewrite))
	msg := recvMsg(t, sched.msgs)
	require.Equal(t, MsgWriteFinished, msg.Kind)
	require.Equal(t, PRMultiRes, msg.PR.Kind)
	require.Empty(t, msg.PR.MultiRes)

	commit := &Command{
		Kind:     KindCommit,
		Ctx:      &kvrpcpb.Context{},
		Keys:     [][]byte{[]byte("k1")},
		LockTS:   100,
		CommitTS: 110,
	}
	exec.Execute(CbContext{}, SnapshotResult{Snap: snap}, NewTask(commit))
	msg = recvMsg(t, sched.msgs)
	require.Equal(t, MsgWriteFinished, msg.Kind)
	require.Equal(t, PRRes, msg.PR.Kind)

	v, err := snap.store.GetValue([]byte("k1"), 200)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
}

func TestExecutorSnapshotErrorPostsFinishedWithErr(t *testing.T) {
	exec, _, sched, _ := newTestExecutor(t)
	wantErr := errors.New("snapshot failed")
	exec.Execute(CbContext{}, SnapshotResult{Err: wantErr}, NewTask(&Command{Kind: KindPrewrite}))
	msg := recvMsg(t, sched.msgs)
	require.Equal(t, MsgFinishedWithErr, msg.Kind)
	require.Equal(t, wantErr, msg.Err)
}

func TestExecutorPessimisticConflictPostsWaitForLock(t *testing.T) {
	exec, snap, sched, _ := newTestExecutor(t)

	holder := &Command{
		Kind:        KindAcquirePessimisticLock,
		Ctx:         &kvrpcpb.Context{},
		PLMutations: []PLMutation{{Key: []byte("k2")}},
		PrimaryKey:  []byte("k2"),
		StartTS:     150,
		Options:     &Options{ForUpdateTS: 150, LockTTL: 3000},
	}
	exec.Execute(CbContext{}, SnapshotResult{Snap: snap}, NewTask(holder))
	recvMsg(t, sched.msgs)

	conflict := &Command{
		Kind:        KindAcquirePessimisticLock,
		Ctx:         &kvrpcpb.Context{},
		PLMutations: []PLMutation{{Key: []byte("k2")}},
		PrimaryKey:  []byte("k2"),
		StartTS:     200,
		Options:     &Options{ForUpdateTS: 200, LockTTL: 3000, IsFirstLock: true, WaitTimeoutMs: 1000},
	}
	exec.Execute(CbContext{}, SnapshotResult{Snap: snap}, NewTask(conflict))
	msg := recvMsg(t, sched.msgs)
	require.Equal(t, MsgWaitForLock, msg.Kind)
	require.Equal(t, uint64(200), msg.StartTS)
	require.Equal(t, uint64(150), msg.Lock.LockVersion)
}

func TestExecutorReadCommandDispatchesToReadPath(t *testing.T) {
	exec, snap, sched, _ := newTestExecutor(t)
	cmd := &Command{Kind: KindMvccByKey, Key: []byte("missing")}
	exec.Execute(CbContext{}, SnapshotResult{Snap: snap}, NewTask(cmd))
	msg := recvMsg(t, sched.msgs)
	require.Equal(t, MsgReadFinished, msg.Kind)
	require.Equal(t, PRMvccKey, msg.PR.Kind)
}
