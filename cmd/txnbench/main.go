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

// Command txnbench wires the bundled mvccstore engine and lockwait lock
// manager to the command executor and drives a handful of commands
// through it end to end: an optimistic prewrite+commit, and a
// pessimistic conflict that exercises WaitForLock/WakeUp. It is a
// demonstration harness, not a server.
package main

import (
	"fmt"
	"time"

	farm "github.com/dgryski/go-farm"
	"github.com/pingcap/kvproto/pkg/kvrpcpb"

	"github.com/txnkv/executor/config"
	"github.com/txnkv/executor/internal/engine"
	"github.com/txnkv/executor/internal/lockwait"
	"github.com/txnkv/executor/internal/mvccstore"
	"github.com/txnkv/executor/internal/oracle"
	"github.com/txnkv/executor/txnkv/txn"
)

// tsMinter hands out increasing timestamps composed from a fixed physical
// reading and an advancing logical counter, the way a real deployment mints
// start_ts/commit_ts pairs from a single physical clock reading.
type tsMinter struct {
	physical int64
	logical  int64
}

func newTSMinter() *tsMinter {
	return &tsMinter{physical: oracle.GetPhysical(time.Now())}
}

func (m *tsMinter) next() uint64 {
	m.logical++
	return oracle.ComposeTS(m.physical, m.logical)
}

// printScheduler renders each posted Msg to stdout, the stand-in for a
// real scheduler's message bus.
type printScheduler struct {
	done chan txn.Msg
}

func (s *printScheduler) OnMsg(msg txn.Msg) {
	switch msg.Kind {
	case txn.MsgReadFinished:
		fmt.Printf("cid=%d ReadFinished pr.Kind=%d\n", msg.Cid, msg.PR.Kind)
	case txn.MsgWriteFinished:
		fmt.Printf("cid=%d WriteFinished pr.Kind=%d result=%v\n", msg.Cid, msg.PR.Kind, msg.Result)
	case txn.MsgFinishedWithErr:
		fmt.Printf("cid=%d FinishedWithErr err=%v\n", msg.Cid, msg.Err)
	case txn.MsgWaitForLock:
		fmt.Printf("cid=%d WaitForLock startTS=%d lockKey=%q waitTimeoutMs=%d\n",
			msg.Cid, msg.StartTS, msg.Lock.Key, msg.WaitTimeoutMs)
	}
	s.done <- msg
}

func mutation(op kvrpcpb.Op, key, value []byte) *kvrpcpb.Mutation {
	return &kvrpcpb.Mutation{Op: op, Key: key, Value: value}
}

func main() {
	store, err := mvccstore.NewStore("")
	if err != nil {
		panic(err)
	}
	defer store.Close()

	eng := engine.NewLocalEngine(store)
	lockMgr := lockwait.New()
	cfg := config.Default()
	pool := txn.NewPriorityPool(cfg)
	sched := &printScheduler{done: make(chan txn.Msg, 16)}
	exec := txn.NewExecutor(pool, sched, lockMgr, eng, cfg)

	snap := txn.NewSnapshot(store)
	ts := newTSMinter()

	// Scenario 1: clean optimistic prewrite then commit.
	startTS1 := ts.next()
	prewrite := &txn.Command{
		Kind:       txn.KindPrewrite,
		Ctx:        &kvrpcpb.Context{},
		Mutations:  []*kvrpcpb.Mutation{mutation(kvrpcpb.Op_Put, []byte("k1"), []byte("v1"))},
		PrimaryKey: []byte("k1"),
		StartTS:    startTS1,
		Options:    &txn.Options{LockTTL: 3000},
	}
	exec.Execute(txn.CbContext{}, txn.SnapshotResult{Snap: snap}, txn.NewTask(prewrite))
	<-sched.done

	commit := &txn.Command{
		Kind:     txn.KindCommit,
		Ctx:      &kvrpcpb.Context{},
		Keys:     [][]byte{[]byte("k1")},
		LockTS:   startTS1,
		CommitTS: ts.next(),
	}
	exec.Execute(txn.CbContext{}, txn.SnapshotResult{Snap: snap}, txn.NewTask(commit))
	<-sched.done

	// Scenario 2: pessimistic acquire conflicts with an existing lock.
	holderTS := ts.next()
	holder := &txn.Command{
		Kind:        txn.KindAcquirePessimisticLock,
		Ctx:         &kvrpcpb.Context{},
		PLMutations: []txn.PLMutation{{Key: []byte("k2")}},
		PrimaryKey:  []byte("k2"),
		StartTS:     holderTS,
		Options:     &txn.Options{ForUpdateTS: holderTS, LockTTL: 3000},
	}
	exec.Execute(txn.CbContext{}, txn.SnapshotResult{Snap: snap}, txn.NewTask(holder))
	<-sched.done

	conflictTS := ts.next()
	conflict := &txn.Command{
		Kind:        txn.KindAcquirePessimisticLock,
		Ctx:         &kvrpcpb.Context{},
		PLMutations: []txn.PLMutation{{Key: []byte("k2")}},
		PrimaryKey:  []byte("k2"),
		StartTS:     conflictTS,
		Options:     &txn.Options{ForUpdateTS: conflictTS, LockTTL: 3000, IsFirstLock: true, WaitTimeoutMs: 1000},
	}
	exec.Execute(txn.CbContext{}, txn.SnapshotResult{Snap: snap}, txn.NewTask(conflict))
	msg := <-sched.done
	if msg.Kind == txn.MsgWaitForLock {
		waitCh := lockMgr.WaitFor(msg.StartTS, farm.Fingerprint64(msg.Lock.Key), msg.IsFirstLock, time.Duration(msg.WaitTimeoutMs)*time.Millisecond)

		rollback := &txn.Command{
			Kind:        txn.KindPessimisticRollback,
			Ctx:         &kvrpcpb.Context{},
			Keys:        [][]byte{[]byte("k2")},
			StartTS:     holderTS,
			ForUpdateTS: holderTS,
		}
		exec.Execute(txn.CbContext{}, txn.SnapshotResult{Snap: snap}, txn.NewTask(rollback))
		<-sched.done

		result := <-waitCh
		fmt.Printf("waiter woken=%v commitTS=%d\n", result.Woken, result.CommitTS)
	}
}
