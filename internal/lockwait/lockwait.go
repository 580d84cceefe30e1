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

// Package lockwait is a minimal in-process lock-wait registry exercising
// the WaitFor/WakeUp contract the write processor depends on. The real
// lock manager's wait queue and deadlock detection are named out of scope
// by the spec this repository implements; this is scaffolding for tests
// and the bundled sample wiring, not a production lock manager.
package lockwait

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// WaitResult is delivered on a waiter's channel once it is woken or times
// out.
type WaitResult struct {
	// Woken is true if a WakeUp call resolved this waiter; false means the
	// wait timed out.
	Woken bool
	// CommitTS is the commit_ts passed to the WakeUp call that resolved
	// this waiter, 0 if the wait timed out or the lock was rolled back.
	CommitTS uint64
	// Pessimistic mirrors the flag WakeUp was called with.
	Pessimistic bool
}

type waiter struct {
	token  uuid.UUID
	startTS uint64
	result chan WaitResult
	once   sync.Once
}

func (w *waiter) resolve(r WaitResult) {
	w.once.Do(func() {
		w.result <- r
		close(w.result)
	})
}

// Manager is an in-process LockManager implementation: WaitFor registers a
// waiter keyed by the blocking lock's hash; WakeUp resolves every waiter
// registered against any of the released hashes.
type Manager struct {
	mu      sync.Mutex
	waiters map[uint64][]*waiter

	group singleflight.Group
}

// New builds an empty lock-wait registry.
func New() *Manager {
	return &Manager{waiters: map[uint64][]*waiter{}}
}

// WaitFor registers a waiter for the given lock's hash and returns a
// channel that resolves when woken or when waitTimeout elapses. isFirstLock
// is accepted for parity with the WaitForLock message but does not change
// this registry's behavior (it would inform deadlock-detection priority in
// a full lock manager).
func (m *Manager) WaitFor(startTS uint64, lockHash uint64, isFirstLock bool, waitTimeout time.Duration) <-chan WaitResult {
	w := &waiter{token: uuid.New(), startTS: startTS, result: make(chan WaitResult, 1)}
	m.mu.Lock()
	m.waiters[lockHash] = append(m.waiters[lockHash], w)
	m.mu.Unlock()

	if waitTimeout > 0 {
		time.AfterFunc(waitTimeout, func() {
			w.resolve(WaitResult{Woken: false})
		})
	}
	return w.result
}

// WakeUp implements txn.LockManager: it resolves every waiter registered
// against any of hashes with a woken result. Concurrent WakeUp calls that
// share a hash are collapsed with singleflight so a waiter is only ever
// notified once even if two commands release overlapping hash sets back
// to back.
func (m *Manager) WakeUp(startTS uint64, hashes []uint64, commitTS uint64, pessimistic bool) {
	for _, h := range hashes {
		hash := h
		m.group.Do(strconv.FormatUint(hash, 10), func() (interface{}, error) {
			m.mu.Lock()
			ws := m.waiters[hash]
			delete(m.waiters, hash)
			m.mu.Unlock()
			for _, w := range ws {
				w.resolve(WaitResult{Woken: true, CommitTS: commitTS, Pessimistic: pessimistic})
			}
			return nil, nil
		})
	}
}
