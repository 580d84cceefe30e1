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

package mvccstore

import (
	"fmt"

	"github.com/pingcap/kvproto/pkg/kvrpcpb"
)

// ErrKeyIsLocked is returned by a mutation that finds a lock belonging to a
// different transaction. It is never fatal to the command that surfaces it;
// callers collect it and continue or fail fast depending on the command.
type ErrKeyIsLocked struct {
	Key         []byte
	Primary     []byte
	StartTS     uint64
	TTL         uint64
	TxnSize     uint64
	LockType    kvrpcpb.Op
	ForUpdateTS uint64
}

func (e *ErrKeyIsLocked) Error() string {
	return fmt.Sprintf("key is locked, key: %q, primary: %q, startTS: %d, ttl: %d", e.Key, e.Primary, e.StartTS, e.TTL)
}

// ErrKeyAlreadyExist is returned when an Insert mutation targets a key that
// already has a committed value visible at the transaction's start_ts.
type ErrKeyAlreadyExist struct {
	Key []byte
}

func (e *ErrKeyAlreadyExist) Error() string {
	return fmt.Sprintf("key already exists: %q", e.Key)
}

// ErrAlreadyCommitted is returned by rollback/cleanup when the transaction
// they target has already committed.
type ErrAlreadyCommitted uint64

func (e ErrAlreadyCommitted) Error() string {
	return fmt.Sprintf("txn already committed at commitTS %d", uint64(e))
}

// ErrAlreadyRollbacked describes a prewrite whose own start_ts already has
// a rollback tombstone on disk. Prewrite in this repository does not check
// for such a tombstone and never returns this error.
type ErrAlreadyRollbacked struct {
	StartTS uint64
	Key     []byte
}

func (e *ErrAlreadyRollbacked) Error() string {
	return fmt.Sprintf("txn %d already rolled back on key %q", e.StartTS, e.Key)
}

// ErrRetryable signals a condition the caller should retry at a higher
// level (e.g. the scheduler re-dispatching after a latch release).
type ErrRetryable string

func (e ErrRetryable) Error() string { return string(e) }

// ErrAbort is a hard MVCC-layer invariant violation.
type ErrAbort string

func (e ErrAbort) Error() string { return string(e) }

// ErrTxnNotFound is returned by MvccTxn.TxnHeartBeat when the primary key
// holds no lock of the transaction.
type ErrTxnNotFound struct {
	StartTS    uint64
	PrimaryKey []byte
}

func (e *ErrTxnNotFound) Error() string {
	return fmt.Sprintf("txn not found, startTS: %d, primary: %q", e.StartTS, e.PrimaryKey)
}

// ErrCommitTSExpired describes a commit whose commit_ts is lower than the
// lock's advertised min_commit_ts. Commit in this repository does not
// compare against MinCommitTS and never returns this error.
type ErrCommitTSExpired struct {
	StartTS           uint64
	AttemptedCommitTS uint64
	Key               []byte
	MinCommitTS       uint64
}

func (e *ErrCommitTSExpired) Error() string {
	return fmt.Sprintf("commit ts %d expired, min commit ts is %d, key: %q", e.AttemptedCommitTS, e.MinCommitTS, e.Key)
}
