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

// Package engine is the bundled raw KV write path the write processor's
// modifications are handed to. It is an in-process stand-in for the real
// engine named as an external collaborator in the spec this repository
// implements, backed by the leveldb-based mvccstore.Store.
package engine

import (
	"github.com/txnkv/executor/internal/mvccstore"
)

// LocalEngine applies modification batches against a single
// mvccstore.Store on a dedicated goroutine per call, matching the
// asynchronous contract txn.Engine requires: the caller's goroutine never
// blocks inside AsyncWrite.
type LocalEngine struct {
	Store *mvccstore.Store
}

// NewLocalEngine wraps store as a txn.Engine.
func NewLocalEngine(store *mvccstore.Store) *LocalEngine {
	return &LocalEngine{Store: store}
}

// AsyncWrite applies modifies on a new goroutine and invokes cb with the
// result. It returns a synchronous error only if the batch is rejected
// before being handed off (never true for LocalEngine, which always
// hands off).
func (e *LocalEngine) AsyncWrite(_ interface{}, modifies []mvccstore.Modify, cb func(error)) error {
	go func() {
		cb(e.Store.Apply(modifies))
	}()
	return nil
}
