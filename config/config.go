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

// Package config holds the tunables of the transaction command executor.
package config

import "time"

// Config bundles the knobs the scheduler pool and write processor consult.
type Config struct {
	// ResolveLockBatchSize caps the number of matching locks collected per
	// ResolveLock read-half iteration before handing control back to the
	// write half.
	ResolveLockBatchSize int
	// MaxTxnWriteSize is the byte budget of modifications a single
	// ResolveLock write batch may accumulate before it pauses and asks the
	// scheduler to resume with a fresh scan_key.
	MaxTxnWriteSize int
	// NormalWorkerPoolSize and HighWorkerPoolSize size the two
	// priority-separated worker pools described in the concurrency model.
	NormalWorkerPoolSize int
	HighWorkerPoolSize   int
	// SlowCommandThreshold is the processing duration above which a
	// command is logged by the slow-command timer.
	SlowCommandThreshold time.Duration
}

// Default returns the tunables used throughout this repository's tests and
// sample wiring: 256 keys per resolve-lock scan, a 32KB write-batch budget,
// and modest worker pools, mirroring the constants named in the spec.
func Default() Config {
	return Config{
		ResolveLockBatchSize: 256,
		MaxTxnWriteSize:      32 * 1024,
		NormalWorkerPoolSize: 8,
		HighWorkerPoolSize:   4,
		SlowCommandThreshold: 500 * time.Millisecond,
	}
}
