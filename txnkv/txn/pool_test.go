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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/txnkv/executor/config"
)

func TestPriorityPoolRunsBothLanes(t *testing.T) {
	cfg := config.Default()
	cfg.NormalWorkerPoolSize = 2
	cfg.HighWorkerPoolSize = 2
	pool := NewPriorityPool(cfg)

	var wg sync.WaitGroup
	wg.Add(2)
	var normalRan, highRan bool
	pool.Spawn(PriorityNormal, func() { normalRan = true; wg.Done() })
	pool.Spawn(PriorityHigh, func() { highRan = true; wg.Done() })

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for both lanes to run")
	}
	require.True(t, normalRan)
	require.True(t, highRan)
}
