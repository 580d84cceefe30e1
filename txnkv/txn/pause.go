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
	"time"

	"github.com/pingcap/failpoint"
)

// sleep performs Command::Pause's blocking sleep. Tests can short-circuit
// it via the "mockPauseSkip" failpoint instead of waiting out d.
func sleep(d time.Duration) {
	skip := false
	failpoint.Inject("mockPauseSkip", func(_ failpoint.Value) {
		skip = true
	})
	if skip {
		return
	}
	time.Sleep(d)
}
