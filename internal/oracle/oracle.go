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

// Package oracle deals with the timestamp layout shared by every
// transaction: a physical millisecond clock reading in the high bits and a
// logical counter in the low bits, so two timestamps minted within the same
// millisecond still order correctly.
package oracle

import "time"

const physicalShiftBits = 18

// ComposeTS packs a physical millisecond reading and a logical counter into
// a single monotonically increasing timestamp.
func ComposeTS(physical, logical int64) uint64 {
	return uint64((physical << physicalShiftBits) + logical)
}

// ExtractPhysical returns the physical millisecond component of ts.
func ExtractPhysical(ts uint64) int64 {
	return int64(ts >> physicalShiftBits)
}

// GetPhysical returns the millisecond reading of t since the Unix epoch.
func GetPhysical(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
