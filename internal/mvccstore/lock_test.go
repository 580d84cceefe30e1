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
	"testing"

	"github.com/pingcap/kvproto/pkg/kvrpcpb"
	"github.com/stretchr/testify/require"
)

func TestLockMarshalRoundTrip(t *testing.T) {
	l := &Lock{
		StartTS:     42,
		Primary:     []byte("primary"),
		Value:       []byte("value"),
		Op:          kvrpcpb.Op_Put,
		TTL:         3000,
		ForUpdateTS: 43,
		MinCommitTS: 44,
		TxnSize:     1,
	}
	data, err := l.MarshalBinary()
	require.NoError(t, err)

	var got Lock
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, *l, got)
}

func TestLockMarshalRoundTripEmptyValue(t *testing.T) {
	l := &Lock{StartTS: 1, Primary: []byte("k"), Op: kvrpcpb.Op_PessimisticLock, TTL: 10}
	data, err := l.MarshalBinary()
	require.NoError(t, err)

	var got Lock
	require.NoError(t, got.UnmarshalBinary(data))
	require.Nil(t, got.Value)
	require.Equal(t, kvrpcpb.Op_PessimisticLock, got.Op)
}

func TestLockErrBuildsKeyIsLocked(t *testing.T) {
	l := &Lock{StartTS: 7, Primary: []byte("p"), TTL: 100, Op: kvrpcpb.Op_Put}
	err := l.LockErr([]byte("k"))
	locked, ok := err.(*ErrKeyIsLocked)
	require.True(t, ok)
	require.Equal(t, uint64(7), locked.StartTS)
	require.Equal(t, []byte("k"), locked.Key)
}

func TestWriteMarshalRoundTrip(t *testing.T) {
	w := &Write{Type: TypePut, StartTS: 10, CommitTS: 20, Value: []byte("v")}
	data, err := w.MarshalBinary()
	require.NoError(t, err)

	var got Write
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, *w, got)
}

func TestWriteMarshalRoundTripRollback(t *testing.T) {
	w := &Write{Type: TypeRollback, StartTS: 5, CommitTS: 5}
	data, err := w.MarshalBinary()
	require.NoError(t, err)

	var got Write
	require.NoError(t, got.UnmarshalBinary(data))
	require.Nil(t, got.Value)
	require.Equal(t, TypeRollback, got.Type)
}
