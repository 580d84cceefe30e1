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
	"encoding/binary"

	"github.com/pingcap/kvproto/pkg/kvrpcpb"
	"github.com/pkg/errors"
)

// Lock is the on-disk lock record written by Prewrite/AcquirePessimisticLock
// and removed by Commit/Rollback.
type Lock struct {
	StartTS     uint64
	Primary     []byte
	Value       []byte
	Op          kvrpcpb.Op
	TTL         uint64
	ForUpdateTS uint64
	MinCommitTS uint64
	TxnSize     uint64
}

// LockErr builds the KeyIsLocked error the write processor collects when a
// mutation finds a lock belonging to another transaction.
func (l *Lock) LockErr(key []byte) error {
	return &ErrKeyIsLocked{
		Key:         key,
		Primary:     l.Primary,
		StartTS:     l.StartTS,
		TTL:         l.TTL,
		TxnSize:     l.TxnSize,
		LockType:    l.Op,
		ForUpdateTS: l.ForUpdateTS,
	}
}

// MarshalBinary encodes the lock into a flat, length-prefixed record.
func (l *Lock) MarshalBinary() ([]byte, error) {
	var buf []byte
	buf = appendUint64(buf, l.StartTS)
	buf = appendBytes(buf, l.Primary)
	buf = appendBytes(buf, l.Value)
	buf = appendUint64(buf, uint64(l.Op))
	buf = appendUint64(buf, l.TTL)
	buf = appendUint64(buf, l.ForUpdateTS)
	buf = appendUint64(buf, l.MinCommitTS)
	buf = appendUint64(buf, l.TxnSize)
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (l *Lock) UnmarshalBinary(data []byte) error {
	var err error
	data, l.StartTS, err = readUint64(data)
	if err != nil {
		return err
	}
	data, l.Primary, err = readBytes(data)
	if err != nil {
		return err
	}
	data, l.Value, err = readBytes(data)
	if err != nil {
		return err
	}
	var op uint64
	data, op, err = readUint64(data)
	if err != nil {
		return err
	}
	l.Op = kvrpcpb.Op(op)
	data, l.TTL, err = readUint64(data)
	if err != nil {
		return err
	}
	data, l.ForUpdateTS, err = readUint64(data)
	if err != nil {
		return err
	}
	data, l.MinCommitTS, err = readUint64(data)
	if err != nil {
		return err
	}
	_, l.TxnSize, err = readUint64(data)
	return err
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBytes(buf, v []byte) []byte {
	buf = appendUint64(buf, uint64(len(v)))
	return append(buf, v...)
}

func readUint64(data []byte) ([]byte, uint64, error) {
	if len(data) < 8 {
		return nil, 0, errors.WithStack(ErrInvalidEncodedKey)
	}
	return data[8:], binary.BigEndian.Uint64(data[:8]), nil
}

func readBytes(data []byte) ([]byte, []byte, error) {
	data, n, err := readUint64(data)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(data)) < n {
		return nil, nil, errors.WithStack(ErrInvalidEncodedKey)
	}
	if n == 0 {
		return data, nil, nil
	}
	return data[n:], data[:n:n], nil
}
