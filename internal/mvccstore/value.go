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

import "github.com/pingcap/kvproto/pkg/kvrpcpb"

// ValueType tags a committed write record.
type ValueType byte

const (
	TypePut ValueType = iota
	TypeDelete
	TypeLock
	TypeRollback
)

var valueTypeOpMap = [...]kvrpcpb.Op{
	TypePut:      kvrpcpb.Op_Put,
	TypeDelete:   kvrpcpb.Op_Del,
	TypeRollback: kvrpcpb.Op_Rollback,
	TypeLock:     kvrpcpb.Op_Lock,
}

// Write is a committed (or rolled-back) version of a key: the record found
// when walking a key's version chain.
type Write struct {
	Type     ValueType
	StartTS  uint64
	CommitTS uint64
	Value    []byte
}

// MarshalBinary encodes the write record into a flat, length-prefixed form.
func (w *Write) MarshalBinary() ([]byte, error) {
	var buf []byte
	buf = append(buf, byte(w.Type))
	buf = appendUint64(buf, w.StartTS)
	buf = appendUint64(buf, w.CommitTS)
	buf = appendBytes(buf, w.Value)
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (w *Write) UnmarshalBinary(data []byte) error {
	if len(data) < 1 {
		return ErrInvalidEncodedKey
	}
	w.Type = ValueType(data[0])
	data = data[1:]
	var err error
	data, w.StartTS, err = readUint64(data)
	if err != nil {
		return err
	}
	data, w.CommitTS, err = readUint64(data)
	if err != nil {
		return err
	}
	_, w.Value, err = readBytes(data)
	return err
}
