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

// ModifyType tags a single pending change to the underlying key space.
type ModifyType int

const (
	// ModifyPut writes EncodedKey -> Value.
	ModifyPut ModifyType = iota
	// ModifyDelete removes EncodedKey.
	ModifyDelete
)

// Modify is a single change an MvccTxn accumulates while processing a
// command. The txn layer never writes to the store directly; it returns a
// batch of Modify values that the engine applies asynchronously, mirroring
// the split between building modifications and applying them.
type Modify struct {
	Type       ModifyType
	EncodedKey []byte
	Value      []byte
}

// PutLock returns a modify that installs key's lock record.
func PutLock(key []byte, lock *Lock) (Modify, error) {
	data, err := lock.MarshalBinary()
	if err != nil {
		return Modify{}, err
	}
	return Modify{Type: ModifyPut, EncodedKey: mvccEncode(key, lockVer), Value: data}, nil
}

// DeleteLock returns a modify that removes key's lock record.
func DeleteLock(key []byte) Modify {
	return Modify{Type: ModifyDelete, EncodedKey: mvccEncode(key, lockVer)}
}

// PutWrite returns a modify that installs a committed write record at ts.
func PutWrite(key []byte, ts uint64, w *Write) (Modify, error) {
	data, err := w.MarshalBinary()
	if err != nil {
		return Modify{}, err
	}
	return Modify{Type: ModifyPut, EncodedKey: mvccEncode(key, ts), Value: data}, nil
}
