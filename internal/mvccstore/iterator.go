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
	"bytes"

	"github.com/pingcap/goleveldb/leveldb"
	"github.com/pingcap/goleveldb/leveldb/iterator"
	"github.com/pingcap/goleveldb/leveldb/util"
)

// Iterator wraps iterator.Iterator to expose a Valid() check the way the
// rest of this package expects, instead of re-checking Next()'s bool every
// call site.
type Iterator struct {
	iterator.Iterator
	valid bool
}

// Next advances the iterator.
func (it *Iterator) Next() {
	it.valid = it.Iterator.Next()
}

// Valid reports whether the iterator currently points at an entry.
func (it *Iterator) Valid() bool {
	return it.valid
}

func newIterator(db *leveldb.DB, slice *util.Range) *Iterator {
	it := &Iterator{db.NewIterator(slice, nil), true}
	it.Next()
	return it
}

// newScanIterator builds an iterator over the encoded key range
// [startKey, endKey) and returns the first raw key the caller should look
// at (the startKey itself, or the store's first key when startKey is
// empty).
func newScanIterator(db *leveldb.DB, startKey, endKey []byte) (*Iterator, []byte, error) {
	var start, end []byte
	if len(startKey) > 0 {
		start = mvccEncode(startKey, lockVer)
	}
	if len(endKey) > 0 {
		end = mvccEncode(endKey, lockVer)
	}
	it := newIterator(db, &util.Range{Start: start, Limit: end})
	if len(startKey) == 0 && it.Valid() {
		key, _, err := mvccDecode(it.Key())
		if err != nil {
			return nil, nil, err
		}
		startKey = key
	}
	return it, startKey, nil
}

type lockDecoder struct {
	lock      Lock
	expectKey []byte
}

// Decode decodes the lock value if the iterator currently sits at
// expectKey's lock record.
func (dec *lockDecoder) Decode(it *Iterator) (bool, error) {
	if it.Error() != nil || !it.Valid() {
		return false, it.Error()
	}
	key, ver, err := mvccDecode(it.Key())
	if err != nil {
		return false, err
	}
	if !bytes.Equal(key, dec.expectKey) || ver != lockVer {
		return false, nil
	}
	var lock Lock
	if err := lock.UnmarshalBinary(it.Value()); err != nil {
		return false, err
	}
	dec.lock = lock
	it.Next()
	return true, nil
}

type valueDecoder struct {
	value     Write
	expectKey []byte
}

// Decode decodes a committed write record if the iterator sits at
// expectKey.
func (dec *valueDecoder) Decode(it *Iterator) (bool, error) {
	if it.Error() != nil || !it.Valid() {
		return false, it.Error()
	}
	key, ver, err := mvccDecode(it.Key())
	if err != nil {
		return false, err
	}
	if !bytes.Equal(key, dec.expectKey) || ver == lockVer {
		return false, nil
	}
	var w Write
	if err := w.UnmarshalBinary(it.Value()); err != nil {
		return false, err
	}
	dec.value = w
	it.Next()
	return true, nil
}

type skipDecoder struct {
	currKey []byte
}

// Decode skips the iterator past every remaining entry for currKey,
// reporting the next distinct key it lands on, if any.
func (dec *skipDecoder) Decode(it *Iterator) (bool, error) {
	if it.Error() != nil {
		return false, it.Error()
	}
	for it.Valid() {
		key, _, err := mvccDecode(it.Key())
		if err != nil {
			return false, err
		}
		if !bytes.Equal(key, dec.currKey) {
			dec.currKey = key
			return true, nil
		}
		it.Next()
	}
	return false, nil
}

func getTxnCommitInfo(it *Iterator, expectKey []byte, startTS uint64) (Write, bool, error) {
	for it.Valid() {
		dec := valueDecoder{expectKey: expectKey}
		ok, err := dec.Decode(it)
		if err != nil || !ok {
			return Write{}, ok, err
		}
		if dec.value.StartTS == startTS {
			return dec.value, true, nil
		}
	}
	return Write{}, false, nil
}
