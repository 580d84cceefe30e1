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

// Package mvccstore is the durable half of the MVCC key space: memcomparable
// key encoding, the on-disk lock/write record formats, and a leveldb-backed
// Store that the txn layer reads through and writes to via batches of
// Modify values. It holds no command semantics; those live in the txn
// package's MvccTxn and MvccReader, which is the split TiKV draws between
// building modifications and applying them.
package mvccstore

import (
	"bytes"

	"github.com/pingcap/goleveldb/leveldb"
	"github.com/pingcap/goleveldb/leveldb/storage"
	"github.com/pingcap/goleveldb/leveldb/util"
	"github.com/pkg/errors"
)

// Store is a leveldb-backed key space keyed by mvccEncode(key, ver).
type Store struct {
	db *leveldb.DB
}

// NewStore opens (or creates) a Store at path. An empty path opens an
// in-memory store, useful for tests and the bundled sample binary.
func NewStore(path string) (*Store, error) {
	var stor storage.Storage
	var err error
	if path == "" {
		stor = storage.NewMemStorage()
	} else {
		stor, err = storage.OpenFile(path, false)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying leveldb handle.
func (s *Store) Close() error {
	return errors.WithStack(s.db.Close())
}

// Apply writes a batch of Modify values atomically. The engine layer calls
// this off the command-processing goroutines once a write command's
// modifications have been built.
func (s *Store) Apply(modifies []Modify) error {
	batch := &leveldb.Batch{}
	for _, m := range modifies {
		switch m.Type {
		case ModifyPut:
			batch.Put(m.EncodedKey, m.Value)
		case ModifyDelete:
			batch.Delete(m.EncodedKey)
		}
	}
	return errors.WithStack(s.db.Write(batch, nil))
}

// GetLock returns key's lock record, or nil if key is not locked.
func (s *Store) GetLock(key []byte) (*Lock, error) {
	it := newIterator(s.db, &util.Range{Start: mvccEncode(key, lockVer)})
	defer it.Release()
	dec := lockDecoder{expectKey: key}
	ok, err := dec.Decode(it)
	if err != nil || !ok {
		return nil, err
	}
	return &dec.lock, nil
}

// GetValue returns the value visible to a read at ts, walking the version
// chain newest-first and skipping lock-type write records.
func (s *Store) GetValue(key []byte, ts uint64) ([]byte, error) {
	w, err := s.getWriteForRead(key, ts)
	if err != nil || w == nil {
		return nil, err
	}
	if w.Type == TypeDelete || w.Type == TypeRollback {
		return nil, nil
	}
	return w.Value, nil
}

func (s *Store) getWriteForRead(key []byte, ts uint64) (*Write, error) {
	it := newIterator(s.db, &util.Range{Start: mvccEncode(key, ts)})
	defer it.Release()
	for it.Valid() {
		k, ver, err := mvccDecode(it.Key())
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(k, key) {
			return nil, nil
		}
		if ver == lockVer {
			it.Next()
			continue
		}
		var w Write
		if err := w.UnmarshalBinary(it.Value()); err != nil {
			return nil, err
		}
		if w.Type == TypeLock {
			it.Next()
			continue
		}
		return &w, nil
	}
	return nil, nil
}

// GetTxnCommitInfo finds the commit (or rollback) record key received from
// startTS, if any.
func (s *Store) GetTxnCommitInfo(key []byte, startTS uint64) (*Write, bool, error) {
	it := newIterator(s.db, &util.Range{Start: mvccEncode(key, lockVer)})
	defer it.Release()
	w, ok, err := getTxnCommitInfo(it, key, startTS)
	if err != nil || !ok {
		return nil, false, err
	}
	return &w, true, nil
}

// ScanLocks walks every lock in [startKey, endKey) with StartTS <= maxTS,
// invoking f for each. f returning false stops the scan early.
func (s *Store) ScanLocks(startKey, endKey []byte, maxTS uint64, f func(key []byte, lock *Lock) (bool, error)) error {
	it, _, err := newScanIterator(s.db, startKey, endKey)
	if err != nil {
		return err
	}
	defer it.Release()
	for it.Valid() {
		key, ver, err := mvccDecode(it.Key())
		if err != nil {
			return err
		}
		if ver != lockVer {
			it.Next()
			continue
		}
		var lock Lock
		if err := lock.UnmarshalBinary(it.Value()); err != nil {
			return err
		}
		it.Next()
		if lock.StartTS > maxTS {
			continue
		}
		cont, err := f(append([]byte(nil), key...), &lock)
		if err != nil || !cont {
			return err
		}
	}
	return nil
}

// ScanKeys walks distinct keys visible at ts in [startKey, endKey), up to
// limit keys (limit <= 0 means unbounded), invoking f with each key's
// value; keys with no visible value are skipped and do not count.
func (s *Store) ScanKeys(startKey, endKey []byte, ts uint64, limit int, f func(key, value []byte) error) error {
	it, _, err := newScanIterator(s.db, startKey, endKey)
	if err != nil {
		return err
	}
	defer it.Release()
	count := 0
	for it.Valid() {
		if limit > 0 && count >= limit {
			break
		}
		key, _, err := mvccDecode(it.Key())
		if err != nil {
			return err
		}
		value, err := s.GetValue(key, ts)
		if err != nil {
			return err
		}
		skip := skipDecoder{currKey: key}
		if _, err := skip.Decode(it); err != nil {
			return err
		}
		if value != nil {
			if err := f(key, value); err != nil {
				return err
			}
			count++
		}
	}
	return nil
}

// IterateVersions walks every version record of key, newest first, calling
// f for each until it returns false.
func (s *Store) IterateVersions(key []byte, f func(ver uint64, w *Write) (bool, error)) error {
	it := newIterator(s.db, &util.Range{Start: mvccEncode(key, lockVer)})
	defer it.Release()
	for it.Valid() {
		k, ver, err := mvccDecode(it.Key())
		if err != nil {
			return err
		}
		if !bytes.Equal(k, key) {
			return nil
		}
		if ver != lockVer {
			var w Write
			if err := w.UnmarshalBinary(it.Value()); err != nil {
				return err
			}
			cont, err := f(ver, &w)
			if err != nil || !cont {
				return err
			}
		}
		it.Next()
	}
	return nil
}
