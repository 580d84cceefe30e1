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
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidEncodedKey describes parsing an invalid format of an encoded key.
var ErrInvalidEncodedKey = errors.New("invalid encoded key")

const lockVer uint64 = math.MaxUint64

const (
	encGroupSize = 8
	encMarker    = byte(0xFF)
)

// encodeBytes memcomparable-encodes b in 8-byte groups, each followed by a
// marker byte carrying the pad count of that group. This keeps the byte
// order of the encoding monotonic in b, including across embedded zero
// bytes, so ranges built from raw keys scan in the expected order.
func encodeBytes(b []byte) []byte {
	dLen := len(b)
	reserve := (dLen/encGroupSize+1)*(encGroupSize+1)
	result := make([]byte, 0, reserve)
	for idx := 0; idx <= dLen; idx += encGroupSize {
		remain := dLen - idx
		padCount := 0
		if remain >= encGroupSize {
			result = append(result, b[idx:idx+encGroupSize]...)
		} else {
			padCount = encGroupSize - remain
			result = append(result, b[idx:]...)
			result = append(result, make([]byte, padCount)...)
		}
		result = append(result, encMarker-byte(padCount))
		if remain < encGroupSize {
			break
		}
	}
	return result
}

// decodeBytes is the inverse of encodeBytes; it returns the decoded data and
// whatever bytes followed it.
func decodeBytes(b []byte) (remain, data []byte, err error) {
	data = make([]byte, 0, len(b))
	for {
		if len(b) < encGroupSize+1 {
			return nil, nil, errors.WithStack(ErrInvalidEncodedKey)
		}
		group := b[:encGroupSize]
		marker := b[encGroupSize]
		padCount := int(encMarker - marker)
		if padCount > encGroupSize {
			return nil, nil, errors.WithStack(ErrInvalidEncodedKey)
		}
		realGroupSize := encGroupSize - padCount
		data = append(data, group[:realGroupSize]...)
		b = b[encGroupSize+1:]
		if padCount != 0 {
			return b, data, nil
		}
	}
}

// encodeUintDesc appends ver encoded so that larger versions sort before
// smaller ones in ascending byte order.
func encodeUintDesc(b []byte, ver uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], ^ver)
	return append(b, buf[:]...)
}

func decodeUintDesc(b []byte) (remain []byte, ver uint64, err error) {
	if len(b) < 8 {
		return nil, 0, errors.WithStack(ErrInvalidEncodedKey)
	}
	ver = ^binary.BigEndian.Uint64(b[:8])
	return b[8:], ver, nil
}

// mvccEncode returns the encoded storage key for key@ver. Keys with the
// same raw key sort together, newest version first.
func mvccEncode(key []byte, ver uint64) []byte {
	b := encodeBytes(key)
	return encodeUintDesc(b, ver)
}

// mvccDecode parses the raw key and version out of an encoded storage key.
func mvccDecode(encodedKey []byte) ([]byte, uint64, error) {
	remain, key, err := decodeBytes(encodedKey)
	if err != nil {
		return nil, 0, err
	}
	remain, ver, err := decodeUintDesc(remain)
	if err != nil {
		return nil, 0, err
	}
	if len(remain) != 0 {
		return nil, 0, errors.WithStack(ErrInvalidEncodedKey)
	}
	return key, ver, nil
}
