// Copyright 2019 The go-hetcons Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package leveldb

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/hetcons/go-hetcons/db"
)

func init() {
	db.Register("leveldb", New)
}

type leveldbWrapper struct {
	db *leveldb.DB
}

// New opens or creates a leveldb database in the directory,
// buckets are emulated with key prefixes.
func New(path string) (db.Database, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s failed: %v", path, err)
	}
	return &leveldbWrapper{db: ldb}, nil
}

func bucketKey(bucket string, key []byte) []byte {
	k := make([]byte, 0, len(bucket)+1+len(key))
	k = append(k, bucket...)
	k = append(k, 0)
	return append(k, key...)
}

func (lw *leveldbWrapper) NewBucket(name string) error {
	return nil
}

// write key-value to db
func (lw *leveldbWrapper) Put(bucket string, key, value []byte) error {
	return lw.db.Put(bucketKey(bucket, key), value, nil)
}

func (lw *leveldbWrapper) Delete(bucket string, key []byte) error {
	return lw.db.Delete(bucketKey(bucket, key), nil)
}

// get value of the key from db
func (lw *leveldbWrapper) Get(bucket string, key []byte) ([]byte, error) {
	val, err := lw.db.Get(bucketKey(bucket, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (lw *leveldbWrapper) GetAll(bucket string, keyPrefix []byte) ([][]byte, error) {
	it := lw.db.NewIterator(util.BytesPrefix(bucketKey(bucket, keyPrefix)), nil)
	defer it.Release()

	var vals [][]byte
	for it.Next() {
		vals = append(vals, append([]byte(nil), it.Value()...))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return vals, nil
}

func (lw *leveldbWrapper) Close() error {
	return lw.db.Close()
}
