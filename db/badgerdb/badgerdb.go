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

package badgerdb

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/hetcons/go-hetcons/db"
)

func init() {
	db.Register("badger", New)
}

// badger has no buckets, keys are prefixed with the bucket name
// and a zero byte instead.
type badgerdb struct {
	db *badger.DB
}

// New opens a badger database in the directory.
func New(path string) (db.Database, error) {
	bd, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger %s failed: %v", path, err)
	}
	return &badgerdb{db: bd}, nil
}

func bucketKey(bucket string, key []byte) []byte {
	k := make([]byte, 0, len(bucket)+1+len(key))
	k = append(k, bucket...)
	k = append(k, 0)
	return append(k, key...)
}

func (bd *badgerdb) NewBucket(name string) error {
	return nil
}

func (bd *badgerdb) Put(bucket string, key, value []byte) error {
	return bd.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bucketKey(bucket, key), value)
	})
}

func (bd *badgerdb) Delete(bucket string, key []byte) error {
	return bd.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(bucketKey(bucket, key))
	})
}

func (bd *badgerdb) Get(bucket string, key []byte) ([]byte, error) {
	var val []byte
	err := bd.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bucketKey(bucket, key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (bd *badgerdb) GetAll(bucket string, keyPrefix []byte) ([][]byte, error) {
	prefix := bucketKey(bucket, keyPrefix)
	var vals [][]byte
	err := bd.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			vals = append(vals, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vals, nil
}

func (bd *badgerdb) Close() error {
	return bd.db.Close()
}
