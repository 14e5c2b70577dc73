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

// Package dbtest holds the behaviour every db backend must share.
package dbtest

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hetcons/go-hetcons/db"
)

// TestDatabase runs the common database operations against d and closes it.
func TestDatabase(t *testing.T, d db.Database) {
	// create bucket
	err := d.NewBucket("TEST")
	assert.Equal(t, nil, err)
	err = d.NewBucket("OTHER")
	assert.Equal(t, nil, err)

	// test get nonexistance key
	val, err := d.Get("TEST", []byte("none"))
	assert.Equal(t, db.ErrKeyNotFound, err)
	assert.Equal(t, []byte(nil), val)

	// test set key/value pair
	err = d.Put("TEST", []byte("testKey"), []byte("testValue"))
	assert.Equal(t, nil, err)

	// test get value of key
	val, err = d.Get("TEST", []byte("testKey"))
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte("testValue"), val)

	// buckets do not share keys
	_, err = d.Get("OTHER", []byte("testKey"))
	assert.Equal(t, db.ErrKeyNotFound, err)

	// test prefix scan
	assert.Nil(t, d.Put("TEST", []byte("slot/a/1"), []byte("1")))
	assert.Nil(t, d.Put("TEST", []byte("slot/a/2"), []byte("2")))
	assert.Nil(t, d.Put("TEST", []byte("slot/b/1"), []byte("3")))
	assert.Nil(t, d.Put("OTHER", []byte("slot/a/3"), []byte("4")))
	vals, err := d.GetAll("TEST", []byte("slot/a/"))
	assert.Equal(t, nil, err)
	var got []string
	for _, v := range vals {
		got = append(got, string(v))
	}
	sort.Strings(got)
	assert.Equal(t, []string{"1", "2"}, got)

	// test delete
	err = d.Delete("TEST", []byte("testKey"))
	assert.Equal(t, nil, err)
	_, err = d.Get("TEST", []byte("testKey"))
	assert.Equal(t, db.ErrKeyNotFound, err)

	assert.Equal(t, nil, d.Close())
}
