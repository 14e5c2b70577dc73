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

// Package db defines the key-value storage interface used by the
// content store together with a registry of named backends.
package db

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("database is closed")
)

// Database is a bucketed key-value store. Get returns ErrKeyNotFound
// for absent keys on every backend.
type Database interface {
	NewBucket(name string) error
	Put(bucket string, key, value []byte) error
	Delete(bucket string, key []byte) error
	Get(bucket string, key []byte) ([]byte, error)
	GetAll(bucket string, keyPrefix []byte) ([][]byte, error)
	Close() error
}

// Ctor opens a database at the path.
type Ctor func(path string) (Database, error)

var (
	ctorLock     sync.RWMutex
	constructors = make(map[string]Ctor)
)

// database backend should call this function to register itself
// in order to be used by application
func Register(name string, ctor Ctor) {
	ctorLock.Lock()
	defer ctorLock.Unlock()
	constructors[name] = ctor
}

// Open opens the registered backend at the path.
func Open(name string, path string) (Database, error) {
	ctorLock.RLock()
	ctor, ok := constructors[name]
	ctorLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database %s not registered", name)
	}
	return ctor(path)
}

// Backends lists the registered backend names.
func Backends() []string {
	ctorLock.RLock()
	defer ctorLock.RUnlock()
	var names []string
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
