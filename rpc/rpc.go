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

// Package rpc contains the gRPC server of an observer node and the
// client helpers peers and tools use to talk to it.
package rpc

import (
	"errors"
)

var (
	ErrEmptyNetworkID = errors.New("empty network id")
	ErrEmptyPayload   = errors.New("empty payload")
	ErrNoLiveClients  = errors.New("no live clients")
	ErrNotFound       = errors.New("resource not found")
)
