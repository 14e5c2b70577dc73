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

package consensus

import (
	"time"

	"github.com/wunderlist/ttlcache"

	"github.com/hetcons/go-hetcons/hetpb"
)

// internal cache of the votes resolved from stored phase messages,
// the main purpose of the cache is to avoid walking the 1a and the
// nested certificates of the same message again and again.
var voteCache *ttlcache.Cache

func init() {
	voteCache = ttlcache.NewCache(time.Minute)
}

// vote is the round and the value a 1b or 2b message stands for.
type vote struct {
	Ballot Ballot `cbor:"1,keyasint"`
	Value  Value  `cbor:"2,keyasint"`
}

func getCachedVote(ref Reference) (vote, bool) {
	raw, ok := voteCache.Get(ref.Hash)
	if !ok {
		return vote{}, false
	}
	var v vote
	if err := hetpb.Decode([]byte(raw), &v); err != nil {
		return vote{}, false
	}
	return v, true
}

func putCachedVote(ref Reference, v vote) {
	b, err := hetpb.Encode(v)
	if err != nil {
		return
	}
	voteCache.Set(ref.Hash, string(b))
}
