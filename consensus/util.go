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
	"sort"
	"strings"

	"github.com/hetcons/go-hetcons/hetpb"
)

// Compare two ballots by counter then value, the zero ballot
// is lower than every ballot a proposer creates.
func compareBallots(lb Ballot, rb Ballot) int {
	if lb.Counter < rb.Counter {
		return -1
	} else if lb.Counter > rb.Counter {
		return 1
	}
	return strings.Compare(lb.Value, rb.Value)
}

func maxBallot(lb Ballot, rb Ballot) Ballot {
	if compareBallots(lb, rb) >= 0 {
		return lb
	}
	return rb
}

// Create the ballot following the floor for the value.
func nextBallot(floor Ballot, value Value) Ballot {
	return Ballot{Counter: floor.Counter + 1, Value: value.Hash()}
}

// Check whether two votes are for exactly the same round and value
func sameVote(lb Ballot, lv Value, rb Ballot, rv Value) bool {
	return compareBallots(lb, rb) == 0 && lv.Equal(rv)
}

// Return a sorted copy of the references without duplicates
func sortReferences(refs []Reference) []Reference {
	sorted := make([]Reference, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		if _, ok := seen[r.Hash]; ok {
			continue
		}
		seen[r.Hash] = struct{}{}
		sorted = append(sorted, r)
	}
	sort.Sort(hetpb.ReferenceSlice(sorted))
	return sorted
}

// Slot ids of the proposal in slot order
func slotIDs(slots []ChainSlot) []string {
	ids := make([]string, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.ID())
	}
	return ids
}
