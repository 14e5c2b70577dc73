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
	"sync"

	"github.com/deckarep/golang-set"
)

// QuorumEvaluator keeps the quorum definitions of every chain the
// observer takes part in. The first registration of a chain wins.
type QuorumEvaluator struct {
	lock   sync.RWMutex
	chains map[string][]*ObserverQuorum
}

func NewQuorumEvaluator() *QuorumEvaluator {
	return &QuorumEvaluator{chains: make(map[string][]*ObserverQuorum)}
}

// Register stores the quorums of the chain if none are known yet,
// it reports whether this call installed them.
func (qe *QuorumEvaluator) Register(chain string, quorums []ObserverQuorum) bool {
	qe.lock.Lock()
	defer qe.lock.Unlock()
	if _, ok := qe.chains[chain]; ok {
		return false
	}
	qs := make([]*ObserverQuorum, 0, len(quorums))
	for i := range quorums {
		q := quorums[i]
		q.Members = append([]string(nil), q.Members...)
		qs = append(qs, &q)
	}
	qe.chains[chain] = qs
	return true
}

func (qe *QuorumEvaluator) Quorums(chain string) []*ObserverQuorum {
	qe.lock.RLock()
	defer qe.lock.RUnlock()
	return qe.chains[chain]
}

// NewTally creates an empty vote tally against the quorums of the chain.
func (qe *QuorumEvaluator) NewTally(chain string) *Tally {
	return &Tally{
		quorums: qe.Quorums(chain),
		rounds:  make(map[string]*roundVotes),
	}
}

// QuorumResult is the witness set of a satisfied quorum. References
// are sorted by hash so every node renders the same certificate.
type QuorumResult struct {
	Quorum       *ObserverQuorum
	Ballot       Ballot
	Value        Value
	References   []Reference
	Participants []string
}

type roundVotes struct {
	ballot  Ballot
	value   Value
	voters  mapset.Set
	refs    map[string]Reference
	reached bool
}

// Tally folds the votes of one phase of one proposal.
type Tally struct {
	lock    sync.Mutex
	quorums []*ObserverQuorum
	rounds  map[string]*roundVotes
}

func voteKey(ballot Ballot, value Value) string {
	return ballot.String() + "#" + value.Hash()
}

// Accept counts the vote of the voter for (ballot, value). It returns
// the witness set the first time any quorum is satisfied for that
// pair, a repeated vote is never counted twice.
func (t *Tally) Accept(voter string, ref Reference, value Value, ballot Ballot) (*QuorumResult, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	key := voteKey(ballot, value)
	rv, ok := t.rounds[key]
	if !ok {
		rv = &roundVotes{
			ballot: ballot,
			value:  value,
			voters: mapset.NewSet(),
			refs:   make(map[string]Reference),
		}
		t.rounds[key] = rv
	}
	if !rv.voters.Add(voter) {
		return nil, false
	}
	rv.refs[voter] = ref
	if rv.reached {
		return nil, false
	}

	q := satisfiedQuorum(t.quorums, rv.voters)
	if q == nil {
		return nil, false
	}
	rv.reached = true

	result := &QuorumResult{
		Quorum: q,
		Ballot: rv.ballot,
		Value:  rv.value,
	}
	var refs []Reference
	for _, m := range q.Members {
		if r, ok := rv.refs[m]; ok {
			refs = append(refs, r)
			result.Participants = append(result.Participants, m)
		}
	}
	sort.Strings(result.Participants)
	result.References = sortReferences(refs)
	return result, true
}

// Voters returns how many distinct voters backed (ballot, value).
func (t *Tally) Voters(ballot Ballot, value Value) int {
	t.lock.Lock()
	defer t.lock.Unlock()
	if rv, ok := t.rounds[voteKey(ballot, value)]; ok {
		return rv.voters.Cardinality()
	}
	return 0
}

// Check whether the voters satisfy the quorum
func isQuorum(q *ObserverQuorum, voters mapset.Set) bool {
	count := 0
	for _, m := range q.Members {
		if voters.Contains(m) {
			count++
		}
	}
	return count >= q.Required() && count > 0
}

// Find the first quorum the voters satisfy
func satisfiedQuorum(quorums []*ObserverQuorum, voters mapset.Set) *ObserverQuorum {
	for _, q := range quorums {
		if isQuorum(q, voters) {
			return q
		}
	}
	return nil
}

// IsQuorum checks whether the signers satisfy any of the quorums.
func IsQuorum(quorums []*ObserverQuorum, signers []string) (*ObserverQuorum, bool) {
	voters := mapset.NewSet()
	for _, s := range signers {
		voters.Add(s)
	}
	q := satisfiedQuorum(quorums, voters)
	return q, q != nil
}
