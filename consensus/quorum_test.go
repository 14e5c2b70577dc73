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
	"testing"

	"github.com/stretchr/testify/assert"
)

func testQuorums() []ObserverQuorum {
	return []ObserverQuorum{
		{Name: "majority", Owner: "n1", Members: []string{"n1", "n2", "n3", "n4"}, Threshold: 3},
	}
}

func TestRegisterFirstWriterWins(t *testing.T) {
	qe := NewQuorumEvaluator()
	assert.True(t, qe.Register("chain", testQuorums()))

	other := []ObserverQuorum{{Name: "other", Members: []string{"x"}}}
	assert.False(t, qe.Register("chain", other))

	qs := qe.Quorums("chain")
	assert.Equal(t, 1, len(qs))
	assert.Equal(t, "majority", qs[0].Name)
	assert.Nil(t, qe.Quorums("unknown"))
}

func TestTallyAccept(t *testing.T) {
	qe := NewQuorumEvaluator()
	qe.Register("chain", testQuorums())
	tally := qe.NewTally("chain")

	b := Ballot{Counter: 1, Value: "v"}
	v := Value{Data: []byte("v")}

	_, ok := tally.Accept("n3", Reference{Hash: "r3"}, v, b)
	assert.False(t, ok)
	_, ok = tally.Accept("n1", Reference{Hash: "r1"}, v, b)
	assert.False(t, ok)

	// test duplicated vote is not counted twice
	_, ok = tally.Accept("n1", Reference{Hash: "r1"}, v, b)
	assert.False(t, ok)
	assert.Equal(t, 2, tally.Voters(b, v))

	// test vote for another value is tallied apart
	_, ok = tally.Accept("n2", Reference{Hash: "x2"}, Value{Data: []byte("w")}, b)
	assert.False(t, ok)

	// test vote from a non member does not help
	_, ok = tally.Accept("n9", Reference{Hash: "r9"}, v, b)
	assert.False(t, ok)

	result, ok := tally.Accept("n2", Reference{Hash: "r2"}, v, b)
	assert.True(t, ok)
	assert.Equal(t, "majority", result.Quorum.Name)
	assert.Equal(t, []Reference{{Hash: "r1"}, {Hash: "r2"}, {Hash: "r3"}}, result.References)
	assert.Equal(t, []string{"n1", "n2", "n3"}, result.Participants)
	assert.Equal(t, b, result.Ballot)
	assert.True(t, v.Equal(result.Value))

	// test quorum is reported once
	_, ok = tally.Accept("n4", Reference{Hash: "r4"}, v, b)
	assert.False(t, ok)
}

func TestTallyOrderIndependent(t *testing.T) {
	qe := NewQuorumEvaluator()
	qe.Register("chain", testQuorums())
	b := Ballot{Counter: 3}
	v := Value{Data: []byte("v")}

	t1 := qe.NewTally("chain")
	t1.Accept("n1", Reference{Hash: "b"}, v, b)
	t1.Accept("n2", Reference{Hash: "c"}, v, b)
	r1, ok := t1.Accept("n3", Reference{Hash: "a"}, v, b)
	assert.True(t, ok)

	t2 := qe.NewTally("chain")
	t2.Accept("n3", Reference{Hash: "a"}, v, b)
	t2.Accept("n2", Reference{Hash: "c"}, v, b)
	r2, ok := t2.Accept("n1", Reference{Hash: "b"}, v, b)
	assert.True(t, ok)

	assert.Equal(t, r1.References, r2.References)
}

func TestIsQuorum(t *testing.T) {
	qe := NewQuorumEvaluator()
	qe.Register("chain", []ObserverQuorum{
		{Name: "all", Members: []string{"n1", "n2"}},
		{Name: "any-two", Members: []string{"n3", "n4", "n5"}, Threshold: 2},
	})
	qs := qe.Quorums("chain")

	_, ok := IsQuorum(qs, []string{"n1"})
	assert.False(t, ok)
	q, ok := IsQuorum(qs, []string{"n2", "n1"})
	assert.True(t, ok)
	assert.Equal(t, "all", q.Name)
	q, ok = IsQuorum(qs, []string{"n5", "n1", "n3"})
	assert.True(t, ok)
	assert.Equal(t, "any-two", q.Name)

	// test empty quorum definitions are never satisfied
	_, ok = IsQuorum(nil, []string{"n1"})
	assert.False(t, ok)
}
