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

package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hetcons/go-hetcons/db/boltdb"
	"github.com/hetcons/go-hetcons/db/memdb"
	"github.com/hetcons/go-hetcons/hetpb"
)

func testMessage(identity string) *hetpb.Message {
	return &hetpb.Message{
		Type: hetpb.MessageType1a,
		M1a: &hetpb.Message1a{Proposal: hetpb.Proposal{
			Slots:  []hetpb.ChainSlot{{Chain: "c", Index: 1}},
			Value:  hetpb.Value{Data: []byte("v")},
			Ballot: hetpb.Ballot{Counter: 1},
		}},
		ObserverGroupRef: hetpb.Reference{Hash: "g"},
		Identity:         identity,
	}
}

func TestBlocks(t *testing.T) {
	s := New(memdb.New(), 16)

	msg := testMessage("n1")
	ref, err := s.Put(msg)
	assert.Nil(t, err)
	expected, _ := hetpb.GetReference(msg)
	assert.Equal(t, expected, ref)
	assert.True(t, s.Has(ref))

	// putting the same content twice yields the same reference
	ref2, err := s.Put(testMessage("n1"))
	assert.Nil(t, err)
	assert.Equal(t, ref, ref2)

	got, err := s.Get(ref)
	assert.Nil(t, err)
	assert.Equal(t, msg, got)

	// unknown and empty references fail visibly
	_, err = s.Get(hetpb.Reference{Hash: "missing"})
	assert.True(t, errors.Is(err, ErrBlockNotFound))
	_, err = s.Get(hetpb.Reference{})
	assert.Equal(t, ErrEmptyReference, err)
	assert.False(t, s.Has(hetpb.Reference{Hash: "missing"}))
}

func TestBlocksSurviveCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	d, err := boltdb.New(path)
	assert.Nil(t, err)

	// a cache of one forces reads to go to the database
	s := New(d, 1)
	ref1, err := s.Put(testMessage("n1"))
	assert.Nil(t, err)
	ref2, err := s.Put(testMessage("n2"))
	assert.Nil(t, err)

	got, err := s.Get(ref1)
	assert.Nil(t, err)
	assert.Equal(t, "n1", got.Identity)
	got, err = s.Get(ref2)
	assert.Nil(t, err)
	assert.Equal(t, "n2", got.Identity)
	assert.Nil(t, d.Close())
}

func TestObserverGroup(t *testing.T) {
	s := New(memdb.New(), 16)
	group := &hetpb.ObserverGroup{
		Name: "g",
		Observers: []hetpb.Observer{
			{ID: "n1", Quorums: []hetpb.ObserverQuorum{{Name: "q", Owner: "n1", Members: []string{"n1", "n2"}}}},
		},
	}
	ref, err := s.PutObserverGroup(group)
	assert.Nil(t, err)

	got, err := s.GetObserverGroup(ref)
	assert.Nil(t, err)
	assert.Equal(t, group, got)

	_, err = s.GetObserverGroup(hetpb.Reference{Hash: "nope"})
	assert.True(t, errors.Is(err, ErrGroupNotFound))
}

func TestAttestation(t *testing.T) {
	s := New(memdb.New(), 16)
	slot := hetpb.ChainSlot{Chain: "c", Index: 3}

	assert.False(t, s.HasAttestation(slot, "n1"))
	err := s.PutAttestation(&hetpb.Attestation{Slots: []hetpb.ChainSlot{slot}, Observer: "n1"})
	assert.Nil(t, err)
	assert.True(t, s.HasAttestation(slot, "n1"))
	assert.False(t, s.HasAttestation(slot, "n2"))

	err = s.PutAttestation(&hetpb.Attestation{Observer: "n1"})
	assert.Equal(t, ErrIncompleteAttestation, err)
}

func TestDecision(t *testing.T) {
	s := New(memdb.New(), 16)
	slots := []hetpb.ChainSlot{{Chain: "c", Index: 1}, {Chain: "c", Index: 2}}
	dec := &hetpb.Decision{
		ConsensusID: hetpb.ConsensusID(slots),
		Slots:       slots,
		Ballot:      hetpb.Ballot{Counter: 2},
		Value:       hetpb.Value{Data: []byte("v")},
		Message2bs:  []hetpb.Reference{{Hash: "a"}, {Hash: "b"}},
	}
	assert.Nil(t, s.PutDecision(dec))

	got, err := s.GetSlotDecision(slots[1])
	assert.Nil(t, err)
	assert.Equal(t, dec, got)

	_, err = s.GetSlotDecision(hetpb.ChainSlot{Chain: "c", Index: 9})
	assert.Equal(t, ErrDecisionNotFound, err)

	decs, err := s.GetDecisions()
	assert.Nil(t, err)
	assert.Equal(t, 1, len(decs))
}
