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

// Package hetpb defines the immutable protocol values exchanged by
// hetcons observers and their canonical binary encoding.
package hetpb

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/hetcons/go-hetcons/crypto"
)

type MessageType uint8

const (
	_ MessageType = iota // skip zero
	MessageType1a
	MessageType1b
	MessageType2b
)

func (t MessageType) String() string {
	switch t {
	case MessageType1a:
		return "1a"
	case MessageType1b:
		return "1b"
	case MessageType2b:
		return "2b"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// ChainSlot identifies one position of one chain.
type ChainSlot struct {
	Chain string `cbor:"1,keyasint"`
	Index uint64 `cbor:"2,keyasint"`
}

// ID is the text key of the slot used by slot tables and storage.
func (cs ChainSlot) ID() string {
	return fmt.Sprintf("%s/%d", cs.Chain, cs.Index)
}

func (cs ChainSlot) Less(o ChainSlot) bool {
	if cs.Chain != o.Chain {
		return cs.Chain < o.Chain
	}
	return cs.Index < o.Index
}

// NormalizeSlots returns a sorted copy of the slots without duplicates.
func NormalizeSlots(slots []ChainSlot) []ChainSlot {
	ns := make([]ChainSlot, len(slots))
	copy(ns, slots)
	sort.Slice(ns, func(i, j int) bool { return ns[i].Less(ns[j]) })
	out := ns[:0]
	for i, s := range ns {
		if i > 0 && s == ns[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ConsensusID derives the key shared by every message of the proposal
// instance deciding exactly this set of slots.
func ConsensusID(slots []ChainSlot) string {
	id, err := SHA256Hash(NormalizeSlots(slots))
	if err != nil {
		// slots hold only strings and integers
		panic(fmt.Sprintf("encode slots failed: %v", err))
	}
	return id
}

// Ballot orders competing rounds, counter first and then the
// hash of the value it was created for.
type Ballot struct {
	Counter uint64 `cbor:"1,keyasint"`
	Value   string `cbor:"2,keyasint"`
}

func (b Ballot) String() string {
	return fmt.Sprintf("%d:%s", b.Counter, b.Value)
}

type Value struct {
	Data []byte `cbor:"1,keyasint"`
}

func (v Value) Equal(o Value) bool {
	return bytes.Equal(v.Data, o.Data)
}

func (v Value) Hash() string {
	return crypto.SHA256Hash(v.Data)
}

type Proposal struct {
	Slots  []ChainSlot `cbor:"1,keyasint"`
	Value  Value       `cbor:"2,keyasint"`
	Ballot Ballot      `cbor:"3,keyasint"`
	// round timeout of the proposer in milliseconds
	Timeout int64 `cbor:"4,keyasint"`
}

// Reference is the content hash of an encoded message.
type Reference struct {
	Hash string `cbor:"1,keyasint"`
}

func (r Reference) IsEmpty() bool {
	return r.Hash == ""
}

type Message1a struct {
	Proposal Proposal `cbor:"1,keyasint"`
}

// Message1b promises the ballot of the referenced 1a and carries the
// highest 2a certificate its sender has accepted, if any.
type Message1b struct {
	M1aRef Reference   `cbor:"1,keyasint"`
	M2a    *Message2ab `cbor:"2,keyasint,omitempty"`
}

// Message2ab is a quorum of 1b messages for one 1a, it is the
// certificate a 2b message carries.
type Message2ab struct {
	M1aRef      Reference   `cbor:"1,keyasint"`
	QuorumOf1bs []Reference `cbor:"2,keyasint"`
}

// Message is the signed envelope of every phase message.
type Message struct {
	Type             MessageType `cbor:"1,keyasint"`
	M1a              *Message1a  `cbor:"2,keyasint,omitempty"`
	M1b              *Message1b  `cbor:"3,keyasint,omitempty"`
	M2b              *Message2ab `cbor:"4,keyasint,omitempty"`
	ObserverGroupRef Reference   `cbor:"5,keyasint"`
	Identity         string      `cbor:"6,keyasint"`
	Signature        string      `cbor:"7,keyasint,omitempty"`
}

// ObserverQuorum is a named group of participants, Threshold zero
// means every member is required.
type ObserverQuorum struct {
	Name      string   `cbor:"1,keyasint"`
	Owner     string   `cbor:"2,keyasint"`
	Members   []string `cbor:"3,keyasint"`
	Threshold int      `cbor:"4,keyasint"`
}

// Required is the number of distinct members that satisfy the quorum.
func (q *ObserverQuorum) Required() int {
	if q.Threshold <= 0 || q.Threshold > len(q.Members) {
		return len(q.Members)
	}
	return q.Threshold
}

func (q *ObserverQuorum) IsMember(id string) bool {
	for _, m := range q.Members {
		if m == id {
			return true
		}
	}
	return false
}

type Observer struct {
	ID      string           `cbor:"1,keyasint"`
	Quorums []ObserverQuorum `cbor:"2,keyasint"`
}

type ObserverGroup struct {
	Name      string     `cbor:"1,keyasint"`
	Observers []Observer `cbor:"2,keyasint"`
}

// Observer returns the observer entry with the id.
func (g *ObserverGroup) Observer(id string) *Observer {
	for i := range g.Observers {
		if g.Observers[i].ID == id {
			return &g.Observers[i]
		}
	}
	return nil
}

// Participants returns the sorted union of all quorum members of the observer.
func (o *Observer) Participants() []string {
	seen := make(map[string]struct{})
	var ps []string
	for _, q := range o.Quorums {
		for _, m := range q.Members {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			ps = append(ps, m)
		}
	}
	sort.Strings(ps)
	return ps
}

// Attestation is a decision finalised by an external authority.
type Attestation struct {
	Slots      []ChainSlot `cbor:"1,keyasint"`
	Message2bs []Reference `cbor:"2,keyasint"`
	Observer   string      `cbor:"3,keyasint"`
}

// Decision is the record a node keeps for every decided proposal.
type Decision struct {
	ConsensusID string          `cbor:"1,keyasint"`
	Slots       []ChainSlot     `cbor:"2,keyasint"`
	Ballot      Ballot          `cbor:"3,keyasint"`
	Value       Value           `cbor:"4,keyasint"`
	Message2bs  []Reference     `cbor:"5,keyasint"`
	Quorum      *ObserverQuorum `cbor:"6,keyasint,omitempty"`
}
