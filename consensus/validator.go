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
	"fmt"

	"github.com/hetcons/go-hetcons/hetpb"
)

// resolve1a loads the 1a message the reference points to.
func resolve1a(s Store, ref Reference) (*Message, error) {
	msg, err := s.Get(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: 1a %s: %v", ErrUnresolvedReference, ref.Hash, err)
	}
	if msg.Type != hetpb.MessageType1a || msg.M1a == nil {
		return nil, fmt.Errorf("%w: %s is not a 1a", ErrMessageType, ref.Hash)
	}
	return msg, nil
}

// get1bValue returns the value the 1b votes for: the value of the
// certificate it carries, or the value of its 1a.
func get1bValue(s Store, m1b *hetpb.Message1b) (Value, error) {
	if m1b.M2a != nil {
		return get2aValue(s, m1b.M2a)
	}
	m1a, err := resolve1a(s, m1b.M1aRef)
	if err != nil {
		return Value{}, err
	}
	return m1a.M1a.Proposal.Value, nil
}

// get2aValue returns the value a certificate decides, all 1b of a
// valid certificate agree so the first one is enough.
func get2aValue(s Store, m2a *Message2ab) (Value, error) {
	if len(m2a.QuorumOf1bs) == 0 {
		m1a, err := resolve1a(s, m2a.M1aRef)
		if err != nil {
			return Value{}, err
		}
		return m1a.M1a.Proposal.Value, nil
	}
	v, err := voteOf(s, m2a.QuorumOf1bs[0])
	if err != nil {
		return Value{}, err
	}
	return v.Value, nil
}

// voteOf resolves the ballot and value of a stored 1b or 2b message.
func voteOf(s Store, ref Reference) (vote, error) {
	if v, ok := getCachedVote(ref); ok {
		return v, nil
	}
	msg, err := s.Get(ref)
	if err != nil {
		return vote{}, fmt.Errorf("%w: %s: %v", ErrUnresolvedReference, ref.Hash, err)
	}

	var v vote
	switch {
	case msg.Type == hetpb.MessageType1b && msg.M1b != nil:
		m1a, err := resolve1a(s, msg.M1b.M1aRef)
		if err != nil {
			return vote{}, err
		}
		v.Ballot = m1a.M1a.Proposal.Ballot
		if v.Value, err = get1bValue(s, msg.M1b); err != nil {
			return vote{}, err
		}
	case msg.Type == hetpb.MessageType2b && msg.M2b != nil:
		m1a, err := resolve1a(s, msg.M2b.M1aRef)
		if err != nil {
			return vote{}, err
		}
		v.Ballot = m1a.M1a.Proposal.Ballot
		if v.Value, err = get2aValue(s, msg.M2b); err != nil {
			return vote{}, err
		}
	default:
		return vote{}, fmt.Errorf("%w: %s carries no vote", ErrMessageType, ref.Hash)
	}

	putCachedVote(ref, v)
	return v, nil
}

// validateWitnesses checks that every witness of a quorum votes for
// exactly the ballot and the value of the quorum.
func validateWitnesses(s Store, refs []Reference, ballot Ballot, value Value) error {
	for _, ref := range refs {
		v, err := voteOf(s, ref)
		if err != nil {
			return err
		}
		if !sameVote(v.Ballot, v.Value, ballot, value) {
			return fmt.Errorf("%w: witness %s votes %s, quorum %s",
				ErrInconsistentQuorum, ref.Hash, v.Ballot, ballot)
		}
	}
	return nil
}

// verify2b checks the certificate a 2b carries: its 1a belongs to the
// proposal and its 1b messages promise that 1a, agree on one value and
// are signed by a quorum. It returns the value of the certificate.
func verify2b(s Store, cid string, m2b *Message2ab, quorums []*ObserverQuorum) (Value, error) {
	m1a, err := resolve1a(s, m2b.M1aRef)
	if err != nil {
		return Value{}, err
	}
	if hetpb.ConsensusID(m1a.M1a.Proposal.Slots) != cid {
		return Value{}, fmt.Errorf("%w: 1a of another proposal", ErrVerification)
	}
	if len(m2b.QuorumOf1bs) == 0 {
		return Value{}, fmt.Errorf("%w: empty quorum of 1b", ErrVerification)
	}

	var value Value
	signers := make([]string, 0, len(m2b.QuorumOf1bs))
	for i, ref := range m2b.QuorumOf1bs {
		msg, err := s.Get(ref)
		if err != nil {
			return Value{}, fmt.Errorf("%w: 1b %s: %v", ErrUnresolvedReference, ref.Hash, err)
		}
		if msg.Type != hetpb.MessageType1b || msg.M1b == nil {
			return Value{}, fmt.Errorf("%w: %s is not a 1b", ErrVerification, ref.Hash)
		}
		if msg.M1b.M1aRef != m2b.M1aRef {
			return Value{}, fmt.Errorf("%w: 1b %s promises another 1a", ErrVerification, ref.Hash)
		}
		v, err := get1bValue(s, msg.M1b)
		if err != nil {
			return Value{}, err
		}
		if i == 0 {
			value = v
		} else if !value.Equal(v) {
			return Value{}, fmt.Errorf("%w: 1b values disagree", ErrVerification)
		}
		signers = append(signers, msg.Identity)
	}

	if _, ok := IsQuorum(quorums, signers); !ok {
		return Value{}, fmt.Errorf("%w: 1b signers form no quorum", ErrVerification)
	}
	return value, nil
}
