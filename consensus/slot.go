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
	"sync"

	"github.com/hetcons/go-hetcons/hetpb"
)

type SlotState uint8

const (
	SlotOpen SlotState = iota
	SlotCommittedPhase2
	SlotDecided
)

func (s SlotState) String() string {
	switch s {
	case SlotOpen:
		return "Open"
	case SlotCommittedPhase2:
		return "CommittedPhase2"
	case SlotDecided:
		return "Decided"
	}
	return "Unknown"
}

// SlotDecision is the immutable outcome of a decided slot.
type SlotDecision struct {
	Ballot      Ballot
	References  []Reference
	ConsensusID string
}

// SlotStatus tracks one chain slot: the ballot floor, the accepted
// certificate and, once decided, the decision that never changes.
type SlotStatus struct {
	lock sync.RWMutex

	slot ChainSlot

	// highest ballot observed
	ballot Ballot
	// accepted 2a certificate, nil until phase 2
	cert *Certificate
	// consensus id owning the certificate or the decision
	activeProposal string

	decision *SlotDecision
}

func newSlotStatus(slot ChainSlot) *SlotStatus {
	return &SlotStatus{slot: slot}
}

func (ss *SlotStatus) Slot() ChainSlot {
	return ss.slot
}

func (ss *SlotStatus) State() SlotState {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	switch {
	case ss.decision != nil:
		return SlotDecided
	case ss.cert != nil:
		return SlotCommittedPhase2
	}
	return SlotOpen
}

func (ss *SlotStatus) Ballot() Ballot {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return ss.ballot
}

func (ss *SlotStatus) Certificate() *Certificate {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return ss.cert
}

func (ss *SlotStatus) ActiveProposal() string {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return ss.activeProposal
}

func (ss *SlotStatus) IsDecided() bool {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return ss.decision != nil
}

// Decision returns the decision of the slot or nil.
func (ss *SlotStatus) Decision() *SlotDecision {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return ss.decision
}

// UpdateBallot raises the floor of the slot, lower ballots are refused.
func (ss *SlotStatus) UpdateBallot(b Ballot) bool {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	if compareBallots(b, ss.ballot) < 0 {
		return false
	}
	ss.ballot = b
	return true
}

// HasLargerBallot reports whether the floor is above b.
func (ss *SlotStatus) HasLargerBallot(b Ballot) bool {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return compareBallots(ss.ballot, b) > 0
}

// conflictingProposal returns the consensus id of a certificate
// accepted or a decision taken for another proposal, or the empty string.
func (ss *SlotStatus) conflictingProposal(cid string) string {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	if ss.decision != nil && ss.decision.ConsensusID != cid {
		return ss.decision.ConsensusID
	}
	if ss.cert != nil && ss.cert.ConsensusID != cid {
		return ss.cert.ConsensusID
	}
	return ""
}

// SetCertificate installs the certificate unless the slot already
// holds one from a higher ballot.
func (ss *SlotStatus) SetCertificate(cert *Certificate) bool {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	if ss.decision != nil {
		return false
	}
	if ss.cert != nil && compareBallots(cert.Ballot, ss.cert.Ballot) < 0 {
		return false
	}
	ss.cert = cert
	ss.activeProposal = cert.ConsensusID
	return true
}

// CheckDecision reports ErrSlotDecided when the slot was decided other
// than with the witnesses and consensus id given.
func (ss *SlotStatus) CheckDecision(refs []Reference, cid string) error {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return ss.checkDecisionLocked(refs, cid)
}

func (ss *SlotStatus) checkDecisionLocked(refs []Reference, cid string) error {
	if ss.decision == nil {
		return nil
	}
	if ss.decision.ConsensusID == cid && hetpb.EqualReferences(ss.decision.References, refs) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSlotDecided, ss.slot.ID())
}

// Decide moves the slot to its terminal state. A decided slot only
// accepts the identical decision again.
func (ss *SlotStatus) Decide(ballot Ballot, refs []Reference, cid string) error {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	if ss.decision != nil {
		return ss.checkDecisionLocked(refs, cid)
	}
	if compareBallots(ballot, ss.ballot) < 0 {
		return fmt.Errorf("%w: decide %s below floor %s", ErrStaleBallot, ballot, ss.ballot)
	}
	ss.ballot = ballot
	ss.activeProposal = cid
	ss.decision = &SlotDecision{
		Ballot:      ballot,
		References:  append([]Reference(nil), refs...),
		ConsensusID: cid,
	}
	return nil
}

// DecideAttestation applies a decision finalised elsewhere, the
// ballot floor is left alone since attestations carry none.
func (ss *SlotStatus) DecideAttestation(refs []Reference, cid string) error {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	if ss.decision != nil {
		return ss.checkDecisionLocked(refs, cid)
	}
	ss.activeProposal = cid
	ss.decision = &SlotDecision{
		Ballot:      ss.ballot,
		References:  append([]Reference(nil), refs...),
		ConsensusID: cid,
	}
	return nil
}
