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
	"time"

	"github.com/deckarep/golang-set"
	"go.uber.org/atomic"

	"github.com/hetcons/go-hetcons/hetpb"
)

type ProposalStage uint8

const (
	StageProposed ProposalStage = iota
	StageM1BSent
	StageM2BSent
	StageConsensusDecided
	StageConsensusRestart
)

func (s ProposalStage) String() string {
	switch s {
	case StageProposed:
		return "Proposed"
	case StageM1BSent:
		return "M1BSent"
	case StageM2BSent:
		return "M2BSent"
	case StageConsensusDecided:
		return "ConsensusDecided"
	case StageConsensusRestart:
		return "ConsensusRestart"
	}
	return "Unknown"
}

// observation is the most recent vote seen in one phase.
type observation struct {
	ballot Ballot
	value  Value
	// whether the 1b carried an earlier certificate
	withCert bool
}

// ProposalStatus is the state one observer keeps for one consensus
// id across all the ballots proposed for it.
type ProposalStatus struct {
	// decision lock, guards stage changes and certificate installation
	lock sync.Mutex

	cid      string
	slots    []ChainSlot
	groupRef Reference
	quorums  []*ObserverQuorum

	participants mapset.Set
	// set once the local observer proposes for the consensus id
	proposer *atomic.Bool
	timeout  *atomic.Duration

	stage  ProposalStage
	m1aRef Reference
	ballot Ballot
	value  Value

	tally1b *Tally
	tally2b *Tally

	recent1b *observation
	recent2b *observation

	decided       bool
	decidedResult *QuorumResult

	restart *RestartController
}

func newProposalStatus(cid string, proposal *Proposal, groupRef Reference, qe *QuorumEvaluator, participants []string) *ProposalStatus {
	slots := hetpb.NormalizeSlots(proposal.Slots)
	chain := slots[0].Chain
	ps := &ProposalStatus{
		cid:          cid,
		slots:        slots,
		groupRef:     groupRef,
		quorums:      qe.Quorums(chain),
		participants: mapset.NewSet(),
		proposer:     atomic.NewBool(false),
		timeout:      atomic.NewDuration(time.Duration(proposal.Timeout) * time.Millisecond),
		stage:        StageProposed,
		tally1b:      qe.NewTally(chain),
		tally2b:      qe.NewTally(chain),
	}
	for _, p := range participants {
		ps.participants.Add(p)
	}
	return ps
}

func (ps *ProposalStatus) ConsensusID() string {
	return ps.cid
}

func (ps *ProposalStatus) Slots() []ChainSlot {
	return ps.slots
}

func (ps *ProposalStatus) GroupRef() Reference {
	return ps.groupRef
}

func (ps *ProposalStatus) IsProposer() bool {
	return ps.proposer.Load()
}

func (ps *ProposalStatus) Timeout() time.Duration {
	return ps.timeout.Load()
}

// Participants returns the sorted identities messages of the
// proposal are broadcast to.
func (ps *ProposalStatus) Participants() []string {
	var ids []string
	for p := range ps.participants.Iter() {
		ids = append(ids, p.(string))
	}
	sort.Strings(ids)
	return ids
}

func (ps *ProposalStatus) Stage() ProposalStage {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.stage
}

func (ps *ProposalStatus) SetStage(stage ProposalStage) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	ps.setStageLocked(stage)
}

func (ps *ProposalStatus) setStageLocked(stage ProposalStage) {
	if ps.decided {
		return
	}
	ps.stage = stage
}

// Ballot returns the ballot of the current round.
func (ps *ProposalStatus) Ballot() Ballot {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.ballot
}

// Value returns the value of the current round.
func (ps *ProposalStatus) Value() Value {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.value
}

func (ps *ProposalStatus) M1aRef() Reference {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.m1aRef
}

func (ps *ProposalStatus) IsDecided() bool {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.decided
}

// Decision returns the quorum the proposal was decided with or nil.
func (ps *ProposalStatus) Decision() *QuorumResult {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.decidedResult
}

// updateProposalLocked moves the status to the round of the 1a if its
// ballot is higher than the current one, a new round starts over at
// the proposed stage.
func (ps *ProposalStatus) updateProposalLocked(proposal *Proposal, ref Reference) bool {
	if !ps.m1aRef.IsEmpty() && compareBallots(proposal.Ballot, ps.ballot) <= 0 {
		return false
	}
	ps.ballot = proposal.Ballot
	ps.value = proposal.Value
	ps.m1aRef = ref
	ps.setStageLocked(StageProposed)
	return true
}

// isStaleLocked reports whether a 1a with the ballot repeats or
// precedes a round the status already knows.
func (ps *ProposalStatus) isStaleLocked(ballot Ballot) bool {
	return !ps.m1aRef.IsEmpty() && compareBallots(ballot, ps.ballot) <= 0
}

// Accept1b folds a 1b vote and records it as the latest 1b observation.
func (ps *ProposalStatus) Accept1b(voter string, ref Reference, value Value, ballot Ballot, withCert bool) (*QuorumResult, bool) {
	result, ok := ps.tally1b.Accept(voter, ref, value, ballot)
	ps.updateRecent1b(withCert, value, ballot)
	return result, ok
}

// Accept2b folds a 2b vote and records it as the latest 2b observation.
func (ps *ProposalStatus) Accept2b(voter string, ref Reference, value Value, ballot Ballot) (*QuorumResult, bool) {
	result, ok := ps.tally2b.Accept(voter, ref, value, ballot)
	ps.updateRecent2b(value, ballot)
	return result, ok
}

// A 1b carrying a certificate outranks a plain one of the same ballot.
func (ps *ProposalStatus) updateRecent1b(withCert bool, value Value, ballot Ballot) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	if r := ps.recent1b; r != nil {
		cmp := compareBallots(ballot, r.ballot)
		if cmp < 0 || (cmp == 0 && r.withCert && !withCert) {
			return
		}
	}
	ps.recent1b = &observation{ballot: ballot, value: value, withCert: withCert}
}

func (ps *ProposalStatus) updateRecent2b(value Value, ballot Ballot) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	if r := ps.recent2b; r != nil && compareBallots(ballot, r.ballot) < 0 {
		return
	}
	ps.recent2b = &observation{ballot: ballot, value: value}
}

// RecentValue returns the latest value observed in the phase the
// timer guards, falling back to the value of the current round.
func (ps *ProposalStatus) RecentValue(kind TimerKind) Value {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	switch kind {
	case TimerM1b:
		if ps.recent1b != nil {
			return ps.recent1b.value
		}
	case TimerM2b:
		if ps.recent2b != nil {
			return ps.recent2b.value
		}
		if ps.recent1b != nil {
			return ps.recent1b.value
		}
	}
	return ps.value
}

// Verify2b checks the certificate of a 2b addressed to this proposal.
func (ps *ProposalStatus) Verify2b(s Store, m2b *Message2ab) (Value, error) {
	return verify2b(s, ps.cid, m2b, ps.quorums)
}

// markDecidedLocked records the deciding quorum, it is terminal.
func (ps *ProposalStatus) markDecidedLocked(result *QuorumResult) {
	ps.stage = StageConsensusDecided
	ps.decided = true
	ps.decidedResult = result
}

// Restarts counts the restarts submitted for the proposal.
func (ps *ProposalStatus) Restarts() uint32 {
	return ps.restart.Restarts()
}
