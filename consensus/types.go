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

// Package consensus implements the per-observer decision core of the
// hetcons protocol: phase 1a/1b/2b handling for proposals that decide
// one or more chain slots atomically, slot and proposal bookkeeping,
// quorum evaluation and the restart timers that keep rounds live.
package consensus

import (
	"errors"

	"github.com/hetcons/go-hetcons/hetpb"
)

// Type alias for protocol types
type (
	Message        = hetpb.Message
	Message2ab     = hetpb.Message2ab
	Ballot         = hetpb.Ballot
	Value          = hetpb.Value
	Proposal       = hetpb.Proposal
	ChainSlot      = hetpb.ChainSlot
	Reference      = hetpb.Reference
	ObserverQuorum = hetpb.ObserverQuorum
	ObserverGroup  = hetpb.ObserverGroup
	Attestation    = hetpb.Attestation
)

// Store is the content-addressed block store the core reads
// referenced messages from.
type Store interface {
	Put(msg *Message) (Reference, error)
	Get(ref Reference) (*Message, error)
	Has(ref Reference) bool
	GetObserverGroup(ref Reference) (*ObserverGroup, error)
	HasAttestation(slot ChainSlot, observer string) bool
}

// Transport delivers a message to one participant, best effort.
type Transport interface {
	Send(participant string, msg *Message) error
}

// Signer signs messages originated by the local observer and
// checks the signatures of inbound ones.
type Signer interface {
	Identity() string
	Sign(msg *Message) error
	Verify(msg *Message) bool
}

// DecisionSink is told once about every proposal this observer decides.
type DecisionSink interface {
	OnDecision(quorum *ObserverQuorum, refs []Reference)
}

// Certificate is an accepted 2a together with the round it proves.
type Certificate struct {
	M2a         *Message2ab
	Ballot      Ballot
	Value       Value
	ConsensusID string
}

// Stale ballots are expected under concurrent restarts and are
// dropped silently by callers, every other error is logged.
var (
	ErrStaleBallot         = errors.New("stale ballot")
	ErrConflictingProposal = errors.New("slot bound to another proposal")
	ErrInconsistentQuorum  = errors.New("quorum witnesses disagree on ballot or value")
	ErrInconsistentSlots   = errors.New("proposal slots disagree on decided state")
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrVerification        = errors.New("certificate verification failed")
	ErrAttested            = errors.New("slot already attested")
	ErrSlotDecided         = errors.New("slot already decided")
	ErrMessageType         = errors.New("unexpected message type")
	ErrInvalidSignature    = errors.New("invalid message signature")
	ErrUnknownObserver     = errors.New("observer not in observer group")
	ErrEmptyProposal       = errors.New("proposal names no slots")
	ErrProposalNotFound    = errors.New("proposal status not found")
)

// IsBenign reports whether err is a rejection peers produce during
// normal operation rather than a fault worth a warning.
func IsBenign(err error) bool {
	return errors.Is(err, ErrStaleBallot) || errors.Is(err, ErrSlotDecided)
}
