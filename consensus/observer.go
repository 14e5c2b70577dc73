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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"

	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/log"
)

// ObserverContext represents contextual information ObserverStatus needs
type ObserverContext struct {
	Store     Store        // content addressed block store
	Transport Transport    // point to point delivery to participants
	Signer    Signer       // signs and verifies phase messages
	Sink      DecisionSink // told about every decided proposal
	Metrics   *Metrics     // optional, unregistered metrics when nil

	Workers        int           // size of the worker pool
	QueueCapacity  int           // parked messages per 1a, zero is unbounded
	DefaultTimeout time.Duration // round timeout of local proposals
	MaxRestarts    uint32        // restarts per proposal, zero is unbounded
}

func ValidateObserverContext(oc *ObserverContext) error {
	if oc == nil {
		return fmt.Errorf("observer context is nil")
	}
	if oc.Store == nil {
		return fmt.Errorf("store is nil")
	}
	if oc.Transport == nil {
		return fmt.Errorf("transport is nil")
	}
	if oc.Signer == nil {
		return fmt.Errorf("signer is nil")
	}
	if oc.Signer.Identity() == "" {
		return fmt.Errorf("signer identity is empty")
	}
	if oc.Workers <= 0 {
		return fmt.Errorf("workers should be positive")
	}
	if oc.DefaultTimeout <= 0 {
		return fmt.Errorf("default timeout should be positive")
	}
	return nil
}

// ObserverStatus processes the phase messages of every proposal the
// local observer takes part in. Lock order is the decision lock of a
// proposal first and the slot table lock second.
type ObserverStatus struct {
	identity  string
	store     Store
	transport Transport
	signer    Signer
	sink      DecisionSink
	metrics   *Metrics

	defaultTimeout time.Duration
	maxRestarts    uint32

	quorums *QuorumEvaluator
	queue   *waitingQueue

	// pool running deliveries, queue drains and restarts
	pool     *workerpool.WorkerPool
	poolLock sync.RWMutex
	stopped  *atomic.Bool

	proposalLock sync.RWMutex
	proposals    map[string]*ProposalStatus

	// slot table lock
	slotLock sync.Mutex
	slots    map[string]*SlotStatus
}

// NewObserverStatus creates an instance of ObserverStatus with ObserverContext
func NewObserverStatus(ctx *ObserverContext) *ObserverStatus {
	if err := ValidateObserverContext(ctx); err != nil {
		log.Fatalf("observer context is invalid: %v", err)
	}
	metrics := ctx.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	o := &ObserverStatus{
		identity:       ctx.Signer.Identity(),
		store:          ctx.Store,
		transport:      ctx.Transport,
		signer:         ctx.Signer,
		sink:           ctx.Sink,
		metrics:        metrics,
		defaultTimeout: ctx.DefaultTimeout,
		maxRestarts:    ctx.MaxRestarts,
		quorums:        NewQuorumEvaluator(),
		pool:           workerpool.New(ctx.Workers),
		stopped:        atomic.NewBool(false),
		proposals:      make(map[string]*ProposalStatus),
		slots:          make(map[string]*SlotStatus),
	}
	o.queue = newWaitingQueue(ctx.QueueCapacity, func(n int) { metrics.Queued.Set(float64(n)) })
	return o
}

func (o *ObserverStatus) Identity() string {
	return o.identity
}

// Stop cancels every restart timer and waits for the queued work,
// work submitted afterwards is dropped.
func (o *ObserverStatus) Stop() {
	o.poolLock.Lock()
	if o.stopped.Load() {
		o.poolLock.Unlock()
		return
	}
	o.stopped.Store(true)
	o.poolLock.Unlock()

	o.proposalLock.RLock()
	for _, ps := range o.proposals {
		ps.restart.CancelAll()
	}
	o.proposalLock.RUnlock()

	o.pool.StopWait()
}

// Submit the task to the worker pool unless the observer stopped
func (o *ObserverStatus) submit(task func()) {
	o.poolLock.RLock()
	defer o.poolLock.RUnlock()
	if o.stopped.Load() {
		return
	}
	o.pool.Submit(task)
}

// Deliver hands an inbound message to the worker pool.
func (o *ObserverStatus) Deliver(msg *Message) {
	o.submit(func() { _ = o.Receive(msg) })
}

// Receive verifies, stores and processes an inbound phase message.
// Rejections are logged and returned, none of them is fatal.
func (o *ObserverStatus) Receive(msg *Message) error {
	err := o.receive(msg)
	if err == nil {
		return nil
	}
	o.metrics.Rejected.WithLabelValues(msg.Type.String(), rejectReason(err)).Inc()
	if IsBenign(err) {
		log.Debugw("message rejected", "observer", o.identity, "type", msg.Type, "from", msg.Identity, "err", err)
	} else {
		log.Warnw("message rejected", "observer", o.identity, "type", msg.Type, "from", msg.Identity, "err", err)
	}
	return err
}

func (o *ObserverStatus) receive(msg *Message) error {
	if !o.signer.Verify(msg) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidSignature, msg.Type, msg.Identity)
	}
	ref, err := o.store.Put(msg)
	if err != nil {
		return fmt.Errorf("store %s message failed: %v", msg.Type, err)
	}

	switch msg.Type {
	case hetpb.MessageType1a:
		if msg.M1a == nil {
			break
		}
		return o.receive1a(msg, ref, false, 0)
	case hetpb.MessageType1b:
		if msg.M1b == nil {
			break
		}
		return o.receive1b(msg, ref)
	case hetpb.MessageType2b:
		if msg.M2b == nil {
			break
		}
		return o.receive2b(msg, ref)
	}
	return fmt.Errorf("%w: %s", ErrMessageType, msg.Type)
}

// Propose starts a round deciding the value on all the slots at once
// and returns the reference of the 1a. The ballot is above every ballot
// this observer knows for the slots.
func (o *ObserverStatus) Propose(groupRef Reference, slots []ChainSlot, value Value, timeout time.Duration) (Reference, error) {
	if len(slots) == 0 {
		return Reference{}, ErrEmptyProposal
	}
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}
	slots = hetpb.NormalizeSlots(slots)
	cid := hetpb.ConsensusID(slots)

	floor := o.ballotFloor(cid, slots)
	msg := &Message{
		Type: hetpb.MessageType1a,
		M1a: &hetpb.Message1a{Proposal: Proposal{
			Slots:   slots,
			Value:   value,
			Ballot:  nextBallot(floor, value),
			Timeout: timeout.Milliseconds(),
		}},
		ObserverGroupRef: groupRef,
	}
	if err := o.signer.Sign(msg); err != nil {
		return Reference{}, err
	}
	ref, err := o.store.Put(msg)
	if err != nil {
		return Reference{}, fmt.Errorf("store proposal failed: %v", err)
	}
	log.Infow("propose", "observer", o.identity, "cid", cid, "ballot", msg.M1a.Proposal.Ballot)
	if err := o.receive1a(msg, ref, true, timeout); err != nil {
		return ref, err
	}
	return ref, nil
}

// Highest ballot known for the proposal and its slots
func (o *ObserverStatus) ballotFloor(cid string, slots []ChainSlot) Ballot {
	var floor Ballot
	if ps := o.Proposal(cid); ps != nil {
		floor = ps.Ballot()
	}
	for _, s := range slots {
		if ss := o.Slot(s); ss != nil {
			floor = maxBallot(floor, ss.Ballot())
		}
	}
	return floor
}

// Load the observer group of the message and register the quorums
// of the local observer for the chains of the slots.
func (o *ObserverStatus) resolveGroup(ref Reference, slots []ChainSlot) (*ObserverGroup, *hetpb.Observer, error) {
	group, err := o.store.GetObserverGroup(ref)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: observer group %s: %v", ErrUnresolvedReference, ref.Hash, err)
	}
	self := group.Observer(o.identity)
	if self == nil {
		return nil, nil, fmt.Errorf("%w: %s in %s", ErrUnknownObserver, o.identity, group.Name)
	}
	for _, s := range slots {
		o.quorums.Register(s.Chain, self.Quorums)
	}
	return group, self, nil
}

func (o *ObserverStatus) receive1a(msg *Message, ref Reference, proposer bool, timeout time.Duration) error {
	proposal := &msg.M1a.Proposal
	if len(proposal.Slots) == 0 {
		return ErrEmptyProposal
	}
	slots := hetpb.NormalizeSlots(proposal.Slots)
	cid := hetpb.ConsensusID(slots)
	ballot := proposal.Ballot

	group, self, err := o.resolveGroup(msg.ObserverGroupRef, slots)
	if err != nil {
		return err
	}
	for _, s := range slots {
		for _, obs := range group.Observers {
			if o.store.HasAttestation(s, obs.ID) {
				if ps := o.Proposal(cid); ps == nil || ps.M1aRef() != ref {
					o.queue.Remove(ref.Hash)
				}
				return fmt.Errorf("%w: %s by %s", ErrAttested, s.ID(), obs.ID)
			}
		}
	}

	ps, created := o.getOrCreateProposal(cid, proposal, msg.ObserverGroupRef, self.Participants(), proposer, timeout)

	ps.lock.Lock()
	// echoes of the accepted 1a share its reference, the messages
	// parked for it are kept for the pending drain
	accepted := ps.m1aRef == ref
	if !created && ps.isStaleLocked(ballot) {
		current := ps.ballot
		ps.lock.Unlock()
		if !accepted {
			o.queue.Remove(ref.Hash)
		}
		return fmt.Errorf("%w: 1a %s, proposal at %s", ErrStaleBallot, ballot, current)
	}
	if ps.decided {
		log.Debugw("1a for decided proposal", "observer", o.identity, "cid", cid, "ballot", ballot)
	}

	o.slotLock.Lock()
	sss := o.getOrCreateSlotsLocked(slots)
	for _, ss := range sss {
		if other := ss.conflictingProposal(cid); other != "" {
			o.slotLock.Unlock()
			ps.lock.Unlock()
			if !accepted {
				o.queue.Remove(ref.Hash)
			}
			return fmt.Errorf("%w: %s held by %s", ErrConflictingProposal, ss.Slot().ID(), other)
		}
	}
	for _, ss := range sss {
		if ss.HasLargerBallot(ballot) {
			o.slotLock.Unlock()
			ps.lock.Unlock()
			if !accepted {
				o.queue.Remove(ref.Hash)
			}
			return fmt.Errorf("%w: 1a %s, slot %s at %s", ErrStaleBallot, ballot, ss.Slot().ID(), ss.Ballot())
		}
	}
	for _, ss := range sss {
		ss.UpdateBallot(ballot)
	}
	m1b := prepare1b(sss, cid, ref)
	o.slotLock.Unlock()

	ps.updateProposalLocked(proposal, ref)
	ps.lock.Unlock()

	participants := ps.Participants()
	// echo the 1a so participants the proposer missed still join
	o.broadcast(msg, participants, false)

	if m1b == nil {
		o.submit(func() { o.drain(ref.Hash) })
		return nil
	}
	out := &Message{
		Type:             hetpb.MessageType1b,
		M1b:              m1b,
		ObserverGroupRef: msg.ObserverGroupRef,
	}
	if err := o.signer.Sign(out); err != nil {
		return err
	}
	o.broadcast(out, participants, true)
	ps.SetStage(StageM1BSent)

	o.submit(func() { o.drain(ref.Hash) })

	if ps.IsProposer() {
		ps.restart.Arm(TimerM1b, o.roundTimeout(ps), nil)
	}
	return nil
}

// Build the 1b promising the 1a, it carries the certificate with the
// highest ballot found on the slots. No 1b is built while a slot holds
// the certificate of another proposal.
func prepare1b(sss []*SlotStatus, cid string, m1aRef Reference) *hetpb.Message1b {
	var max *Certificate
	for _, ss := range sss {
		cert := ss.Certificate()
		if cert == nil {
			continue
		}
		if cert.ConsensusID != cid {
			return nil
		}
		if max == nil || compareBallots(cert.Ballot, max.Ballot) > 0 {
			max = cert
		}
	}
	m1b := &hetpb.Message1b{M1aRef: m1aRef}
	if max != nil {
		m1b.M2a = max.M2a
	}
	return m1b
}

// Resolve the 1a a 1b or 2b answers and its proposal status, the
// message is parked when either is not known yet.
func (o *ObserverStatus) resolveRound(msg *Message, m1aRef Reference) (*Message, *ProposalStatus, bool, error) {
	m1a, err := resolve1a(o.store, m1aRef)
	if errors.Is(err, ErrUnresolvedReference) {
		return nil, nil, o.park(m1aRef, msg), nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	ps := o.Proposal(hetpb.ConsensusID(m1a.M1a.Proposal.Slots))
	if ps == nil {
		return nil, nil, o.park(m1aRef, msg), nil
	}
	return m1a, ps, false, nil
}

func (o *ObserverStatus) park(m1aRef Reference, msg *Message) bool {
	if !o.queue.Push(m1aRef.Hash, msg) {
		log.Debugw("waiting queue full", "observer", o.identity, "m1a", m1aRef.Hash, "type", msg.Type)
		return true
	}
	// the 1a may have been accepted and drained meanwhile
	m1a, err := resolve1a(o.store, m1aRef)
	if err == nil && o.Proposal(hetpb.ConsensusID(m1a.M1a.Proposal.Slots)) != nil {
		o.submit(func() { o.drain(m1aRef.Hash) })
	}
	return true
}

// Process the messages parked for the 1a, 1b first
func (o *ObserverStatus) drain(m1aHash string) {
	for {
		msg, ok := o.queue.Pop(m1aHash)
		if !ok {
			return
		}
		ref, err := hetpb.GetReference(msg)
		if err != nil {
			continue
		}
		switch msg.Type {
		case hetpb.MessageType1b:
			err = o.receive1b(msg, ref)
		case hetpb.MessageType2b:
			err = o.receive2b(msg, ref)
		}
		if err != nil && !IsBenign(err) {
			log.Warnw("queued message rejected", "observer", o.identity, "type", msg.Type, "err", err)
		}
	}
}

func (o *ObserverStatus) receive1b(msg *Message, ref Reference) error {
	m1b := msg.M1b
	m1a, ps, parked, err := o.resolveRound(msg, m1b.M1aRef)
	if err != nil || parked {
		return err
	}
	cid := ps.ConsensusID()
	ballot := m1a.M1a.Proposal.Ballot
	if current := ps.Ballot(); compareBallots(current, ballot) > 0 {
		return fmt.Errorf("%w: 1b %s, proposal at %s", ErrStaleBallot, ballot, current)
	}

	value, err := get1bValue(o.store, m1b)
	if err != nil {
		return err
	}
	result, ok := ps.Accept1b(msg.Identity, ref, value, ballot, m1b.M2a != nil)
	if !ok {
		return nil
	}
	if err := validateWitnesses(o.store, result.References, result.Ballot, result.Value); err != nil {
		return err
	}

	m2a := &Message2ab{M1aRef: m1b.M1aRef, QuorumOf1bs: result.References}
	cert := &Certificate{M2a: m2a, Ballot: ballot, Value: value, ConsensusID: cid}
	if err := o.installCertificate(ps, cert); err != nil {
		return err
	}
	log.Debugw("1b quorum", "observer", o.identity, "cid", cid, "ballot", ballot, "quorum", result.Quorum.Name)

	out := &Message{
		Type:             hetpb.MessageType2b,
		M2b:              m2a,
		ObserverGroupRef: ps.GroupRef(),
	}
	if err := o.signer.Sign(out); err != nil {
		return err
	}
	o.broadcast(out, ps.Participants(), true)
	ps.SetStage(StageM2BSent)

	if ps.IsProposer() {
		ps.restart.Arm(TimerM2b, o.roundTimeout(ps), nil)
	}
	return nil
}

// Install the certificate on every undecided slot of the proposal.
// Slots must be all decided by the proposal or all undecided, and
// none may hold a certificate from a higher ballot.
func (o *ObserverStatus) installCertificate(ps *ProposalStatus, cert *Certificate) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	o.slotLock.Lock()
	defer o.slotLock.Unlock()

	sss := o.getOrCreateSlotsLocked(ps.slots)
	decided := 0
	for _, ss := range sss {
		d := ss.Decision()
		if d == nil {
			continue
		}
		if d.ConsensusID != cert.ConsensusID {
			return fmt.Errorf("%w: %s decided by %s", ErrConflictingProposal, ss.Slot().ID(), d.ConsensusID)
		}
		decided++
	}
	if decided > 0 && decided != len(sss) {
		return fmt.Errorf("%w: %d of %d slots decided", ErrInconsistentSlots, decided, len(sss))
	}
	for _, ss := range sss {
		if c := ss.Certificate(); c != nil && compareBallots(c.Ballot, cert.Ballot) > 0 {
			return fmt.Errorf("%w: %s holds certificate of %s", ErrStaleBallot, ss.Slot().ID(), c.Ballot)
		}
	}
	for _, ss := range sss {
		if !ss.IsDecided() {
			ss.SetCertificate(cert)
		}
	}
	return nil
}

func (o *ObserverStatus) receive2b(msg *Message, ref Reference) error {
	m2b := msg.M2b
	m1a, ps, parked, err := o.resolveRound(msg, m2b.M1aRef)
	if err != nil || parked {
		return err
	}
	cid := ps.ConsensusID()
	ballot := m1a.M1a.Proposal.Ballot
	if current := ps.Ballot(); compareBallots(current, ballot) > 0 {
		return fmt.Errorf("%w: 2b %s, proposal at %s", ErrStaleBallot, ballot, current)
	}

	for _, r := range m2b.QuorumOf1bs {
		if !o.store.Has(r) {
			return fmt.Errorf("%w: 1b %s", ErrUnresolvedReference, r.Hash)
		}
	}
	value, err := ps.Verify2b(o.store, m2b)
	if err != nil {
		return err
	}

	result, ok := ps.Accept2b(msg.Identity, ref, value, ballot)
	if !ok {
		return nil
	}
	if err := validateWitnesses(o.store, result.References, result.Ballot, result.Value); err != nil {
		return err
	}

	if err := o.decide(ps, result); err != nil {
		return err
	}
	ps.restart.Decided()
	o.queue.Remove(m2b.M1aRef.Hash)
	o.metrics.Decided.Inc()
	log.Infow("decided", "observer", o.identity, "cid", cid, "ballot", ballot, "quorum", result.Quorum.Name)

	if o.sink != nil {
		quorum := &ObserverQuorum{
			Name:    result.Quorum.Name,
			Owner:   o.identity,
			Members: result.Participants,
		}
		o.sink.OnDecision(quorum, result.References)
	}
	return nil
}

// Decide every slot of the proposal or none of them.
func (o *ObserverStatus) decide(ps *ProposalStatus, result *QuorumResult) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	if ps.decided {
		return fmt.Errorf("%w: proposal %s", ErrSlotDecided, ps.cid)
	}

	o.slotLock.Lock()
	defer o.slotLock.Unlock()
	sss := o.getOrCreateSlotsLocked(ps.slots)
	for _, ss := range sss {
		if ss.IsDecided() {
			return fmt.Errorf("%w: %s", ErrSlotDecided, ss.Slot().ID())
		}
		if ss.HasLargerBallot(result.Ballot) {
			return fmt.Errorf("%w: 2b quorum %s, slot %s at %s", ErrStaleBallot, result.Ballot, ss.Slot().ID(), ss.Ballot())
		}
	}
	for _, ss := range sss {
		if err := ss.Decide(result.Ballot, result.References, ps.cid); err != nil {
			// unreachable while the slot table lock is held
			log.Errorw("decide slot failed", "slot", ss.Slot().ID(), "err", err)
		}
	}
	ps.markDecidedLocked(result)
	return nil
}

// RestartProposal submits a fresh 1a for the proposal with a ballot
// above every ballot known for it. A nil value keeps the current one.
func (o *ObserverStatus) RestartProposal(cid string, value *Value) error {
	ps := o.Proposal(cid)
	if ps == nil {
		return fmt.Errorf("%w: %s", ErrProposalNotFound, cid)
	}
	if ps.IsDecided() {
		return nil
	}
	if n := ps.Restarts(); o.maxRestarts > 0 && n >= o.maxRestarts {
		log.Warnw("restart limit reached", "observer", o.identity, "cid", cid, "restarts", n)
		return nil
	}
	ps.restart.countRestart()
	ps.SetStage(StageConsensusRestart)

	v := ps.Value()
	if value != nil {
		v = *value
	}
	ballot := nextBallot(o.ballotFloor(cid, ps.Slots()), v)
	msg := &Message{
		Type: hetpb.MessageType1a,
		M1a: &hetpb.Message1a{Proposal: Proposal{
			Slots:   ps.Slots(),
			Value:   v,
			Ballot:  ballot,
			Timeout: o.roundTimeout(ps).Milliseconds(),
		}},
		ObserverGroupRef: ps.GroupRef(),
	}
	if err := o.signer.Sign(msg); err != nil {
		return err
	}
	if _, err := o.store.Put(msg); err != nil {
		return fmt.Errorf("store restart 1a failed: %v", err)
	}
	ps.proposer.Store(true)
	ps.restart.Arm(TimerRestart, o.roundTimeout(ps), &v)

	log.Infow("restart", "observer", o.identity, "cid", cid, "ballot", ballot)
	o.metrics.Restarts.Inc()
	// the local 1a moves the stage on from here
	ps.SetStage(StageProposed)
	o.broadcast(msg, ps.Participants(), true)
	return nil
}

func (o *ObserverStatus) roundTimeout(ps *ProposalStatus) time.Duration {
	if t := ps.Timeout(); t > 0 {
		return t
	}
	return o.defaultTimeout
}

// Restart the proposal after its timer expired, the value is taken
// from the phase the timer guarded.
func (o *ObserverStatus) onFire(ps *ProposalStatus, kind TimerKind, value *Value) {
	if ps.IsDecided() {
		return
	}
	undecided := false
	for _, s := range ps.Slots() {
		if ss := o.Slot(s); ss == nil || !ss.IsDecided() {
			undecided = true
			break
		}
	}
	if !undecided {
		return
	}
	v := ps.RecentValue(kind)
	if kind == TimerRestart && value != nil {
		v = *value
	}
	log.Debugw("timer fired", "observer", o.identity, "cid", ps.cid, "timer", kind)
	if err := o.RestartProposal(ps.cid, &v); err != nil {
		log.Warnw("restart failed", "observer", o.identity, "cid", ps.cid, "err", err)
	}
}

// DecideSlots applies a decision finalised by an external authority,
// applying the same attestation again changes nothing.
func (o *ObserverStatus) DecideSlots(att *Attestation) error {
	if len(att.Slots) == 0 {
		return ErrEmptyProposal
	}
	slots := hetpb.NormalizeSlots(att.Slots)
	cid := hetpb.ConsensusID(slots)
	refs := sortReferences(att.Message2bs)

	var errs error
	o.slotLock.Lock()
	sss := o.getOrCreateSlotsLocked(slots)
	for _, ss := range sss {
		if err := ss.CheckDecision(refs, cid); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		o.slotLock.Unlock()
		return errs
	}
	for _, ss := range sss {
		if err := ss.DecideAttestation(refs, cid); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	o.slotLock.Unlock()

	if ps := o.Proposal(cid); ps != nil {
		ps.restart.Decided()
		o.queue.Remove(ps.M1aRef().Hash)
	}
	return errs
}

// Broadcast the message to the participants, delivery to the local
// observer goes through the worker pool.
func (o *ObserverStatus) broadcast(msg *Message, participants []string, self bool) {
	for _, p := range participants {
		if p == o.identity {
			if self {
				o.Deliver(msg)
			}
			continue
		}
		p := p
		o.submit(func() {
			if err := o.transport.Send(p, msg); err != nil {
				log.Debugw("send failed", "observer", o.identity, "to", p, "type", msg.Type, "err", err)
			}
		})
	}
}

func (o *ObserverStatus) getOrCreateProposal(cid string, proposal *Proposal, groupRef Reference, participants []string, proposer bool, timeout time.Duration) (*ProposalStatus, bool) {
	o.proposalLock.Lock()
	defer o.proposalLock.Unlock()

	ps, ok := o.proposals[cid]
	if !ok {
		ps = newProposalStatus(cid, proposal, groupRef, o.quorums, participants)
		ps.restart = newRestartController(o.submit, func(kind TimerKind, value *Value) {
			o.onFire(ps, kind, value)
		})
		o.proposals[cid] = ps
		o.metrics.Proposals.Set(float64(len(o.proposals)))
	}
	if proposer {
		ps.proposer.Store(true)
		if timeout > 0 {
			ps.timeout.Store(timeout)
		}
	}
	return ps, !ok
}

// Slot statuses of the slots in slot order, the caller holds the slot table lock
func (o *ObserverStatus) getOrCreateSlotsLocked(slots []ChainSlot) []*SlotStatus {
	sss := make([]*SlotStatus, 0, len(slots))
	for _, s := range slots {
		ss, ok := o.slots[s.ID()]
		if !ok {
			ss = newSlotStatus(s)
			o.slots[s.ID()] = ss
		}
		sss = append(sss, ss)
	}
	return sss
}

// Proposal returns the status of the consensus id or nil.
func (o *ObserverStatus) Proposal(cid string) *ProposalStatus {
	o.proposalLock.RLock()
	defer o.proposalLock.RUnlock()
	return o.proposals[cid]
}

// Slot returns the status of the slot or nil.
func (o *ObserverStatus) Slot(slot ChainSlot) *SlotStatus {
	o.slotLock.Lock()
	defer o.slotLock.Unlock()
	return o.slots[slot.ID()]
}

// SlotState returns the state of the slot, unknown slots are open.
func (o *ObserverStatus) SlotState(slot ChainSlot) SlotState {
	if ss := o.Slot(slot); ss != nil {
		return ss.State()
	}
	return SlotOpen
}

// Quorums returns the quorums registered for the chain.
func (o *ObserverStatus) Quorums(chain string) []*ObserverQuorum {
	return o.quorums.Quorums(chain)
}

// BuildDecision resolves the witnesses of a decision into the record
// nodes persist.
func BuildDecision(s Store, quorum *ObserverQuorum, refs []Reference) (*hetpb.Decision, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: decision without witnesses", ErrUnresolvedReference)
	}
	msg, err := s.Get(refs[0])
	if err != nil {
		return nil, fmt.Errorf("%w: 2b %s: %v", ErrUnresolvedReference, refs[0].Hash, err)
	}
	if msg.Type != hetpb.MessageType2b || msg.M2b == nil {
		return nil, fmt.Errorf("%w: %s is not a 2b", ErrMessageType, refs[0].Hash)
	}
	m1a, err := resolve1a(s, msg.M2b.M1aRef)
	if err != nil {
		return nil, err
	}
	value, err := get2aValue(s, msg.M2b)
	if err != nil {
		return nil, err
	}
	slots := hetpb.NormalizeSlots(m1a.M1a.Proposal.Slots)
	return &hetpb.Decision{
		ConsensusID: hetpb.ConsensusID(slots),
		Slots:       slots,
		Ballot:      m1a.M1a.Proposal.Ballot,
		Value:       value,
		Message2bs:  append([]Reference(nil), refs...),
		Quorum:      quorum,
	}, nil
}
