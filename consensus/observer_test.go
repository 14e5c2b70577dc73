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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hetcons/go-hetcons/hetpb"
)

func TestValidateObserverContext(t *testing.T) {
	assert.Error(t, ValidateObserverContext(nil))
	assert.Error(t, ValidateObserverContext(&ObserverContext{}))

	signer := newSigners(t, 1)[0]
	ctx := &ObserverContext{
		Store:          nil,
		Transport:      &loopback{},
		Signer:         signer,
		Workers:        1,
		DefaultTimeout: time.Second,
	}
	assert.Error(t, ValidateObserverContext(ctx))
}

func TestProposeDecides(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: 500 * time.Millisecond})
	slots := []ChainSlot{{Chain: "a", Index: 2}, {Chain: "a", Index: 1}}
	cid := hetpb.ConsensusID(slots)
	v := Value{Data: []byte("v1")}

	_, err := c.nodes[0].Propose(c.groupRef, slots, v, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.decided(cid) }, 10*time.Second, 10*time.Millisecond)

	for _, n := range c.nodes {
		var refs []Reference
		for _, s := range slots {
			d := n.Slot(s).Decision()
			require.NotNil(t, d)
			assert.Equal(t, cid, d.ConsensusID)
			assert.Equal(t, SlotDecided, n.SlotState(s))
			if refs != nil {
				assert.Equal(t, refs, d.References)
			}
			refs = d.References
		}

		dec, err := BuildDecision(n.store, nil, refs)
		require.NoError(t, err)
		assert.Equal(t, "v1", string(dec.Value.Data))
		assert.Equal(t, cid, dec.ConsensusID)
		assert.Equal(t, hetpb.NormalizeSlots(slots), dec.Slots)

		require.Eventually(t, func() bool { return n.sink.count() == 1 }, time.Second, 5*time.Millisecond)
		n.sink.lock.Lock()
		assert.Equal(t, n.Identity(), n.sink.quorums[0].Owner)
		assert.Equal(t, "majority", n.sink.quorums[0].Name)
		assert.True(t, len(n.sink.quorums[0].Members) >= 3)
		n.sink.lock.Unlock()
	}
	assert.Equal(t, StageConsensusDecided, c.nodes[0].Proposal(cid).Stage())
	assert.False(t, c.nodes[0].Proposal(cid).restart.Live(TimerM2b))
}

func TestAtomicMultiSlotDecision(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: 500 * time.Millisecond})
	slots := []ChainSlot{{Chain: "a", Index: 1}, {Chain: "b", Index: 1}}
	cid := hetpb.ConsensusID(slots)

	// sample both slots under the slot table lock until the decision
	torn := atomic.NewBool(false)
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, n := range c.nodes {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				n.slotLock.Lock()
				sa, sb := n.slots[slots[0].ID()], n.slots[slots[1].ID()]
				if sa != nil && sb != nil && sa.IsDecided() != sb.IsDecided() {
					torn.Store(true)
				}
				n.slotLock.Unlock()
			}
		}()
	}

	_, err := c.nodes[1].Propose(c.groupRef, slots, Value{Data: []byte("atomic")}, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.decided(cid) }, 10*time.Second, 10*time.Millisecond)
	close(done)
	wg.Wait()
	assert.False(t, torn.Load())
}

func TestConflictingProposal(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: time.Minute})
	// certificates get installed but no 2b gets through
	c.net.setDrop(func(to string, msg *Message) bool { return msg.Type == hetpb.MessageType2b })

	p1 := []ChainSlot{{Chain: "s", Index: 1}, {Chain: "s", Index: 2}}
	p2 := []ChainSlot{{Chain: "s", Index: 2}, {Chain: "s", Index: 3}}
	cid1 := hetpb.ConsensusID(p1)

	_, err := c.nodes[0].Propose(c.groupRef, p1, Value{Data: []byte("p1")}, 0)
	require.NoError(t, err)
	n1 := c.nodes[1]
	require.Eventually(t, func() bool {
		ss := n1.Slot(p1[1])
		return ss != nil && ss.State() == SlotCommittedPhase2
	}, 10*time.Second, 10*time.Millisecond)

	ref, err := n1.Propose(c.groupRef, p2, Value{Data: []byte("p2")}, 0)
	assert.ErrorIs(t, err, ErrConflictingProposal)
	// test the conflicting 1a is kept for audit
	assert.True(t, n1.store.Has(ref))

	s2 := n1.Slot(p1[1])
	assert.Equal(t, cid1, s2.Certificate().ConsensusID)
	assert.Equal(t, cid1, s2.ActiveProposal())
	assert.Equal(t, SlotOpen, n1.SlotState(p2[1]))

	// test the conflicting 1a never reaches the others
	for _, n := range c.nodes[2:] {
		assert.Equal(t, SlotOpen, n.SlotState(p2[1]))
	}
}

func TestConflictAfterDecision(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: 500 * time.Millisecond})
	p1 := []ChainSlot{{Chain: "s", Index: 1}, {Chain: "s", Index: 2}}
	p2 := []ChainSlot{{Chain: "s", Index: 2}, {Chain: "s", Index: 3}}
	cid1 := hetpb.ConsensusID(p1)

	_, err := c.nodes[0].Propose(c.groupRef, p1, Value{Data: []byte("p1")}, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.decided(cid1) }, 10*time.Second, 10*time.Millisecond)

	for _, n := range c.nodes {
		_, err := n.Propose(c.groupRef, p2, Value{Data: []byte("p2")}, 0)
		assert.ErrorIs(t, err, ErrConflictingProposal)
		assert.Equal(t, cid1, n.Slot(p2[0]).Decision().ConsensusID)
		assert.False(t, n.Slot(p2[1]).IsDecided())
	}
}

func TestRestartLiveness(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: 50 * time.Millisecond})
	proposer := c.nodes[0]
	observer := c.nodes[1]
	slots := []ChainSlot{{Chain: "r", Index: 1}}
	cid := hetpb.ConsensusID(slots)

	restarted := make(chan Proposal, 64)
	c.net.setTap(func(to string, msg *Message) {
		if msg.Type == hetpb.MessageType1a && msg.Identity == proposer.Identity() && to == observer.Identity() {
			select {
			case restarted <- msg.M1a.Proposal:
			default:
			}
		}
	})
	c.net.setDrop(func(to string, msg *Message) bool { return msg.Type == hetpb.MessageType1b })

	_, err := proposer.Propose(c.groupRef, slots, Value{Data: []byte("v1")}, 0)
	require.NoError(t, err)

	// echoes repeat the ballot they forward, wait for a higher one
	var first uint64
	var later *Proposal
	deadline := time.After(5 * time.Second)
	for later == nil {
		select {
		case p := <-restarted:
			if first == 0 {
				first = p.Ballot.Counter
			} else if p.Ballot.Counter > first {
				later = &p
			}
		case <-deadline:
			t.Fatal("no restart 1a was broadcast")
		}
	}
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, "v1", string(later.Value.Data))
	assert.True(t, proposer.Proposal(cid).Restarts() >= 1)
	assert.False(t, proposer.Proposal(cid).IsDecided())

	// test the slot floor never decreases while restarts go on
	var last Ballot
	c.net.setDrop(nil)
	require.Eventually(t, func() bool {
		if ss := observer.Slot(slots[0]); ss != nil {
			b := ss.Ballot()
			assert.True(t, compareBallots(b, last) >= 0)
			last = b
		}
		return c.decided(cid)
	}, 10*time.Second, 5*time.Millisecond)

	d := observer.Slot(slots[0]).Decision()
	require.NotNil(t, d)
	dec, err := BuildDecision(observer.store, nil, d.References)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(dec.Value.Data))
	assert.True(t, dec.Ballot.Counter > 1)
}

func TestRestartLimit(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: 20 * time.Millisecond, maxRestarts: 2})
	c.net.setDrop(func(to string, msg *Message) bool { return true })
	slots := []ChainSlot{{Chain: "l", Index: 1}}
	cid := hetpb.ConsensusID(slots)

	_, err := c.nodes[0].Propose(c.groupRef, slots, Value{Data: []byte("v")}, 0)
	require.NoError(t, err)
	ps := c.nodes[0].Proposal(cid)
	require.Eventually(t, func() bool { return ps.Restarts() == 2 }, 5*time.Second, 5*time.Millisecond)

	// test no 1a goes out once the limit is reached
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, uint64(3), ps.Ballot().Counter)
	assert.Equal(t, uint32(2), ps.Restarts())
	assert.False(t, ps.IsDecided())
}

func TestRestartProposal(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: time.Minute})
	c.net.setDrop(func(to string, msg *Message) bool { return true })
	n := c.nodes[0]
	slots := []ChainSlot{{Chain: "x", Index: 1}}
	cid := hetpb.ConsensusID(slots)

	assert.ErrorIs(t, n.RestartProposal(cid, nil), ErrProposalNotFound)

	_, err := n.Propose(c.groupRef, slots, Value{Data: []byte("old")}, 0)
	require.NoError(t, err)
	ps := n.Proposal(cid)
	require.Equal(t, uint64(1), ps.Ballot().Counter)

	nv := Value{Data: []byte("new")}
	require.NoError(t, n.RestartProposal(cid, &nv))
	assert.True(t, ps.restart.Live(TimerRestart) || ps.restart.Live(TimerM1b))
	require.Eventually(t, func() bool { return ps.Ballot().Counter == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "new", string(ps.Value().Data))
	assert.Equal(t, nv.Hash(), ps.Ballot().Value)
	assert.True(t, compareBallots(n.Slot(slots[0]).Ballot(), ps.Ballot()) == 0)

	// test the stage ends past proposed once the local 1a is handled
	require.Eventually(t, func() bool { return ps.Stage() == StageM1BSent }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StageM1BSent, ps.Stage())
}

func TestReceiveCraftedRound(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: time.Minute})
	c.net.setDrop(func(to string, msg *Message) bool { return true })
	n0 := c.nodes[0]
	peers := c.nodes[1:]
	g := c.groupRef
	slots := []ChainSlot{{Chain: "m", Index: 1}}
	cid := hetpb.ConsensusID(slots)
	v := Value{Data: []byte("crafted")}

	m1a1, ref1 := signed(t, peers[0].signer, new1a(g, slots, v, 1))
	m1a2, ref2 := signed(t, peers[0].signer, new1a(g, slots, v, 2))
	require.NoError(t, n0.Receive(m1a1))
	require.NoError(t, n0.Receive(m1a2))
	assert.ErrorIs(t, n0.Receive(m1a1), ErrStaleBallot)
	assert.Equal(t, uint64(2), n0.Slot(slots[0]).Ballot().Counter)

	var round1, round2 []Reference
	for _, p := range peers {
		m, r := signed(t, p.signer, new1b(g, ref1, nil))
		assert.ErrorIs(t, n0.Receive(m), ErrStaleBallot)
		round1 = append(round1, r)
		m, r = signed(t, p.signer, new1b(g, ref2, nil))
		require.NoError(t, n0.Receive(m))
		round2 = append(round2, r)
	}
	require.Eventually(t, func() bool {
		return n0.Slot(slots[0]).State() == SlotCommittedPhase2
	}, 5*time.Second, 5*time.Millisecond)

	// test a 2b mixing 1b messages of two ballots is rejected
	mixed := sortReferences([]Reference{round1[0], round1[1], round2[2]})
	m, _ := signed(t, peers[0].signer, new2b(g, ref2, mixed))
	assert.ErrorIs(t, n0.Receive(m), ErrVerification)

	m, _ = signed(t, peers[0].signer, new2b(g, ref2, []Reference{{Hash: "unknown"}}))
	assert.ErrorIs(t, n0.Receive(m), ErrUnresolvedReference)
	assert.False(t, n0.Slot(slots[0]).IsDecided())

	quorum := sortReferences(round2)
	for _, p := range peers {
		m, _ := signed(t, p.signer, new2b(g, ref2, quorum))
		require.NoError(t, n0.Receive(m))
	}
	require.Eventually(t, func() bool { return n0.Proposal(cid).IsDecided() }, 5*time.Second, 5*time.Millisecond)
	d := n0.Slot(slots[0]).Decision()
	require.NotNil(t, d)
	assert.Equal(t, uint64(2), d.Ballot.Counter)
}

func TestQueueBeforeProposal(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: time.Minute})
	c.net.setDrop(func(to string, msg *Message) bool { return true })
	n0 := c.nodes[0]
	p := c.nodes[1]
	slots := []ChainSlot{{Chain: "q", Index: 1}}
	cid := hetpb.ConsensusID(slots)

	m1a, ref := signed(t, p.signer, new1a(c.groupRef, slots, Value{Data: []byte("q")}, 1))
	m1b, _ := signed(t, p.signer, new1b(c.groupRef, ref, nil))

	// test the 1b waits for its 1a
	require.NoError(t, n0.Receive(m1b))
	assert.Nil(t, n0.Proposal(cid))
	assert.Equal(t, 1, n0.queue.Len(ref.Hash))

	require.NoError(t, n0.Receive(m1a))
	require.Eventually(t, func() bool { return n0.queue.Len(ref.Hash) == 0 }, 5*time.Second, 5*time.Millisecond)
	ps := n0.Proposal(cid)
	require.NotNil(t, ps)
	require.Eventually(t, func() bool {
		return ps.tally1b.Voters(m1a.M1a.Proposal.Ballot, m1a.M1a.Proposal.Value) == 2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, StageM1BSent, ps.Stage())
}

func TestQueueSurvivesEcho(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: time.Minute})
	c.net.setDrop(func(to string, msg *Message) bool { return true })
	n0 := c.nodes[0]
	p := c.nodes[1]
	slots := []ChainSlot{{Chain: "e", Index: 1}}
	cid := hetpb.ConsensusID(slots)

	m1a, ref := signed(t, p.signer, new1a(c.groupRef, slots, Value{Data: []byte("e")}, 1))
	m1b, _ := signed(t, p.signer, new1b(c.groupRef, ref, nil))
	require.NoError(t, n0.Receive(m1b))
	require.Equal(t, 1, n0.queue.Len(ref.Hash))

	// hold every worker so the drain of the 1a waits behind them
	var once sync.Once
	release := make(chan struct{})
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	for i := 0; i < 4; i++ {
		n0.submit(func() { <-release })
	}

	require.NoError(t, n0.Receive(m1a))
	// test the echo of the accepted 1a keeps its parked messages
	assert.ErrorIs(t, n0.Receive(m1a), ErrStaleBallot)
	assert.Equal(t, 1, n0.queue.Len(ref.Hash))

	unblock()
	ps := n0.Proposal(cid)
	require.NotNil(t, ps)
	require.Eventually(t, func() bool {
		return ps.tally1b.Voters(m1a.M1a.Proposal.Ballot, m1a.M1a.Proposal.Value) == 2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, n0.queue.Len(ref.Hash))
}

func TestParkAfterDrain(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: time.Minute})
	c.net.setDrop(func(to string, msg *Message) bool { return true })
	n0 := c.nodes[0]
	p := c.nodes[1]
	slots := []ChainSlot{{Chain: "d", Index: 1}}
	cid := hetpb.ConsensusID(slots)

	m1a, ref := signed(t, p.signer, new1a(c.groupRef, slots, Value{Data: []byte("d")}, 1))
	m1b, _ := signed(t, p.signer, new1b(c.groupRef, ref, nil))
	require.NoError(t, n0.Receive(m1a))
	ps := n0.Proposal(cid)
	require.NotNil(t, ps)
	ballot, value := m1a.M1a.Proposal.Ballot, m1a.M1a.Proposal.Value
	require.Eventually(t, func() bool { return ps.tally1b.Voters(ballot, value) == 1 }, 5*time.Second, 5*time.Millisecond)

	// test a 1b parked after the drain of its 1a is still counted
	assert.True(t, n0.park(ref, m1b))
	require.Eventually(t, func() bool {
		return n0.queue.Len(ref.Hash) == 0 && ps.tally1b.Voters(ballot, value) == 2
	}, 5*time.Second, 5*time.Millisecond)
}

func TestDecideSlotsReplay(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: time.Minute})
	n := c.nodes[0]
	slots := []ChainSlot{{Chain: "x", Index: 9}, {Chain: "x", Index: 8}}
	att := &Attestation{
		Slots:      slots,
		Message2bs: []Reference{{Hash: "b"}, {Hash: "a"}},
		Observer:   "authority",
	}

	require.NoError(t, n.DecideSlots(att))
	first := n.Slot(slots[0]).Decision()
	require.NotNil(t, first)
	require.NoError(t, n.DecideSlots(att))
	assert.Equal(t, first, n.Slot(slots[0]).Decision())
	assert.Equal(t, "a", first.References[0].Hash)

	other := &Attestation{Slots: slots, Message2bs: []Reference{{Hash: "c"}}}
	err := n.DecideSlots(other)
	assert.ErrorIs(t, err, ErrSlotDecided)
	assert.Equal(t, first, n.Slot(slots[0]).Decision())

	assert.ErrorIs(t, n.DecideSlots(&Attestation{}), ErrEmptyProposal)
}

func TestDecideSlotsAllOrNone(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: time.Minute})
	n := c.nodes[0]
	x1 := ChainSlot{Chain: "x", Index: 1}
	x2 := ChainSlot{Chain: "x", Index: 2}

	require.NoError(t, n.DecideSlots(&Attestation{Slots: []ChainSlot{x1}, Message2bs: []Reference{{Hash: "a"}}}))

	err := n.DecideSlots(&Attestation{Slots: []ChainSlot{x1, x2}, Message2bs: []Reference{{Hash: "b"}}})
	assert.ErrorIs(t, err, ErrSlotDecided)
	assert.Equal(t, SlotOpen, n.SlotState(x2))
	assert.Equal(t, hetpb.ConsensusID([]ChainSlot{x1}), n.Slot(x1).Decision().ConsensusID)
}

func TestReceiveAttestedSlot(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: time.Minute})
	c.net.setDrop(func(to string, msg *Message) bool { return true })
	n := c.nodes[0]
	slots := []ChainSlot{{Chain: "t", Index: 1}}
	require.NoError(t, n.store.PutAttestation(&Attestation{
		Slots:      slots,
		Message2bs: []Reference{{Hash: "a"}},
		Observer:   c.nodes[2].Identity(),
	}))

	m, _ := signed(t, c.nodes[1].signer, new1a(c.groupRef, slots, Value{Data: []byte("v")}, 1))
	assert.ErrorIs(t, n.Receive(m), ErrAttested)
}

func TestReceiveRejects(t *testing.T) {
	c := newCluster(t, clusterConfig{size: 4, threshold: 3, timeout: time.Minute})
	c.net.setDrop(func(to string, msg *Message) bool { return true })
	n := c.nodes[0]
	slots := []ChainSlot{{Chain: "z", Index: 1}}

	m, _ := signed(t, c.nodes[1].signer, new1a(c.groupRef, slots, Value{Data: []byte("v")}, 1))
	tampered := *m
	tampered.M1a = &hetpb.Message1a{Proposal: m.M1a.Proposal}
	tampered.M1a.Proposal.Ballot.Counter = 9
	assert.ErrorIs(t, n.Receive(&tampered), ErrInvalidSignature)

	outsider := newSigners(t, 1)[0]
	m, _ = signed(t, outsider, new1a(Reference{Hash: "unknown-group"}, slots, Value{Data: []byte("v")}, 1))
	assert.ErrorIs(t, n.Receive(m), ErrUnresolvedReference)

	m, _ = signed(t, c.nodes[1].signer, new1a(c.groupRef, nil, Value{Data: []byte("v")}, 1))
	assert.ErrorIs(t, n.Receive(m), ErrEmptyProposal)

	m, _ = signed(t, c.nodes[1].signer, &Message{Type: hetpb.MessageType2b, ObserverGroupRef: c.groupRef})
	assert.ErrorIs(t, n.Receive(m), ErrMessageType)

	_, err := n.Propose(c.groupRef, nil, Value{}, 0)
	assert.ErrorIs(t, err, ErrEmptyProposal)
}
