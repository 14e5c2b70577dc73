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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hetcons/go-hetcons/crypto"
	"github.com/hetcons/go-hetcons/db/memdb"
	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/store"
)

// loopback delivers messages between the observers of one process.
// Messages whose references are not stored yet are delivered again
// shortly after, the way a peer connection retransmits.
type loopback struct {
	lock  sync.RWMutex
	nodes map[string]*ObserverStatus
	drop  func(to string, msg *Message) bool
	tap   func(to string, msg *Message)
}

func (l *loopback) Send(to string, msg *Message) error {
	l.lock.RLock()
	o, ok := l.nodes[to]
	drop, tap := l.drop, l.tap
	l.lock.RUnlock()
	if !ok {
		return fmt.Errorf("unknown participant %s", to)
	}
	if tap != nil {
		tap(to, msg)
	}
	if drop != nil && drop(to, msg) {
		return nil
	}
	l.deliver(o, msg, 20)
	return nil
}

func (l *loopback) deliver(o *ObserverStatus, msg *Message, attempts int) {
	o.submit(func() {
		err := o.Receive(msg)
		if errors.Is(err, ErrUnresolvedReference) && attempts > 0 {
			time.AfterFunc(5*time.Millisecond, func() { l.deliver(o, msg, attempts-1) })
		}
	})
}

func (l *loopback) setDrop(drop func(to string, msg *Message) bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.drop = drop
}

func (l *loopback) setTap(tap func(to string, msg *Message)) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.tap = tap
}

type recordSink struct {
	lock    sync.Mutex
	quorums []*ObserverQuorum
	refs    [][]Reference
}

func (s *recordSink) OnDecision(quorum *ObserverQuorum, refs []Reference) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.quorums = append(s.quorums, quorum)
	s.refs = append(s.refs, refs)
}

func (s *recordSink) count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.refs)
}

type testNode struct {
	*ObserverStatus
	signer *MessageSigner
	store  *store.Store
	sink   *recordSink
}

type cluster struct {
	nodes    []*testNode
	net      *loopback
	group    *ObserverGroup
	groupRef Reference
}

type clusterConfig struct {
	size        int
	threshold   int
	timeout     time.Duration
	maxRestarts uint32
}

func newCluster(t *testing.T, cfg clusterConfig) *cluster {
	c := &cluster{net: &loopback{nodes: make(map[string]*ObserverStatus)}}

	var ids []string
	var signers []*MessageSigner
	for i := 0; i < cfg.size; i++ {
		_, seed, err := crypto.GetNodeKeypair()
		require.NoError(t, err)
		s, err := NewMessageSigner(seed)
		require.NoError(t, err)
		signers = append(signers, s)
		ids = append(ids, s.Identity())
	}

	c.group = &ObserverGroup{Name: "test"}
	for _, id := range ids {
		c.group.Observers = append(c.group.Observers, hetpb.Observer{
			ID: id,
			Quorums: []ObserverQuorum{{
				Name:      "majority",
				Owner:     id,
				Members:   append([]string(nil), ids...),
				Threshold: cfg.threshold,
			}},
		})
	}

	for _, s := range signers {
		st := store.New(memdb.New(), 512)
		ref, err := st.PutObserverGroup(c.group)
		require.NoError(t, err)
		c.groupRef = ref

		sink := &recordSink{}
		o := NewObserverStatus(&ObserverContext{
			Store:          st,
			Transport:      c.net,
			Signer:         s,
			Sink:           sink,
			Workers:        4,
			DefaultTimeout: cfg.timeout,
			MaxRestarts:    cfg.maxRestarts,
		})
		c.net.nodes[s.Identity()] = o
		c.nodes = append(c.nodes, &testNode{ObserverStatus: o, signer: s, store: st, sink: sink})
	}

	t.Cleanup(func() {
		for _, n := range c.nodes {
			n.Stop()
		}
	})
	return c
}

// Check whether every node decided the proposal
func (c *cluster) decided(cid string) bool {
	for _, n := range c.nodes {
		ps := n.Proposal(cid)
		if ps == nil || !ps.IsDecided() {
			return false
		}
	}
	return true
}

func signed(t *testing.T, s Signer, msg *Message) (*Message, Reference) {
	require.NoError(t, s.Sign(msg))
	ref, err := hetpb.GetReference(msg)
	require.NoError(t, err)
	return msg, ref
}

func new1a(groupRef Reference, slots []ChainSlot, value Value, counter uint64) *Message {
	return &Message{
		Type: hetpb.MessageType1a,
		M1a: &hetpb.Message1a{Proposal: Proposal{
			Slots:  slots,
			Value:  value,
			Ballot: Ballot{Counter: counter, Value: value.Hash()},
		}},
		ObserverGroupRef: groupRef,
	}
}

func new1b(groupRef Reference, m1aRef Reference, m2a *Message2ab) *Message {
	return &Message{
		Type:             hetpb.MessageType1b,
		M1b:              &hetpb.Message1b{M1aRef: m1aRef, M2a: m2a},
		ObserverGroupRef: groupRef,
	}
}

func new2b(groupRef Reference, m1aRef Reference, refs []Reference) *Message {
	return &Message{
		Type:             hetpb.MessageType2b,
		M2b:              &Message2ab{M1aRef: m1aRef, QuorumOf1bs: refs},
		ObserverGroupRef: groupRef,
	}
}
