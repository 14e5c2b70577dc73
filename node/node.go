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

// Package node wires the observer core, the block store, the peer
// manager and the gRPC server into a running observer node.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/hetcons/go-hetcons/consensus"
	"github.com/hetcons/go-hetcons/db"
	_ "github.com/hetcons/go-hetcons/db/badgerdb"
	_ "github.com/hetcons/go-hetcons/db/boltdb"
	_ "github.com/hetcons/go-hetcons/db/leveldb"
	_ "github.com/hetcons/go-hetcons/db/memdb"
	"github.com/hetcons/go-hetcons/future"
	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/log"
	"github.com/hetcons/go-hetcons/peer"
	"github.com/hetcons/go-hetcons/rpc"
	"github.com/hetcons/go-hetcons/rpc/rpcpb"
	"github.com/hetcons/go-hetcons/store"
)

const (
	// redelivery of messages whose references are still in flight
	receiveAttempts = 20
	receiveInterval = 50 * time.Millisecond
)

// Node is the central controller of an observer node
type Node struct {
	config *Config

	database db.Database
	store    *store.Store

	// Network address announced to peers
	addr string
	// NodeID of this node
	nodeID string
	// start time of the node
	startTime int64

	listener net.Listener
	server   *rpc.NodeServer
	pm       *peer.Manager
	observer *consensus.ObserverStatus
	registry *prometheus.Registry

	// reference of the configured observer group
	groupRef hetpb.Reference

	stopOnce sync.Once
	stopChan chan struct{}
	stopped  *atomic.Bool

	// futures for task with error responses
	peerFuture     chan *future.Peer
	msgFuture      chan *future.Message
	proposalFuture chan *future.Proposal
	decisionFuture chan *future.Decision
	attestFuture   chan *future.Attestation
	groupFuture    chan *future.ObserverGroup
}

// NewNode opens the database and the listener and creates the
// components of the node.
func NewNode(conf *Config) (*Node, error) {
	if err := log.SetLevel(conf.LogLevel); err != nil {
		return nil, err
	}

	database, err := db.Open(conf.DBBackend, conf.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %v", err)
	}
	st := store.New(database, conf.CacheSize)

	groupRef, err := st.PutObserverGroup(conf.ObserverGroup)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("save observer group failed: %v", err)
	}

	listener, err := net.Listen("tcp", conf.Port)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("listen on %s failed: %v", conf.Port, err)
	}
	addr := conf.AdvertiseAddr
	if addr == "" {
		addr = listener.Addr().String()
	}
	log.Infow("node address", "addr", addr, "nodeid", conf.NodeID, "group", groupRef.Hash)

	pm := peer.NewManager(&peer.ManagerContext{
		NetworkID: conf.NetworkID,
		Addr:      addr,
		NodeID:    conf.NodeID,
		InitPeers: conf.Peers,
		MaxPeers:  conf.MaxPeers,
	})

	signer, err := consensus.NewMessageSigner(conf.Seed)
	if err != nil {
		listener.Close()
		database.Close()
		return nil, fmt.Errorf("create message signer failed: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	n := &Node{
		config:         conf,
		database:       database,
		store:          st,
		addr:           addr,
		nodeID:         conf.NodeID,
		startTime:      time.Now().Unix(),
		listener:       listener,
		pm:             pm,
		registry:       registry,
		groupRef:       groupRef,
		stopChan:       make(chan struct{}),
		stopped:        atomic.NewBool(false),
		peerFuture:     make(chan *future.Peer),
		msgFuture:      make(chan *future.Message),
		proposalFuture: make(chan *future.Proposal),
		decisionFuture: make(chan *future.Decision),
		attestFuture:   make(chan *future.Attestation),
		groupFuture:    make(chan *future.ObserverGroup),
	}

	// construct observer context and create the observer
	observerCtx := &consensus.ObserverContext{
		Store:          st,
		Transport:      pm,
		Signer:         signer,
		Sink:           &decisionRecorder{store: st, nodeID: conf.NodeID},
		Metrics:        consensus.NewMetrics(registry),
		Workers:        conf.Workers,
		QueueCapacity:  conf.QueueCapacity,
		DefaultTimeout: conf.RoundTimeout,
		MaxRestarts:    conf.MaxRestarts,
	}
	n.observer = consensus.NewObserverStatus(observerCtx)

	// construct node server context and create node server
	serverCtx := &rpc.ServerContext{
		NetworkID:         conf.NetworkID,
		Addr:              addr,
		NodeID:            conf.NodeID,
		PeerFuture:        n.peerFuture,
		MessageFuture:     n.msgFuture,
		ProposalFuture:    n.proposalFuture,
		DecisionFuture:    n.decisionFuture,
		AttestationFuture: n.attestFuture,
		GroupFuture:       n.groupFuture,
	}
	n.server = rpc.NewNodeServer(serverCtx)

	return n, nil
}

// Addr returns the address the node announces to peers.
func (n *Node) Addr() string {
	return n.addr
}

// GroupRef returns the reference of the configured observer group.
func (n *Node) GroupRef() hetpb.Reference {
	return n.groupRef
}

// Start replays persisted decisions and runs the node until ctx is
// done, Stop is called or one of the servers fails.
func (n *Node) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-n.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := n.replayDecisions(); err != nil {
		log.Errorf("replay decisions failed: %v", err)
	}

	serverDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(serverDone)
		return n.serveNode(gctx)
	})
	g.Go(func() error {
		n.eventLoop(serverDone)
		return nil
	})
	if n.config.MetricsAddr != "" {
		g.Go(func() error {
			return n.serveMetrics(gctx)
		})
	}

	n.pm.Start()

	err := g.Wait()

	n.stopped.Store(true)
	n.pm.Stop()
	n.observer.Stop()
	if cerr := n.database.Close(); cerr != nil {
		log.Errorf("close database failed: %v", cerr)
	}
	return err
}

// Stop signals the running node to shut down.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopChan)
	})
}

// replayDecisions applies the persisted decisions to the observer,
// slots decided before a restart stay decided.
func (n *Node) replayDecisions() error {
	decisions, err := n.store.GetDecisions()
	if err != nil {
		return err
	}
	for _, dec := range decisions {
		att := &hetpb.Attestation{
			Slots:      dec.Slots,
			Message2bs: dec.Message2bs,
			Observer:   n.nodeID,
		}
		if err := n.observer.DecideSlots(att); err != nil {
			log.Warnw("replay decision failed", "cid", dec.ConsensusID, "err", err)
		}
	}
	if len(decisions) > 0 {
		log.Infof("replayed %d decisions", len(decisions))
	}
	return nil
}

// Event loop for processing messages from peers and internal queries,
// it runs until the gRPC server stopped serving requests.
func (n *Node) eventLoop(serverDone <-chan struct{}) {
	for {
		select {
		case pf := <-n.peerFuture:
			var err error
			if !n.pm.IsConnected(pf.NodeID) {
				err = n.pm.AddPeerAddr(pf.Addr)
			}
			if err != nil {
				log.Errorf("add peer addr failed: %v", err)
			}
			pf.Respond(err)
		case mf := <-n.msgFuture:
			go n.receive(mf.Msg, receiveAttempts)
			mf.Respond(nil)
		case pf := <-n.proposalFuture:
			groupRef := pf.GroupRef
			if groupRef.IsEmpty() {
				groupRef = n.groupRef
			}
			ref, err := n.observer.Propose(groupRef, pf.Slots, pf.Value, pf.Timeout)
			if err != nil {
				log.Errorw("propose failed", "slots", len(pf.Slots), "err", err)
			}
			pf.M1aRef = ref
			pf.Respond(err)
		case df := <-n.decisionFuture:
			dec, err := n.queryDecision(df.ConsensusID, df.Slot)
			df.Decision = dec
			df.Respond(err)
		case af := <-n.attestFuture:
			err := n.attest(af.Attestation)
			if err != nil {
				log.Errorw("apply attestation failed", "observer", af.Attestation.Observer, "err", err)
			}
			af.Respond(err)
		case gf := <-n.groupFuture:
			ref, err := n.store.PutObserverGroup(gf.Group)
			if err != nil {
				log.Errorf("save observer group failed: %v", err)
			}
			gf.GroupRef = ref
			gf.Respond(err)
		case <-serverDone:
			log.Info("shutdown event loop")
			return
		}
	}
}

// receive hands msg to the observer and tries again while the
// messages it references are still in flight.
func (n *Node) receive(msg *hetpb.Message, attempts int) {
	if n.stopped.Load() {
		return
	}
	err := n.observer.Receive(msg)
	if errors.Is(err, consensus.ErrUnresolvedReference) && attempts > 1 {
		time.AfterFunc(receiveInterval, func() { n.receive(msg, attempts-1) })
	}
}

func (n *Node) queryDecision(cid string, slot *hetpb.ChainSlot) (*hetpb.Decision, error) {
	var dec *hetpb.Decision
	var err error
	if cid != "" {
		dec, err = n.store.GetDecision(cid)
	} else {
		dec, err = n.store.GetSlotDecision(*slot)
	}
	if errors.Is(err, store.ErrDecisionNotFound) {
		return nil, nil
	}
	return dec, err
}

func (n *Node) attest(att *hetpb.Attestation) error {
	if err := n.store.PutAttestation(att); err != nil {
		return err
	}
	return n.observer.DecideSlots(att)
}

// serveNode serves gRPC requests on the listener until ctx is done.
func (n *Node) serveNode(ctx context.Context) error {
	s := grpc.NewServer()
	rpcpb.RegisterNodeServer(s, n.server)

	go func() {
		<-ctx.Done()
		log.Infof("gracefully shutdown gRPC server")
		s.GracefulStop()
	}()

	log.Infof("start to serve gRPC server on %s", n.listener.Addr())
	if err := s.Serve(n.listener); err != nil {
		return fmt.Errorf("serve gRPC failed: %v", err)
	}
	return nil
}

// serveMetrics exposes the node registry for prometheus scrapes.
func (n *Node) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: n.config.MetricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Infof("start to serve metrics on %s", n.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics failed: %v", err)
	}
	return nil
}

// decisionRecorder persists every decision of the local observer.
type decisionRecorder struct {
	store  *store.Store
	nodeID string
}

func (r *decisionRecorder) OnDecision(quorum *hetpb.ObserverQuorum, refs []hetpb.Reference) {
	dec, err := consensus.BuildDecision(r.store, quorum, refs)
	if err != nil {
		log.Errorw("build decision failed", "observer", r.nodeID, "err", err)
		return
	}
	if err := r.store.PutDecision(dec); err != nil {
		log.Errorw("persist decision failed", "observer", r.nodeID, "cid", dec.ConsensusID, "err", err)
		return
	}
	log.Infow("decision persisted", "observer", r.nodeID, "cid", dec.ConsensusID, "ballot", dec.Ballot.String())
}
