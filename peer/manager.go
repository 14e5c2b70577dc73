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

// Package peer keeps gRPC connections to the other observer nodes
// and delivers phase messages to them by node id.
package peer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/log"
	"github.com/hetcons/go-hetcons/rpc/rpcpb"
)

var (
	ErrUnknownPeer    = errors.New("no live connection to peer")
	ErrManagerStopped = errors.New("peer manager stopped")
)

// connect attempts per pending address before it is given up
const maxConnectAttempts = 3

// Manager manages the CRUD of peers
type Manager struct {
	// Network address of the node
	addr string

	// NodeID of the node
	nodeID string

	networkID string

	// Metadata for gRPC context
	metadata metadata.MD

	// max number of peers to connect
	maxPeers int

	dialTimeout time.Duration

	// initial peer addresses
	initPeers []string

	// connected peers by address and by node id
	peerLock  sync.RWMutex
	livePeers map[string]*Peer
	nodePeers map[string]*Peer

	// peers waiting to be connected, each peer has three
	// chances to be connected. Owned by the connect loop.
	pendingPeers map[string]int

	// channel for stopping pending peers connection
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// channel for adding peer addr
	peerAddrChan chan string
}

// ManagerContext represents contextual information for the manager.
type ManagerContext struct {
	NetworkID string
	Addr      string
	NodeID    string
	InitPeers []string
	MaxPeers  int
	// defaults to one second
	DialTimeout time.Duration
}

func ValidateManagerContext(mc *ManagerContext) error {
	if mc == nil {
		return errors.New("manager context is nil")
	}
	if mc.NetworkID == "" {
		return errors.New("empty network ID")
	}
	if mc.Addr == "" {
		return errors.New("empty local network address")
	}
	if mc.NodeID == "" {
		return errors.New("empty local node ID")
	}
	return nil
}

func NewManager(ctx *ManagerContext) *Manager {
	if err := ValidateManagerContext(ctx); err != nil {
		log.Fatalf("validate manager context failed: %v", err)
	}
	maxPeers := ctx.MaxPeers
	if maxPeers <= 0 {
		maxPeers = 100
	}
	dialTimeout := ctx.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = time.Second
	}
	return &Manager{
		addr:         ctx.Addr,
		nodeID:       ctx.NodeID,
		networkID:    ctx.NetworkID,
		metadata:     metadata.Pairs("addr", ctx.Addr, "nodeid", ctx.NodeID),
		maxPeers:     maxPeers,
		dialTimeout:  dialTimeout,
		initPeers:    ctx.InitPeers,
		livePeers:    make(map[string]*Peer),
		nodePeers:    make(map[string]*Peer),
		pendingPeers: make(map[string]int),
		stopChan:     make(chan struct{}),
		peerAddrChan: make(chan string, 100),
	}
}

func (pm *Manager) Start() {
	for _, addr := range pm.initPeers {
		if addr == pm.addr {
			continue
		}
		pm.pendingPeers[addr] = maxConnectAttempts
	}
	pm.wg.Add(1)
	go pm.connect()
}

// Stop the peer manager and close all the live connections.
func (pm *Manager) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
	pm.wg.Wait()
	pm.peerLock.Lock()
	for _, p := range pm.livePeers {
		p.Close()
	}
	pm.livePeers = make(map[string]*Peer)
	pm.nodePeers = make(map[string]*Peer)
	pm.peerLock.Unlock()
}

// Get a list of rpc clients from live peers
func (pm *Manager) GetLiveClients() []rpcpb.NodeClient {
	pm.peerLock.RLock()
	defer pm.peerLock.RUnlock()
	var clients []rpcpb.NodeClient
	for _, p := range pm.livePeers {
		clients = append(clients, p.client)
	}
	return clients
}

func (pm *Manager) GetMetadata() metadata.MD {
	return pm.metadata
}

// LivePeers returns the number of connected peers.
func (pm *Manager) LivePeers() int {
	pm.peerLock.RLock()
	defer pm.peerLock.RUnlock()
	return len(pm.livePeers)
}

// IsConnected reports whether a live connection to nodeID exists.
func (pm *Manager) IsConnected(nodeID string) bool {
	pm.peerLock.RLock()
	defer pm.peerLock.RUnlock()
	_, ok := pm.nodePeers[nodeID]
	return ok
}

// Add new peer with network addr
func (pm *Manager) AddPeerAddr(addr string) error {
	if addr == pm.addr {
		return nil
	}
	select {
	case pm.peerAddrChan <- addr:
	case <-pm.stopChan:
		return ErrManagerStopped
	}
	return nil
}

// Send delivers msg to the peer with the node id, a peer that went
// away is dropped and its address queued for reconnection.
func (pm *Manager) Send(nodeID string, msg *hetpb.Message) error {
	pm.peerLock.RLock()
	p, ok := pm.nodePeers[nodeID]
	pm.peerLock.RUnlock()
	if !ok {
		return fmt.Errorf("send to %s failed: %w", nodeID, ErrUnknownPeer)
	}

	err := p.Submit(pm.networkID, msg)
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.Unavailable {
		pm.removePeer(p)
		if err := pm.AddPeerAddr(p.Addr); err != nil {
			log.Warnf("requeue peer %s failed: %v", p.Addr, err)
		}
	}
	return fmt.Errorf("send to %s failed: %v", nodeID, err)
}

// Broadcast delivers msg to every live peer.
func (pm *Manager) Broadcast(msg *hetpb.Message) error {
	pm.peerLock.RLock()
	nodeIDs := make([]string, 0, len(pm.nodePeers))
	for id := range pm.nodePeers {
		nodeIDs = append(nodeIDs, id)
	}
	pm.peerLock.RUnlock()

	var result error
	for _, id := range nodeIDs {
		if err := pm.Send(id, msg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func (pm *Manager) addPeer(p *Peer) {
	pm.peerLock.Lock()
	defer pm.peerLock.Unlock()
	if old, ok := pm.livePeers[p.Addr]; ok {
		old.Close()
		delete(pm.nodePeers, old.NodeID)
	}
	pm.livePeers[p.Addr] = p
	pm.nodePeers[p.NodeID] = p
}

// only delete connected peers
func (pm *Manager) removePeer(p *Peer) {
	pm.peerLock.Lock()
	defer pm.peerLock.Unlock()
	if live, ok := pm.livePeers[p.Addr]; ok && live == p {
		delete(pm.livePeers, p.Addr)
		delete(pm.nodePeers, p.NodeID)
		p.Close()
	}
}

func (pm *Manager) isLive(addr string) bool {
	pm.peerLock.RLock()
	defer pm.peerLock.RUnlock()
	_, ok := pm.livePeers[addr]
	return ok
}

// connectPending dials every pending address once and says hello.
func (pm *Manager) connectPending() {
	for addr, count := range pm.pendingPeers {
		if count == 0 || pm.isLive(addr) {
			delete(pm.pendingPeers, addr)
			continue
		}
		if pm.LivePeers() >= pm.maxPeers {
			return
		}
		p, err := dial(addr, pm.metadata, pm.dialTimeout)
		if err != nil {
			log.Errorf("connect to peer %s failed: %v", addr, err)
			pm.pendingPeers[addr] = count - 1
			continue
		}
		// exchange the nodeID with the peer
		if err := p.Hello(pm.networkID); err != nil {
			log.Errorf("say hello to peer %s failed: %v", addr, err)
			pm.pendingPeers[addr] = count - 1
			p.Close()
			continue
		}
		delete(pm.pendingPeers, addr)
		pm.addPeer(p)
		log.Infow("connected to peer", "addr", addr, "nodeid", p.NodeID)
	}
}

// connect to peers periodically
func (pm *Manager) connect() {
	defer pm.wg.Done()
	pm.connectPending()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if len(pm.pendingPeers) == 0 {
				continue
			}
			pm.connectPending()
		case addr := <-pm.peerAddrChan:
			if _, ok := pm.pendingPeers[addr]; ok {
				continue
			}
			if pm.isLive(addr) {
				continue
			}
			pm.pendingPeers[addr] = maxConnectAttempts
		case <-pm.stopChan:
			return
		}
	}
}
