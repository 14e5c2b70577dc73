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

package peer

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/hetcons/go-hetcons/crypto"
	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/rpc/rpcpb"
)

const testNetworkID = "hetcons-test"

type stubServer struct {
	rpcpb.UnimplementedNodeServer
	addr   string
	nodeID string

	lock     sync.Mutex
	received []*hetpb.Message
}

func (s *stubServer) Hello(ctx context.Context, req *rpcpb.HelloRequest) (*rpcpb.HelloResponse, error) {
	if req.NetworkID != testNetworkID {
		return nil, errors.New("incompatible network id")
	}
	grpc.SendHeader(ctx, metadata.Pairs("addr", s.addr, "nodeid", s.nodeID))
	return &rpcpb.HelloResponse{}, nil
}

func (s *stubServer) Submit(ctx context.Context, req *rpcpb.SubmitRequest) (*rpcpb.SubmitResponse, error) {
	msg, err := hetpb.DecodeMessage(req.Data)
	if err != nil {
		return nil, err
	}
	s.lock.Lock()
	s.received = append(s.received, msg)
	s.lock.Unlock()
	return &rpcpb.SubmitResponse{}, nil
}

func (s *stubServer) count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.received)
}

func startStub(t *testing.T) *stubServer {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	nodeID, _, err := crypto.GetNodeKeypair()
	require.Nil(t, err)

	stub := &stubServer{addr: lis.Addr().String(), nodeID: nodeID}
	srv := grpc.NewServer()
	rpcpb.RegisterNodeServer(srv, stub)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return stub
}

func newTestManager(t *testing.T, peers ...string) *Manager {
	nodeID, _, err := crypto.GetNodeKeypair()
	require.Nil(t, err)
	pm := NewManager(&ManagerContext{
		NetworkID:   testNetworkID,
		Addr:        "127.0.0.1:1",
		NodeID:      nodeID,
		InitPeers:   peers,
		DialTimeout: 500 * time.Millisecond,
	})
	pm.Start()
	t.Cleanup(pm.Stop)
	return pm
}

func TestValidateManagerContext(t *testing.T) {
	assert.NotNil(t, ValidateManagerContext(nil))
	assert.NotNil(t, ValidateManagerContext(&ManagerContext{NetworkID: testNetworkID}))
	assert.Nil(t, ValidateManagerContext(&ManagerContext{NetworkID: testNetworkID, Addr: "a", NodeID: "n"}))
}

func TestConnectAndSend(t *testing.T) {
	stub := startStub(t)
	pm := newTestManager(t, stub.addr)

	require.Eventually(t, func() bool { return pm.IsConnected(stub.nodeID) }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, pm.LivePeers())
	assert.Len(t, pm.GetLiveClients(), 1)
	assert.Equal(t, []string{pm.addr}, pm.GetMetadata().Get("addr"))

	msg := &hetpb.Message{
		Type:     hetpb.MessageType1a,
		M1a:      &hetpb.Message1a{Proposal: hetpb.Proposal{Slots: []hetpb.ChainSlot{{Chain: "a", Index: 1}}}},
		Identity: pm.nodeID,
	}
	require.Nil(t, pm.Send(stub.nodeID, msg))
	require.Nil(t, pm.Broadcast(msg))
	assert.Equal(t, 2, stub.count())

	err := pm.Send("unknown", msg)
	assert.True(t, errors.Is(err, ErrUnknownPeer))
}

func TestAddPeerAddr(t *testing.T) {
	pm := newTestManager(t)
	assert.Equal(t, 0, pm.LivePeers())
	assert.Nil(t, pm.Broadcast(&hetpb.Message{Type: hetpb.MessageType1a}))

	stub := startStub(t)
	require.Nil(t, pm.AddPeerAddr(stub.addr))
	require.Eventually(t, func() bool { return pm.IsConnected(stub.nodeID) }, 5*time.Second, 10*time.Millisecond)

	// own address is never dialed
	require.Nil(t, pm.AddPeerAddr(pm.addr))
	assert.Equal(t, 1, pm.LivePeers())
}

func TestAddPeerAddrAfterStop(t *testing.T) {
	pm := newTestManager(t)
	pm.Stop()
	// fill the buffered channel so the stop branch is taken
	for i := 0; i < cap(pm.peerAddrChan); i++ {
		pm.peerAddrChan <- "127.0.0.1:2"
	}
	assert.Equal(t, ErrManagerStopped, pm.AddPeerAddr("127.0.0.1:3"))
}
