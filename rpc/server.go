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

package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hetcons/go-hetcons/crypto"
	"github.com/hetcons/go-hetcons/future"
	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/log"
	"github.com/hetcons/go-hetcons/rpc/rpcpb"
)

// NodeServer creates a gRPC server to accept requests from peers
// and clients, it does not contain any handlers of internal
// components, all the requests are processed by passing futures
// to internal Node which owns the observer and the store.
type NodeServer struct {
	networkID string
	addr      string
	nodeID    string

	// Peer network address to nodeID map.
	nodeKey sync.Map

	// Future for adding peer addr.
	peerFuture chan<- *future.Peer
	// Future for handing phase messages to the observer.
	msgFuture chan<- *future.Message
	// Future for starting proposals.
	proposalFuture chan<- *future.Proposal
	// Future for querying decisions.
	decisionFuture chan<- *future.Decision
	// Future for applying attestations.
	attestFuture chan<- *future.Attestation
	// Future for saving observer groups.
	groupFuture chan<- *future.ObserverGroup
}

// ServerContext represents contextual information for running server.
type ServerContext struct {
	NetworkID         string
	Addr              string
	NodeID            string
	PeerFuture        chan *future.Peer
	MessageFuture     chan *future.Message
	ProposalFuture    chan *future.Proposal
	DecisionFuture    chan *future.Decision
	AttestationFuture chan *future.Attestation
	GroupFuture       chan *future.ObserverGroup
}

func ValidateServerContext(sc *ServerContext) error {
	if sc == nil {
		return errors.New("server context is nil")
	}
	if sc.NetworkID == "" {
		return errors.New("empty network ID")
	}
	if sc.Addr == "" {
		return errors.New("empty local network address")
	}
	if sc.NodeID == "" {
		return errors.New("empty local node ID")
	}
	if sc.PeerFuture == nil {
		return errors.New("peer future channel is nil")
	}
	if sc.MessageFuture == nil {
		return errors.New("message future channel is nil")
	}
	if sc.ProposalFuture == nil {
		return errors.New("proposal future channel is nil")
	}
	if sc.DecisionFuture == nil {
		return errors.New("decision future channel is nil")
	}
	if sc.AttestationFuture == nil {
		return errors.New("attestation future channel is nil")
	}
	if sc.GroupFuture == nil {
		return errors.New("observer group future channel is nil")
	}
	return nil
}

// NewNodeServer creates a NodeServer instance with server context.
func NewNodeServer(ctx *ServerContext) *NodeServer {
	if err := ValidateServerContext(ctx); err != nil {
		log.Fatalf("validate server context failed: %v", err)
	}
	server := &NodeServer{
		networkID:      ctx.NetworkID,
		addr:           ctx.Addr,
		nodeID:         ctx.NodeID,
		peerFuture:     ctx.PeerFuture,
		msgFuture:      ctx.MessageFuture,
		proposalFuture: ctx.ProposalFuture,
		decisionFuture: ctx.DecisionFuture,
		attestFuture:   ctx.AttestationFuture,
		groupFuture:    ctx.GroupFuture,
	}
	return server
}

// validate checks the network id and that the sending peer said
// hello before, the node id it announced must not have changed.
func (s *NodeServer) validate(ctx context.Context, networkID string) error {
	if s.networkID != networkID {
		return errors.New("incompatible network id")
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return errors.New("retrieve incoming context failed")
	}
	if len(md.Get("addr")) == 0 || len(md.Get("nodeid")) == 0 {
		return errors.New("network address or nodeid is absent")
	}

	addr := md.Get("addr")[0]
	k, ok := s.nodeKey.Load(addr)
	if !ok {
		return fmt.Errorf("unknown network address %s, forgot to say hello?", addr)
	}
	if k.(string) != md.Get("nodeid")[0] {
		return fmt.Errorf("nodeid of %s changed since hello", addr)
	}
	return nil
}

// Hello retrieves network address and nodeid from context and
// respond with network address and nodeid of local node.
func (s *NodeServer) Hello(ctx context.Context, req *rpcpb.HelloRequest) (*rpcpb.HelloResponse, error) {
	resp := &rpcpb.HelloResponse{}

	if s.networkID != req.NetworkID {
		return resp, status.Error(codes.InvalidArgument, "incompatible network id")
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return resp, status.Error(codes.NotFound, "retrieve incoming context failed")
	}
	if len(md.Get("addr")) == 0 || len(md.Get("nodeid")) == 0 {
		return resp, status.Error(codes.NotFound, "network address or nodeid is missing")
	}

	addr, nodeID := md.Get("addr")[0], md.Get("nodeid")[0]
	if !crypto.IsValidNodeID(nodeID) {
		return resp, status.Error(codes.InvalidArgument, "invalid nodeid")
	}
	s.nodeKey.Store(addr, nodeID)

	f := &future.Peer{Addr: addr, NodeID: nodeID}
	f.Init()
	s.peerFuture <- f
	if err := f.Error(); err != nil {
		log.Errorf("add peer to peer manager failed: %v", err)
	}

	grpc.SendHeader(ctx, metadata.Pairs("addr", s.addr, "nodeid", s.nodeID))

	return resp, nil
}

// Submit accepts a phase message from a peer and hands it to the
// observer. Protocol rejections are not transport errors, the
// sender is told only about malformed requests.
func (s *NodeServer) Submit(ctx context.Context, req *rpcpb.SubmitRequest) (*rpcpb.SubmitResponse, error) {
	resp := &rpcpb.SubmitResponse{}

	if err := s.validate(ctx, req.NetworkID); err != nil {
		return resp, status.Errorf(codes.InvalidArgument, "input validation failed: %v", err)
	}

	msg, err := hetpb.DecodeMessage(req.Data)
	if err != nil {
		return resp, status.Error(codes.InvalidArgument, "decode message failed")
	}

	f := &future.Message{Msg: msg}
	f.Init()
	s.msgFuture <- f
	if err := f.Error(); err != nil {
		return resp, status.Errorf(codes.Internal, "submit message failed: %v", err)
	}
	return resp, nil
}

// Propose starts a proposal on the local observer, an empty group
// reference names the group the node was configured with.
func (s *NodeServer) Propose(ctx context.Context, req *rpcpb.ProposeRequest) (*rpcpb.ProposeResponse, error) {
	resp := &rpcpb.ProposeResponse{}

	log.Infow("received new proposal", "slots", len(req.Slots), "group", req.GroupRef)

	if s.networkID != req.NetworkID {
		return resp, status.Error(codes.InvalidArgument, "incompatible network id")
	}
	if len(req.Slots) == 0 {
		return resp, status.Error(codes.InvalidArgument, "proposal names no slots")
	}
	if req.Timeout < 0 {
		return resp, status.Error(codes.InvalidArgument, "negative round timeout")
	}

	f := &future.Proposal{
		GroupRef: hetpb.Reference{Hash: req.GroupRef},
		Slots:    req.Slots,
		Value:    hetpb.Value{Data: req.Value},
		Timeout:  time.Duration(req.Timeout) * time.Millisecond,
	}
	f.Init()
	s.proposalFuture <- f
	if err := f.Error(); err != nil {
		return resp, status.Errorf(codes.Internal, "propose failed: %v", err)
	}

	resp.M1aRef = f.M1aRef.Hash
	resp.ConsensusID = hetpb.ConsensusID(req.Slots)
	return resp, nil
}

// QueryDecision looks up a decision by consensus id or by slot.
func (s *NodeServer) QueryDecision(ctx context.Context, req *rpcpb.QueryDecisionRequest) (*rpcpb.QueryDecisionResponse, error) {
	resp := &rpcpb.QueryDecisionResponse{}

	if s.networkID != req.NetworkID {
		return resp, status.Error(codes.InvalidArgument, "incompatible network id")
	}
	if req.ConsensusID == "" && req.Slot == nil {
		return resp, status.Error(codes.InvalidArgument, "neither consensus id nor slot given")
	}

	f := &future.Decision{ConsensusID: req.ConsensusID, Slot: req.Slot}
	f.Init()
	s.decisionFuture <- f
	if err := f.Error(); err != nil {
		return resp, status.Errorf(codes.Internal, "query decision failed: %v", err)
	}
	if f.Decision == nil {
		return resp, status.Error(codes.NotFound, "decision not found")
	}

	b, err := hetpb.Encode(f.Decision)
	if err != nil {
		return resp, status.Error(codes.Internal, "encode decision failed")
	}
	resp.Data = b

	return resp, nil
}

// Attest applies an attestation that finalised slots out of band.
func (s *NodeServer) Attest(ctx context.Context, req *rpcpb.AttestRequest) (*rpcpb.AttestResponse, error) {
	resp := &rpcpb.AttestResponse{}

	if s.networkID != req.NetworkID {
		return resp, status.Error(codes.InvalidArgument, "incompatible network id")
	}

	att, err := hetpb.DecodeAttestation(req.Data)
	if err != nil {
		return resp, status.Error(codes.InvalidArgument, "decode attestation failed")
	}

	f := &future.Attestation{Attestation: att}
	f.Init()
	s.attestFuture <- f
	if err := f.Error(); err != nil {
		return resp, status.Errorf(codes.Internal, "apply attestation failed: %v", err)
	}
	return resp, nil
}

// RegisterGroup saves an observer group and returns its reference.
func (s *NodeServer) RegisterGroup(ctx context.Context, req *rpcpb.RegisterGroupRequest) (*rpcpb.RegisterGroupResponse, error) {
	resp := &rpcpb.RegisterGroupResponse{}

	if s.networkID != req.NetworkID {
		return resp, status.Error(codes.InvalidArgument, "incompatible network id")
	}

	group, err := hetpb.DecodeObserverGroup(req.Data)
	if err != nil {
		return resp, status.Error(codes.InvalidArgument, "decode observer group failed")
	}
	if len(group.Observers) == 0 {
		return resp, status.Error(codes.InvalidArgument, "observer group has no observers")
	}

	f := &future.ObserverGroup{Group: group}
	f.Init()
	s.groupFuture <- f
	if err := f.Error(); err != nil {
		return resp, status.Errorf(codes.Internal, "save observer group failed: %v", err)
	}
	resp.GroupRef = f.GroupRef.Hash

	return resp, nil
}
