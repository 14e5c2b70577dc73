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

// Package client is the gRPC client tools use to talk to a set of
// observer nodes.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hetcons/go-hetcons/crypto"
	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/rpc"
	"github.com/hetcons/go-hetcons/rpc/rpcpb"
)

// GrpcClient manages the gRPC connections to observer nodes and
// works as a load balancer to the backend nodes.
type GrpcClient struct {
	networkID     string
	coreEndpoints string
	timeout       time.Duration
	conn          *grpc.ClientConn
	client        rpcpb.NodeClient
}

// New creates a GrpcClient to the comma separated node endpoints,
// networkID is the plain network id the nodes are configured with.
func New(networkID, coreEndpoints string) (*GrpcClient, error) {
	if networkID == "" {
		return nil, rpc.ErrEmptyNetworkID
	}
	r, err := newResolver(coreEndpoints)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, r.Scheme()+":///nodes",
		grpc.WithResolvers(r),
		grpc.WithDefaultServiceConfig(`{"loadBalancingConfig": [{"round_robin":{}}]}`),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock())
	if err != nil {
		return nil, fmt.Errorf("connect to core servers failed: %v", err)
	}
	gc := &GrpcClient{
		networkID:     crypto.SHA256Hash([]byte(networkID)),
		coreEndpoints: coreEndpoints,
		timeout:       time.Second,
		conn:          conn,
		client:        rpcpb.NewNodeClient(conn),
	}
	return gc, nil
}

func (c *GrpcClient) Close() error {
	return c.conn.Close()
}

// Propose asks one of the nodes to start a proposal deciding value on
// all the slots, the empty group reference names the node's group.
func (c *GrpcClient) Propose(groupRef string, slots []hetpb.ChainSlot, value []byte, timeout time.Duration) (string, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return rpc.Propose(ctx, c.client, c.networkID, groupRef, slots, value, timeout)
}

// QueryDecision queries the decision of a consensus id.
func (c *GrpcClient) QueryDecision(cid string) (*hetpb.Decision, error) {
	return rpc.QueryDecision([]rpcpb.NodeClient{c.client}, c.networkID, cid, nil)
}

// QuerySlotDecision queries the decision that decided the slot.
func (c *GrpcClient) QuerySlotDecision(slot hetpb.ChainSlot) (*hetpb.Decision, error) {
	return rpc.QueryDecision([]rpcpb.NodeClient{c.client}, c.networkID, "", &slot)
}

func (c *GrpcClient) Attest(att *hetpb.Attestation) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return rpc.Attest(ctx, c.client, c.networkID, att)
}

func (c *GrpcClient) RegisterGroup(group *hetpb.ObserverGroup) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return rpc.RegisterGroup(ctx, c.client, c.networkID, group)
}
