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
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/rpc"
	"github.com/hetcons/go-hetcons/rpc/rpcpb"
)

// Peer is a connected remote observer node.
type Peer struct {
	// peer network address (ip:port)
	Addr string
	// NodeID of the peer (public key)
	NodeID string
	// connection time
	ConnTime int64

	// metadata for outgoing context
	metadata metadata.MD

	// grpc service client
	client rpcpb.NodeClient
	// underlying network connection
	conn *grpc.ClientConn
}

// The string representation of the peer is its ip:port address.
func (p *Peer) String() string {
	return p.Addr
}

// dial connects the remote node without saying hello yet.
func dial(addr string, md metadata.MD, timeout time.Duration) (*Peer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock())
	if err != nil {
		return nil, err
	}
	p := &Peer{
		Addr:     addr,
		ConnTime: time.Now().Unix(),
		metadata: md,
		client:   rpcpb.NewNodeClient(conn),
		conn:     conn,
	}
	return p, nil
}

// close the underlying connection
func (p *Peer) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// Hello exchanges node ids with the remote peer and records the
// node id it announced. The dialed address is kept.
func (p *Peer) Hello(networkID string) error {
	_, nodeID, err := rpc.Hello(p.client, p.metadata, networkID)
	if err != nil {
		return err
	}
	p.NodeID = nodeID
	return nil
}

// Submit sends one phase message to the peer.
func (p *Peer) Submit(networkID string, msg *hetpb.Message) error {
	return rpc.Submit(p.client, p.metadata, networkID, msg)
}
