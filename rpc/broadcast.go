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
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"google.golang.org/grpc/metadata"

	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/rpc/rpcpb"
)

// Submit sends one phase message to a peer.
func Submit(client rpcpb.NodeClient, md metadata.MD, networkID string, msg *hetpb.Message) error {
	if networkID == "" {
		return ErrEmptyNetworkID
	}
	if msg == nil {
		return ErrEmptyPayload
	}

	b, err := hetpb.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message failed: %v", err)
	}

	ctx := metadata.NewOutgoingContext(context.Background(), md)
	ctx, cancel := context.WithTimeout(ctx, time.Duration(1*time.Second))
	defer cancel()

	req := &rpcpb.SubmitRequest{NetworkID: networkID, Data: b}
	_, err = client.Submit(ctx, req)
	return err
}

// Broadcast submits msg to every client, failures of single
// peers are collected and do not stop the others.
func Broadcast(clients []rpcpb.NodeClient, md metadata.MD, networkID string, msg *hetpb.Message) error {
	if len(clients) == 0 {
		return ErrNoLiveClients
	}
	var result error
	for _, c := range clients {
		if err := Submit(c, md, networkID, msg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
