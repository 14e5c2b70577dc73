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
	"math/rand"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/log"
	"github.com/hetcons/go-hetcons/rpc/rpcpb"
)

// QueryDecision asks clients in random order for the decision of a
// proposal or a slot and returns the first one found. Exactly one
// of cid and slot is expected to be set.
func QueryDecision(clients []rpcpb.NodeClient, networkID string, cid string, slot *hetpb.ChainSlot) (*hetpb.Decision, error) {
	if networkID == "" {
		return nil, ErrEmptyNetworkID
	}
	if cid == "" && slot == nil {
		return nil, ErrEmptyPayload
	}
	if len(clients) == 0 {
		return nil, ErrNoLiveClients
	}

	req := &rpcpb.QueryDecisionRequest{
		NetworkID:   networkID,
		ConsensusID: cid,
		Slot:        slot,
	}

	// Randomly shuffle clients to amortize queries.
	indices := rand.Perm(len(clients))

	for _, i := range indices {
		b, err := queryPeer(clients[i], req)
		if err != nil || len(b) == 0 {
			continue
		}
		dec, err := hetpb.DecodeDecision(b)
		if err != nil {
			log.Errorf("decode decision failed: %v", err)
			continue
		}
		return dec, nil
	}

	return nil, ErrNotFound
}

func queryPeer(client rpcpb.NodeClient, req *rpcpb.QueryDecisionRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(1*time.Second))
	defer cancel()

	resp, err := client.QueryDecision(ctx, req)
	if err != nil {
		st, ok := status.FromError(err)
		if ok && st.Code() != codes.NotFound {
			log.Errorf("query peer failed: %v", st.Message())
		}
		return nil, err
	}

	return resp.Data, nil
}
