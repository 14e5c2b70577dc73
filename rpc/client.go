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

	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/rpc/rpcpb"
)

// Propose asks a node to start a proposal and returns the
// reference of its 1a together with the consensus id.
func Propose(ctx context.Context, client rpcpb.NodeClient, networkID string, groupRef string, slots []hetpb.ChainSlot, value []byte, timeout time.Duration) (string, string, error) {
	if networkID == "" {
		return "", "", ErrEmptyNetworkID
	}
	if len(slots) == 0 {
		return "", "", ErrEmptyPayload
	}

	req := &rpcpb.ProposeRequest{
		NetworkID: networkID,
		GroupRef:  groupRef,
		Slots:     slots,
		Value:     value,
		Timeout:   timeout.Milliseconds(),
	}
	resp, err := client.Propose(ctx, req)
	if err != nil {
		return "", "", err
	}
	return resp.M1aRef, resp.ConsensusID, nil
}

// Attest hands an attestation to a node.
func Attest(ctx context.Context, client rpcpb.NodeClient, networkID string, att *hetpb.Attestation) error {
	if networkID == "" {
		return ErrEmptyNetworkID
	}
	b, err := hetpb.Encode(att)
	if err != nil {
		return fmt.Errorf("encode attestation failed: %v", err)
	}
	_, err = client.Attest(ctx, &rpcpb.AttestRequest{NetworkID: networkID, Data: b})
	return err
}

// RegisterGroup stores an observer group on a node and returns
// the reference proposals name it by.
func RegisterGroup(ctx context.Context, client rpcpb.NodeClient, networkID string, group *hetpb.ObserverGroup) (string, error) {
	if networkID == "" {
		return "", ErrEmptyNetworkID
	}
	b, err := hetpb.Encode(group)
	if err != nil {
		return "", fmt.Errorf("encode observer group failed: %v", err)
	}
	resp, err := client.RegisterGroup(ctx, &rpcpb.RegisterGroupRequest{NetworkID: networkID, Data: b})
	if err != nil {
		return "", err
	}
	return resp.GroupRef, nil
}
