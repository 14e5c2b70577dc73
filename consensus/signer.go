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
	"fmt"

	"github.com/hetcons/go-hetcons/crypto"
	"github.com/hetcons/go-hetcons/hetpb"
)

// MessageSigner signs messages with the ed25519 seed of the node,
// the identity of the node is the node ID derived from the seed.
type MessageSigner struct {
	seed   string
	nodeID string
}

func NewMessageSigner(seed string) (*MessageSigner, error) {
	nodeID, err := crypto.NodeIDFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("derive node id failed: %v", err)
	}
	return &MessageSigner{seed: seed, nodeID: nodeID}, nil
}

func (ms *MessageSigner) Identity() string {
	return ms.nodeID
}

// Sign stamps the identity of the node on the message and signs it.
func (ms *MessageSigner) Sign(msg *Message) error {
	msg.Identity = ms.nodeID
	b, err := hetpb.SigningBytes(msg)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(ms.seed, b)
	if err != nil {
		return fmt.Errorf("sign %s message failed: %v", msg.Type, err)
	}
	msg.Signature = sig
	return nil
}

// Verify checks the signature against the identity of the message.
func (ms *MessageSigner) Verify(msg *Message) bool {
	if msg.Identity == "" || msg.Signature == "" {
		return false
	}
	b, err := hetpb.SigningBytes(msg)
	if err != nil {
		return false
	}
	return crypto.Verify(msg.Identity, msg.Signature, b)
}
