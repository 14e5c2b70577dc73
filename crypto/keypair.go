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

package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	b58 "github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/ed25519"
)

// Randomly generate a pair of node public key and seed with ed25519.
// Since the true private key can always be reconstructed from the
// seed, the seed is handed out as an equivalent private key.
func GetNodeKeypair() (string, string, error) {
	var seed [32]byte
	_, err := io.ReadFull(rand.Reader, seed[:])
	if err != nil {
		return "", "", err
	}
	return GetNodeKeypairFromSeed(seed[:])
}

// Generate node keypair from provided seed.
func GetNodeKeypairFromSeed(seed []byte) (string, string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", "", errors.New("Invalid seed, byte length is not 32")
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	publicKey := privateKey.Public().(ed25519.PublicKey)

	var pk [32]byte
	copy(pk[:], publicKey)
	node := &HetKey{Code: KeyTypeNodeID, Hash: pk}

	var sdk [32]byte
	copy(sdk[:], seed)
	sd := &HetKey{Code: KeyTypeSeed, Hash: sdk}

	return EncodeKey(node), EncodeKey(sd), nil
}

// Derive the encoded node ID from an encoded seed.
func NodeIDFromSeed(seed string) (string, error) {
	k, err := DecodeKey(seed)
	if err != nil {
		return "", err
	}
	if k.Code != KeyTypeSeed {
		return "", ErrInvalidKey
	}
	nodeID, _, err := GetNodeKeypairFromSeed(k.Hash[:])
	return nodeID, err
}

// Reconstruct the true private key from the seed, it supposes to
// be only used in situations where you need to sign the data so
// the authenticity can be verified by the corresponding public key.
func getPrivateKey(seed string) (ed25519.PrivateKey, error) {
	if seed == "" {
		return nil, fmt.Errorf("empty seed")
	}
	k, err := DecodeKey(seed)
	if err != nil {
		return nil, err
	}
	if k.Code != KeyTypeSeed {
		return nil, ErrInvalidKey
	}
	return ed25519.NewKeyFromSeed(k.Hash[:]), nil
}

// Sign the data with provided seed (equivalent private key).
func Sign(seed string, data []byte) (string, error) {
	pk, err := getPrivateKey(seed)
	if err != nil {
		return "", err
	}
	signature := ed25519.Sign(pk, data)
	return b58.Encode(signature), nil
}

// Verify the data signature with encoded string representation
// of the node public key.
func Verify(nodeID, signature string, data []byte) bool {
	pk, err := DecodeKey(nodeID)
	if err != nil || pk.Code != KeyTypeNodeID {
		return false
	}
	return VerifyByKey(pk, signature, data)
}

// Verify the data signature using HetKey.
func VerifyByKey(pk *HetKey, signature string, data []byte) bool {
	sn, err := b58.Decode(signature)
	if err != nil {
		return false
	}
	pub := ed25519.PublicKey(pk.Hash[:])
	return ed25519.Verify(pub, data, sn)
}
