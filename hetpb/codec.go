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

package hetpb

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/hetcons/go-hetcons/crypto"
)

// Every node must produce identical bytes for identical values,
// otherwise content references would not match across nodes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode value to canonical cbor bytes
func Encode(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Decode canonical cbor bytes to value
func Decode(b []byte, v interface{}) error {
	return decMode.Unmarshal(b, v)
}

// Compute sha256 checksum of the encoded value
func SHA256Hash(v interface{}) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	return crypto.SHA256Hash(b), nil
}

// Compute the content reference of the message
func GetReference(msg *Message) (Reference, error) {
	h, err := SHA256Hash(msg)
	if err != nil {
		return Reference{}, fmt.Errorf("compute message hash failed: %v", err)
	}
	return Reference{Hash: h}, nil
}

// SigningBytes is the payload covered by the message signature,
// the encoding of the message with an empty signature.
func SigningBytes(msg *Message) ([]byte, error) {
	unsigned := *msg
	unsigned.Signature = ""
	return Encode(&unsigned)
}

// Decode cbor bytes to message
func DecodeMessage(b []byte) (*Message, error) {
	msg := &Message{}
	if err := Decode(b, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Decode cbor bytes to observer group
func DecodeObserverGroup(b []byte) (*ObserverGroup, error) {
	group := &ObserverGroup{}
	if err := Decode(b, group); err != nil {
		return nil, err
	}
	return group, nil
}

// Decode cbor bytes to attestation
func DecodeAttestation(b []byte) (*Attestation, error) {
	att := &Attestation{}
	if err := Decode(b, att); err != nil {
		return nil, err
	}
	return att, nil
}

// Decode cbor bytes to decision
func DecodeDecision(b []byte) (*Decision, error) {
	dec := &Decision{}
	if err := Decode(b, dec); err != nil {
		return nil, err
	}
	return dec, nil
}
