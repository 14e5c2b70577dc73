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
	"testing"

	"github.com/stretchr/testify/assert"
)

func testMessage() *Message {
	return &Message{
		Type: MessageType1a,
		M1a: &Message1a{Proposal: Proposal{
			Slots:   []ChainSlot{{"chain", 1}},
			Value:   Value{Data: []byte("v1")},
			Ballot:  Ballot{Counter: 1, Value: Value{Data: []byte("v1")}.Hash()},
			Timeout: 500,
		}},
		ObserverGroupRef: Reference{Hash: "group"},
		Identity:         "n1",
	}
}

func TestEncodeDeterministic(t *testing.T) {
	b1, err := Encode(testMessage())
	assert.Nil(t, err)
	b2, err := Encode(testMessage())
	assert.Nil(t, err)
	assert.Equal(t, b1, b2)

	msg, err := DecodeMessage(b1)
	assert.Nil(t, err)
	assert.Equal(t, testMessage(), msg)
}

func TestReferenceAndSigningBytes(t *testing.T) {
	msg := testMessage()
	unsignedRef, err := GetReference(msg)
	assert.Nil(t, err)

	payload, err := SigningBytes(msg)
	assert.Nil(t, err)

	msg.Signature = "sig"
	signedRef, err := GetReference(msg)
	assert.Nil(t, err)
	assert.NotEqual(t, unsignedRef, signedRef)

	// the signature never covers itself
	signedPayload, err := SigningBytes(msg)
	assert.Nil(t, err)
	assert.Equal(t, payload, signedPayload)
	assert.Equal(t, "sig", msg.Signature)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff, 0x00})
	assert.NotNil(t, err)

	_, err = DecodeObserverGroup(nil)
	assert.NotNil(t, err)
}
