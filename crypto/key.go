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
	"bytes"
	"encoding/binary"
	"errors"

	b58 "github.com/mr-tron/base58/base58"
)

type KeyType uint8

const (
	_ KeyType = iota // skip zero
	KeyTypeSeed
	KeyTypeNodeID
	KeyTypeObserverGroup
)

var (
	ErrInvalidKey = errors.New("invalid key string")
)

// HetKey is the binary form of every key the node hands out, the
// code tells what the 32 bytes of hash mean.
type HetKey struct {
	Code KeyType
	Hash [32]byte
}

func DecodeKey(key string) (*HetKey, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	b, err := b58.Decode(key)
	if err != nil {
		return nil, ErrInvalidKey
	}

	var hetKey HetKey
	r := bytes.NewReader(b)
	err = binary.Read(r, binary.BigEndian, &hetKey)
	if err != nil {
		return nil, ErrInvalidKey
	}

	switch hetKey.Code {
	case KeyTypeSeed, KeyTypeNodeID, KeyTypeObserverGroup:
		return &hetKey, nil
	}
	return nil, ErrInvalidKey
}

func EncodeKey(hetKey *HetKey) string {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, hetKey)
	return b58.Encode(buf.Bytes())
}

func IsValidKey(key string) bool {
	if _, err := DecodeKey(key); err != nil {
		return false
	}
	return true
}

// IsValidNodeID checks the key decodes and is a node public key.
func IsValidNodeID(key string) bool {
	k, err := DecodeKey(key)
	if err != nil {
		return false
	}
	return k.Code == KeyTypeNodeID
}
