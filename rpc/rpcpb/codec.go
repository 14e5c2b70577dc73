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

package rpcpb

import (
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/hetcons/go-hetcons/hetpb"
)

// CodecName is the content subtype node clients and servers speak.
const CodecName = "cbor"

func init() {
	encoding.RegisterCodec(codec{})
}

// codec marshals rpc messages with the canonical cbor encoding
// used for protocol values.
type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	b, err := hetpb.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal %T failed: %v", v, err)
	}
	return b, nil
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	if err := hetpb.Decode(data, v); err != nil {
		return fmt.Errorf("cbor unmarshal %T failed: %v", v, err)
	}
	return nil
}

func (codec) Name() string {
	return CodecName
}
