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

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetcons/go-hetcons/hetpb"
)

func TestParseSlots(t *testing.T) {
	slots, err := parseSlots([]string{"btc:12", "eth:mainnet:7"})
	require.Nil(t, err)
	assert.Equal(t, []hetpb.ChainSlot{{Chain: "btc", Index: 12}, {Chain: "eth:mainnet", Index: 7}}, slots)

	for _, bad := range []string{"btc", ":1", "btc:", "btc:x", "btc:-1"} {
		_, err := parseSlots([]string{bad})
		assert.NotNil(t, err, bad)
	}
}
