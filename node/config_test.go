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

package node

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetcons/go-hetcons/crypto"
)

func newKeypair(t *testing.T) (string, string) {
	nodeID, seed, err := crypto.GetNodeKeypair()
	require.Nil(t, err)
	return nodeID, seed
}

const configTemplate = `
network_id: hetcons-test
port: 127.0.0.1:0
node_id: %[1]s
seed: %[2]s
db_backend: memdb
db_path: /tmp/unused
peers:
  - 127.0.0.1:9020
round_timeout: 500ms
max_restarts: 3
observer_group:
  name: test
  observers:
    - id: %[1]s
      quorums:
        - name: majority
          members: [%[1]s, %[3]s]
          threshold: 2
    - id: %[3]s
      quorums:
        - name: self
          members: [%[3]s]
`

func readConfig(t *testing.T, text string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	require.Nil(t, v.ReadConfig(bytes.NewBufferString(text)))
	return v
}

func TestNewConfig(t *testing.T) {
	nodeID, seed := newKeypair(t)
	otherID, _ := newKeypair(t)

	v := readConfig(t, fmt.Sprintf(configTemplate, nodeID, seed, otherID))
	c, err := NewConfig(v)
	require.Nil(t, err)

	assert.Equal(t, crypto.SHA256Hash([]byte("hetcons-test")), c.NetworkID)
	assert.Equal(t, []string{"127.0.0.1:9020"}, c.Peers)
	assert.Equal(t, 500*time.Millisecond, c.RoundTimeout)
	assert.Equal(t, uint32(3), c.MaxRestarts)
	assert.Equal(t, 16, c.Workers)
	assert.Equal(t, 100, c.MaxPeers)

	require.Len(t, c.ObserverGroup.Observers, 2)
	own := c.ObserverGroup.Observer(nodeID)
	require.NotNil(t, own)
	require.Len(t, own.Quorums, 1)
	assert.Equal(t, "majority", own.Quorums[0].Name)
	assert.Equal(t, nodeID, own.Quorums[0].Owner)
	assert.Equal(t, 2, own.Quorums[0].Threshold)
	assert.Equal(t, []string{nodeID, otherID}, own.Quorums[0].Members)

	other := c.ObserverGroup.Observer(otherID)
	require.NotNil(t, other)
	assert.Equal(t, 0, other.Quorums[0].Threshold)
}

func TestNewConfigErrors(t *testing.T) {
	nodeID, seed := newKeypair(t)
	otherID, otherSeed := newKeypair(t)
	valid := fmt.Sprintf(configTemplate, nodeID, seed, otherID)

	v := readConfig(t, valid)
	v.Set("network_id", "")
	_, err := NewConfig(v)
	assert.NotNil(t, err)

	// seed of another node
	v = readConfig(t, valid)
	v.Set("seed", otherSeed)
	_, err = NewConfig(v)
	assert.NotNil(t, err)

	// node outside of the group
	strangerID, strangerSeed := newKeypair(t)
	v = readConfig(t, valid)
	v.Set("node_id", strangerID)
	v.Set("seed", strangerSeed)
	_, err = NewConfig(v)
	assert.NotNil(t, err)

	v = readConfig(t, valid)
	v.Set("round_timeout", "-1s")
	_, err = NewConfig(v)
	assert.NotNil(t, err)
}

func TestParseQuorum(t *testing.T) {
	a, _ := newKeypair(t)
	b, _ := newKeypair(t)

	q, err := parseQuorum(map[string]interface{}{
		"name":      "pair",
		"members":   []interface{}{a, b},
		"threshold": float64(1),
	})
	require.Nil(t, err)
	assert.Equal(t, 1, q.Threshold)
	assert.Equal(t, 1, q.Required())

	_, err = parseQuorum(map[string]interface{}{"members": []interface{}{a}, "threshold": 2})
	assert.NotNil(t, err)

	_, err = parseQuorum(map[string]interface{}{"members": []interface{}{"not-a-node"}})
	assert.NotNil(t, err)

	_, err = parseQuorum(map[string]interface{}{})
	assert.NotNil(t, err)

	m, err := toStringMap(map[interface{}]interface{}{"name": "x"})
	require.Nil(t, err)
	assert.Equal(t, "x", m["name"])
	_, err = toStringMap(map[interface{}]interface{}{1: "x"})
	assert.NotNil(t, err)
}
