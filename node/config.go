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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/hetcons/go-hetcons/crypto"
	"github.com/hetcons/go-hetcons/hetpb"
)

// Config holds the configuration of an observer node.
type Config struct {
	// hash of the network id
	NetworkID string
	// listen address of the gRPC server (host:port)
	Port string
	// address announced to peers, defaults to the listen address
	AdvertiseAddr string
	// addresses of initial peers
	Peers []string
	// maximum number of peers to connect
	MaxPeers int
	// node ID (public key derived from seed)
	NodeID string
	// seed of this node
	Seed string
	// database backend
	DBBackend string
	// database file path
	DBPath string
	// observer group proposals of this node are decided by
	ObserverGroup *hetpb.ObserverGroup
	// round timeout of local proposals
	RoundTimeout time.Duration
	// restarts per proposal, zero is unbounded
	MaxRestarts uint32
	// size of the observer worker pool
	Workers int
	// size of the block cache
	CacheSize int
	// parked messages per round, zero is unbounded
	QueueCapacity int
	// listen address of the prometheus endpoint, empty disables it
	MetricsAddr string
	LogLevel    string
}

func NewConfig(v *viper.Viper) (*Config, error) {
	if v.GetString("network_id") == "" {
		return nil, errors.New("network ID is missing")
	}
	if v.GetString("port") == "" {
		return nil, errors.New("network port is missing")
	}
	if v.GetString("node_id") == "" {
		return nil, errors.New("node ID is empty")
	}
	if v.GetString("seed") == "" {
		return nil, errors.New("node seed is empty")
	}
	if v.GetString("db_backend") == "" {
		return nil, errors.New("db backend is empty")
	}
	if v.GetString("db_path") == "" {
		return nil, errors.New("db path is empty")
	}
	if v.GetStringMap("observer_group") == nil {
		return nil, errors.New("observer group is nil")
	}

	nodeID, err := crypto.NodeIDFromSeed(v.GetString("seed"))
	if err != nil {
		return nil, fmt.Errorf("decode node seed failed: %v", err)
	}
	if nodeID != v.GetString("node_id") {
		return nil, errors.New("node ID does not match seed")
	}

	group, err := ParseObserverGroup(v.GetStringMap("observer_group"))
	if err != nil {
		return nil, fmt.Errorf("parse observer group failed: %v", err)
	}
	if group.Observer(nodeID) == nil {
		return nil, errors.New("node is not an observer of the observer group")
	}

	v.SetDefault("max_peers", 100)
	v.SetDefault("round_timeout", "2s")
	v.SetDefault("workers", 16)
	v.SetDefault("cache_size", 4096)
	v.SetDefault("queue_capacity", 1024)
	v.SetDefault("log_level", "info")

	if v.GetDuration("round_timeout") <= 0 {
		return nil, errors.New("round timeout should be positive")
	}
	if v.GetInt("workers") <= 0 {
		return nil, errors.New("workers should be positive")
	}
	if v.GetInt("max_restarts") < 0 {
		return nil, errors.New("max restarts is negative")
	}

	c := Config{
		NetworkID:     crypto.SHA256Hash([]byte(v.GetString("network_id"))),
		Port:          v.GetString("port"),
		AdvertiseAddr: v.GetString("advertise_addr"),
		Peers:         v.GetStringSlice("peers"),
		MaxPeers:      v.GetInt("max_peers"),
		NodeID:        nodeID,
		Seed:          v.GetString("seed"),
		DBBackend:     v.GetString("db_backend"),
		DBPath:        v.GetString("db_path"),
		ObserverGroup: group,
		RoundTimeout:  v.GetDuration("round_timeout"),
		MaxRestarts:   uint32(v.GetInt("max_restarts")),
		Workers:       v.GetInt("workers"),
		CacheSize:     v.GetInt("cache_size"),
		QueueCapacity: v.GetInt("queue_capacity"),
		MetricsAddr:   v.GetString("metrics_addr"),
		LogLevel:      v.GetString("log_level"),
	}

	return &c, nil
}

// ParseObserverGroup builds an observer group from its config form.
func ParseObserverGroup(g map[string]interface{}) (*hetpb.ObserverGroup, error) {
	name, ok := g["name"].(string)
	if !ok || name == "" {
		return nil, errors.New("observer group name is missing")
	}

	observers, ok := g["observers"].([]interface{})
	if !ok || len(observers) == 0 {
		return nil, errors.New("observer group observers are missing")
	}

	group := &hetpb.ObserverGroup{Name: name}
	for _, o := range observers {
		om, err := toStringMap(o)
		if err != nil {
			return nil, fmt.Errorf("parse observer failed: %v", err)
		}
		observer, err := parseObserver(om)
		if err != nil {
			return nil, err
		}
		group.Observers = append(group.Observers, *observer)
	}
	return group, nil
}

func parseObserver(o map[string]interface{}) (*hetpb.Observer, error) {
	id, ok := o["id"].(string)
	if !ok || !crypto.IsValidNodeID(id) {
		return nil, fmt.Errorf("observer id %v is not a node id", o["id"])
	}

	quorums, ok := o["quorums"].([]interface{})
	if !ok || len(quorums) == 0 {
		return nil, fmt.Errorf("quorums of observer %s are missing", id)
	}

	observer := &hetpb.Observer{ID: id}
	for _, q := range quorums {
		qm, err := toStringMap(q)
		if err != nil {
			return nil, fmt.Errorf("parse quorum of observer %s failed: %v", id, err)
		}
		quorum, err := parseQuorum(qm)
		if err != nil {
			return nil, fmt.Errorf("parse quorum of observer %s failed: %v", id, err)
		}
		quorum.Owner = id
		observer.Quorums = append(observer.Quorums, *quorum)
	}
	return observer, nil
}

func parseQuorum(q map[string]interface{}) (*hetpb.ObserverQuorum, error) {
	members, ok := q["members"].([]interface{})
	if !ok || len(members) == 0 {
		return nil, errors.New("quorum members are missing")
	}

	var ms []string
	for _, m := range members {
		id, ok := m.(string)
		if !ok || !crypto.IsValidNodeID(id) {
			return nil, fmt.Errorf("quorum member %v is not a node id", m)
		}
		ms = append(ms, id)
	}

	threshold := 0
	if t, ok := q["threshold"]; ok {
		switch tv := t.(type) {
		case int:
			threshold = tv
		case int64:
			threshold = int(tv)
		case float64:
			threshold = int(tv)
		default:
			return nil, fmt.Errorf("quorum threshold %v is not a number", t)
		}
	}
	if threshold < 0 || threshold > len(ms) {
		return nil, fmt.Errorf("quorum threshold %d out of range", threshold)
	}

	name, _ := q["name"].(string)
	return &hetpb.ObserverQuorum{
		Name:      name,
		Members:   ms,
		Threshold: threshold,
	}, nil
}

// yaml decoders hand nested maps out with either key type
func toStringMap(v interface{}) (map[string]interface{}, error) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, nil
	case map[interface{}]interface{}:
		sm := make(map[string]interface{}, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non string key %v", k)
			}
			sm[ks] = v
		}
		return sm, nil
	}
	return nil, fmt.Errorf("unexpected type %T", v)
}
