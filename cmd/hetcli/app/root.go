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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hetcons/go-hetcons/client"
	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/log"
)

var (
	endpoints string
	networkID string
)

var rootCmd = &cobra.Command{
	Use:   "hetcli",
	Short: "Command line client of hetcons observer nodes",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&endpoints, "endpoints", "", "", "comma separated node endpoints")
	rootCmd.PersistentFlags().StringVarP(&networkID, "network_id", "", "", "network id of the nodes")
	rootCmd.MarkPersistentFlagRequired("endpoints")
	rootCmd.MarkPersistentFlagRequired("network_id")
}

func newClient() *client.GrpcClient {
	cli, err := client.New(networkID, endpoints)
	if err != nil {
		log.Fatalf("create node client failed: %v", err)
	}
	return cli
}

// parseSlots parses slots written as chain:index.
func parseSlots(ss []string) ([]hetpb.ChainSlot, error) {
	var slots []hetpb.ChainSlot
	for _, s := range ss {
		i := strings.LastIndex(s, ":")
		if i <= 0 || i == len(s)-1 {
			return nil, fmt.Errorf("slot %q is not chain:index", s)
		}
		index, err := strconv.ParseUint(s[i+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("slot %q has invalid index: %v", s, err)
		}
		slots = append(slots, hetpb.ChainSlot{Chain: s[:i], Index: index})
	}
	return slots, nil
}

func printDecision(dec *hetpb.Decision) {
	fmt.Printf("ConsensusID: %s\n", dec.ConsensusID)
	for _, s := range dec.Slots {
		fmt.Printf("Slot: %s\n", s.ID())
	}
	fmt.Printf("Ballot: %s\n", dec.Ballot)
	fmt.Printf("Value: %q\n", dec.Value.Data)
	if dec.Quorum != nil {
		fmt.Printf("Quorum: %s (%d members)\n", dec.Quorum.Name, len(dec.Quorum.Members))
	}
}
