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
	"time"

	"github.com/spf13/cobra"

	"github.com/hetcons/go-hetcons/log"
)

var (
	proposeGroup   string
	proposeSlots   []string
	proposeValue   string
	proposeTimeout time.Duration
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a value for one or more slots",
	Long: `Ask a node to start a proposal deciding the value on all the given
slots at once. Slots are written as chain:index.`,
	Run: func(cmd *cobra.Command, args []string) {
		slots, err := parseSlots(proposeSlots)
		if err != nil {
			log.Fatal(err)
		}
		cli := newClient()
		defer cli.Close()

		m1a, cid, err := cli.Propose(proposeGroup, slots, []byte(proposeValue), proposeTimeout)
		if err != nil {
			log.Fatalf("propose failed: %v", err)
		}
		fmt.Printf("M1aRef: %s, ConsensusID: %s\n", m1a, cid)
	},
}

func init() {
	proposeCmd.Flags().StringVarP(&proposeGroup, "group", "g", "", "observer group reference, the node's group when empty")
	proposeCmd.Flags().StringSliceVarP(&proposeSlots, "slot", "s", nil, "slot as chain:index, repeatable")
	proposeCmd.Flags().StringVarP(&proposeValue, "value", "v", "", "value to decide")
	proposeCmd.Flags().DurationVarP(&proposeTimeout, "timeout", "t", 0, "round timeout, the node default when zero")
	proposeCmd.MarkFlagRequired("slot")
	rootCmd.AddCommand(proposeCmd)
}
