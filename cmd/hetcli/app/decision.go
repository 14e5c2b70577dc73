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
	"errors"

	"github.com/spf13/cobra"

	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/log"
)

var (
	decisionCID  string
	decisionSlot string
)

var decisionCmd = &cobra.Command{
	Use:   "decision",
	Short: "Query the decision of a proposal or a slot",
	Run: func(cmd *cobra.Command, args []string) {
		if (decisionCID == "") == (decisionSlot == "") {
			log.Fatal(errors.New("exactly one of --cid and --slot is required"))
		}
		cli := newClient()
		defer cli.Close()

		var dec *hetpb.Decision
		var err error
		if decisionCID != "" {
			dec, err = cli.QueryDecision(decisionCID)
		} else {
			slots, perr := parseSlots([]string{decisionSlot})
			if perr != nil {
				log.Fatal(perr)
			}
			dec, err = cli.QuerySlotDecision(slots[0])
		}
		if err != nil {
			log.Fatalf("query decision failed: %v", err)
		}
		printDecision(dec)
	},
}

func init() {
	decisionCmd.Flags().StringVarP(&decisionCID, "cid", "", "", "consensus id of the proposal")
	decisionCmd.Flags().StringVarP(&decisionSlot, "slot", "s", "", "slot as chain:index")
	rootCmd.AddCommand(decisionCmd)
}
