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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/log"
	"github.com/hetcons/go-hetcons/node"
)

var (
	attestSlots    []string
	attestObserver string
	attest2bs      []string
	groupFile      string
)

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Apply an attestation that finalised slots elsewhere",
	Run: func(cmd *cobra.Command, args []string) {
		slots, err := parseSlots(attestSlots)
		if err != nil {
			log.Fatal(err)
		}
		att := &hetpb.Attestation{Slots: slots, Observer: attestObserver}
		for _, ref := range attest2bs {
			att.Message2bs = append(att.Message2bs, hetpb.Reference{Hash: ref})
		}
		cli := newClient()
		defer cli.Close()
		if err := cli.Attest(att); err != nil {
			log.Fatalf("attest failed: %v", err)
		}
	},
}

var registerGroupCmd = &cobra.Command{
	Use:   "registergroup",
	Short: "Store an observer group on the nodes",
	Long: `Read the observer_group section of a yaml file, in the same form as
the node config, and store it so proposals can name it.`,
	Run: func(cmd *cobra.Command, args []string) {
		v := viper.New()
		v.SetConfigFile(groupFile)
		if err := v.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
		group, err := node.ParseObserverGroup(v.GetStringMap("observer_group"))
		if err != nil {
			log.Fatalf("parse observer group failed: %v", err)
		}
		cli := newClient()
		defer cli.Close()
		ref, err := cli.RegisterGroup(group)
		if err != nil {
			log.Fatalf("register observer group failed: %v", err)
		}
		fmt.Printf("GroupRef: %s\n", ref)
	},
}

func init() {
	attestCmd.Flags().StringSliceVarP(&attestSlots, "slot", "s", nil, "slot as chain:index, repeatable")
	attestCmd.Flags().StringVarP(&attestObserver, "observer", "o", "", "node id of the attesting observer")
	attestCmd.Flags().StringSliceVarP(&attest2bs, "m2b", "", nil, "references of the deciding 2b messages")
	attestCmd.MarkFlagRequired("slot")
	attestCmd.MarkFlagRequired("observer")
	registerGroupCmd.Flags().StringVarP(&groupFile, "file", "f", "", "yaml file with the observer group")
	registerGroupCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(attestCmd)
	rootCmd.AddCommand(registerGroupCmd)
}
