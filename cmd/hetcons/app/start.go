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
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hetcons/go-hetcons/log"
	"github.com/hetcons/go-hetcons/node"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node with config",
	Long: `Start a hetcons observer node with specified configuration, decisions
persisted by a previous run of the node are replayed before it serves.`,
	Run: func(cmd *cobra.Command, args []string) {
		// read in config file
		if cfgFile == "" {
			log.Fatal(errors.New("config file not provided"))
		}
		v := viper.New()
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
		// init node config from viper
		c, err := node.NewConfig(v)
		if err != nil {
			log.Fatal(err)
		}
		n, err := node.NewNode(c)
		if err != nil {
			log.Fatal(err)
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := n.Start(ctx); err != nil {
			log.Errorf("node stopped: %v", err)
		}
	},
}

var cfgFile string

func init() {
	startCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file of the node")
	startCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(startCmd)
}
