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
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hetcons/go-hetcons/client"
	"github.com/hetcons/go-hetcons/cmd/hethub/service"
	"github.com/hetcons/go-hetcons/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a http server",
	Long:  `Serve a http server to the underlying observer nodes`,
	Run: func(cmd *cobra.Command, args []string) {
		cli, err := client.New(viper.GetString("network_id"), viper.GetString("endpoints"))
		if err != nil {
			log.Fatalf("create node client failed: %v", err)
		}
		defer cli.Close()

		server := &http.Server{
			Addr:    viper.GetString("addr"),
			Handler: service.NewHandler(cli),
		}
		log.Infof("start to serve hub on %s", server.Addr)
		log.Fatal(server.ListenAndServe())
	},
}

func init() {
	serveCmd.Flags().StringP("addr", "", ":8080", "network address")
	serveCmd.Flags().StringP("endpoints", "", "", "comma separated node endpoints")
	serveCmd.Flags().StringP("network_id", "", "", "network id of the nodes")
	viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("endpoints", serveCmd.Flags().Lookup("endpoints"))
	viper.BindPFlag("network_id", serveCmd.Flags().Lookup("network_id"))

	rootCmd.AddCommand(serveCmd)
}
