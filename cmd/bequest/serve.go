// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/bequest/internal/config"
	"github.com/blinklabs-io/bequest/internal/node"
)

type serveFlags struct {
	dev      bool
	bindAddr string
	apiPort  uint
}

// apply overrides the loaded config with the flags given on the command line
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if f.dev {
		cfg.RunMode = config.RunModeDev
	}
	if cmd.Flags().Changed("bind-addr") {
		cfg.BindAddr = f.bindAddr
	}
	if cmd.Flags().Changed("api-port") {
		cfg.ApiPort = f.apiPort
	}
}

func serveCommand() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the vault node",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error(errNoConfig.Error())
				os.Exit(1)
			}
			flags.apply(cmd, cfg)
			logger := commonRun()
			if err := node.Run(cfg, logger); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	cmd.Flags().
		BoolVar(&flags.dev, "dev", false, "run in dev mode with a manual clock and faucet")
	cmd.Flags().
		StringVar(&flags.bindAddr, "bind-addr", "", "address the API and metrics listeners bind to")
	cmd.Flags().
		UintVar(&flags.apiPort, "api-port", 0, "API listen port")
	return cmd
}
