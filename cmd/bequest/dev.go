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
	"time"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/bequest/api"
	"github.com/blinklabs-io/bequest/custody"
)

func devCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Commands for a node running in dev mode",
	}
	cmd.AddCommand(devAdvanceCommand(), devFundCommand())
	return cmd
}

func devAdvanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <duration>",
		Short: "Move the node clock forward, such as by 720h",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdConfig(cmd)
			if err != nil {
				return err
			}
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			now, err := client.Advance(cmd.Context(), d)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), api.AdvanceResponse{Now: now})
		},
	}
}

func devFundCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <address> <amount>",
		Short: "Credit an account from the faucet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdConfig(cmd)
			if err != nil {
				return err
			}
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			amount, err := custody.ParseAmount(args[1], cfg.Decimals)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			balance, err := client.Fund(cmd.Context(), addr, amount)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), api.FundResponse{
				Address: addr.Hex(),
				Balance: custody.FormatAmount(balance, cfg.Decimals),
			})
		},
	}
}
