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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/blinklabs-io/bequest/api"
	"github.com/blinklabs-io/bequest/internal/config"
)

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the vault state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			v, err := client.Vault(cmd.Context())
			if err != nil {
				return err
			}
			v.Balance = formatAmount(cfg, v.Balance)
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
}

func accountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "account [address]",
		Short: "Show the balance and nonce of an account, by default the signing key's",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdConfig(cmd)
			if err != nil {
				return err
			}
			addr, err := accountArg(cfg, args)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			acct, err := client.Account(cmd.Context(), addr)
			if err != nil {
				return err
			}
			acct.Balance = formatAmount(cfg, acct.Balance)
			return writeJSON(cmd.OutOrStdout(), acct)
		},
	}
}

// accountArg returns the address argument, or the signing key's address
func accountArg(cfg *config.Config, args []string) (common.Address, error) {
	if len(args) == 1 {
		return parseAddressArg(args[0])
	}
	key, err := loadSigner(cfg)
	if err != nil {
		return common.Address{}, err
	}
	return key.Address(), nil
}

func eventsCommand() *cobra.Command {
	var query api.EventsQuery
	var caller string
	var follow bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List journaled vault events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdConfig(cmd)
			if err != nil {
				return err
			}
			if follow {
				return followEvents(cmd, cfg, query.Types)
			}
			if caller != "" {
				if query.Caller, err = parseAddressArg(caller); err != nil {
					return err
				}
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			events, total, err := client.Events(cmd.Context(), query)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d events\n", len(events), total)
			return writeJSON(cmd.OutOrStdout(), events)
		},
	}
	cmd.Flags().StringSliceVar(&query.Types, "type", nil, "event types to include")
	cmd.Flags().StringVar(&caller, "caller", "", "only events caused by this address")
	cmd.Flags().IntVar(&query.Count, "count", 0, "page size")
	cmd.Flags().IntVar(&query.Page, "page", 0, "page number, starting at 1")
	cmd.Flags().StringVar(&query.Order, "order", "", "asc or desc")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new events until interrupted")
	return cmd
}

func followEvents(
	cmd *cobra.Command,
	cfg *config.Config,
	eventTypes []string,
) error {
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	enc := json.NewEncoder(cmd.OutOrStdout())
	err = client.StreamEvents(ctx, eventTypes, func(evt api.StreamEvent) error {
		return enc.Encode(evt)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
