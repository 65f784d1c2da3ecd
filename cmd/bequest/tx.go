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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/internal/config"
	"github.com/blinklabs-io/bequest/ledger"
)

// txBuilder turns the positional arguments of a command into a transaction
type txBuilder func(cfg *config.Config, args []string) (ledger.Tx, error)

func txCommands() []*cobra.Command {
	return []*cobra.Command{
		txCommand(
			"deposit <amount>",
			"Move funds from the signing key's account into the vault",
			cobra.ExactArgs(1),
			func(cfg *config.Config, args []string) (ledger.Tx, error) {
				amount, err := custody.ParseAmount(args[0], cfg.Decimals)
				if err != nil {
					return ledger.Tx{}, err
				}
				return ledger.Tx{Op: ledger.TxOpDeposit, Amount: amount}, nil
			},
		),
		txCommand(
			"withdraw",
			"Withdraw the whole vault balance to the owner",
			cobra.NoArgs,
			opTx(ledger.TxOpWithdraw),
		),
		txCommand(
			"reset-activity",
			"Prove the owner is alive and restart the inactivity period",
			cobra.NoArgs,
			opTx(ledger.TxOpResetActivity),
		),
		txCommand(
			"set-heir <address>",
			"Designate the heir",
			cobra.ExactArgs(1),
			candidateTx(ledger.TxOpSetHeir),
		),
		txCommand(
			"designate-heir <address>",
			"Stage the heir's successor, installed when succession activates",
			cobra.ExactArgs(1),
			candidateTx(ledger.TxOpDesignateNewHeir),
		),
		txCommand(
			"activate",
			"Take ownership of an inactive vault as its heir",
			cobra.NoArgs,
			opTx(ledger.TxOpActivateSuccession),
		),
	}
}

func opTx(op ledger.TxOp) txBuilder {
	return func(*config.Config, []string) (ledger.Tx, error) {
		return ledger.Tx{Op: op}, nil
	}
}

func candidateTx(op ledger.TxOp) txBuilder {
	return func(_ *config.Config, args []string) (ledger.Tx, error) {
		candidate, err := parseAddressArg(args[0])
		if err != nil {
			return ledger.Tx{}, err
		}
		return ledger.Tx{Op: op, Candidate: candidate}, nil
	}
}

func txCommand(
	use string,
	short string,
	argsFn cobra.PositionalArgs,
	build txBuilder,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  argsFn,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdConfig(cmd)
			if err != nil {
				return err
			}
			tx, err := build(cfg, args)
			if err != nil {
				return err
			}
			signer, err := loadSigner(cfg)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			resp, err := client.Send(cmd.Context(), signer, tx)
			if err != nil {
				return fmt.Errorf("%s failed: %w", tx.Op, err)
			}
			resp.Amount = formatAmount(cfg, resp.Amount)
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
}
