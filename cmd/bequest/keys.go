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

	"github.com/blinklabs-io/bequest/keystore"
)

func keygenCommand() *cobra.Command {
	var description string
	var useSops bool
	cmd := &cobra.Command{
		Use:   "keygen <file>",
		Short: "Generate a signing key file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keystore.GenerateKey()
			if err != nil {
				return err
			}
			if err := keystore.SaveKeyFile(
				args[0],
				key,
				keystore.WithDescription(description),
				keystore.WithSops(useSops),
			); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.Address().Hex())
			return nil
		},
	}
	cmd.Flags().
		StringVar(&description, "description", "", "description stored in the key file")
	cmd.Flags().
		BoolVar(&useSops, "sops", false, "encrypt the key file with SOPS using the BEQUEST_* KMS and age env vars")
	return cmd
}

func addressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Show the address of the signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdConfig(cmd)
			if err != nil {
				return err
			}
			key, err := loadSigner(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.Address().Hex())
			return nil
		},
	}
}
