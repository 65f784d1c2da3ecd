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
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/blinklabs-io/bequest/api"
	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/internal/config"
	"github.com/blinklabs-io/bequest/keystore"
)

var errNoConfig = errors.New("no config found in context")

func cmdConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, errNoConfig
	}
	return cfg, nil
}

func newClient(cfg *config.Config) (*api.Client, error) {
	return api.NewClient(cfg.ApiUrl)
}

func loadSigner(cfg *config.Config) (*keystore.Key, error) {
	if cfg.KeyFile == "" {
		return nil, errors.New("no signing key: use --key or keyFile in config")
	}
	return keystore.LoadKeyFile(cfg.KeyFile)
}

func parseAddressArg(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// formatAmount renders a base-unit decimal string with the configured
// number of decimals
func formatAmount(cfg *config.Config, baseUnits string) string {
	amount, err := custody.ParseAmount(baseUnits, 0)
	if err != nil {
		return baseUnits
	}
	return custody.FormatAmount(amount, cfg.Decimals)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
