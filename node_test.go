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

package bequest_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/bequest"
	"github.com/blinklabs-io/bequest/api"
	"github.com/blinklabs-io/bequest/keystore"
	"github.com/blinklabs-io/bequest/ledger"
	"github.com/blinklabs-io/bequest/vault"
)

func startNode(
	t *testing.T,
	dataDir string,
	owner common.Address,
) (*bequest.Node, *api.Client) {
	t.Helper()
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	n, err := bequest.New(
		bequest.NewConfig(
			bequest.WithRunMode("dev"),
			bequest.WithDatabasePath(dataDir),
			bequest.WithClock(ledger.NewManualClock(start)),
			bequest.WithAPIListenAddress("127.0.0.1:0"),
			bequest.WithPrometheusRegistry(prometheus.NewRegistry()),
			bequest.WithDeployer(owner),
			bequest.WithInactivityPeriod(24*time.Hour),
			bequest.WithGenesisBalances(map[common.Address]uint64{owner: 100}),
		),
	)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Run(ctx)
	}()
	select {
	case <-n.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("node failed to start: %s", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("timeout waiting for node start")
	}
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
		require.NoError(t, n.Stop())
	})
	client, err := api.NewClient(
		"http://"+n.APIAddress(),
		api.WithHTTPClient(&http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
			Timeout:   5 * time.Second,
		}),
	)
	require.NoError(t, err)
	return n, client
}

func TestNodeServesVault(t *testing.T) {
	owner, err := keystore.GenerateKey()
	require.NoError(t, err)
	n, client := startNode(t, "", owner.Address())
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))
	v, err := client.Vault(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner.Address().Hex(), v.Owner)
	assert.Equal(t, n.LedgerState().Snapshot().Address.Hex(), v.Address)

	_, err = client.Send(ctx, owner, ledger.Tx{Op: ledger.TxOpDeposit, Amount: 60})
	require.NoError(t, err)
	v, err = client.Vault(ctx)
	require.NoError(t, err)
	assert.Equal(t, "60", v.Balance)
}

func TestNodeRestartKeepsState(t *testing.T) {
	dataDir := t.TempDir()
	owner, err := keystore.GenerateKey()
	require.NoError(t, err)
	heir, err := keystore.GenerateKey()
	require.NoError(t, err)
	ctx := context.Background()

	n, client := startNode(t, dataDir, owner.Address())
	_, err = client.Send(ctx, owner, ledger.Tx{
		Op:        ledger.TxOpSetHeir,
		Candidate: heir.Address(),
	})
	require.NoError(t, err)
	require.NoError(t, n.Stop())

	_, client = startNode(t, dataDir, owner.Address())
	v, err := client.Vault(ctx)
	require.NoError(t, err)
	require.NotNil(t, v.Heir)
	assert.Equal(t, heir.Address().Hex(), *v.Heir)
	acct, err := client.Account(ctx, owner.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acct.Nonce)
	events, _, err := client.Events(ctx, api.EventsQuery{
		Types: []string{string(vault.HeirSetEventType)},
	})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
