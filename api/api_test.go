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

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/bequest/api"
	"github.com/blinklabs-io/bequest/internal/test/testutil"
	"github.com/blinklabs-io/bequest/keystore"
	"github.com/blinklabs-io/bequest/ledger"
	"github.com/blinklabs-io/bequest/vault"
)

var (
	testStart  = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	testPeriod = 30 * 24 * time.Hour
)

type testEnv struct {
	t        *testing.T
	ledger   *ledger.LedgerState
	server   *httptest.Server
	client   *api.Client
	registry *prometheus.Registry
	owner    *keystore.Key
	heir     *keystore.Key
}

func newTestEnv(t *testing.T, devMode bool) *testEnv {
	t.Helper()
	owner, err := keystore.GenerateKey()
	require.NoError(t, err)
	heir, err := keystore.GenerateKey()
	require.NoError(t, err)
	cfg := ledger.LedgerStateConfig{
		DevMode:          devMode,
		Deployer:         owner.Address(),
		InactivityPeriod: testPeriod,
		GenesisBalances: map[common.Address]uint64{
			owner.Address(): 1000,
			heir.Address():  100,
		},
	}
	if devMode {
		cfg.Clock = ledger.NewManualClock(testStart)
	}
	ls, err := ledger.NewLedgerState(cfg)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	srv := api.New(api.Config{PromRegistry: reg}, ls, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, ls.Close())
	})
	client, err := api.NewClient(ts.URL, api.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	return &testEnv{
		t:        t,
		ledger:   ls,
		server:   ts,
		client:   client,
		registry: reg,
		owner:    owner,
		heir:     heir,
	}
}

func (e *testEnv) send(signer api.Signer, tx ledger.Tx) (*api.TxResponse, error) {
	e.t.Helper()
	return e.client.Send(context.Background(), signer, tx)
}

func (e *testEnv) mustSend(signer api.Signer, tx ledger.Tx) *api.TxResponse {
	e.t.Helper()
	resp, err := e.send(signer, tx)
	require.NoError(e.t, err)
	return resp
}

// signedEnvelope builds an envelope for the signer's current nonce
func (e *testEnv) signedEnvelope(signer api.Signer, tx ledger.Tx) *api.TxEnvelope {
	e.t.Helper()
	tx.Caller = signer.Address()
	tx.Nonce = e.ledger.Account(tx.Caller).Nonce
	if tx.Id == "" {
		tx.Id = uuid.NewString()
	}
	env := api.NewTxEnvelope(e.ledger.Snapshot().Address, tx)
	require.NoError(e.t, env.Sign(signer))
	return env
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, status, apiErr.StatusCode)
	assert.Equal(t, code, apiErr.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, env.client.Health(context.Background()))
}

func TestVaultSnapshot(t *testing.T) {
	env := newTestEnv(t, true)
	v, err := env.client.Vault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, env.ledger.Snapshot().Address.Hex(), v.Address)
	assert.Equal(t, env.owner.Address().Hex(), v.Owner)
	assert.Nil(t, v.Heir)
	assert.Nil(t, v.NewHeir)
	assert.Equal(t, "0", v.Balance)
	assert.Equal(t, int64(testPeriod/time.Second), v.InactivityPeriodSeconds)
	assert.True(t, v.LastActivityTime.Equal(testStart))
	assert.True(t, v.EligibleAt.Equal(testStart.Add(testPeriod)))
	assert.False(t, v.Inactive)
	assert.False(t, v.HeirActivated)
}

func TestAccount(t *testing.T) {
	env := newTestEnv(t, true)
	acct, err := env.client.Account(context.Background(), env.heir.Address())
	require.NoError(t, err)
	assert.Equal(t, "100", acct.Balance)
	assert.Equal(t, uint64(0), acct.Nonce)

	resp, err := env.server.Client().Get(env.server.URL + "/api/v1/accounts/nothex")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errResp api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, api.CodeInvalidRequest, errResp.Error)
}

func TestDepositAndWithdraw(t *testing.T) {
	env := newTestEnv(t, true)
	resp := env.mustSend(env.owner, ledger.Tx{Op: ledger.TxOpDeposit, Amount: 300})
	assert.Equal(t, "300", resp.Amount)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, string(ledger.DepositEventType), resp.Events[0].Type)

	v, err := env.client.Vault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "300", v.Balance)

	resp = env.mustSend(env.owner, ledger.Tx{Op: ledger.TxOpWithdraw})
	assert.Equal(t, "300", resp.Amount)
	assert.Equal(t, uint64(1), resp.Nonce)
	acct, err := env.client.Account(context.Background(), env.owner.Address())
	require.NoError(t, err)
	assert.Equal(t, "1000", acct.Balance)
	assert.Equal(t, uint64(2), acct.Nonce)
}

func TestUnauthorizedCall(t *testing.T) {
	env := newTestEnv(t, true)
	_, err := env.send(env.heir, ledger.Tx{Op: ledger.TxOpWithdraw})
	requireAPIError(t, err, http.StatusForbidden, api.CodeUnauthorized)
	assert.ErrorIs(t, err, vault.ErrUnauthorized)
	// The failed call still consumed the nonce
	assert.Equal(t, uint64(1), env.ledger.Account(env.heir.Address()).Nonce)
}

func TestSuccessionFlow(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.mustSend(env.owner, ledger.Tx{Op: ledger.TxOpDeposit, Amount: 500})
	env.mustSend(env.owner, ledger.Tx{
		Op:        ledger.TxOpSetHeir,
		Candidate: env.heir.Address(),
	})

	_, err := env.send(env.heir, ledger.Tx{Op: ledger.TxOpActivateSuccession})
	requireAPIError(t, err, http.StatusConflict, api.CodeNotYetEligible)
	assert.ErrorIs(t, err, vault.ErrNotYetEligible)

	now, err := env.client.Advance(ctx, testPeriod)
	require.NoError(t, err)
	assert.True(t, now.Equal(testStart.Add(testPeriod)))

	resp := env.mustSend(env.heir, ledger.Tx{Op: ledger.TxOpActivateSuccession})
	require.NotEmpty(t, resp.Events)
	assert.Equal(t, string(vault.SuccessionActivatedEventType), resp.Events[0].Type)

	v, err := env.client.Vault(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.heir.Address().Hex(), v.Owner)
	assert.True(t, v.HeirActivated)

	resp = env.mustSend(env.heir, ledger.Tx{Op: ledger.TxOpWithdraw})
	assert.Equal(t, "500", resp.Amount)
}

func TestForgedSignatureRejected(t *testing.T) {
	env := newTestEnv(t, true)
	signed := env.signedEnvelope(env.heir, ledger.Tx{Op: ledger.TxOpWithdraw})
	// Claim to be the owner while keeping the heir's signature
	signed.Caller = env.owner.Address().Hex()
	_, err := env.client.SubmitTx(context.Background(), signed)
	requireAPIError(t, err, http.StatusUnauthorized, api.CodeInvalidSignature)
	assert.ErrorIs(t, err, api.ErrInvalidSignature)

	signed.Signature = "0x1234"
	_, err = env.client.SubmitTx(context.Background(), signed)
	assert.ErrorIs(t, err, api.ErrInvalidSignature)
	assert.Equal(t, uint64(0), env.ledger.Account(env.owner.Address()).Nonce)
}

func TestReplayRejected(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	signed := env.signedEnvelope(env.owner, ledger.Tx{Op: ledger.TxOpResetActivity})
	_, err := env.client.SubmitTx(ctx, signed)
	require.NoError(t, err)

	_, err = env.client.SubmitTx(ctx, signed)
	requireAPIError(t, err, http.StatusConflict, api.CodeDuplicateTx)
	assert.ErrorIs(t, err, ledger.ErrDuplicateTx)

	stale := api.NewTxEnvelope(env.ledger.Snapshot().Address, ledger.Tx{
		Id:     uuid.NewString(),
		Caller: env.owner.Address(),
		Op:     ledger.TxOpResetActivity,
		Nonce:  0,
	})
	require.NoError(t, stale.Sign(env.owner))
	_, err = env.client.SubmitTx(ctx, stale)
	requireAPIError(t, err, http.StatusConflict, api.CodeNonceMismatch)
	assert.ErrorIs(t, err, ledger.ErrNonceMismatch)
}

func TestWrongVaultRejected(t *testing.T) {
	env := newTestEnv(t, true)
	other := api.NewTxEnvelope(
		common.HexToAddress("0x000000000000000000000000000000000000beef"),
		ledger.Tx{
			Id:     uuid.NewString(),
			Caller: env.owner.Address(),
			Op:     ledger.TxOpResetActivity,
		},
	)
	require.NoError(t, other.Sign(env.owner))
	_, err := env.client.SubmitTx(context.Background(), other)
	requireAPIError(t, err, http.StatusBadRequest, api.CodeInvalidRequest)
}

func TestMalformedBodyRejected(t *testing.T) {
	env := newTestEnv(t, true)
	resp, err := env.server.Client().Post(
		env.server.URL+"/api/v1/tx",
		"application/json",
		strings.NewReader(`{"id":"x","bogus":true}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransferFailure(t *testing.T) {
	env := newTestEnv(t, true)
	_, err := env.send(env.heir, ledger.Tx{Op: ledger.TxOpDeposit, Amount: 5000})
	requireAPIError(t, err, http.StatusUnprocessableEntity, api.CodeTransferFailed)
	assert.ErrorIs(t, err, vault.ErrTransferFailed)
}

func TestTransaction(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	resp := env.mustSend(env.owner, ledger.Tx{Op: ledger.TxOpResetActivity})
	res, err := env.client.Transaction(ctx, resp.TxId)
	require.NoError(t, err)
	assert.Equal(t, "applied", res.Status)
	assert.Equal(t, string(ledger.TxOpResetActivity), res.Op)
	assert.Empty(t, res.Error)

	failedId := uuid.NewString()
	_, err = env.send(env.heir, ledger.Tx{Id: failedId, Op: ledger.TxOpWithdraw})
	require.Error(t, err)
	res, err = env.client.Transaction(ctx, failedId)
	require.NoError(t, err)
	assert.Equal(t, "failed", res.Status)
	assert.NotEmpty(t, res.Error)

	_, err = env.client.Transaction(ctx, "missing")
	requireAPIError(t, err, http.StatusNotFound, api.CodeNotFound)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	for range 3 {
		env.mustSend(env.owner, ledger.Tx{Op: ledger.TxOpResetActivity})
	}
	env.mustSend(env.owner, ledger.Tx{Op: ledger.TxOpSetHeir, Candidate: env.heir.Address()})

	events, total, err := env.client.Events(ctx, api.EventsQuery{Count: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, events, 2)
	assert.Equal(t, string(vault.ActivityResetEventType), events[0].Type)
	assert.Equal(t, env.owner.Address().Hex(), events[0].Caller)

	events, total, err = env.client.Events(ctx, api.EventsQuery{
		Types: []string{string(vault.HeirSetEventType)},
		Order: "desc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	var data vault.HeirSetEvent
	require.NoError(t, json.Unmarshal(events[0].Data, &data))
	assert.Equal(t, env.heir.Address(), data.New)

	_, total, err = env.client.Events(ctx, api.EventsQuery{Caller: env.heir.Address()})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	resp, err := env.server.Client().Get(env.server.URL + "/api/v1/events?count=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "4", resp.Header.Get("X-Pagination-Count-Total"))
	assert.Equal(t, "2", resp.Header.Get("X-Pagination-Page-Total"))

	_, _, err = env.client.Events(ctx, api.EventsQuery{Order: "sideways"})
	requireAPIError(t, err, http.StatusBadRequest, api.CodeInvalidRequest)
}

func TestDevFund(t *testing.T) {
	env := newTestEnv(t, true)
	addr := common.HexToAddress("0x00000000000000000000000000000000000ca201")
	balance, err := env.client.Fund(context.Background(), addr, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), balance)
	acct, err := env.client.Account(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, "42", acct.Balance)
}

func TestDevEndpointsDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	_, err := env.client.Advance(ctx, time.Hour)
	requireAPIError(t, err, http.StatusForbidden, api.CodeDevModeDisabled)
	assert.ErrorIs(t, err, ledger.ErrDevModeDisabled)
	_, err = env.client.Fund(ctx, env.heir.Address(), 10)
	assert.ErrorIs(t, err, ledger.ErrDevModeDisabled)
}

func TestRequestId(t *testing.T) {
	env := newTestEnv(t, true)
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(api.RequestIdHeader, "abc-123")
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(api.RequestIdHeader))

	resp, err = env.server.Client().Get(env.server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	_, err = uuid.Parse(resp.Header.Get(api.RequestIdHeader))
	assert.NoError(t, err)
}

func TestNotFoundRoute(t *testing.T) {
	env := newTestEnv(t, true)
	resp, err := env.server.Client().Get(env.server.URL + "/api/v1/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestMetrics(t *testing.T) {
	env := newTestEnv(t, true)
	for range 2 {
		require.NoError(t, env.client.Health(context.Background()))
	}
	assert.InDelta(t, 2, testutil.MetricValue(
		t,
		env.registry,
		"bequest_api_requests_total",
		map[string]string{"route": "/health", "method": "GET", "code": "200"},
	), 0)
	_, err := env.client.Account(context.Background(), env.owner.Address())
	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.MetricValue(
		t,
		env.registry,
		"bequest_api_request_duration_seconds",
		map[string]string{"route": "/api/v1/accounts/{address}"},
	), 0)
}

func TestServerStartStop(t *testing.T) {
	ls, err := ledger.NewLedgerState(ledger.LedgerStateConfig{
		DevMode:  true,
		Deployer: common.HexToAddress("0x00000000000000000000000000000000000a11ce"),
	})
	require.NoError(t, err)
	defer ls.Close()
	srv := api.New(api.Config{ListenAddress: "127.0.0.1:0"}, ls, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	require.Error(t, srv.Start(ctx))
	client, err := api.NewClient("http://" + srv.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Health(ctx))
	require.NoError(t, srv.Stop(context.Background()))
	// Stopping twice is harmless
	require.NoError(t, srv.Stop(context.Background()))
}
