// Copyright 2025 Blink Labs Software
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

package database_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/database"
	"github.com/blinklabs-io/bequest/database/models"
	"github.com/blinklabs-io/bequest/database/types"
	"github.com/blinklabs-io/bequest/internal/test/faultstore"
	"github.com/blinklabs-io/bequest/internal/test/testutil"
	"github.com/blinklabs-io/bequest/vault"
)

var (
	testAlice = common.HexToAddress("0x0000000000000000000000000000000000a11ce0")
	testBob   = common.HexToAddress("0x00000000000000000000000000000000000b0b00")
	testVault = common.HexToAddress("0x000000000000000000000000000000000000beef")
)

func newTestDatabase(t *testing.T, dataDir string) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func testVaultRecord() database.VaultRecord {
	return database.VaultRecord{
		Address:          testVault,
		InactivityPeriod: 10 * time.Second,
		State: vault.State{
			Owner:            testAlice,
			Heir:             testBob,
			LastActivityTime: time.Date(2026, time.May, 1, 10, 0, 0, 123, time.UTC),
			HeirActivated:    true,
		},
	}
}

func TestVaultRecordRoundTrip(t *testing.T) {
	db := newTestDatabase(t, "")
	_, err := db.GetVault(nil)
	require.ErrorIs(t, err, types.ErrNotFound)

	rec := testVaultRecord()
	require.NoError(t, db.SetVault(rec, nil))
	got, err := db.GetVault(nil)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
	assert.Equal(t, vault.NoPrincipal, got.State.NewHeir)
}

func TestAccounts(t *testing.T) {
	db := newTestDatabase(t, "")
	acct, err := db.GetAccount(testAlice, nil)
	require.NoError(t, err)
	assert.Equal(t, custody.Account{}, acct)

	txn := db.Transaction(true)
	require.NoError(t, db.SetAccount(testAlice, custody.Account{Balance: 10, Nonce: 2}, txn))
	require.NoError(t, db.SetAccount(testBob, custody.Account{Balance: 5}, txn))
	require.NoError(t, db.SetVault(testVaultRecord(), txn))
	require.NoError(t, txn.Commit())

	acct, err = db.GetAccount(testAlice, nil)
	require.NoError(t, err)
	assert.Equal(t, custody.Account{Balance: 10, Nonce: 2}, acct)

	accounts, err := db.GetAccounts(nil)
	require.NoError(t, err)
	assert.Equal(
		t,
		custody.Snapshot{
			testAlice: {Balance: 10, Nonce: 2},
			testBob:   {Balance: 5},
		},
		accounts,
	)
}

func TestTxnDoRollsBackBothStores(t *testing.T) {
	db := newTestDatabase(t, "")
	failErr := errors.New("fail")
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := db.SetAccount(testAlice, custody.Account{Balance: 1}, txn); err != nil {
			return err
		}
		if err := db.AddEvents([]models.VaultEvent{{TxId: "tx", Type: "t"}}, txn); err != nil {
			return err
		}
		return failErr
	})
	require.ErrorIs(t, err, failErr)

	acct, err := db.GetAccount(testAlice, nil)
	require.NoError(t, err)
	assert.Equal(t, custody.Account{}, acct)
	_, total, err := db.GetEvents(types.EventQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestTxnCommitWritesMatchingTimestamps(t *testing.T) {
	db := newTestDatabase(t, "")
	require.NoError(
		t,
		db.AddEvents([]models.VaultEvent{{TxId: "tx", Type: "t"}}, nil),
	)
	metadataTs, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)
	blobTs, err := db.Blob().GetCommitTimestamp()
	require.NoError(t, err)
	assert.Positive(t, metadataTs)
	assert.Equal(t, metadataTs, blobTs)
}

func TestCommitTimestampsIncrease(t *testing.T) {
	reg := prometheus.NewRegistry()
	db, err := database.New(&database.Config{PromRegistry: reg})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck
	var prev int64
	for i := range 3 {
		require.NoError(t, db.SetAccount(testAlice, custody.Account{Nonce: uint64(i)}, nil))
		ts, err := db.Blob().GetCommitTimestamp()
		require.NoError(t, err)
		assert.Greater(t, ts, prev)
		prev = ts
	}
	assert.InDelta(t, 3, testutil.MetricValue(
		t,
		reg,
		"bequest_database_commits_total",
		map[string]string{"result": "committed"},
	), 0)
	assert.InDelta(t, 3, testutil.MetricValue(
		t,
		reg,
		"bequest_database_commit_duration_seconds",
		nil,
	), 0)
}

func TestTxnFinishedIsIdempotent(t *testing.T) {
	db := newTestDatabase(t, "")
	txn := db.Transaction(true)
	require.NoError(t, txn.Commit())
	require.NoError(t, txn.Commit())
	require.NoError(t, txn.Rollback())
	txn = db.Transaction(false)
	txn.Release()
	txn.Release()
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	rec := testVaultRecord()
	err = db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := db.SetVault(rec, txn); err != nil {
			return err
		}
		if err := db.SetAccount(testVault, custody.Account{Balance: 42}, txn); err != nil {
			return err
		}
		return db.AddSubmission(
			&models.Submission{TxId: "tx-1", Op: "deposit", Status: models.SubmissionStatusApplied},
			txn,
		)
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = newTestDatabase(t, dataDir)
	got, err := db.GetVault(nil)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
	acct, err := db.GetAccount(testVault, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), acct.Balance)
	sub, err := db.GetSubmission("tx-1")
	require.NoError(t, err)
	assert.Equal(t, "deposit", sub.Op)
}

func TestCommitTimestampMismatchDetected(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	require.NoError(t, db.SetVault(testVaultRecord(), nil))
	// Simulate a torn commit by advancing only the blob store
	blobTxn := db.Blob().NewTransaction(true)
	require.NoError(t, db.Blob().SetCommitTimestamp(time.Now().Add(time.Hour).UnixNano(), blobTxn))
	require.NoError(t, blobTxn.Commit())
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dataDir})
	require.NotNil(t, db)
	defer db.Close() //nolint:errcheck
	var tsErr database.CommitTimestampError
	require.ErrorAs(t, err, &tsErr)
	assert.True(t, tsErr.BlobAhead())
	require.NoError(t, db.RecoverCommitTimestamp())
	// Vault state survives recovery
	got, err := db.GetVault(nil)
	require.NoError(t, err)
	assert.Equal(t, testVaultRecord(), *got)
}

func TestTornCommitCountedAsPartial(t *testing.T) {
	dataDir := t.TempDir()
	reg := prometheus.NewRegistry()
	db, err := database.New(&database.Config{
		DataDir:        dataDir,
		MetadataPlugin: faultstore.PluginName,
		PromRegistry:   reg,
	})
	require.NoError(t, err)
	faultstore.FailCommits(1)
	t.Cleanup(func() { faultstore.FailCommits(0) })
	txn := db.Transaction(true)
	require.NoError(t, db.SetVault(testVaultRecord(), txn))
	require.NoError(t, db.AddSubmission(&models.Submission{
		TxId:   "torn",
		Caller: testAlice.Bytes(),
		Op:     "withdraw",
		Status: models.SubmissionStatusApplied,
	}, txn))
	err = txn.Commit()
	require.ErrorIs(t, err, database.ErrPartialCommit)
	require.ErrorIs(t, err, faultstore.ErrCommitFailed)
	assert.InDelta(t, 1, testutil.MetricValue(t, reg, "bequest_database_commits_total", map[string]string{"result": "partial"}), 0)
	// Blob side is durable, the submission record is not
	got, err := db.GetVault(nil)
	require.NoError(t, err)
	assert.Equal(t, testVaultRecord(), *got)
	_, err = db.GetSubmission("torn")
	require.ErrorIs(t, err, types.ErrNotFound)
	require.NoError(t, db.Close())

	// Reopening reports the torn commit with the blob store ahead
	db, err = database.New(&database.Config{
		DataDir:        dataDir,
		MetadataPlugin: faultstore.PluginName,
	})
	require.NotNil(t, db)
	defer db.Close() //nolint:errcheck
	var tsErr database.CommitTimestampError
	require.ErrorAs(t, err, &tsErr)
	assert.True(t, tsErr.BlobAhead())
}
