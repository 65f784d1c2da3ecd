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

// Package ledger hosts a single vault. It supplies the caller identity and
// clock of each call, executes calls one at a time with all-or-nothing
// semantics, and persists the outcome before announcing it.
package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/database"
	"github.com/blinklabs-io/bequest/database/types"
	"github.com/blinklabs-io/bequest/event"
	"github.com/blinklabs-io/bequest/vault"
)

const tracerName = "github.com/blinklabs-io/bequest/ledger"

type LedgerStateConfig struct {
	Logger         *slog.Logger
	DataDir        string
	BlobPlugin     string
	MetadataPlugin string
	EventBus       *event.EventBus
	PromRegistry   prometheus.Registerer
	// Clock defaults to SystemClock, or a ManualClock in dev mode
	Clock   Clock
	DevMode bool
	// Genesis parameters, used only when no vault has been persisted yet
	Deployer         common.Address
	VaultAddress     common.Address
	InactivityPeriod time.Duration
	GenesisBalances  map[common.Address]uint64
}

type LedgerState struct {
	sync.RWMutex
	config   LedgerStateConfig
	logger   *slog.Logger
	db       *database.Database
	custody  *custody.Ledger
	vault    *vault.Vault
	buffer   *eventBuffer
	metrics  stateMetrics
	tracer   trace.Tracer
	ownedBus bool
	closed   bool
}

func NewLedgerState(cfg LedgerStateConfig) (*LedgerState, error) {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	ls := &LedgerState{
		config: cfg,
		logger: cfg.Logger.With("component", "ledger"),
		buffer: &eventBuffer{},
		tracer: otel.Tracer(tracerName),
	}
	if ls.config.EventBus == nil {
		ls.config.EventBus = event.NewEventBus(nil, cfg.Logger)
		ls.ownedBus = true
	}
	if ls.config.Clock == nil {
		if cfg.DevMode {
			ls.config.Clock = NewManualClock(time.Now())
		} else {
			ls.config.Clock = SystemClock{}
		}
	}
	// Init metrics
	ls.metrics.init(ls.config.PromRegistry)
	ls.metrics.nodeStartTime.Set(float64(time.Now().Unix()))
	// Load database
	needsRecovery := false
	db, err := database.New(
		&database.Config{
			Logger:         cfg.Logger,
			PromRegistry:   cfg.PromRegistry,
			DataDir:        cfg.DataDir,
			BlobPlugin:     cfg.BlobPlugin,
			MetadataPlugin: cfg.MetadataPlugin,
		},
	)
	if db == nil {
		ls.logger.Error(
			"failed to create database",
			"error", err,
		)
		ls.stopOwnedBus()
		if err == nil {
			err = errors.New("empty database returned")
		}
		return nil, err
	}
	ls.db = db
	if err != nil {
		var dbErr database.CommitTimestampError
		if !errors.As(err, &dbErr) {
			ls.closeOnError()
			return nil, err
		}
		ls.logger.Warn(
			"database initialization error, needs recovery",
			"error", err,
		)
		needsRecovery = true
	}
	// Run recovery if needed
	if needsRecovery {
		if err := ls.recoverCommitTimestampConflict(); err != nil {
			ls.closeOnError()
			return nil, fmt.Errorf("failed to recover database: %w", err)
		}
	}
	ls.custody = custody.NewLedger(cfg.Logger)
	if err := ls.loadState(); err != nil {
		ls.closeOnError()
		return nil, err
	}
	// ls.vault is replaced on rollback, so resolve it on every receive
	ls.custody.RegisterReceiver(
		ls.vault.Address(),
		custody.ReceiverFunc(func(from common.Address, amount uint64) error {
			return ls.vault.Receive(from, amount)
		}),
	)
	ls.updateMetrics()
	return ls, nil
}

func (ls *LedgerState) recoverCommitTimestampConflict() error {
	if err := ls.db.RecoverCommitTimestamp(); err != nil {
		return err
	}
	ls.logger.Warn(
		"recovered from torn commit, journal entries of the last call may be missing",
	)
	return nil
}

// loadState restores the vault and balances from the database, deploying a
// new vault on first start
func (ls *LedgerState) loadState() error {
	rec, err := ls.db.GetVault(nil)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return ls.createGenesis()
		}
		return fmt.Errorf("failed to load vault: %w", err)
	}
	accounts, err := ls.db.GetAccounts(nil)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	ls.custody.Restore(accounts)
	if ls.config.VaultAddress != (common.Address{}) &&
		ls.config.VaultAddress != rec.Address {
		ls.logger.Warn(
			"configured vault address ignored, using persisted value",
			"configured", ls.config.VaultAddress.Hex(),
			"persisted", rec.Address.Hex(),
		)
	}
	if ls.config.InactivityPeriod > 0 &&
		ls.config.InactivityPeriod != rec.InactivityPeriod {
		ls.logger.Warn(
			"configured inactivity period ignored, using persisted value",
			"configured", ls.config.InactivityPeriod,
			"persisted", rec.InactivityPeriod,
		)
	}
	v, err := vault.Restore(
		ls.vaultConfig(rec.Address, rec.InactivityPeriod),
		rec.State,
	)
	if err != nil {
		return fmt.Errorf("failed to restore vault: %w", err)
	}
	ls.vault = v
	// Keep a manual clock from starting behind the persisted activity
	if mc, ok := ls.config.Clock.(*ManualClock); ok {
		if delta := rec.State.LastActivityTime.Sub(mc.Now()); delta > 0 {
			_, _ = mc.Advance(delta)
		}
	}
	ls.logger.Info(
		"loaded vault",
		"address", rec.Address.Hex(),
		"owner", rec.State.Owner.Hex(),
		"heir", rec.State.Heir.Hex(),
		"accounts", len(accounts),
	)
	return nil
}

func (ls *LedgerState) createGenesis() error {
	if ls.config.Deployer == (common.Address{}) {
		return ErrNoDeployer
	}
	addr := ls.config.VaultAddress
	if addr == (common.Address{}) {
		// Same derivation as the first contract created by the deployer
		addr = crypto.CreateAddress(ls.config.Deployer, 0)
	}
	period := ls.config.InactivityPeriod
	if period <= 0 {
		period = vault.DefaultInactivityPeriod
	}
	v, err := vault.New(
		ls.vaultConfig(addr, period),
		ls.config.Deployer,
		ls.config.Clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to deploy vault: %w", err)
	}
	for _, holder := range slices.SortedFunc(
		maps.Keys(ls.config.GenesisBalances),
		func(a, b common.Address) int { return a.Cmp(b) },
	) {
		if err := ls.custody.Credit(holder, ls.config.GenesisBalances[holder]); err != nil {
			return fmt.Errorf("genesis balance for %s: %w", holder.Hex(), err)
		}
	}
	ls.vault = v
	err = ls.db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := ls.db.SetVault(ls.vaultRecord(), txn); err != nil {
			return err
		}
		return ls.persistTouched(txn)
	})
	if err != nil {
		return fmt.Errorf("failed to persist genesis state: %w", err)
	}
	ls.custody.ClearTouched()
	ls.logger.Info(
		"deployed vault",
		"address", addr.Hex(),
		"owner", ls.config.Deployer.Hex(),
		"inactivity_period", period,
	)
	return nil
}

func (ls *LedgerState) vaultConfig(
	addr common.Address,
	period time.Duration,
) vault.Config {
	return vault.Config{
		Custody:          ls.custody,
		Emitter:          ls.buffer,
		Logger:           ls.config.Logger,
		InactivityPeriod: period,
		Address:          addr,
	}
}

func (ls *LedgerState) vaultRecord() database.VaultRecord {
	return database.VaultRecord{
		State:            ls.vault.State(),
		Address:          ls.vault.Address(),
		InactivityPeriod: ls.vault.InactivityPeriod(),
	}
}

func (ls *LedgerState) persistTouched(txn *database.Txn) error {
	for _, addr := range ls.custody.Touched() {
		if err := ls.db.SetAccount(addr, ls.custody.Account(addr), txn); err != nil {
			return err
		}
	}
	return nil
}

func (ls *LedgerState) updateMetrics() {
	state := ls.vault.State()
	ls.metrics.balance.Set(float64(ls.vault.Balance()))
	ls.metrics.lastActivityTime.Set(float64(state.LastActivityTime.Unix()))
	ls.metrics.eligibleAt.Set(float64(ls.vault.EligibleAt().Unix()))
	if state.HeirActivated {
		ls.metrics.heirActivated.Set(1)
	} else {
		ls.metrics.heirActivated.Set(0)
	}
}

// EventBus returns the bus that committed events are published on
func (ls *LedgerState) EventBus() *event.EventBus {
	return ls.config.EventBus
}

// DevMode reports whether dev-only operations are enabled
func (ls *LedgerState) DevMode() bool {
	return ls.config.DevMode
}

// Now returns the current time of the ledger clock
func (ls *LedgerState) Now() time.Time {
	return ls.config.Clock.Now()
}

func (ls *LedgerState) Close() error {
	ls.Lock()
	defer ls.Unlock()
	if ls.closed {
		return nil
	}
	ls.closed = true
	err := ls.db.Close()
	ls.stopOwnedBus()
	return err
}

func (ls *LedgerState) closeOnError() {
	if err := ls.db.Close(); err != nil {
		ls.logger.Debug("failed to close database", "error", err)
	}
	ls.stopOwnedBus()
}

func (ls *LedgerState) stopOwnedBus() {
	if ls.ownedBus {
		ls.config.EventBus.Stop()
	}
}
