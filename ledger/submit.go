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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/database"
	"github.com/blinklabs-io/bequest/database/models"
	"github.com/blinklabs-io/bequest/database/types"
	"github.com/blinklabs-io/bequest/event"
	"github.com/blinklabs-io/bequest/vault"
)

// Submit executes a transaction. Either every effect of the call is
// committed and its events published, or none are. A torn commit that saved
// vault state but lost the journal entries still counts as committed. A call rejected by the
// vault still consumes the caller's nonce and is recorded as failed.
func (ls *LedgerState) Submit(ctx context.Context, tx Tx) (*Receipt, error) {
	_, span := ls.tracer.Start(
		ctx,
		"ledger.Submit",
		trace.WithAttributes(
			attribute.String("bequest.op", string(tx.Op)),
			attribute.String("bequest.caller", tx.Caller.Hex()),
			attribute.Int64("bequest.nonce", int64(tx.Nonce)), //nolint:gosec
		),
	)
	defer span.End()
	start := time.Now()
	receipt, result, err := ls.submit(ctx, tx)
	ls.metrics.callLatency.Observe(time.Since(start).Seconds())
	ls.metrics.callsTotal.WithLabelValues(string(tx.Op), result).Inc()
	span.SetAttributes(attribute.String("bequest.result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("bequest.tx_id", receipt.TxId))
	return receipt, nil
}

func (ls *LedgerState) submit(
	ctx context.Context,
	tx Tx,
) (*Receipt, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, callResultRejected, err
	}
	if err := tx.validate(); err != nil {
		return nil, callResultRejected, err
	}
	ls.Lock()
	defer ls.Unlock()
	if ls.closed {
		return nil, callResultRejected, ErrClosed
	}
	if tx.Id == "" {
		tx.Id = uuid.NewString()
	} else if _, err := ls.db.GetSubmission(tx.Id); err == nil {
		return nil, callResultRejected, fmt.Errorf("%w: %s", ErrDuplicateTx, tx.Id)
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, callResultError, err
	}
	if nonce := ls.custody.NonceOf(tx.Caller); tx.Nonce != nonce {
		return nil, callResultRejected, NonceError{Expected: nonce, Got: tx.Nonce}
	}
	now := ls.config.Clock.Now()
	call := vault.NewCall(tx.Caller, now)
	prevState := ls.vault.State()
	prevAccounts := ls.custody.Snapshot()
	ls.custody.ClearTouched()
	amount, opErr := ls.apply(tx, call)
	events := ls.buffer.drain()
	if opErr != nil {
		ls.rollback(prevState, prevAccounts)
		events = nil
		ls.logger.Debug(
			"call rejected by vault",
			"tx_id", tx.Id,
			"op", tx.Op,
			"caller", tx.Caller.Hex(),
			"error", opErr,
		)
	}
	ls.custody.IncrementNonce(tx.Caller)
	if err := ls.persist(tx, now, events, opErr); err != nil {
		if !errors.Is(err, database.ErrPartialCommit) {
			ls.rollback(prevState, prevAccounts)
			ls.logger.Error(
				"failed to persist call",
				"tx_id", tx.Id,
				"op", tx.Op,
				"error", err,
			)
			return nil, callResultError, fmt.Errorf("persist call: %w", err)
		}
		// Vault state and balances are durable, so the call stands
		ls.logger.Error(
			"call applied without journal entries",
			"tx_id", tx.Id,
			"op", tx.Op,
			"events", len(events),
			"error", err,
		)
	}
	ls.custody.ClearTouched()
	if opErr != nil {
		return nil, callResultFailed, opErr
	}
	for _, evt := range events {
		ls.config.EventBus.Publish(evt.Type, evt)
	}
	if tx.Op == TxOpActivateSuccession {
		ls.metrics.successionsTotal.Inc()
	}
	ls.updateMetrics()
	return &Receipt{
		TxId:   tx.Id,
		Caller: tx.Caller,
		Op:     tx.Op,
		Nonce:  tx.Nonce,
		Time:   now,
		Amount: amount,
		Events: events,
	}, callResultApplied, nil
}

func (ls *LedgerState) apply(tx Tx, call vault.Call) (uint64, error) {
	switch tx.Op {
	case TxOpWithdraw:
		return ls.vault.Withdraw(call)
	case TxOpResetActivity:
		return 0, ls.vault.ResetActivity(call)
	case TxOpSetHeir:
		return 0, ls.vault.SetHeir(call, tx.Candidate)
	case TxOpDesignateNewHeir:
		return 0, ls.vault.DesignateNewHeir(call, tx.Candidate)
	case TxOpActivateSuccession:
		return 0, ls.vault.ActivateSuccession(call)
	case TxOpDeposit:
		return tx.Amount, ls.deposit(call, tx.Amount)
	}
	return 0, ErrUnknownOp
}

// deposit sends value from the caller into the vault
func (ls *LedgerState) deposit(call vault.Call, amount uint64) error {
	vaultAddr := ls.vault.Address()
	if err := ls.custody.Transfer(call.Caller, vaultAddr, amount); err != nil {
		return vault.TransferError{
			Err:       err,
			Recipient: vaultAddr,
			Amount:    amount,
		}
	}
	ls.buffer.Emit(
		event.Event{
			Type:      DepositEventType,
			Timestamp: call.Time,
			Data:      DepositEvent{From: call.Caller, Amount: amount},
		},
	)
	return nil
}

// rollback discards the in-memory effects of a call
func (ls *LedgerState) rollback(state vault.State, accounts custody.Snapshot) {
	ls.custody.Restore(accounts)
	ls.buffer.drain()
	v, err := vault.Restore(
		ls.vaultConfig(ls.vault.Address(), ls.vault.InactivityPeriod()),
		state,
	)
	if err != nil {
		// Only reachable with an invalid snapshot, which New/Restore rejected
		panic(fmt.Sprintf("restore vault: %s", err))
	}
	ls.vault = v
}

func (ls *LedgerState) persist(
	tx Tx,
	now time.Time,
	events []event.Event,
	opErr error,
) error {
	journal, err := journalModels(tx.Id, tx.Caller, events)
	if err != nil {
		return err
	}
	sub := &models.Submission{
		TxId:      tx.Id,
		Caller:    tx.Caller.Bytes(),
		Op:        string(tx.Op),
		Nonce:     types.Uint64(tx.Nonce),
		Status:    models.SubmissionStatusApplied,
		Timestamp: now.UnixNano(),
	}
	if opErr != nil {
		sub.Status = models.SubmissionStatusFailed
		sub.Error = opErr.Error()
	}
	return ls.db.Transaction(true).Do(func(txn *database.Txn) error {
		if opErr == nil {
			if err := ls.db.SetVault(ls.vaultRecord(), txn); err != nil {
				return err
			}
		}
		if err := ls.persistTouched(txn); err != nil {
			return err
		}
		if len(journal) > 0 {
			if err := ls.db.AddEvents(journal, txn); err != nil {
				return err
			}
		}
		return ls.db.AddSubmission(sub, txn)
	})
}

// Fund credits newly issued value to addr. It is only available in dev mode.
func (ls *LedgerState) Fund(
	ctx context.Context,
	addr common.Address,
	amount uint64,
) (uint64, error) {
	if !ls.config.DevMode {
		return 0, ErrDevModeDisabled
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if addr == (common.Address{}) {
		return 0, ErrZeroCaller
	}
	if amount == 0 {
		return 0, ErrZeroAmount
	}
	ls.Lock()
	defer ls.Unlock()
	if ls.closed {
		return 0, ErrClosed
	}
	prevState := ls.vault.State()
	prevAccounts := ls.custody.Snapshot()
	ls.custody.ClearTouched()
	if err := ls.custody.Credit(addr, amount); err != nil {
		ls.custody.ClearTouched()
		return 0, err
	}
	now := ls.config.Clock.Now()
	evt := event.Event{
		Type:      FundEventType,
		Timestamp: now,
		Data:      FundEvent{Account: addr, Amount: amount},
	}
	journal, err := journalModels(uuid.NewString(), addr, []event.Event{evt})
	if err != nil {
		ls.rollback(prevState, prevAccounts)
		return 0, err
	}
	err = ls.db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := ls.persistTouched(txn); err != nil {
			return err
		}
		return ls.db.AddEvents(journal, txn)
	})
	if err != nil {
		if !errors.Is(err, database.ErrPartialCommit) {
			ls.rollback(prevState, prevAccounts)
			return 0, fmt.Errorf("persist fund: %w", err)
		}
		ls.logger.Error(
			"account funded without journal entry",
			"account", addr.Hex(),
			"error", err,
		)
	}
	ls.custody.ClearTouched()
	ls.config.EventBus.Publish(evt.Type, evt)
	ls.updateMetrics()
	ls.logger.Info(
		"funded account",
		"account", addr.Hex(),
		"amount", amount,
	)
	return ls.custody.BalanceOf(addr), nil
}

// AdvanceClock moves a dev mode clock forward and returns the new time
func (ls *LedgerState) AdvanceClock(d time.Duration) (time.Time, error) {
	if !ls.config.DevMode {
		return time.Time{}, ErrDevModeDisabled
	}
	mc, ok := ls.config.Clock.(*ManualClock)
	if !ok {
		return time.Time{}, ErrClockNotAdjustable
	}
	now, err := mc.Advance(d)
	if err != nil {
		return time.Time{}, err
	}
	ls.logger.Debug("advanced clock", "now", now, "by", d)
	return now, nil
}
