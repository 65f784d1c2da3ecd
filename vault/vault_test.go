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

package vault_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/bequest/custody"
	"github.com/blinklabs-io/bequest/event"
	"github.com/blinklabs-io/bequest/vault"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	testVaultAddr = common.HexToAddress("0x000000000000000000000000000000000000beef")
	testOwner     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testHeir      = common.HexToAddress("0x0000000000000000000000000000000000000002")
	testNewHeir   = common.HexToAddress("0x0000000000000000000000000000000000000003")
	testStranger  = common.HexToAddress("0x0000000000000000000000000000000000000004")
	testEpoch     = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	testPeriod    = vault.DefaultInactivityPeriod
)

type testHarness struct {
	t      *testing.T
	ledger *custody.Ledger
	vault  *vault.Vault
	events []event.Event
	now    time.Time
}

func newTestHarness(t *testing.T, balance uint64) *testHarness {
	t.Helper()
	h := &testHarness{
		t:      t,
		ledger: custody.NewLedger(nil),
		now:    testEpoch,
	}
	v, err := vault.New(
		vault.Config{
			Address: testVaultAddr,
			Custody: h.ledger,
			Emitter: vault.EmitterFunc(func(evt event.Event) {
				h.events = append(h.events, evt)
			}),
			InactivityPeriod: testPeriod,
		},
		testOwner,
		h.now,
	)
	require.NoError(t, err)
	h.vault = v
	h.ledger.RegisterReceiver(testVaultAddr, v)
	if balance > 0 {
		require.NoError(t, h.ledger.Credit(testVaultAddr, balance))
	}
	return h
}

func (h *testHarness) call(caller common.Address) vault.Call {
	return vault.NewCall(caller, h.now)
}

func (h *testHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *testHarness) takeEvents() []event.Event {
	ret := h.events
	h.events = nil
	return ret
}

func (h *testHarness) setHeir(heir common.Address) {
	h.t.Helper()
	require.NoError(h.t, h.vault.SetHeir(h.call(testOwner), heir))
	h.takeEvents()
}

func TestNewRejectsZeroDeployer(t *testing.T) {
	_, err := vault.New(
		vault.Config{Address: testVaultAddr, Custody: custody.NewLedger(nil)},
		vault.NoPrincipal,
		testEpoch,
	)
	require.ErrorIs(t, err, vault.ErrZeroPrincipal)
}

func TestRestoreValidatesConfig(t *testing.T) {
	state := vault.State{Owner: testOwner}
	_, err := vault.Restore(vault.Config{Address: testVaultAddr}, state)
	require.Error(t, err)
	_, err = vault.Restore(
		vault.Config{Custody: custody.NewLedger(nil)},
		state,
	)
	require.Error(t, err)
	v, err := vault.Restore(
		vault.Config{Address: testVaultAddr, Custody: custody.NewLedger(nil)},
		state,
	)
	require.NoError(t, err)
	assert.Equal(t, vault.DefaultInactivityPeriod, v.InactivityPeriod())
}

func TestInitialState(t *testing.T) {
	h := newTestHarness(t, 0)
	state := h.vault.State()
	assert.Equal(t, testOwner, state.Owner)
	assert.Equal(t, vault.NoPrincipal, state.Heir)
	assert.Equal(t, vault.NoPrincipal, state.NewHeir)
	assert.Equal(t, testEpoch, state.LastActivityTime)
	assert.False(t, state.HeirActivated)
	assert.Equal(t, testEpoch.Add(testPeriod), h.vault.EligibleAt())
}

func TestOwnerOnlyOperationsRejectOthers(t *testing.T) {
	h := newTestHarness(t, 10)
	h.setHeir(testHeir)
	before := h.vault.State()
	h.advance(time.Hour)
	for _, caller := range []common.Address{testHeir, testStranger, vault.NoPrincipal} {
		_, err := h.vault.Withdraw(h.call(caller))
		require.ErrorIs(t, err, vault.ErrNotOwner)
		require.ErrorIs(t, err, vault.ErrUnauthorized)
		err = h.vault.ResetActivity(h.call(caller))
		require.ErrorIs(t, err, vault.ErrUnauthorized)
		err = h.vault.SetHeir(h.call(caller), testNewHeir)
		require.ErrorIs(t, err, vault.ErrUnauthorized)
	}
	assert.Equal(t, before, h.vault.State())
	assert.Equal(t, uint64(10), h.vault.Balance())
	assert.Empty(t, h.takeEvents())
}

func TestZeroCandidateRejected(t *testing.T) {
	h := newTestHarness(t, 0)
	h.setHeir(testHeir)
	require.NoError(t, h.vault.DesignateNewHeir(h.call(testHeir), testNewHeir))
	h.takeEvents()
	before := h.vault.State()

	err := h.vault.SetHeir(h.call(testOwner), vault.NoPrincipal)
	require.ErrorIs(t, err, vault.ErrZeroPrincipal)
	require.ErrorIs(t, err, vault.ErrInvalidArgument)

	// The candidate is validated before the caller
	for _, caller := range []common.Address{testHeir, testStranger} {
		err = h.vault.DesignateNewHeir(h.call(caller), vault.NoPrincipal)
		require.ErrorIs(t, err, vault.ErrInvalidArgument)
	}
	assert.Equal(t, before, h.vault.State())
	assert.Empty(t, h.takeEvents())
}

func TestWithdrawDrainsBalance(t *testing.T) {
	for _, balance := range []uint64{0, 1, 10, 1 << 40} {
		h := newTestHarness(t, balance)
		h.advance(time.Hour)
		amount, err := h.vault.Withdraw(h.call(testOwner))
		require.NoError(t, err)
		assert.Equal(t, balance, amount)
		assert.Equal(t, uint64(0), h.vault.Balance())
		assert.Equal(t, balance, h.ledger.BalanceOf(testOwner))
		assert.Equal(t, h.now, h.vault.State().LastActivityTime)
		events := h.takeEvents()
		require.Len(t, events, 1)
		assert.Equal(t, vault.WithdrawalEventType, events[0].Type)
		assert.Equal(t, vault.WithdrawalEvent{Amount: balance}, events[0].Data)
		assert.Equal(t, h.now, events[0].Timestamp)
	}
}

func TestWithdrawRejectedTransferLeavesStateUnchanged(t *testing.T) {
	h := newTestHarness(t, 10)
	rejectErr := errors.New("owner refuses value")
	h.ledger.RegisterReceiver(
		testOwner,
		custody.ReceiverFunc(func(common.Address, uint64) error {
			return rejectErr
		}),
	)
	before := h.vault.State()
	h.advance(time.Hour)
	_, err := h.vault.Withdraw(h.call(testOwner))
	require.ErrorIs(t, err, vault.ErrTransferFailed)
	require.ErrorIs(t, err, rejectErr)
	var transferErr vault.TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, uint64(10), transferErr.Amount)
	assert.Equal(t, testOwner, transferErr.Recipient)
	assert.Equal(t, before, h.vault.State())
	assert.Equal(t, uint64(10), h.vault.Balance())
	assert.Equal(t, uint64(0), h.ledger.BalanceOf(testOwner))
	assert.Empty(t, h.takeEvents())
}

func TestWithdrawBlocksReentry(t *testing.T) {
	h := newTestHarness(t, 10)
	var reentryErrs []error
	h.ledger.RegisterReceiver(
		testOwner,
		custody.ReceiverFunc(func(common.Address, uint64) error {
			call := h.call(testOwner)
			_, err := h.vault.Withdraw(call)
			reentryErrs = append(reentryErrs, err)
			reentryErrs = append(reentryErrs, h.vault.ResetActivity(call))
			reentryErrs = append(reentryErrs, h.vault.SetHeir(call, testHeir))
			reentryErrs = append(
				reentryErrs,
				h.vault.ActivateSuccession(h.call(testHeir)),
			)
			reentryErrs = append(
				reentryErrs,
				h.vault.DesignateNewHeir(h.call(testHeir), testNewHeir),
			)
			return nil
		}),
	)
	amount, err := h.vault.Withdraw(h.call(testOwner))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), amount)
	require.Len(t, reentryErrs, 5)
	for _, reentryErr := range reentryErrs {
		require.ErrorIs(t, reentryErr, vault.ErrReentrantCall)
	}
	assert.Equal(t, vault.NoPrincipal, h.vault.State().Heir)
	// Only the outer withdrawal was recorded
	assert.Len(t, h.takeEvents(), 1)
	// The gate is released afterwards
	require.NoError(t, h.vault.ResetActivity(h.call(testOwner)))
}

func TestReceiveAcceptedDuringWithdraw(t *testing.T) {
	h := newTestHarness(t, 10)
	require.NoError(t, h.ledger.Credit(testStranger, 5))
	h.ledger.RegisterReceiver(
		testOwner,
		custody.ReceiverFunc(func(common.Address, uint64) error {
			return h.ledger.Transfer(testStranger, testVaultAddr, 5)
		}),
	)
	amount, err := h.vault.Withdraw(h.call(testOwner))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), amount)
	assert.Equal(t, uint64(5), h.vault.Balance())
}

func TestReceiveDoesNotMutateState(t *testing.T) {
	h := newTestHarness(t, 0)
	before := h.vault.State()
	require.NoError(t, h.ledger.Credit(testStranger, 7))
	require.NoError(t, h.ledger.Transfer(testStranger, testVaultAddr, 7))
	assert.Equal(t, uint64(7), h.vault.Balance())
	assert.Equal(t, before, h.vault.State())
	assert.Empty(t, h.takeEvents())
}

func TestResetActivityTwice(t *testing.T) {
	h := newTestHarness(t, 0)
	h.advance(time.Minute)
	require.NoError(t, h.vault.ResetActivity(h.call(testOwner)))
	first := h.vault.State().LastActivityTime
	assert.Equal(t, h.now, first)
	h.advance(time.Minute)
	require.NoError(t, h.vault.ResetActivity(h.call(testOwner)))
	second := h.vault.State().LastActivityTime
	assert.Equal(t, h.now, second)
	assert.True(t, second.After(first))
	events := h.takeEvents()
	require.Len(t, events, 2)
	assert.Equal(t, vault.ActivityResetEvent{Time: first}, events[0].Data)
	assert.Equal(t, vault.ActivityResetEvent{Time: second}, events[1].Data)
}

func TestLastActivityNeverDecreases(t *testing.T) {
	h := newTestHarness(t, 0)
	h.advance(time.Hour)
	require.NoError(t, h.vault.ResetActivity(h.call(testOwner)))
	latest := h.now
	// A host clock that steps backwards must not move the timestamp back
	h.now = latest.Add(-time.Minute)
	require.NoError(t, h.vault.ResetActivity(h.call(testOwner)))
	_, err := h.vault.Withdraw(h.call(testOwner))
	require.NoError(t, err)
	assert.Equal(t, latest, h.vault.State().LastActivityTime)
}

func TestSetHeirOverwrites(t *testing.T) {
	h := newTestHarness(t, 0)
	require.NoError(t, h.vault.SetHeir(h.call(testOwner), testHeir))
	require.NoError(t, h.vault.SetHeir(h.call(testOwner), testNewHeir))
	assert.Equal(t, testNewHeir, h.vault.State().Heir)
	events := h.takeEvents()
	require.Len(t, events, 2)
	assert.Equal(
		t,
		vault.HeirSetEvent{Previous: vault.NoPrincipal, New: testHeir},
		events[0].Data,
	)
	assert.Equal(
		t,
		vault.HeirSetEvent{Previous: testHeir, New: testNewHeir},
		events[1].Data,
	)
}

func TestDesignateNewHeir(t *testing.T) {
	h := newTestHarness(t, 0)
	// No heir set yet: nobody, including the zero caller, qualifies
	for _, caller := range []common.Address{testOwner, vault.NoPrincipal} {
		err := h.vault.DesignateNewHeir(h.call(caller), testNewHeir)
		require.ErrorIs(t, err, vault.ErrNotHeir)
	}
	h.setHeir(testHeir)
	for _, caller := range []common.Address{testOwner, testNewHeir, testStranger} {
		err := h.vault.DesignateNewHeir(h.call(caller), testNewHeir)
		require.ErrorIs(t, err, vault.ErrNotHeir)
	}
	// No timeout required
	require.NoError(t, h.vault.DesignateNewHeir(h.call(testHeir), testNewHeir))
	assert.Equal(t, testNewHeir, h.vault.State().NewHeir)
	// Reassignment before consumption
	require.NoError(t, h.vault.DesignateNewHeir(h.call(testHeir), testStranger))
	assert.Equal(t, testStranger, h.vault.State().NewHeir)
	events := h.takeEvents()
	require.Len(t, events, 2)
	assert.Equal(t, vault.NewHeirDesignatedEventType, events[1].Type)
	assert.Equal(
		t,
		vault.NewHeirDesignatedEvent{Candidate: testStranger},
		events[1].Data,
	)
}

func TestActivateSuccessionRequiresHeir(t *testing.T) {
	h := newTestHarness(t, 0)
	h.advance(testPeriod)
	require.ErrorIs(
		t,
		h.vault.ActivateSuccession(h.call(vault.NoPrincipal)),
		vault.ErrNotHeir,
	)
	h.setHeir(testHeir)
	for _, caller := range []common.Address{testOwner, testStranger} {
		require.ErrorIs(
			t,
			h.vault.ActivateSuccession(h.call(caller)),
			vault.ErrNotHeir,
		)
	}
}

func TestActivateSuccessionBoundary(t *testing.T) {
	h := newTestHarness(t, 0)
	h.setHeir(testHeir)
	h.advance(testPeriod - time.Nanosecond)
	err := h.vault.ActivateSuccession(h.call(testHeir))
	require.ErrorIs(t, err, vault.ErrNotYetEligible)
	var eligErr vault.NotYetEligibleError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, testEpoch.Add(testPeriod), eligErr.EligibleAt)
	assert.Equal(t, time.Nanosecond, eligErr.Remaining())
	assert.False(t, h.vault.State().HeirActivated)
	assert.Empty(t, h.takeEvents())

	// Exactly at the threshold succeeds
	h.advance(time.Nanosecond)
	require.NoError(t, h.vault.ActivateSuccession(h.call(testHeir)))
	assert.Equal(t, testHeir, h.vault.State().Owner)
}

func TestActivateSuccessionWithoutNewHeir(t *testing.T) {
	h := newTestHarness(t, 0)
	h.setHeir(testHeir)
	h.advance(testPeriod)
	require.NoError(t, h.vault.ActivateSuccession(h.call(testHeir)))
	state := h.vault.State()
	assert.Equal(t, testHeir, state.Owner)
	assert.Equal(t, testHeir, state.Heir)
	assert.Equal(t, vault.NoPrincipal, state.NewHeir)
	assert.True(t, state.HeirActivated)
	// Activation does not count as owner activity
	assert.Equal(t, testEpoch, state.LastActivityTime)
	events := h.takeEvents()
	require.Len(t, events, 1)
	assert.Equal(t, vault.SuccessionActivatedEventType, events[0].Type)
	assert.Equal(
		t,
		vault.SuccessionActivatedEvent{Principal: testHeir},
		events[0].Data,
	)
}

func TestActivateSuccessionWithNewHeir(t *testing.T) {
	h := newTestHarness(t, 0)
	h.setHeir(testHeir)
	require.NoError(t, h.vault.DesignateNewHeir(h.call(testHeir), testNewHeir))
	h.takeEvents()
	h.advance(testPeriod)
	require.NoError(t, h.vault.ActivateSuccession(h.call(testHeir)))
	state := h.vault.State()
	assert.Equal(t, testHeir, state.Owner)
	assert.Equal(t, testNewHeir, state.Heir)
	assert.Equal(t, vault.NoPrincipal, state.NewHeir)
	assert.True(t, state.HeirActivated)
	events := h.takeEvents()
	require.Len(t, events, 2)
	assert.Equal(t, vault.HeirChangedEventType, events[0].Type)
	assert.Equal(
		t,
		vault.HeirChangedEvent{Old: testHeir, New: testNewHeir},
		events[0].Data,
	)
	assert.Equal(t, vault.SuccessionActivatedEventType, events[1].Type)
}

func TestActivateSuccessionTwice(t *testing.T) {
	h := newTestHarness(t, 0)
	h.setHeir(testHeir)
	h.advance(testPeriod)
	require.NoError(t, h.vault.ActivateSuccession(h.call(testHeir)))
	// LastActivityTime was not refreshed, so the self-succeeded heir is
	// immediately eligible again
	require.NoError(t, h.vault.ActivateSuccession(h.call(testHeir)))

	// Once the new owner is active the heir has to wait a full period
	require.NoError(t, h.vault.ResetActivity(h.call(testHeir)))
	h.takeEvents()
	err := h.vault.ActivateSuccession(h.call(testHeir))
	require.ErrorIs(t, err, vault.ErrNotYetEligible)
	h.advance(testPeriod)
	require.NoError(t, h.vault.ActivateSuccession(h.call(testHeir)))
}

func TestActivateSuccessionSecondCallAfterHandover(t *testing.T) {
	h := newTestHarness(t, 0)
	h.setHeir(testHeir)
	require.NoError(t, h.vault.DesignateNewHeir(h.call(testHeir), testNewHeir))
	h.advance(testPeriod)
	require.NoError(t, h.vault.ActivateSuccession(h.call(testHeir)))
	// The new owner refreshes activity, so the new heir must wait
	require.NoError(t, h.vault.ResetActivity(h.call(testHeir)))
	err := h.vault.ActivateSuccession(h.call(testNewHeir))
	require.ErrorIs(t, err, vault.ErrNotYetEligible)
	// A new epoch completes after another full period
	h.advance(testPeriod)
	require.NoError(t, h.vault.ActivateSuccession(h.call(testNewHeir)))
	state := h.vault.State()
	assert.Equal(t, testNewHeir, state.Owner)
	assert.Equal(t, testNewHeir, state.Heir)
}

func TestSetHeirAfterActivation(t *testing.T) {
	h := newTestHarness(t, 0)
	h.setHeir(testHeir)
	h.advance(testPeriod)
	require.NoError(t, h.vault.ActivateSuccession(h.call(testHeir)))
	// The new owner may designate someone else at any time
	require.NoError(t, h.vault.SetHeir(h.call(testHeir), testStranger))
	state := h.vault.State()
	assert.Equal(t, testStranger, state.Heir)
	assert.True(t, state.HeirActivated)
	// The former owner lost all rights
	require.ErrorIs(
		t,
		h.vault.SetHeir(h.call(testOwner), testOwner),
		vault.ErrNotOwner,
	)
}

func TestScenarioWithdraw(t *testing.T) {
	h := newTestHarness(t, 10)
	amount, err := h.vault.Withdraw(h.call(testOwner))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), amount)
	assert.Equal(t, uint64(0), h.vault.Balance())
	assert.Equal(t, uint64(10), h.ledger.BalanceOf(testOwner))
	events := h.takeEvents()
	require.Len(t, events, 1)
	assert.Equal(t, vault.WithdrawalEvent{Amount: 10}, events[0].Data)
}

func TestScenarioActivationTiming(t *testing.T) {
	h := newTestHarness(t, 0)
	h.setHeir(testHeir)
	h.advance(testPeriod - time.Second)
	require.ErrorIs(
		t,
		h.vault.ActivateSuccession(h.call(testHeir)),
		vault.ErrNotYetEligible,
	)
	h.advance(2 * time.Second)
	require.NoError(t, h.vault.ActivateSuccession(h.call(testHeir)))
	assert.Equal(t, testHeir, h.vault.State().Owner)
}

func TestScenarioHandoverToNewHeir(t *testing.T) {
	h := newTestHarness(t, 10)
	h.setHeir(testHeir)
	require.NoError(t, h.vault.DesignateNewHeir(h.call(testHeir), testNewHeir))
	h.advance(testPeriod + time.Second)
	require.NoError(t, h.vault.ActivateSuccession(h.call(testHeir)))
	state := h.vault.State()
	assert.Equal(t, testHeir, state.Owner)
	assert.Equal(t, testNewHeir, state.Heir)
	assert.Equal(t, vault.NoPrincipal, state.NewHeir)
	_, err := h.vault.Withdraw(h.call(testOwner))
	require.ErrorIs(t, err, vault.ErrUnauthorized)
	// The new owner can withdraw
	amount, err := h.vault.Withdraw(h.call(testHeir))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), amount)
	assert.Equal(t, uint64(10), h.ledger.BalanceOf(testHeir))
}
