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

// Package custody holds native value balances and moves them between
// principals. It is the value-transfer primitive consumed by the vault.
package custody

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
	ErrRecipientRejected = errors.New("recipient rejected transfer")
)

// Account is the custody record for a single principal
type Account struct {
	Balance uint64
	Nonce   uint64
}

// Receiver is notified synchronously after value has been credited to its
// account. Returning an error reverts the transfer.
type Receiver interface {
	Receive(from common.Address, amount uint64) error
}

// ReceiverFunc adapts a function to the Receiver interface
type ReceiverFunc func(from common.Address, amount uint64) error

func (f ReceiverFunc) Receive(from common.Address, amount uint64) error {
	return f(from, amount)
}

// Snapshot is a point-in-time copy of all accounts
type Snapshot map[common.Address]Account

type Ledger struct {
	logger    *slog.Logger
	accounts  map[common.Address]Account
	receivers map[common.Address]Receiver
	touched   map[common.Address]struct{}
	mu        sync.RWMutex
}

func NewLedger(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Ledger{
		logger:    logger.With("component", "custody"),
		accounts:  make(map[common.Address]Account),
		receivers: make(map[common.Address]Receiver),
		touched:   make(map[common.Address]struct{}),
	}
}

// BalanceOf returns the balance held by addr
func (l *Ledger) BalanceOf(addr common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[addr].Balance
}

// NonceOf returns the number of calls consumed by addr
func (l *Ledger) NonceOf(addr common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[addr].Nonce
}

// Account returns the full record for addr
func (l *Ledger) Account(addr common.Address) Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[addr]
}

// IncrementNonce bumps the nonce for addr and returns the new value
func (l *Ledger) IncrementNonce(addr common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.accounts[addr]
	acct.Nonce++
	l.accounts[addr] = acct
	l.touched[addr] = struct{}{}
	return acct.Nonce
}

// Credit adds newly issued value to addr. It is used for genesis balances
// and the development faucet.
func (l *Ledger) Credit(addr common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.accounts[addr]
	if acct.Balance > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	acct.Balance += amount
	l.accounts[addr] = acct
	l.touched[addr] = struct{}{}
	return nil
}

// Transfer moves amount from one account to another and then notifies the
// recipient's Receiver, if one is registered. No lock is held while the
// receiver runs, so it may call back into code that uses this ledger.
func (l *Ledger) Transfer(from, to common.Address, amount uint64) error {
	l.mu.Lock()
	fromAcct := l.accounts[from]
	if fromAcct.Balance < amount {
		l.mu.Unlock()
		return fmt.Errorf(
			"%w: have %d, need %d",
			ErrInsufficientFunds,
			fromAcct.Balance,
			amount,
		)
	}
	if from != to && l.accounts[to].Balance > math.MaxUint64-amount {
		l.mu.Unlock()
		return ErrBalanceOverflow
	}
	fromAcct.Balance -= amount
	l.accounts[from] = fromAcct
	toAcct := l.accounts[to]
	toAcct.Balance += amount
	l.accounts[to] = toAcct
	l.touched[from] = struct{}{}
	l.touched[to] = struct{}{}
	recv := l.receivers[to]
	l.mu.Unlock()
	if recv == nil {
		return nil
	}
	if err := recv.Receive(from, amount); err != nil {
		l.revert(from, to, amount)
		return fmt.Errorf("%w: %w", ErrRecipientRejected, err)
	}
	return nil
}

func (l *Ledger) revert(from, to common.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	toAcct := l.accounts[to]
	if toAcct.Balance < amount {
		// The receiver spent the value before rejecting it. The caller
		// must roll back from a snapshot.
		l.logger.Warn(
			"unable to revert rejected transfer",
			"from", from.Hex(),
			"to", to.Hex(),
			"amount", amount,
		)
		return
	}
	toAcct.Balance -= amount
	l.accounts[to] = toAcct
	fromAcct := l.accounts[from]
	fromAcct.Balance += amount
	l.accounts[from] = fromAcct
}

// RegisterReceiver installs a hook for value sent to addr
func (l *Ledger) RegisterReceiver(addr common.Address, r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receivers[addr] = r
}

func (l *Ledger) UnregisterReceiver(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.receivers, addr)
}

// Snapshot copies all accounts
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.accounts)
}

// Restore replaces all accounts with the snapshot contents and clears the
// set of touched accounts
func (l *Ledger) Restore(snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = maps.Clone(snap)
	if l.accounts == nil {
		l.accounts = make(map[common.Address]Account)
	}
	clear(l.touched)
}

// Touched returns the accounts modified since the last call to ClearTouched,
// in a stable order
func (l *Ledger) Touched() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ret := slices.Collect(maps.Keys(l.touched))
	slices.SortFunc(ret, func(a, b common.Address) int {
		return a.Cmp(b)
	})
	return ret
}

func (l *Ledger) ClearTouched() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.touched)
}
