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
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blinklabs-io/bequest/event"
	"github.com/blinklabs-io/bequest/vault"
)

type TxOp string

const (
	TxOpWithdraw           TxOp = "withdraw"
	TxOpResetActivity      TxOp = "reset-activity"
	TxOpSetHeir            TxOp = "set-heir"
	TxOpDesignateNewHeir   TxOp = "designate-new-heir"
	TxOpActivateSuccession TxOp = "activate-succession"
	TxOpDeposit            TxOp = "deposit"
)

// TxOps lists every supported operation
var TxOps = []TxOp{
	TxOpWithdraw,
	TxOpResetActivity,
	TxOpSetHeir,
	TxOpDesignateNewHeir,
	TxOpActivateSuccession,
	TxOpDeposit,
}

func (o TxOp) Valid() bool {
	switch o {
	case TxOpWithdraw,
		TxOpResetActivity,
		TxOpSetHeir,
		TxOpDesignateNewHeir,
		TxOpActivateSuccession,
		TxOpDeposit:
		return true
	}
	return false
}

// NeedsCandidate reports whether the operation takes a candidate principal
func (o TxOp) NeedsCandidate() bool {
	return o == TxOpSetHeir || o == TxOpDesignateNewHeir
}

// Tx is a single authenticated call against the vault
type Tx struct {
	// Id is assigned by Submit when empty
	Id        string
	Caller    common.Address
	Op        TxOp
	Nonce     uint64
	Candidate common.Address
	Amount    uint64
}

func (tx Tx) validate() error {
	if !tx.Op.Valid() {
		return ErrUnknownOp
	}
	if tx.Caller == vault.NoPrincipal {
		return ErrZeroCaller
	}
	if tx.Op == TxOpDeposit && tx.Amount == 0 {
		return ErrZeroAmount
	}
	return nil
}

// Receipt describes a transaction that was applied
type Receipt struct {
	TxId   string
	Caller common.Address
	Op     TxOp
	Nonce  uint64
	Time   time.Time
	// Amount withdrawn or deposited
	Amount uint64
	Events []event.Event
}

// TxResult is the recorded outcome of a submitted transaction
type TxResult struct {
	TxId   string
	Caller common.Address
	Op     TxOp
	Nonce  uint64
	Status string
	Error  string
	Time   time.Time
}
